package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go-tmux/internal/config"
	"go-tmux/internal/ipc"
	"go-tmux/internal/logging"
	"go-tmux/internal/sessionlog"
	"go-tmux/internal/tmux"
	"go-tmux/internal/workerutil"
	"go-tmux/internal/wsserver"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, flags, listen, cmd.Flags().Changed("listen"))
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "WebSocket listen address; empty disables the hub (default: status.listen_addr)")
	return cmd
}

func serve(ctx context.Context, flags *rootFlags, listen string, listenSet bool) error {
	messages := sessionlog.NewMessages(0)
	cfg, cfgPath, err := flags.loadConfig(messages)
	if err != nil {
		return err
	}
	if listenSet {
		cfg.Status.ListenAddr = listen
	}

	logger, err := logging.Setup(loggingConfig(cfg.Log, messages))
	if err != nil {
		return err
	}
	defer logger.Close()

	socketPath := flags.resolvedSocketPath()
	srv, err := newServer(cfg, messages, serverOptions{
		ConfigPath: cfgPath,
		SocketPath: socketPath,
		RunPanes:   true,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.shutdown(shutdownCtx); err != nil {
			slog.Warn("[DEBUG-SERVE] shutdown incomplete", "error", err)
		}
	}()

	var hub *wsserver.Hub
	if cfg.Status.ListenAddr != "" {
		hub = wsserver.NewHub(wsserver.HubOptions{
			Addr:           cfg.Status.ListenAddr,
			Backend:        srv.sessions,
			Commands:       srv.router,
			RedrawInterval: cfg.Status.RedrawInterval.Std(),
			RedrawBurst:    cfg.Status.RedrawBurst,
		})
		srv.setRedrawer(hub)
		if err := hub.Start(ctx); err != nil {
			return err
		}
		defer hub.Stop()
	}

	if failed := srv.runStartupCommands(); failed > 0 {
		slog.Warn("[WARN-CONFIG] some startup commands failed", "failed", failed)
	}

	sock := ipc.NewSocketServer(socketPath, srv.router)
	if err := sock.Start(); err != nil {
		return fmt.Errorf("start socket server: %w", err)
	}
	defer sock.Stop()

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer func() {
		cancelWorkers()
		wg.Wait()
	}()

	redrawAll := func() {
		if hub != nil {
			hub.RedrawAll()
		}
	}
	srv.jobs.RunTidy(workerCtx, &wg, cfg.Jobs.TidyInterval.Std())
	srv.sessions.RunNameChecks(workerCtx, &wg, cfg.Names.CheckInterval.Std(), func([]*tmux.TmuxWindow) {
		redrawAll()
	})
	workerutil.RunTicker(workerCtx, "monitor-silence", &wg, time.Second, func(context.Context) {
		if srv.sessions.CheckSilence() {
			redrawAll()
		}
	})
	if hub != nil {
		tmux.NewStatusTimer(srv.sessions, hub).Run(workerCtx, &wg)
	}
	workerutil.RunWithPanicRecovery(workerCtx, "config-watch", &wg, func(ctx context.Context) {
		err := config.Watch(ctx, cfgPath, func(next config.Config) {
			if err := srv.applyConfig(next); err != nil {
				slog.Warn("[WARN-CONFIG] reloaded config not applied", "error", err)
				return
			}
			if err := logger.SetLevel(next.Log.Level); err != nil {
				slog.Warn("[WARN-CONFIG] log level not changed", "error", err)
			}
			redrawAll()
		})
		if err != nil {
			slog.Warn("[WARN-CONFIG] config watcher stopped", "error", err)
		}
	}, workerutil.RecoveryOptions{})

	hubURL := ""
	if hub != nil {
		hubURL = hub.URL()
	}
	slog.Info("[DEBUG-SERVE] server running", "socket", sock.Path(), "hub", hubURL, "config", cfgPath)
	<-ctx.Done()
	slog.Info("[DEBUG-SERVE] shutting down")
	return nil
}
