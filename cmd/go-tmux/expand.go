package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"go-tmux/internal/ipc"
	"go-tmux/internal/logging"
	"go-tmux/internal/sessionlog"
)

type expandFlags struct {
	format  string
	target  string
	verbose bool
	wait    time.Duration
}

func newExpandCmd(flags *rootFlags) *cobra.Command {
	ef := &expandFlags{}
	cmd := &cobra.Command{
		Use:   "expand [template]",
		Short: "Expand a format template against a one-shot server",
		Long: `expand builds a server from the config file, runs its startup commands and
prints the expansion of the template, like "display-message -p". When the
config creates no session a detached one is created first.

#() commands start on the first expansion and report nothing until they
produce output; --wait expands twice with the given pause in between.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ef.format != "" && len(args) > 0 {
				return fmt.Errorf("only one of -F or a template argument")
			}
			template := ef.format
			if len(args) > 0 {
				template = args[0]
			}
			return expand(cmd.Context(), flags, ef, template, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&ef.format, "format", "F", "", "template to expand")
	cmd.Flags().StringVarP(&ef.target, "target", "t", "", "target session, window or pane")
	cmd.Flags().BoolVarP(&ef.verbose, "verbose", "v", false, "print each expansion step")
	cmd.Flags().DurationVar(&ef.wait, "wait", 0, "let #() commands run this long before the final expansion")
	return cmd
}

// oneShot builds a server for a single command: logs go to stderr unless
// the config names a log directory, and pane processes are not started.
func oneShot(flags *rootFlags, stderr io.Writer) (*server, func(), error) {
	messages := sessionlog.NewMessages(0)
	cfg, cfgPath, err := flags.loadConfig(messages)
	if err != nil {
		return nil, nil, err
	}
	logCfg := loggingConfig(cfg.Log, messages)
	logCfg.Stderr = stderr
	logger, err := logging.Setup(logCfg)
	if err != nil {
		return nil, nil, err
	}
	srv, err := newServer(cfg, messages, serverOptions{
		ConfigPath: cfgPath,
		SocketPath: flags.resolvedSocketPath(),
	})
	if err != nil {
		logger.Close()
		return nil, nil, err
	}
	srv.runStartupCommands()
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.shutdown(ctx); err != nil {
			slog.Debug("[DEBUG-SERVE] one-shot shutdown", "error", err)
		}
		logger.Close()
	}
	return srv, cleanup, nil
}

func expand(ctx context.Context, flags *rootFlags, ef *expandFlags, template string, stdout, stderr io.Writer) error {
	srv, cleanup, err := oneShot(flags, stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	if len(srv.sessions.SessionNames()) == 0 {
		if resp := srv.router.ExecuteLine("new-session -d"); resp.ExitCode != 0 {
			return fmt.Errorf("create session: %s", strings.TrimSpace(resp.Stderr))
		}
	}

	req := ipc.TmuxRequest{
		Command: "display-message",
		Flags:   map[string]any{"-p": true},
	}
	if template != "" {
		req.Args = []string{template}
	}
	if ef.target != "" {
		req.Flags["-t"] = ef.target
	}
	if ef.verbose {
		req.Flags["-v"] = true
	}

	if ef.wait > 0 {
		srv.router.Execute(req)
		select {
		case <-time.After(ef.wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return writeResponse(srv.router.Execute(req), stdout, stderr)
}

// writeResponse prints a command response and turns a failure into an
// exit status.
func writeResponse(resp ipc.TmuxResponse, stdout, stderr io.Writer) error {
	if resp.Stdout != "" {
		fmt.Fprint(stdout, resp.Stdout)
	}
	if resp.Stderr != "" {
		fmt.Fprint(stderr, resp.Stderr)
	}
	if resp.ExitCode != 0 {
		return exitCodeError{code: resp.ExitCode}
	}
	return nil
}
