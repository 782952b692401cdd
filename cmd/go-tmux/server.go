package main

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"golang.org/x/sync/errgroup"

	"go-tmux/internal/config"
	"go-tmux/internal/job"
	"go-tmux/internal/metrics"
	"go-tmux/internal/sessionlog"
	"go-tmux/internal/tmux"
)

// serverOptions selects the optional parts of a server.
type serverOptions struct {
	ConfigPath string
	SocketPath string
	// RunPanes starts pane processes; one-shot commands leave panes empty.
	RunPanes bool
}

// server is everything a go-tmux server process owns.
type server struct {
	cfg      config.Config
	messages *sessionlog.Messages
	provider *metrics.Provider
	metrics  *metrics.Metrics

	jobRunner  *job.Runner
	paneRunner *job.Runner
	jobs       *tmux.FormatJobs
	sessions   *tmux.SessionManager
	router     *tmux.CommandRouter
}

// newServer builds the session manager, #() job cache and router described
// by cfg. messages may be shared with the logger's tee handler.
func newServer(cfg config.Config, messages *sessionlog.Messages, opts serverOptions) (*server, error) {
	s := &server{cfg: cfg, messages: messages}
	if s.messages == nil {
		s.messages = sessionlog.NewMessages(0)
	}

	if cfg.Metrics.Enabled {
		s.provider = metrics.Setup()
	}
	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}
	s.metrics = m

	s.jobRunner = job.NewRunner(job.Options{Shell: cfg.Shell, UsePTY: cfg.Jobs.UsePTY})
	if opts.RunPanes {
		s.paneRunner = job.NewRunner(job.Options{Shell: cfg.Shell, UsePTY: true})
	}
	s.jobs = tmux.NewFormatJobs(tmux.FormatJobsOptions{
		Starter: tmux.RunnerStarter{Runner: s.jobRunner},
		Metrics: s.metrics,
		MaxIdle: cfg.Jobs.MaxIdle.Std(),
	})

	var configFiles []string
	if opts.ConfigPath != "" {
		configFiles = []string{opts.ConfigPath}
	}
	s.sessions = tmux.NewSessionManager(tmux.SessionManagerOptions{
		DefaultShell: cfg.Shell,
		SocketPath:   opts.SocketPath,
		ConfigFiles:  configFiles,
		Jobs:         s.jobs,
		PaneRunner:   s.paneRunner,
		Metrics:      s.metrics,
	})
	s.router = tmux.NewCommandRouter(s.sessions, tmux.RouterOptions{
		Messages:        s.messages,
		MetricsProvider: s.provider,
	})

	if err := s.applyConfig(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// setRedrawer points job output and router redraws at r.
func (s *server) setRedrawer(r tmux.StatusRedrawer) {
	s.jobs.SetRedrawer(r)
	s.router.SetRedrawer(r)
}

// applyConfig sets the global options and environment of cfg in name
// order. Options removed from the file keep their current values.
func (s *server) applyConfig(cfg config.Config) error {
	for _, name := range slices.Sorted(maps.Keys(cfg.Options)) {
		err := s.sessions.SetOption(tmux.SetOptionRequest{
			OptionTarget: tmux.OptionTarget{Global: true, CallerPane: -1},
			Name:         name,
			Value:        cfg.Options[name],
		})
		if err != nil {
			return fmt.Errorf("option %s: %w", name, err)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.Environment)) {
		if err := s.sessions.SetEnvironment("", name, cfg.Environment[name], false, false, false); err != nil {
			return fmt.Errorf("environment %s: %w", name, err)
		}
	}
	if n, err := strconv.Atoi(s.sessions.GlobalOption("message-limit")); err == nil {
		s.messages.SetLimit(n)
	}
	s.cfg = cfg
	return nil
}

// runStartupCommands runs each startup command line. A failing line is
// reported and the rest still run.
func (s *server) runStartupCommands() int {
	failed := 0
	for i, line := range s.cfg.StartupCommands {
		resp := s.router.ExecuteLine(line)
		if resp.ExitCode != 0 {
			failed++
			slog.Warn("[WARN-CONFIG] startup command failed",
				"index", i, "command", line, "error", resp.Stderr)
		}
	}
	return failed
}

// shutdown drops every cached #() entry and stops all processes.
func (s *server) shutdown(ctx context.Context) error {
	s.jobs.Tidy(true)

	var g errgroup.Group
	g.Go(func() error { return s.jobRunner.Shutdown(ctx) })
	if s.paneRunner != nil {
		g.Go(func() error { return s.paneRunner.Shutdown(ctx) })
	}
	err := g.Wait()
	if shutdownErr := s.provider.Shutdown(ctx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}
