// Command go-tmux is a tmux-compatible format and status-line server.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go-tmux/internal/config"
	"go-tmux/internal/ipc"
	"go-tmux/internal/logging"
	"go-tmux/internal/sessionlog"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	socketPath string
}

// exitCodeError carries a command's exit status out of cobra.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		var exitErr exitCodeError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintln(os.Stderr, "go-tmux:", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "go-tmux",
		Short: "tmux-compatible format expansion and status-line server",
		Long: `go-tmux keeps sessions, windows, panes and clients the way tmux does and
expands tmux format templates (#{...}, #(...), #[...]) against them.

"serve" runs the server: a unix socket for commands and a WebSocket hub
that pushes each attached viewer its status line. "expand" and "run" work
against a running server or, when none is listening, a one-shot server
built from the config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", envOrDefault("GO_TMUX_CONFIG", ""), "config file (default: $XDG_CONFIG_HOME/go-tmux/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.socketPath, "socket", "", "server socket path (default: $GO_TMUX_SOCKET or a per-user temp path)")

	cmd.AddCommand(
		newServeCmd(flags),
		newExpandCmd(flags),
		newRunCmd(flags),
		newConfigCmd(flags),
	)
	return cmd
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (f *rootFlags) resolvedConfigPath() string {
	if f.configPath != "" {
		return f.configPath
	}
	return config.DefaultPath()
}

func (f *rootFlags) resolvedSocketPath() string {
	if f.socketPath != "" {
		return f.socketPath
	}
	return ipc.DefaultSocketPath()
}

// loadConfig reads the config file and queues path warnings into messages.
func (f *rootFlags) loadConfig(messages *sessionlog.Messages) (config.Config, string, error) {
	path := f.resolvedConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, path, err
	}
	for _, warning := range config.ConsumeDefaultPathWarnings() {
		messages.AddText(warning)
	}
	return cfg, path, nil
}

func loggingConfig(cfg config.LogConfig, sink sessionlog.Sink) logging.Config {
	return logging.Config{
		Dir:        cfg.Dir,
		Level:      cfg.Level,
		Format:     cfg.Format,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		Sink:       sink,
	}
}
