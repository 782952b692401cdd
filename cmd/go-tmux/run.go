package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"go-tmux/internal/ipc"
	"go-tmux/internal/shell"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "run [--local] -- command [args...] | run 'command line'",
		Short: "Run tmux commands on the server",
		Long: `run sends commands to the server listening on the socket. A single argument
is a command line and may chain commands with ";". Several arguments are
one command's argument vector.

Without a listening server, or with --local, the commands run against a
one-shot server built from the config file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			argvs, err := commandVectors(args)
			if err != nil {
				return err
			}
			return runCommands(flags, argvs, local, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "skip the running server and use a one-shot server")
	return cmd
}

// commandVectors splits run's arguments into commands.
func commandVectors(args []string) ([][]string, error) {
	if len(args) == 1 {
		return shell.ParseLine(args[0])
	}
	return [][]string{args}, nil
}

func runCommands(flags *rootFlags, argvs [][]string, local bool, stdout, stderr io.Writer) error {
	if !local {
		resp, err := sendCommands(flags.resolvedSocketPath(), argvs)
		if err == nil {
			return writeResponse(resp, stdout, stderr)
		}
		if !ipc.IsConnectionError(err) {
			return err
		}
		slog.Debug("[DEBUG-IPC] no server listening, running locally", "error", err)
	}

	srv, cleanup, err := oneShot(flags, stderr)
	if err != nil {
		return err
	}
	defer cleanup()
	return writeResponse(executeAll(argvs, srv.router.Execute), stdout, stderr)
}

// sendCommands sends each command to the server at path, stopping at the
// first failure. A transport error ends the loop and is returned.
func sendCommands(path string, argvs [][]string) (ipc.TmuxResponse, error) {
	var sendErr error
	resp := executeAll(argvs, func(req ipc.TmuxRequest) ipc.TmuxResponse {
		resp, err := ipc.Send(path, req)
		if err != nil {
			sendErr = err
			return ipc.TmuxResponse{ExitCode: 1}
		}
		return resp
	})
	return resp, sendErr
}

// executeAll runs each command through execute, stopping at the first
// failure, and joins their output.
func executeAll(argvs [][]string, execute func(ipc.TmuxRequest) ipc.TmuxResponse) ipc.TmuxResponse {
	var out ipc.TmuxResponse
	var stdout strings.Builder
	for _, argv := range argvs {
		req, err := ipc.ParseCommand(argv)
		if err != nil {
			out = ipc.TmuxResponse{ExitCode: 1, Stderr: err.Error() + "\n"}
			break
		}
		out = execute(req)
		stdout.WriteString(out.Stdout)
		if out.ExitCode != 0 {
			break
		}
	}
	out.Stdout = stdout.String()
	return out
}
