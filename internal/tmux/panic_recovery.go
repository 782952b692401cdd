package tmux

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"go-tmux/internal/ipc"
)

// recoveredResponse logs a panic raised by a command handler and turns it
// into a failed response so one bad command cannot take the server down.
func recoveredResponse(command string, recovered any) ipc.TmuxResponse {
	slog.Error("[DEBUG-PANIC] command handler recovered from panic",
		"command", command,
		"panic", recovered,
		"stack", string(debug.Stack()),
	)
	return ipc.TmuxResponse{
		ExitCode: 1,
		Stderr:   fmt.Sprintf("%s: internal error: %v\n", command, recovered),
	}
}
