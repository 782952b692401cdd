//go:build windows

package job

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// startProcess starts cmd with its stdout and stderr merged into one pipe.
// Windows has no PTY support here; usePTY is ignored.
func startProcess(cmd *exec.Cmd, _ bool) (io.ReadCloser, string, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, "", fmt.Errorf("create pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, "", err
	}
	_ = pw.Close()
	return pr, "", nil
}

func killProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func isPTYClosed(error) bool {
	return false
}
