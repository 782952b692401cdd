//go:build !windows

package job

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// startProcess starts cmd and returns a reader over its combined output and
// the slave terminal name. With usePTY the command runs on a pseudo-terminal;
// pipe mode is used when PTYs are unsupported or not requested.
func startProcess(cmd *exec.Cmd, usePTY bool) (io.ReadCloser, string, error) {
	if usePTY {
		ptmx, tty, err := pty.Open()
		if err == nil {
			defer tty.Close()
			cmd.Stdin, cmd.Stdout, cmd.Stderr = tty, tty, tty
			cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}
			if err := cmd.Start(); err != nil {
				_ = ptmx.Close()
				return nil, "", err
			}
			return ptmx, tty.Name(), nil
		}
		if !errors.Is(err, pty.ErrUnsupported) {
			return nil, "", err
		}
	}
	r, err := startPipeMode(cmd)
	return r, "", err
}

func startPipeMode(cmd *exec.Cmd) (io.ReadCloser, error) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}
	cmd.Stdin = nil
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, err
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()
	return pr, nil
}

// killProcess signals the job's process group so shell pipelines die with it.
func killProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	if err := unix.Kill(-pid, unix.SIGTERM); err == nil {
		return nil
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal %d: %w", pid, err)
	}
	return nil
}

// isPTYClosed reports the EIO Linux returns from a PTY master once the
// slave side has gone away.
func isPTYClosed(err error) bool {
	return errors.Is(err, unix.EIO)
}
