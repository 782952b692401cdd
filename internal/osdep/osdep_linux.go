//go:build linux

package osdep

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// procRoot is the proc filesystem mount. Tests point it at a fixture tree.
var procRoot = "/proc"

// foregroundGroupFn resolves the terminal's foreground process group.
var foregroundGroupFn = func(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.TIOCGPGRP)
}

type system struct{}

// pgrpFor returns the foreground group for fd, falling back to pid when the
// descriptor is not a terminal.
func pgrpFor(fd int, pid int) int {
	if fd >= 0 {
		pgrp, err := foregroundGroupFn(fd)
		if err == nil && pgrp > 0 {
			return pgrp
		}
		if err != nil {
			slog.Debug("[DEBUG-OSDEP] TIOCGPGRP failed", "fd", fd, "error", err)
		}
	}
	return pid
}

func (system) Name(fd int, pid int) string {
	pgrp := pgrpFor(fd, pid)
	if pgrp <= 0 {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(procRoot, fmt.Sprint(pgrp), "cmdline"))
	if err != nil || len(data) == 0 {
		return ""
	}
	if i := bytes.IndexByte(data, 0); i != -1 {
		data = data[:i]
	}
	return string(data)
}

func (system) Cwd(fd int, pid int) string {
	pgrp := pgrpFor(fd, pid)
	if pgrp <= 0 {
		return ""
	}
	target, err := os.Readlink(filepath.Join(procRoot, fmt.Sprint(pgrp), "cwd"))
	if err != nil {
		return ""
	}
	return target
}
