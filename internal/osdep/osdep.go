// Package osdep answers questions about the processes running in a pane's
// terminal.
package osdep

// ProcessInfo resolves a pane's foreground process.
type ProcessInfo interface {
	// Name returns the foreground process name for the terminal fd, or "".
	Name(fd int, pid int) string
	// Cwd returns the foreground process working directory, or "".
	Cwd(fd int, pid int) string
}

// Default is the ProcessInfo for the running platform.
var Default ProcessInfo = system{}
