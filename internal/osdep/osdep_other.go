//go:build !linux

package osdep

type system struct{}

func (system) Name(int, int) string { return "" }

func (system) Cwd(int, int) string { return "" }
