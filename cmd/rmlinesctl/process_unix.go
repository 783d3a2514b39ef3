//go:build !windows

package main

import (
	"os"
	"syscall"
)

// signalZero checks that the process exists without signalling it.
func signalZero(p *os.Process) error {
	return p.Signal(syscall.Signal(0))
}
