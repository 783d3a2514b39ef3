//go:build windows

package main

import "os"

// signalZero reports success: on Windows FindProcess already fails for a
// process that does not exist.
func signalZero(p *os.Process) error {
	return nil
}
