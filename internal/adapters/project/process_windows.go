//go:build windows

package project

import "os"

// processAlive reports whether pid can be opened. FindProcess fails on
// Windows once the process is gone.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
