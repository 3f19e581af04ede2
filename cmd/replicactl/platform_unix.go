//go:build !windows

package main

import "syscall"

const (
	// BinaryExtension is the extension of executables
	BinaryExtension = ""
	// StopSignal asks a server to save and quit
	StopSignal = syscall.SIGTERM
	// KillSignal quits a server without saving
	KillSignal = syscall.SIGKILL
)
