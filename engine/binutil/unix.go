//go:build !windows

package binutil

import (
	"os"

	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/sevlyar/go-daemon"
)

// Daemonize re-runs the process in background and exits the parent.
// The returned context must be released by the child when it quits.
func Daemonize(pidFile string) *daemon.Context {
	context := &daemon.Context{
		PidFileName: pidFile,
		PidFilePerm: 0644,
		WorkDir:     "./",
	}
	child, err := context.Reborn()
	if err != nil {
		gwlog.Panicf("daemonize failed: %v", err)
	}

	if child != nil {
		gwlog.Infof("replica server forked to background: pid=%d", child.Pid)
		os.Exit(0)
	}
	return context
}
