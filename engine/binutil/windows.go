//go:build windows

package binutil

import "github.com/colonyworld/replica/engine/gwlog"

type nopRelease int

func (nopRelease) Release() error {
	return nil
}

// Daemonize is not supported on windows, the process keeps running in foreground
func Daemonize(pidFile string) nopRelease {
	gwlog.Warnf("can not run in daemon mode in windows, -d ignored (pidfile %s)", pidFile)
	return nopRelease(0)
}
