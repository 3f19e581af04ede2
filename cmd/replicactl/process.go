package main

import (
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/process"
)

const serverExecutable = "replicaserver"

// isReplicaServer checks if a process is a replicaserver by its executable name or its command line
func isReplicaServer(name string, cmdline []string) bool {
	if name == serverExecutable+BinaryExtension {
		return true
	}
	return len(cmdline) > 0 && filepath.Base(cmdline[0]) == serverExecutable+BinaryExtension
}

func findServers() []*process.Process {
	procs, err := process.Processes()
	checkErrorOrQuit(err, "list processes failed")

	var servers []*process.Process
	for _, proc := range procs {
		name, err := proc.Name()
		if err != nil {
			continue
		}
		cmdline, _ := proc.CmdlineSlice()
		if isReplicaServer(name, cmdline) {
			servers = append(servers, proc)
		}
	}
	return servers
}

func status() {
	servers := findServers()
	showMsg("%d replicaserver running", len(servers))
	for _, proc := range servers {
		cmdline, err := proc.Cmdline()
		if err != nil {
			cmdline = "get cmdline failed: " + err.Error()
		}
		var uptime string
		if created, err := proc.CreateTime(); err == nil {
			uptime = time.Since(time.Unix(0, created*int64(time.Millisecond))).Truncate(time.Second).String()
		}
		showMsg("\t%-10d%-12s%s", proc.Pid, uptime, strings.TrimSpace(cmdline))
	}
}

func stop(sig syscall.Signal) {
	servers := findServers()
	if len(servers) == 0 {
		showMsgAndQuit("no replicaserver is running")
	}
	for _, proc := range servers {
		showMsg("send %s to replicaserver %d ...", sig, proc.Pid)
		if err := proc.SendSignal(sig); err != nil {
			showMsg("signal %d failed: %v", proc.Pid, err)
		}
	}
}
