// replicactl controls replicaserver processes on this host.
//
// Usage:
//
//	replicactl [-configfile replica.ini] status
//	replicactl [-configfile replica.ini] stop
//	replicactl [-configfile replica.ini] kill
//	replicactl [-configfile replica.ini] console <command> [args...]
//
// The console command talks to the console_port of the [server] section.
package main

import (
	"flag"
	"os"
	"strings"

	"github.com/colonyworld/replica/engine/config"
)

var args struct {
	configFile string
}

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.Parse()
}

func main() {
	parseArgs()
	config.LoadEnvFiles()
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}
	cmdArgs := flag.Args()
	if len(cmdArgs) == 0 {
		showMsg("no command to execute")
		flag.Usage()
		os.Exit(1)
	}

	switch cmd := cmdArgs[0]; cmd {
	case "status":
		status()
	case "stop":
		stop(StopSignal)
	case "kill":
		stop(KillSignal)
	case "console":
		if len(cmdArgs) < 2 {
			showMsgAndQuit("should specify a console command, try: console help")
		}
		runConsoleCommand(config.GetServer().ConsolePort, strings.Join(cmdArgs[1:], " "), os.Stdout)
	default:
		showMsgAndQuit("unknown command: %s", cmd)
	}
}
