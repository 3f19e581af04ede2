// replicaserver hosts the authoritative colony world.
//
// Usage:
//
//	replicaserver [-configfile replica.ini] [-log level] [-d] [-console]
package main

import (
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/colonyworld/replica/components/server"
	"github.com/colonyworld/replica/engine/binutil"
	"github.com/colonyworld/replica/engine/config"
	"github.com/colonyworld/replica/engine/entity"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/examples/colony"
)

var (
	args struct {
		configFile      string
		logLevel        string
		pidFile         string
		runInDaemonMode bool
		stdinConsole    bool
	}
	replicaServer *server.Server
	signalChan    = make(chan os.Signal, 1)
)

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.StringVar(&args.pidFile, "pidfile", "replicaserver.pid", "set pid file path in daemon mode")
	flag.BoolVar(&args.runInDaemonMode, "d", false, "run in daemon mode")
	flag.BoolVar(&args.stdinConsole, "console", true, "read console commands from stdin")
	flag.Parse()
}

func main() {
	rand.Seed(time.Now().UnixNano())
	parseArgs()

	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize(args.pidFile)
		defer daemoncontext.Release()
		args.stdinConsole = false
	}

	config.LoadEnvFiles()
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}
	cfg := config.Get()
	serverCfg := &cfg.Server
	if serverCfg.GoMaxProcs > 0 {
		gwlog.Infof("SET GOMAXPROCS = %d", serverCfg.GoMaxProcs)
		runtime.GOMAXPROCS(serverCfg.GoMaxProcs)
	}
	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = serverCfg.LogLevel
	}
	binutil.SetupGWLog("replicaserver", logLevel, serverCfg.LogFile, serverCfg.LogStderr)
	gwlog.Infof("Read config: \n%s\n", cfg)

	colony.Register()
	entity.ApplyInterestConfig(&cfg.Interest)

	replicaServer = server.New(cfg, &colony.ServerDelegate{})
	replicaServer.Session.OnPeerJoined = func(p *entity.Peer) {
		gwlog.Infof("%s joined with %d entities in interest", p, p.InterestCount())
	}
	replicaServer.Session.OnPeerLeft = func(p *entity.Peer, err error) {
		gwlog.Infof("%s left: %v", p, err)
	}
	if err := replicaServer.Start(); err != nil {
		gwlog.Fatalf("start server failed: %+v", err)
	}
	if args.stdinConsole {
		go replicaServer.ServeConsole(os.Stdin, os.Stdout)
	}

	setupSignals()
	replicaServer.Run()
	gwlog.Infof("replicaserver terminated gracefully.")
	gwlog.Sync()
}

func setupSignals() {
	gwlog.Infof("Setup signals ...")
	signal.Ignore(syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for sig := range signalChan {
			if sig == syscall.SIGINT || sig == syscall.SIGTERM {
				gwlog.Infof("Received %s, terminating replicaserver ...", sig)
				replicaServer.Stop()
				return
			}
			gwlog.Errorf("unexpected signal: %s", sig)
		}
	}()
}
