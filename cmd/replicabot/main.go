// replicabot connects scripted settlers to a replicaserver, for load and soak testing.
//
// Usage:
//
//	replicabot [-configfile replica.ini] [-n 10] [-duration 1m]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/colonyworld/replica/components/client"
	"github.com/colonyworld/replica/engine/binutil"
	"github.com/colonyworld/replica/engine/config"
	"github.com/colonyworld/replica/engine/entity"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/examples/colony"
)

var args struct {
	configFile string
	numBots    int
	duration   time.Duration
	strict     bool
}

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.IntVar(&args.numBots, "n", 10, "number of bots")
	flag.DurationVar(&args.duration, "duration", 0, "stop after duration, 0 runs until interrupted")
	flag.BoolVar(&args.strict, "strict", false, "panic on integrity errors")
	flag.Parse()
}

func main() {
	parseArgs()
	config.LoadEnvFiles()
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}
	cfg := config.GetClient()
	binutil.SetupGWLog("replicabot", cfg.LogLevel, cfg.LogFile, cfg.LogStderr)
	colony.Register()
	entity.ApplyInterestConfig(config.GetInterest())

	ctx, cancel := context.WithCancel(context.Background())
	if args.duration > 0 {
		time.AfterFunc(args.duration, cancel)
	}
	defer cancel()
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		gwlog.Infof("interrupted, stopping bots ...")
		cancel()
	}()

	opts := entity.DefaultOptions()
	opts.StrictIntegrity = args.strict

	var wait sync.WaitGroup
	bots := make([]*colony.Bot, 0, args.numBots)
	for i := 0; i < args.numBots; i++ {
		c, err := client.New(cfg, opts)
		if err != nil {
			gwlog.Fatalf("create client failed: %v", err)
		}
		bot := colony.NewBot(fmt.Sprintf("bot%d", i+1), c, time.Now().UnixNano()+int64(i))
		bots = append(bots, bot)
		wait.Add(1)
		go func() {
			defer wait.Done()
			runBot(ctx, bot, cfg.TickInterval)
		}()
	}
	wait.Wait()

	var delivered int64
	for _, bot := range bots {
		delivered += bot.Delivered
	}
	gwlog.Infof("%d bots delivered %d items", len(bots), delivered)
	gwlog.Sync()
}

// runBot owns the bot session on its own goroutine, reconnecting after a failed connect or a disconnect
func runBot(ctx context.Context, bot *colony.Bot, tickInterval time.Duration) {
	c := bot.Client
	defer c.Close()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	var retryAt time.Time
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !c.Connecting() && !c.Session.IsAttached() && now.After(retryAt) {
				if err := c.Connect(); err != nil {
					gwlog.Errorf("bot %s: %v", bot.Name, err)
				}
				retryAt = now.Add(time.Second * 3)
			}
			c.Tick(now.Sub(last))
			bot.Tick(now.Sub(last))
			last = now
		}
	}
}
