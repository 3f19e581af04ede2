package server

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/engine/gwutils"
	"github.com/colonyworld/replica/engine/opmon"
	"github.com/pkg/errors"
)

// consoleCommand is one operator command line, executed on the tick goroutine
type consoleCommand struct {
	line  string
	reply io.Writer
	done  chan struct{}
	once  sync.Once
}

func (cmd *consoleCommand) replyf(format string, args ...interface{}) {
	fmt.Fprintf(cmd.reply, format+"\n", args...)
}

func (cmd *consoleCommand) finish() {
	cmd.once.Do(func() {
		close(cmd.done)
	})
}

type consoleHandler struct {
	usage string
	help  string
	run   func(s *Server, cmd *consoleCommand, args []string)
}

var consoleHandlers map[string]consoleHandler

func init() {
	consoleHandlers = map[string]consoleHandler{
		"help":   {"help", "show commands", (*Server).cmdHelp},
		"info":   {"info", "show entities, peers and process stats", (*Server).cmdInfo},
		"ops":    {"ops", "show operation timings since the last ops", (*Server).cmdOps},
		"stop":   {"stop", "save and stop the server", (*Server).cmdStop},
		"save":   {"save [slot]", "save persistent entities", (*Server).cmdSave},
		"load":   {"load [slot]", "replace all entities by a saved snapshot", (*Server).cmdLoad},
		"backup": {"backup", "save persistent entities to a new timestamped slot", (*Server).cmdBackup},
		"slots":  {"slots", "list saved slots", (*Server).cmdSlots},
		"kick":   {"kick <participant>", "disconnect a participant", (*Server).cmdKick},
	}
}

// ServeConsole reads commands line by line from r and writes replies to w until r is exhausted or the server stops.
// Each command finishes before the next one is read.
func (s *Server) ServeConsole(r io.Reader, w io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd := &consoleCommand{line: line, reply: w, done: make(chan struct{})}
		select {
		case s.commands <- cmd:
		case <-s.done:
			return
		}
		select {
		case <-cmd.done:
		case <-s.done:
			return
		}
	}
}

func (s *Server) listenConsole(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen console")
	}
	s.consoleListener = ln
	gwlog.Infof("%s: console listening on %s", s, ln.Addr())

	go gwutils.RepeatUntilPanicless(func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if !s.stopping.Load() {
					gwlog.Errorf("%s: console accept failed: %v", s, err)
				}
				return
			}
			gwlog.Infof("%s: console connection from %s", s, conn.RemoteAddr())
			go func() {
				defer conn.Close()
				s.ServeConsole(conn, conn)
			}()
		}
	})
	return nil
}

func (s *Server) handleCommands() {
	for {
		select {
		case cmd := <-s.commands:
			s.execute(cmd)
		default:
			return
		}
	}
}

func (s *Server) execute(cmd *consoleCommand) {
	fields := strings.Fields(cmd.line)
	handler, ok := consoleHandlers[strings.ToLower(fields[0])]
	if !ok {
		cmd.replyf("unknown command %q, try help", fields[0])
		cmd.finish()
		return
	}
	gwlog.Infof("%s: console command: %s", s, cmd.line)
	if gwutils.RunPanicless(func() { handler.run(s, cmd, fields[1:]) }) {
		cmd.replyf("command %q failed", cmd.line)
		cmd.finish()
	}
}

func (s *Server) cmdHelp(cmd *consoleCommand, args []string) {
	names := make([]string, 0, len(consoleHandlers))
	for name := range consoleHandlers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h := consoleHandlers[name]
		cmd.replyf("%-20s %s", h.usage, h.help)
	}
	cmd.finish()
}

func (s *Server) cmdInfo(cmd *consoleCommand, args []string) {
	cmd.replyf("%s", s.Info())
	cmd.finish()
}

func (s *Server) cmdOps(cmd *consoleCommand, args []string) {
	if dump := opmon.Dump(); dump != "" {
		cmd.replyf("%s", strings.TrimRight(dump, "\n"))
	} else {
		cmd.replyf("no operations recorded")
	}
	cmd.finish()
}

func (s *Server) cmdStop(cmd *consoleCommand, args []string) {
	cmd.replyf("stopping")
	cmd.finish()
	s.Stop()
}

func (s *Server) slotArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return s.cfg.AutosaveSlot
}

func (s *Server) cmdSave(cmd *consoleCommand, args []string) {
	slot := s.slotArg(args)
	s.Save(slot, func(err error) {
		if err != nil {
			cmd.replyf("save %s failed: %v", slot, err)
		} else {
			cmd.replyf("saved %s", slot)
		}
		cmd.finish()
	})
}

func (s *Server) cmdBackup(cmd *consoleCommand, args []string) {
	s.cmdSave(cmd, []string{BackupSlot(time.Now())})
}

func (s *Server) cmdLoad(cmd *consoleCommand, args []string) {
	slot := s.slotArg(args)
	s.Load(slot, func(err error) {
		if err != nil {
			cmd.replyf("load %s failed: %v", slot, err)
		} else {
			cmd.replyf("loaded %s: %d entities", slot, s.Session.EntityCount())
		}
		cmd.finish()
	})
}

func (s *Server) cmdSlots(cmd *consoleCommand, args []string) {
	if !s.storageStarted {
		cmd.replyf("storage not started")
		cmd.finish()
		return
	}
	s.Storage.List(func(slots []string, err error) {
		if err != nil {
			cmd.replyf("list slots failed: %v", err)
		} else {
			sort.Strings(slots)
			cmd.replyf("%s", strings.Join(slots, " "))
		}
		cmd.finish()
	})
}

func (s *Server) cmdKick(cmd *consoleCommand, args []string) {
	defer cmd.finish()
	if len(args) != 1 {
		cmd.replyf("usage: kick <participant>")
		return
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(args[0], "client"), 10, 32)
	if err != nil {
		cmd.replyf("bad participant %q", args[0])
		return
	}
	pid := common.ParticipantID(n)
	if s.Session.Kick(pid) {
		cmd.replyf("kicked %s", pid)
	} else {
		cmd.replyf("%s is not connected", pid)
	}
}
