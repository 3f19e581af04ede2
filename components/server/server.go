// Package server runs the authoritative replica session: it accepts remote participants on the configured transport,
// ticks the session at a fixed rate, autosaves persistent entities and serves the operator console.
package server

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/colonyworld/replica/engine/binutil"
	"github.com/colonyworld/replica/engine/config"
	"github.com/colonyworld/replica/engine/crontab"
	"github.com/colonyworld/replica/engine/entity"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/engine/gwutils"
	"github.com/colonyworld/replica/engine/storage"
	"github.com/colonyworld/replica/engine/transport"
	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	timer "github.com/xiaonanln/goTimer"
)

const (
	acceptQueueSize     = 256
	acceptRetryInterval = time.Millisecond * 100
	infoUpdateInterval  = time.Second
	backupSlotPrefix    = "backup-"
)

// IServerDelegate receives the life cycle events of a server on its tick goroutine
type IServerDelegate interface {
	// OnServerReady is called after the server started listening
	OnServerReady(s *Server)
	// OnServerStopping is called before the final save and disconnect
	OnServerStopping(s *Server)
}

// DefaultServerDelegate does nothing on server events
type DefaultServerDelegate struct{}

// OnServerReady does nothing
func (DefaultServerDelegate) OnServerReady(s *Server) {}

// OnServerStopping does nothing
func (DefaultServerDelegate) OnServerStopping(s *Server) {}

// Server hosts the authoritative session.
//
// Start, Pending, Accept and Tick must be called on the tick goroutine, Run is the loop doing it at the configured rate.
// Stop may be called from any goroutine.
type Server struct {
	Session *entity.Session
	Storage *storage.Service

	cfg      *config.ServerConfig
	delegate IServerDelegate
	backend  transport.Backend
	listener transport.Listener
	accepted chan transport.Stream
	commands chan *consoleCommand

	consoleListener net.Listener
	httpServer      *http.Server
	autosaveTimer   *timer.Timer
	infoTimer       *timer.Timer
	backups         *crontab.Table
	procStats       *procStats
	startTime       time.Time

	infoLock   sync.Mutex
	latestInfo *Info

	storageStarted bool
	running        xnsyncutil.AtomicBool
	stopping       xnsyncutil.AtomicBool
	stopOnce       sync.Once
	done           chan struct{}
}

// New creates a server from the replica config, it does not listen until Start
func New(cfg *config.ReplicaConfig, delegate IServerDelegate) *Server {
	opts := entity.DefaultOptions()
	opts.StrictIntegrity = cfg.Debug.StrictIntegrity
	opts.Linger = cfg.Server.Linger
	opts.DebugPackets = cfg.Debug.DebugPackets
	opts.DebugInterest = cfg.Debug.DebugInterest

	if delegate == nil {
		delegate = DefaultServerDelegate{}
	}
	session := entity.NewServerSession(opts)
	serverCfg := cfg.Server
	return &Server{
		Session:  session,
		Storage:  storage.NewServiceFromConfig(&cfg.Storage, session, cfg.Debug.DebugSaveLoad),
		cfg:      &serverCfg,
		delegate: delegate,
		accepted: make(chan transport.Stream, acceptQueueSize),
		commands: make(chan *consoleCommand, 16),
		done:     make(chan struct{}),
	}
}

func (s *Server) String() string {
	return fmt.Sprintf("Server<%s://%s>", s.cfg.Transport, s.cfg.ListenAddr())
}

// Addr returns the address the server is listening on, nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start starts listening for participants, the storage routine, autosave and the admin endpoints
func (s *Server) Start() error {
	if s.listener != nil {
		return errors.Errorf("%s already started", s)
	}
	if s.cfg.BackupSchedule != "" {
		s.backups = crontab.New()
		if _, err := s.backups.Register(s.cfg.BackupSchedule, s.Backup); err != nil {
			return err
		}
	}
	backend, err := transport.Get(s.cfg.Transport, transport.Options{
		ReadBufferSize:  s.cfg.ReadBufferSize,
		WriteBufferSize: s.cfg.WriteBufferSize,
		NoDelay:         s.cfg.NoDelay,
		Compress:        s.cfg.CompressConnection,
	})
	if err != nil {
		return err
	}
	listener, err := backend.Listen(s.cfg.ListenAddr())
	if err != nil {
		return err
	}
	s.backend, s.listener = backend, listener
	s.startTime = time.Now()
	s.procStats = newProcStats()

	s.Storage.Start()
	s.storageStarted = true
	go gwutils.RepeatUntilPanicless(s.acceptRoutine)

	if s.cfg.AutosaveInterval > 0 {
		s.autosaveTimer = timer.AddTimer(s.cfg.AutosaveInterval, s.autosave)
	}
	if s.backups != nil {
		s.backups.Start()
	}
	s.updateInfo()
	s.infoTimer = timer.AddTimer(infoUpdateInterval, s.updateInfo)

	if s.cfg.ConsolePort > 0 {
		if err := s.listenConsole(fmt.Sprintf("127.0.0.1:%d", s.cfg.ConsolePort)); err != nil {
			gwlog.Errorf("%s: console not available: %v", s, err)
		}
	}

	handlers := binutil.AdminHandlers{Info: func() interface{} { return s.LatestInfo() }}
	if ws, ok := backend.(*transport.WebSocketBackend); ok {
		handlers.WebSocket = ws.HTTPHandler(listener)
	}
	s.httpServer = binutil.SetupHTTPServer(s.cfg.HTTPIp, s.cfg.HTTPPort, handlers)

	gwlog.Infof("%s started, listening on %s", s, listener.Addr())
	s.delegate.OnServerReady(s)
	return nil
}

func (s *Server) acceptRoutine() {
	for {
		stream, err := s.listener.Accept()
		if err != nil {
			if s.stopping.Load() {
				return
			}
			gwlog.Errorf("%s: accept failed: %v", s, err)
			time.Sleep(acceptRetryInterval)
			continue
		}

		select {
		case s.accepted <- stream:
		default:
			gwlog.Warnf("%s: accept queue is full, dropping %s", s, stream.RemoteAddr())
			stream.CloseLinger(0)
		}
	}
}

// AutosaveSlot returns the storage slot used by autosave and by save and load without a slot
func (s *Server) AutosaveSlot() string {
	return s.cfg.AutosaveSlot
}

// Pending checks if a new connection is waiting to be accepted
func (s *Server) Pending() bool {
	return len(s.accepted) > 0
}

// Accept adds a waiting connection to the session as a new peer.
// It returns nil if no connection is waiting or the connection is refused because of max_connections.
// The peer receives its initial snapshot once its viewpoint arrives.
func (s *Server) Accept() *entity.Peer {
	select {
	case stream := <-s.accepted:
		if s.cfg.MaxConnections > 0 && s.Session.PeerCount() >= s.cfg.MaxConnections {
			gwlog.Warnf("%s: refusing %s, max connections %d reached", s, stream.RemoteAddr(), s.cfg.MaxConnections)
			stream.CloseLinger(0)
			return nil
		}
		return s.Session.AddPeer(stream)
	default:
		return nil
	}
}

// Tick accepts waiting connections, runs console commands and ticks the session
func (s *Server) Tick(dt time.Duration) {
	for s.Pending() {
		s.Accept()
	}
	s.handleCommands()
	if s.stopping.Load() {
		return
	}
	s.Session.Tick(dt)
}

// Run ticks the server at the configured rate until it is stopped, then terminates it
func (s *Server) Run() {
	s.running.Store(true)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for !s.stopping.Load() {
		<-ticker.C
		now := time.Now()
		s.Tick(now.Sub(last))
		last = now
		timer.Tick()
	}
	s.terminate()
}

// Stop stops accepting connections and terminates the server.
// If Run is looping, termination happens on the tick goroutine and Wait blocks until it is done.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		gwlog.Infof("%s stopping ...", s)
		s.stopping.Store(true)
		if s.listener != nil {
			s.listener.Close()
		}
		if s.consoleListener != nil {
			s.consoleListener.Close()
		}
		if !s.running.Load() {
			s.terminate()
		}
	})
}

// Wait blocks until the server is terminated
func (s *Server) Wait() {
	<-s.done
}

// Stopping checks if Stop was called
func (s *Server) Stopping() bool {
	return s.stopping.Load()
}

func (s *Server) terminate() {
	gwutils.RunPanicless(func() {
		s.delegate.OnServerStopping(s)
	})
	if s.autosaveTimer != nil {
		s.autosaveTimer.Cancel()
	}
	if s.infoTimer != nil {
		s.infoTimer.Cancel()
	}
	if s.backups != nil {
		s.backups.Stop()
	}

	if s.storageStarted {
		if s.cfg.AutosaveInterval > 0 {
			s.Session.SaveTo(s.Storage, s.cfg.AutosaveSlot, nil)
		}
		s.Storage.Shutdown()
	}
	s.Session.Close()
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	if s.procStats != nil {
		s.procStats.stop()
	}

	gwlog.Infof("%s terminated", s)
	close(s.done)
}

func (s *Server) autosave() {
	s.Save(s.cfg.AutosaveSlot, func(err error) {
		if err != nil {
			gwlog.Errorf("%s: autosave to %s failed: %v", s, s.cfg.AutosaveSlot, err)
		}
	})
}

// BackupSlot returns the timestamped slot a backup taken at t is saved to
func BackupSlot(t time.Time) string {
	return backupSlotPrefix + t.Format("20060102-150405")
}

// Backup saves the persistent entities to a new timestamped slot
func (s *Server) Backup() {
	slot := BackupSlot(time.Now())
	s.Save(slot, func(err error) {
		if err != nil {
			gwlog.Errorf("%s: backup to %s failed: %v", s, slot, err)
		} else {
			gwlog.Infof("%s: backup saved to %s", s, slot)
		}
	})
}

// Save writes the persistent entities to the storage slot, callback runs on the tick goroutine
func (s *Server) Save(slot string, callback func(err error)) {
	if !s.storageStarted {
		callback(errors.Errorf("%s: storage not started", s))
		return
	}
	s.Session.SaveTo(s.Storage, slot, callback)
}

// Load restores the session from the storage slot, callback runs on the tick goroutine
func (s *Server) Load(slot string, callback func(err error)) {
	if !s.storageStarted {
		callback(errors.Errorf("%s: storage not started", s))
		return
	}
	s.Session.LoadFrom(s.Storage, slot, callback)
}
