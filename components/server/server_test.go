package server

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/config"
	"github.com/colonyworld/replica/engine/consts"
	"github.com/colonyworld/replica/engine/entity"
	"github.com/colonyworld/replica/engine/syncvar"
	"github.com/colonyworld/replica/engine/transport"
)

type probe struct {
	entity.Entity
	Level *syncvar.Int
}

func (p *probe) DescribeEntityType(desc *entity.EntityTypeDesc) {
	desc.SetPersistent(true).SetNetworkRadius(math.Inf(1))
}

func (p *probe) OnInit() {
	p.Level = p.DeclareInt("level", 0)
}

func init() {
	entity.RegisterEntity("probe", &probe{})
}

var serverSeq int32

func newTestServer(t *testing.T, dir string) *Server {
	cfg := config.Default()
	cfg.Server.Transport = "pipe"
	cfg.Server.Ip = fmt.Sprintf("server-test-%d", atomic.AddInt32(&serverSeq, 1))
	cfg.Server.Linger = 0
	cfg.Server.AutosaveInterval = 0
	cfg.Storage.Type = "filesystem"
	cfg.Storage.Directory = dir
	s := New(cfg, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("start server failed: %v", err)
	}
	return s
}

func dialClient(t *testing.T, s *Server) *entity.Session {
	stream, err := transport.PipeBackend{}.Dial(s.Addr().String()).Result()
	if err != nil {
		t.Fatalf("dial %s failed: %v", s.Addr(), err)
	}
	opts := entity.DefaultOptions()
	opts.Linger = 0
	client := entity.NewClientSession(opts)
	if err := client.Attach(stream); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	return client
}

func runUntil(t *testing.T, s *Server, cond func() bool, clients ...*entity.Session) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached in time")
		}
		s.Tick(consts.TICK_INTERVAL)
		for _, c := range clients {
			c.Tick(consts.TICK_INTERVAL)
		}
		time.Sleep(time.Millisecond)
	}
}

func mustCreate(t *testing.T, s *Server, level int64) *probe {
	e, err := s.Session.Create("probe", entity.Vector3{}, entity.Vector3{}, nil)
	if err != nil {
		t.Fatalf("create probe failed: %v", err)
	}
	p := e.I.(*probe)
	p.Level.Set(level)
	return p
}

func TestAcceptSendsSnapshot(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	defer s.Stop()

	assert.T(t, !s.Pending())
	assert.T(t, s.Accept() == nil)
	for i := 0; i < 3; i++ {
		mustCreate(t, s, int64(i))
	}

	client := dialClient(t, s)
	runUntil(t, s, func() bool { return client.SnapshotDone() }, client)
	assert.Equal(t, 1, s.Session.PeerCount())
	assert.Equal(t, 3, client.EntityCount())

	var levels []int64
	client.ForEachEntity(func(e *entity.Entity) bool {
		levels = append(levels, e.I.(*probe).Level.Get())
		return true
	})
	assert.Equal(t, []int64{0, 1, 2}, levels)
}

func TestMaxConnections(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	defer s.Stop()
	s.cfg.MaxConnections = 1

	first := dialClient(t, s)
	runUntil(t, s, func() bool { return first.SnapshotDone() }, first)

	second := dialClient(t, s)
	var disconnected bool
	second.OnDisconnected = func(err error) { disconnected = true }
	runUntil(t, s, func() bool { return disconnected }, first, second)
	assert.Equal(t, 1, s.Session.PeerCount())
	assert.T(t, first.IsAttached())
}

func TestInfo(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	defer s.Stop()
	mustCreate(t, s, 1)
	mustCreate(t, s, 2)
	client := dialClient(t, s)
	runUntil(t, s, func() bool { return client.SnapshotDone() }, client)

	info := s.Info()
	assert.Equal(t, s.Session.ID, info.SessionID)
	assert.Equal(t, 2, info.Entities)
	assert.Equal(t, 2, info.EntitiesByType["probe"])
	assert.Equal(t, 1, len(info.Peers))
	assert.Equal(t, client.Participant(), info.Peers[0].ID)
	assert.T(t, info.Peers[0].Joined)
	assert.Equal(t, 2, info.Peers[0].Interest)
	assert.Tf(t, strings.Contains(info.String(), "probe"), "info text: %s", info)

	s.updateInfo()
	assert.Equal(t, 2, s.LatestInfo().Entities)
}

func TestStopSavesAndLoad(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t, dir)
	s.cfg.AutosaveInterval = time.Hour
	for i := 0; i < 4; i++ {
		mustCreate(t, s, int64(i*10))
	}
	s.Stop()
	s.Wait()
	assert.T(t, s.Stopping())

	s2 := newTestServer(t, dir)
	defer s2.Stop()
	loaded := false
	var loadErr error
	s2.Load(s.cfg.AutosaveSlot, func(err error) {
		loaded, loadErr = true, err
	})
	runUntil(t, s2, func() bool { return loaded })
	assert.Equal(t, nil, loadErr)
	assert.Equal(t, 4, s2.Session.EntityCount())

	var sum int64
	s2.Session.ForEachEntityOfType("probe", func(e *entity.Entity) {
		sum += e.I.(*probe).Level.Get()
	})
	assert.Equal(t, int64(60), sum)
}

func TestBackup(t *testing.T) {
	assert.Equal(t, "backup-20240303-043000", BackupSlot(time.Date(2024, time.March, 3, 4, 30, 0, 0, time.Local)))

	s := newTestServer(t, t.TempDir())
	defer s.Stop()
	mustCreate(t, s, 7)
	s.Backup()

	// storage operations run in order, so the listing sees the backup
	var slots []string
	listed := false
	s.Storage.List(func(result []string, err error) {
		assert.Equal(t, nil, err)
		slots, listed = result, true
	})
	runUntil(t, s, func() bool { return listed })
	assert.Equal(t, 1, len(slots))
	assert.T(t, strings.HasPrefix(slots[0], backupSlotPrefix))
}

func TestBadBackupSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Transport = "pipe"
	cfg.Server.Ip = "server-test-bad-backup"
	cfg.Server.BackupSchedule = "every day"
	s := New(cfg, nil)
	assert.T(t, s.Start() != nil)
	assert.Equal(t, nil, s.Addr())
}

func TestSaveBeforeStart(t *testing.T) {
	cfg := config.Default()
	s := New(cfg, nil)
	var saveErr error
	s.Save("x", func(err error) { saveErr = err })
	assert.T(t, saveErr != nil)
	s.Stop()
	s.Wait()
}

func TestConsole(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	defer s.Stop()
	mustCreate(t, s, 5)
	client := dialClient(t, s)
	runUntil(t, s, func() bool { return client.SnapshotDone() }, client)
	pid := client.Participant()

	input := strings.Join([]string{
		"help",
		"info",
		"ops",
		"bogus",
		"kick 99",
		"kick nobody",
		"save slot1",
		"backup",
		"slots",
		fmt.Sprintf("kick %d", pid),
	}, "\n")
	var out bytes.Buffer
	var finished int32
	go func() {
		s.ServeConsole(strings.NewReader(input), &out)
		atomic.StoreInt32(&finished, 1)
	}()
	runUntil(t, s, func() bool { return atomic.LoadInt32(&finished) == 1 }, client)
	runUntil(t, s, func() bool { return !client.IsAttached() }, client)

	text := out.String()
	for _, expected := range []string{
		"kick <participant>",
		"entities: 1",
		"session.tick",
		`unknown command "bogus"`,
		"client99 is not connected",
		`bad participant "nobody"`,
		"saved slot1",
		"saved " + backupSlotPrefix,
		"slot1",
		"kicked " + pid.String(),
	} {
		assert.Tf(t, strings.Contains(text, expected), "console output misses %q:\n%s", expected, text)
	}
	assert.Equal(t, 0, s.Session.PeerCount())
}

func TestConsoleStop(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		s.ServeConsole(strings.NewReader("stop\ninfo\n"), &out)
		close(done)
	}()

	go s.Run()
	s.Wait()
	<-done
	assert.T(t, s.Stopping())
	assert.Tf(t, strings.Contains(out.String(), "stopping"), "console output: %s", out.String())
	assert.Equal(t, common.ParticipantID(0), s.Session.Participant())
}
