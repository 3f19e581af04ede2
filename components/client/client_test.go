package client

import (
	"context"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/colonyworld/replica/components/server"
	"github.com/colonyworld/replica/engine/config"
	"github.com/colonyworld/replica/engine/consts"
	"github.com/colonyworld/replica/engine/entity"
	"github.com/colonyworld/replica/engine/syncvar"
)

type marker struct {
	entity.Entity
	Note *syncvar.String
}

func (m *marker) DescribeEntityType(desc *entity.EntityTypeDesc) {
	desc.SetNetworkRadius(100)
}

func (m *marker) OnInit() {
	m.Note = m.DeclareString("note", "")
}

func init() {
	entity.RegisterEntity("marker", &marker{})
}

func startServer(t *testing.T, name string) *server.Server {
	cfg := config.Default()
	cfg.Server.Transport = "pipe"
	cfg.Server.Ip = name
	cfg.Server.Linger = 0
	cfg.Server.AutosaveInterval = 0
	cfg.Storage.Directory = t.TempDir()
	s := server.New(cfg, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("start server failed: %v", err)
	}
	return s
}

func newTestClient(t *testing.T, addr string) *Client {
	cfg := config.Default().Client
	cfg.Transport = "pipe"
	cfg.ServerAddr = addr
	cfg.TickInterval = time.Millisecond * 5
	opts := entity.DefaultOptions()
	opts.Linger = 0
	c, err := New(&cfg, opts)
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	return c
}

func runUntil(t *testing.T, s *server.Server, c *Client, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached in time")
		}
		s.Tick(consts.TICK_INTERVAL)
		c.Tick(consts.TICK_INTERVAL)
		time.Sleep(time.Millisecond)
	}
}

func TestConnectAndCreate(t *testing.T) {
	s := startServer(t, "client-test-create")
	defer s.Stop()
	c := newTestClient(t, s.Addr().String())

	assert.Equal(t, nil, c.Connect())
	assert.T(t, c.Connecting())
	assert.T(t, c.Connect() != nil)
	runUntil(t, s, c, func() bool { return c.Session.SnapshotDone() })
	assert.T(t, !c.Connecting())
	assert.T(t, !c.Session.Participant().IsServer())

	e, err := c.Session.Create("marker", entity.Vector3{X: 1}, entity.Vector3{}, nil)
	assert.Equal(t, nil, err)
	e.I.(*marker).Note.Set("hello")
	runUntil(t, s, c, func() bool { return s.Session.EntityCount() == 1 && e.IsRegistered() })

	serverSide, ok := s.Session.Lookup(e.ID)
	assert.T(t, ok)
	runUntil(t, s, c, func() bool { return serverSide.I.(*marker).Note.Get() == "hello" })
	assert.Equal(t, c.Session.Participant(), serverSide.Authority())
}

func TestCompressedConnection(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Transport = "tcp"
	cfg.Server.Ip = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.CompressConnection = true
	cfg.Server.Linger = 0
	cfg.Server.AutosaveInterval = 0
	cfg.Storage.Directory = t.TempDir()
	s := server.New(cfg, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("start server failed: %v", err)
	}
	defer s.Stop()

	clientCfg := config.Default().Client
	clientCfg.Transport = "tcp"
	clientCfg.ServerAddr = s.Addr().String()
	clientCfg.CompressConnection = true
	opts := entity.DefaultOptions()
	opts.Linger = 0
	c, err := New(&clientCfg, opts)
	assert.Equal(t, nil, err)
	defer c.Close()

	assert.Equal(t, nil, c.Connect())
	runUntil(t, s, c, func() bool { return c.Session.SnapshotDone() })

	e, err := c.Session.Create("marker", entity.Vector3{}, entity.Vector3{}, nil)
	assert.Equal(t, nil, err)
	e.I.(*marker).Note.Set("squeezed")
	runUntil(t, s, c, func() bool {
		serverSide, ok := s.Session.Lookup(e.ID)
		return e.IsRegistered() && ok && serverSide.I.(*marker).Note.Get() == "squeezed"
	})
	assert.Equal(t, 1, s.Session.PeerCount())
}

func TestConnectFailed(t *testing.T) {
	c := newTestClient(t, "client-test-nowhere")
	var failure error
	c.OnConnectFailed = func(err error) { failure = err }

	assert.Equal(t, nil, c.Connect())
	deadline := time.Now().Add(5 * time.Second)
	for failure == nil && time.Now().Before(deadline) {
		c.Tick(consts.TICK_INTERVAL)
		time.Sleep(time.Millisecond)
	}
	assert.T(t, failure != nil)
	assert.T(t, !c.Connecting())
	assert.T(t, !c.Session.IsAttached())
}

func TestRunUntilCancelled(t *testing.T) {
	s := startServer(t, "client-test-run")
	c := newTestClient(t, s.Addr().String())
	assert.Equal(t, nil, c.Connect())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for s.Session.PeerCount() == 0 && time.Now().Before(deadline) {
		s.Tick(consts.TICK_INTERVAL)
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 1, s.Session.PeerCount())

	cancel()
	<-done
	deadline = time.Now().Add(5 * time.Second)
	for s.Session.PeerCount() > 0 && time.Now().Before(deadline) {
		s.Tick(consts.TICK_INTERVAL)
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 0, s.Session.PeerCount())
	s.Stop()
}
