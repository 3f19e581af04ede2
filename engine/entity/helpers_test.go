package entity

import (
	"math"
	"testing"
	"time"

	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/consts"
	"github.com/colonyworld/replica/engine/netutil"
	"github.com/colonyworld/replica/engine/proto"
	"github.com/colonyworld/replica/engine/syncvar"
	"github.com/colonyworld/replica/engine/transport"
)

type testCrate struct {
	Entity
	Count     *syncvar.Int
	Label     *syncvar.String
	changes   []int64
	created   int
	forgotten []bool
}

func (c *testCrate) DescribeEntityType(desc *EntityTypeDesc) {
	desc.SetNetworkRadius(40).SetPersistent(true)
}

func (c *testCrate) OnInit() {
	c.Count = c.DeclareInt("count", 0).OnChange(func(old, new int64) {
		c.changes = append(c.changes, new)
	})
	c.Label = c.DeclareString("label", "")
}

func (c *testCrate) OnCreated() {
	c.created++
}

func (c *testCrate) OnForget(deleted bool) {
	c.forgotten = append(c.forgotten, deleted)
}

var beaconFirstCreates int

type testBeacon struct {
	Entity
	Tags      *syncvar.Counts
	Log       *syncvar.List[string]
	Heading   *syncvar.Float
	created   int
	forgotten []bool
}

func (b *testBeacon) DescribeEntityType(desc *EntityTypeDesc) {
	desc.SetNetworkRadius(math.Inf(1)).SetPersistent(true)
}

func (b *testBeacon) OnInit() {
	b.Tags = b.DeclareCounts("tags")
	b.Log = DeclareList[string](&b.Entity, "log")
	b.Heading = b.DeclareFloat("heading", 0).SetInterpolation(10)
}

func (b *testBeacon) OnFirstCreate() {
	beaconFirstCreates++
	b.Tags.Inc("new")
}

func (b *testBeacon) OnCreated() {
	b.created++
}

func (b *testBeacon) OnForget(deleted bool) {
	b.forgotten = append(b.forgotten, deleted)
}

// testSpark is never saved
type testSpark struct {
	Entity
}

func (s *testSpark) DescribeEntityType(desc *EntityTypeDesc) {
	desc.SetNetworkRadius(math.Inf(1))
}

func init() {
	RegisterEntity("crate", &testCrate{})
	RegisterEntity("beacon", &testBeacon{})
	RegisterEntity("spark", &testSpark{})
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Linger = 0
	return opts
}

func newTestServer() *Session {
	return NewServerSession(testOptions())
}

// connect attaches a new client session to the server over an in-process pipe
func connect(t *testing.T, server *Session, viewpoint Vector3) *Session {
	client := NewClientSession(testOptions())
	client.SetViewpoint(viewpoint)
	a, b := transport.Pipe()
	server.AddPeer(a)
	if err := client.Attach(b); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	return client
}

// rawConn is a hand driven protocol endpoint used to send crafted messages
type rawConn struct {
	*proto.ReplicaConnection
	inbox    []proto.MsgType
	payloads []*netutil.Packet
}

// connectRaw attaches a raw protocol connection to the server as a client
func connectRaw(server *Session) (*Peer, *rawConn) {
	a, b := transport.Pipe()
	p := server.AddPeer(a)
	return p, &rawConn{ReplicaConnection: proto.NewReplicaConnection(b, false)}
}

// attachRaw attaches the client to a raw protocol connection acting as the server
func attachRaw(t *testing.T, client *Session) *rawConn {
	a, b := transport.Pipe()
	if err := client.Attach(b); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	return &rawConn{ReplicaConnection: proto.NewReplicaConnection(a, false)}
}

// expect ticks the sessions until a message of the type arrives and returns its body.
// Messages of other types are kept for later calls.
func (rc *rawConn) expect(t *testing.T, want proto.MsgType, sessions ...*Session) *netutil.Packet {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		for i, mt := range rc.inbox {
			if mt == want {
				body := rc.payloads[i]
				rc.inbox = append(rc.inbox[:i], rc.inbox[i+1:]...)
				rc.payloads = append(rc.payloads[:i], rc.payloads[i+1:]...)
				return body
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s not received", want)
		}

		tickAll(sessions...)
		packets, msgtypes, err := rc.Recv()
		if err != nil {
			t.Fatalf("recv failed: %v", err)
		}
		for i, pkt := range packets {
			rc.inbox = append(rc.inbox, msgtypes[i])
			rc.payloads = append(rc.payloads, netutil.NewPacketWithPayload(pkt.UnreadPayload()))
			pkt.Release()
		}
		time.Sleep(time.Millisecond)
	}
}

func tickAll(sessions ...*Session) {
	for _, s := range sessions {
		s.Tick(consts.TICK_INTERVAL)
	}
}

// runUntil ticks the sessions until cond holds
func runUntil(t *testing.T, cond func() bool, sessions ...*Session) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached in time")
		}
		tickAll(sessions...)
		time.Sleep(time.Millisecond)
	}
}

// settle ticks the sessions for a while to let all traffic arrive
func settle(sessions ...*Session) {
	for i := 0; i < 20; i++ {
		tickAll(sessions...)
		time.Sleep(time.Millisecond)
	}
}

func mustCreate(t *testing.T, s *Session, typeKey string, pos Vector3, parent *Entity) *Entity {
	e, err := s.Create(typeKey, pos, Vector3{}, parent)
	if err != nil {
		t.Fatalf("create %s failed: %v", typeKey, err)
	}
	return e
}

func knows(s *Session, id common.EntityID) bool {
	_, ok := s.Lookup(id)
	return ok
}

func crateOf(s *Session, id common.EntityID) *testCrate {
	e, ok := s.Lookup(id)
	if !ok {
		return nil
	}
	return e.I.(*testCrate)
}
