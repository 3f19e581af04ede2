package entity

import (
	"reflect"
	"sort"
	"time"

	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/consts"
	"github.com/colonyworld/replica/engine/gwerrors"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/engine/gwutils"
	"github.com/colonyworld/replica/engine/metrics"
	"github.com/colonyworld/replica/engine/opmon"
	"github.com/colonyworld/replica/engine/post"
	"github.com/colonyworld/replica/engine/proto"
	"github.com/colonyworld/replica/engine/uuid"
)

// Role is the role of a session in the replication topology
type Role int

const (
	// RoleServer is the authoritative host which assigns entity IDs
	RoleServer Role = iota
	// RoleClient is a participant connected to the server
	RoleClient
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// Options tunes a session
type Options struct {
	StrictIntegrity bool          // panic on IntegrityError
	Linger          time.Duration // how long closing connections wait for queued messages
	DebugPackets    bool
	DebugInterest   bool
}

// DefaultOptions returns the default session options
func DefaultOptions() Options {
	return Options{
		Linger:        consts.DEFAULT_LINGER,
		DebugPackets:  consts.DEBUG_PACKETS,
		DebugInterest: consts.DEBUG_INTEREST,
	}
}

// Session is the replication state of one participant: its entities, connections and pending events.
//
// A session is owned by one goroutine which calls Tick at a fixed rate. Nothing in a session is safe for
// concurrent use except Post.
type Session struct {
	ID          string
	role        Role
	participant common.ParticipantID
	opts        Options

	entities        *_EntityManager
	events          *post.Queue
	dirty           EntitySet
	orphans         *orphanBuffer
	nextEntityID    common.EntityID
	nextParticipant common.ParticipantID
	tickCount       uint64

	// server side
	peers map[common.ParticipantID]*Peer

	// client side
	server         *Peer
	viewpoint      Vector3
	nextToken      uint32
	pendingCreates map[uint32]*Entity
	snapshotDone   bool

	// OnPeerJoined is called on the server when a peer received its initial snapshot
	OnPeerJoined func(p *Peer)
	// OnPeerLeft is called on the server when a peer is disconnected
	OnPeerLeft func(p *Peer, err error)
	// OnSnapshotDone is called on a client when the initial snapshot is complete
	OnSnapshotDone func()
	// OnDisconnected is called on a client when the connection to the server is lost
	OnDisconnected func(err error)
}

func newSession(role Role, participant common.ParticipantID, opts Options) *Session {
	return &Session{
		ID:              uuid.GenUUID(),
		role:            role,
		participant:     participant,
		opts:            opts,
		entities:        newEntityManager(),
		events:          post.NewQueue(),
		dirty:           EntitySet{},
		orphans:         newOrphanBuffer(),
		nextEntityID:    0,
		nextParticipant: common.ServerParticipant + 1,
		peers:           map[common.ParticipantID]*Peer{},
		pendingCreates:  map[uint32]*Entity{},
	}
}

// NewServerSession creates the authoritative session
func NewServerSession(opts Options) *Session {
	return newSession(RoleServer, common.ServerParticipant, opts)
}

// NewClientSession creates a client session, its participant ID is assigned by the server on Attach
func NewClientSession(opts Options) *Session {
	return newSession(RoleClient, common.NoParticipant, opts)
}

func (s *Session) String() string {
	return "Session<" + s.role.String() + "/" + s.participant.String() + ">"
}

// Role returns the session role
func (s *Session) Role() Role {
	return s.role
}

// IsServer returns if the session is the server
func (s *Session) IsServer() bool {
	return s.role == RoleServer
}

// Participant returns the local participant ID
func (s *Session) Participant() common.ParticipantID {
	return s.participant
}

// Post queues a callback to run on the next tick, it is safe to call from any goroutine
func (s *Session) Post(f post.PostCallback) {
	s.events.Post(f)
}

// TickCount returns the number of ticks run
func (s *Session) TickCount() uint64 {
	return s.tickCount
}

// Lookup returns the registered entity of the id
func (s *Session) Lookup(id common.EntityID) (*Entity, bool) {
	e := s.entities.get(id)
	return e, e != nil
}

// EntityCount returns the number of registered entities
func (s *Session) EntityCount() int {
	return s.entities.count()
}

// EntityCountByType returns the number of registered entities of the type
func (s *Session) EntityCountByType(typeKey string) int {
	return s.entities.countByType(typeKey)
}

// ForEachEntity visits registered entities in creation order until cb returns false
func (s *Session) ForEachEntity(cb func(e *Entity) bool) {
	s.entities.traverse(cb)
}

// ForEachEntityOfType visits registered entities of the type
func (s *Session) ForEachEntityOfType(typeKey string, cb func(e *Entity)) {
	s.entities.traverseByType(typeKey, cb)
}

// HasAuthority returns if the participant holds authority over the entity
func (s *Session) HasAuthority(e *Entity, participant common.ParticipantID) bool {
	return e.authority == participant
}

func (s *Session) integrityError(eid common.EntityID, format string, args ...interface{}) error {
	err := gwerrors.NewIntegrityError(eid, format, args...)
	metrics.Errors.WithLabelValues("integrity").Inc()
	gwlog.TraceError("%s: %s", s, err)
	if s.opts.StrictIntegrity {
		panic(err)
	}
	return err
}

func (s *Session) newEntityInstance(typeKey string) (*Entity, error) {
	desc := registeredEntityTypes[typeKey]
	if desc == nil {
		return nil, gwerrors.NewProtocolError(common.NilEntityID, "unknown entity type: %s", typeKey)
	}

	entityInstance := reflect.New(desc.entityType)
	entity := reflect.Indirect(entityInstance).FieldByName("Entity").Addr().Interface().(*Entity)
	entity.init(s, desc, entityInstance)
	return entity, nil
}

func (s *Session) register(e *Entity, id common.EntityID) {
	e.ID = id
	s.entities.put(e)
	if s.IsServer() {
		metrics.EntityCount.Inc()
		if id >= s.nextEntityID {
			s.nextEntityID = id + 1
		}
	}
	if e.hasDirtyVars() || e.transformDirty {
		s.dirty.Add(e)
	}
}

func (s *Session) unregister(e *Entity, deleted bool) {
	s.entities.del(e)
	s.dirty.Del(e)
	s.orphans.drop(e.ID)
	e.destroyed = true
	if s.IsServer() {
		metrics.EntityCount.Dec()
	}
	if s.opts.DebugInterest {
		gwlog.Debugf("%s: unregistered %s, deleted=%v", s, e, deleted)
	}
}

func (s *Session) markDirty(e *Entity) {
	if !e.destroyed {
		s.dirty.Add(e)
	}
}

// Create creates an entity of the registered type.
//
// On the server the entity is registered immediately, OnFirstCreate and OnCreated run before Create returns.
// On a client the entity is sent to the server as a create request and stays unregistered until the server
// acknowledges it; OnFirstCreate and OnCreated run then. Variables written before that are sent after the ID
// is assigned.
func (s *Session) Create(typeKey string, pos, rot Vector3, parent *Entity) (*Entity, error) {
	parentID := common.NilEntityID
	if parent != nil {
		if !parent.IsRegistered() || parent.session != s {
			return nil, s.integrityError(parent.ID, "create %s: parent %s is not registered", typeKey, parent)
		}
		parentID = parent.ID
	}

	e, err := s.newEntityInstance(typeKey)
	if err != nil {
		return nil, s.integrityError(common.NilEntityID, "create: %s", err)
	}
	e.position, e.rotation = pos, rot
	e.parentID = parentID
	e.authority = s.participant

	if s.IsServer() {
		s.register(e, s.nextEntityID)
		gwlog.Debugf("%s: created %s at %s", s, e, pos)
		gwutils.RunPanicless(e.I.OnFirstCreate)
		if !e.destroyed {
			gwutils.RunPanicless(e.I.OnCreated)
		}
		return e, nil
	}

	if s.server == nil {
		return nil, s.integrityError(common.NilEntityID, "create %s: not connected", typeKey)
	}
	s.nextToken++
	e.createToken = s.nextToken
	s.pendingCreates[e.createToken] = e
	s.server.conn.SendCreateRequest(e.createToken, s.createInfo(e))
	gwlog.Debugf("%s: requested %s at %s, token=%d", s, e, pos, e.createToken)
	return e, nil
}

// Delete deletes the entity and its children permanently.
//
// Children are deleted first. Every connection knowing a deleted entity receives FORGET(deleted=true).
// A client can only delete entities it holds authority over; the deletion is forwarded to the server.
func (s *Session) Delete(e *Entity) error {
	if e == nil || e.session != s {
		return s.integrityError(common.NilEntityID, "delete of unknown entity")
	}
	if e.destroyed {
		return s.integrityError(e.ID, "delete of destroyed entity %s", e)
	}

	if !s.IsServer() {
		return s.deleteFromClient(e)
	}

	if !e.IsRegistered() {
		return s.integrityError(e.ID, "delete of unknown id %s", e.ID)
	}
	s.deleteCascade(e)
	return nil
}

func (s *Session) deleteCascade(e *Entity) {
	for _, child := range e.Children() {
		if !child.destroyed {
			s.deleteCascade(child)
		}
	}

	for _, p := range s.sortedPeers() {
		if p.interest.Contains(e.ID) {
			p.interest.Del(e.ID)
			p.conn.SendForget(e.ID, true)
		}
	}
	s.unregister(e, true)
	gwlog.Debugf("%s: deleted %s", s, e)
	gwutils.RunPanicless(func() {
		e.I.OnForget(true)
	})
}

func (s *Session) deleteFromClient(e *Entity) error {
	if !e.IsAuthoritative() {
		return s.integrityError(e.ID, "delete of %s without authority (held by %s)", e, e.authority)
	}

	if e.ID.IsNil() {
		// the create request is in flight, the delete is sent when it is acknowledged
		e.destroyed = true
		return nil
	}

	if s.server != nil {
		s.server.conn.SendDeleteRequest(e.ID)
	}
	s.unregister(e, true)
	gwutils.RunPanicless(func() {
		e.I.OnForget(true)
	})
	return nil
}

// AddChild makes child a child of parent, a child already having a parent is moved.
func (s *Session) AddChild(parent, child *Entity) error {
	if parent == nil || child == nil {
		return s.integrityError(common.NilEntityID, "add child: nil entity")
	}
	if parent.destroyed {
		return s.integrityError(parent.ID, "add child %s to destroyed entity %s", child, parent)
	}
	if !parent.IsRegistered() || !child.IsRegistered() {
		return s.integrityError(child.ID, "add child %s to %s: both must be registered", child, parent)
	}
	if !s.IsServer() && !child.IsAuthoritative() {
		return s.integrityError(child.ID, "add child %s without authority", child)
	}
	for anc := parent; anc != nil; anc = anc.Parent() {
		if anc == child {
			return s.integrityError(child.ID, "add child %s to %s: cycle", child, parent)
		}
	}

	s.setParent(child, parent.ID)
	s.broadcastSetParent(child)
	return nil
}

// RemoveFromParent detaches the entity from its parent
func (s *Session) RemoveFromParent(child *Entity) error {
	if !child.IsRegistered() {
		return s.integrityError(child.ID, "remove %s from parent: not registered", child)
	}
	if !s.IsServer() && !child.IsAuthoritative() {
		return s.integrityError(child.ID, "remove %s from parent without authority", child)
	}
	if child.parentID.IsNil() {
		return nil
	}
	s.setParent(child, common.NilEntityID)
	s.broadcastSetParent(child)
	return nil
}

func (s *Session) setParent(child *Entity, parentID common.EntityID) {
	if !child.parentID.IsNil() {
		s.entities.removeChild(child.parentID, child.ID)
	}
	child.parentID = parentID
	if !parentID.IsNil() {
		s.entities.addChild(parentID, child.ID)
	}
}

func (s *Session) broadcastSetParent(child *Entity) {
	if s.IsServer() {
		for _, p := range s.sortedPeers() {
			if p.interest.Contains(child.ID) {
				p.conn.SendSetParent(child.ID, child.parentID)
			}
		}
	} else if s.server != nil {
		s.server.conn.SendSetParent(child.ID, child.parentID)
	}
}

// SetAuthority reassigns the authority over the entity, only the server can do this
func (s *Session) SetAuthority(e *Entity, holder common.ParticipantID) error {
	if !s.IsServer() {
		return s.integrityError(e.ID, "set authority of %s: only the server can reassign authority", e)
	}
	if !e.IsRegistered() {
		return s.integrityError(e.ID, "set authority of unregistered %s", e)
	}
	if holder != common.ServerParticipant && s.peers[holder] == nil {
		return s.integrityError(e.ID, "set authority of %s: unknown participant %s", e, holder)
	}
	if e.authority == holder {
		return nil
	}

	// pending writes of the old holder are sent before the change
	s.flushEntity(e)
	e.authority = holder
	for _, p := range s.sortedPeers() {
		if p.interest.Contains(e.ID) {
			p.conn.SendAuthority(e.ID, holder)
		}
	}
	gwlog.Debugf("%s: authority of %s => %s", s, e, holder)
	return nil
}

// Tick runs one simulation step: receive, interpolate, drain events, collect orphans, flush deltas,
// update interest and flush connections.
func (s *Session) Tick(dt time.Duration) {
	monop := opmon.StartOperation("session.tick")
	s.tickCount++

	s.receive()
	s.interpolate(dt)
	s.events.Tick()
	if s.IsServer() {
		s.collectOrphans()
	}
	if n := s.orphans.expire(s.tickCount); n > 0 {
		gwlog.Warnf("%s: dropped %d deltas of entities never created", s, n)
	}
	s.flushDirty()
	if s.IsServer() {
		s.updateInterest()
	}
	s.flushConnections()

	monop.Finish(consts.TICK_INTERVAL)
}

func (s *Session) interpolate(dt time.Duration) {
	s.entities.traverse(func(e *Entity) bool {
		for _, v := range e.interpolated {
			if !v.Settled() {
				v.Interpolate(dt)
			}
		}
		return true
	})
}

// collectOrphans deletes entities whose parent is not registered
func (s *Session) collectOrphans() {
	var orphans []*Entity
	s.entities.traverse(func(e *Entity) bool {
		if !e.parentID.IsNil() && s.entities.get(e.parentID) == nil {
			orphans = append(orphans, e)
		}
		return true
	})
	for _, e := range orphans {
		if !e.destroyed {
			gwlog.Warnf("%s: deleting orphan %s, parent %s is gone", s, e, e.parentID)
			s.deleteCascade(e)
		}
	}
}

func (s *Session) flushDirty() {
	if len(s.dirty) == 0 {
		return
	}
	for _, e := range s.dirty.ToCreationOrder() {
		if e.destroyed {
			s.dirty.Del(e)
			continue
		}
		if e.ID.IsNil() {
			continue // waiting for CREATE_ACK
		}
		s.flushEntity(e)
	}
}

// flushEntity sends the dirty variables and transform of the entity if it is authoritative, otherwise they are dropped
func (s *Session) flushEntity(e *Entity) {
	s.dirty.Del(e)
	authoritative := e.IsAuthoritative()
	for _, v := range e.vars {
		if !v.IsDirty() {
			continue
		}
		payload := v.SerializeDelta()
		if authoritative {
			s.sendToInterested(e, func(p *Peer) {
				p.conn.SendVariableDelta(e.ID, v.Index(), payload)
			})
		}
	}
	if e.transformDirty {
		e.transformDirty = false
		if authoritative {
			s.sendToInterested(e, func(p *Peer) {
				p.conn.SendTransform(e.ID, e.position, e.rotation)
			})
		}
	}
}

// sendToInterested calls send for every connection which should receive updates of the entity
func (s *Session) sendToInterested(e *Entity, send func(p *Peer)) {
	if !s.IsServer() {
		if s.server != nil {
			send(s.server)
		}
		return
	}
	for _, p := range s.sortedPeers() {
		if p.joined && p.interest.Contains(e.ID) {
			send(p)
		}
	}
}

func (s *Session) sortedPeers() []*Peer {
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ID < peers[j].ID
	})
	return peers
}

func (s *Session) createInfo(e *Entity) *proto.CreateInfo {
	return &proto.CreateInfo{
		ID:        e.ID,
		TypeKey:   e.TypeKey,
		Position:  e.position,
		Rotation:  e.rotation,
		ParentID:  e.parentID,
		Authority: e.authority,
	}
}

// Close disconnects all connections, queued messages are flushed within the linger period
func (s *Session) Close() {
	for _, p := range s.sortedPeers() {
		s.dropPeer(p, nil)
	}
	if s.server != nil {
		s.detach(nil)
	}
}
