package proto

import (
	"fmt"
	"net"
	"time"

	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/engine/metrics"
	"github.com/colonyworld/replica/engine/netutil"
)

// CreateInfo is the content of CREATE and CREATE_REQUEST messages
type CreateInfo struct {
	ID        common.EntityID // NilEntityID in CREATE_REQUEST
	TypeKey   string
	Position  common.Vector3
	Rotation  common.Vector3
	ParentID  common.EntityID
	Authority common.ParticipantID
}

// ReplicaConnection is the network protocol implementation between replication sessions
type ReplicaConnection struct {
	packetConn   *netutil.PacketConnection
	debugPackets bool
}

// NewReplicaConnection creates a ReplicaConnection using network connection
func NewReplicaConnection(conn netutil.Connection, debugPackets bool) *ReplicaConnection {
	return &ReplicaConnection{
		packetConn:   netutil.NewPacketConnection(conn, nil),
		debugPackets: debugPackets,
	}
}

func (rc *ReplicaConnection) newPacket(mt MsgType) *netutil.Packet {
	packet := rc.packetConn.NewPacket()
	packet.AppendUint16(uint16(mt))
	return packet
}

// SendHello sends MT_HELLO message
func (rc *ReplicaConnection) SendHello(participant common.ParticipantID, sessionID string) error {
	packet := rc.newPacket(MT_HELLO)
	packet.AppendParticipantID(participant)
	packet.AppendVarStr(sessionID)
	return rc.SendPacketRelease(MT_HELLO, packet)
}

// SendCreate sends MT_CREATE message
func (rc *ReplicaConnection) SendCreate(info *CreateInfo) error {
	packet := rc.newPacket(MT_CREATE)
	packet.AppendEntityID(info.ID)
	appendCreateBody(packet, info)
	packet.AppendParticipantID(info.Authority)
	return rc.SendPacketRelease(MT_CREATE, packet)
}

// SendCreateRequest sends MT_CREATE_REQUEST message
func (rc *ReplicaConnection) SendCreateRequest(token uint32, info *CreateInfo) error {
	packet := rc.newPacket(MT_CREATE_REQUEST)
	packet.AppendUint32(token)
	appendCreateBody(packet, info)
	return rc.SendPacketRelease(MT_CREATE_REQUEST, packet)
}

func appendCreateBody(packet *netutil.Packet, info *CreateInfo) {
	packet.AppendVarStr(info.TypeKey)
	packet.AppendVector3(info.Position)
	packet.AppendVector3(info.Rotation)
	packet.AppendEntityID(info.ParentID)
}

// SendCreateAck sends MT_CREATE_ACK message
func (rc *ReplicaConnection) SendCreateAck(token uint32, id common.EntityID) error {
	packet := rc.newPacket(MT_CREATE_ACK)
	packet.AppendUint32(token)
	packet.AppendEntityID(id)
	return rc.SendPacketRelease(MT_CREATE_ACK, packet)
}

// SendVariableDelta sends MT_VARIABLE_DELTA message
func (rc *ReplicaConnection) SendVariableDelta(id common.EntityID, index int, payload []byte) error {
	packet := rc.newPacket(MT_VARIABLE_DELTA)
	packet.AppendEntityID(id)
	packet.AppendUint16(uint16(index))
	packet.AppendVarBytes(payload)
	return rc.SendPacketRelease(MT_VARIABLE_DELTA, packet)
}

// SendForget sends MT_FORGET message
func (rc *ReplicaConnection) SendForget(id common.EntityID, deleted bool) error {
	packet := rc.newPacket(MT_FORGET)
	packet.AppendEntityID(id)
	packet.AppendBool(deleted)
	return rc.SendPacketRelease(MT_FORGET, packet)
}

// SendDeleteRequest sends MT_DELETE_REQUEST message
func (rc *ReplicaConnection) SendDeleteRequest(id common.EntityID) error {
	packet := rc.newPacket(MT_DELETE_REQUEST)
	packet.AppendEntityID(id)
	return rc.SendPacketRelease(MT_DELETE_REQUEST, packet)
}

// SendTransform sends MT_TRANSFORM message
func (rc *ReplicaConnection) SendTransform(id common.EntityID, pos common.Vector3, rot common.Vector3) error {
	packet := rc.newPacket(MT_TRANSFORM)
	packet.AppendEntityID(id)
	packet.AppendVector3(pos)
	packet.AppendVector3(rot)
	return rc.SendPacketRelease(MT_TRANSFORM, packet)
}

// SendSetParent sends MT_SET_PARENT message, parentID is NilEntityID for no parent
func (rc *ReplicaConnection) SendSetParent(id common.EntityID, parentID common.EntityID) error {
	packet := rc.newPacket(MT_SET_PARENT)
	packet.AppendEntityID(id)
	packet.AppendEntityID(parentID)
	return rc.SendPacketRelease(MT_SET_PARENT, packet)
}

// SendAuthority sends MT_AUTHORITY message
func (rc *ReplicaConnection) SendAuthority(id common.EntityID, holder common.ParticipantID) error {
	packet := rc.newPacket(MT_AUTHORITY)
	packet.AppendEntityID(id)
	packet.AppendParticipantID(holder)
	return rc.SendPacketRelease(MT_AUTHORITY, packet)
}

// SendSetViewpoint sends MT_SET_VIEWPOINT message
func (rc *ReplicaConnection) SendSetViewpoint(pos common.Vector3) error {
	packet := rc.newPacket(MT_SET_VIEWPOINT)
	packet.AppendVector3(pos)
	return rc.SendPacketRelease(MT_SET_VIEWPOINT, packet)
}

// SendSnapshotDone sends MT_SNAPSHOT_DONE message
func (rc *ReplicaConnection) SendSnapshotDone() error {
	packet := rc.newPacket(MT_SNAPSHOT_DONE)
	return rc.SendPacketRelease(MT_SNAPSHOT_DONE, packet)
}

// SendPacketRelease queues the packet for sending and releases it
func (rc *ReplicaConnection) SendPacketRelease(mt MsgType, packet *netutil.Packet) error {
	err := rc.packetConn.SendPacket(packet)
	packet.Release()
	if err == nil {
		metrics.MessagesSent.WithLabelValues(mt.String()).Inc()
		if rc.debugPackets {
			gwlog.Debugf("%s: send %s", rc, mt)
		}
	}
	return err
}

// Recv returns all messages received so far, it never blocks.
// The message type of each packet is already read. Callers must release the packets.
func (rc *ReplicaConnection) Recv() ([]*netutil.Packet, []MsgType, error) {
	packets, err := rc.packetConn.Poll()
	if len(packets) == 0 {
		return nil, nil, err
	}

	msgtypes := make([]MsgType, 0, len(packets))
	valid := packets[:0]
	for _, pkt := range packets {
		if pkt.GetPayloadLen() < 2 {
			gwlog.Warnf("%s: dropped packet without message type", rc)
			pkt.Release()
			continue
		}
		mt := MsgType(pkt.ReadUint16())
		metrics.MessagesReceived.WithLabelValues(mt.String()).Inc()
		if rc.debugPackets {
			gwlog.Debugf("%s: recv %s, payload size=%d", rc, mt, pkt.GetPayloadLen())
		}
		valid = append(valid, pkt)
		msgtypes = append(msgtypes, mt)
	}
	return valid, msgtypes, err
}

// ReadCreate reads the body of a MT_CREATE message
func ReadCreate(pkt *netutil.Packet) *CreateInfo {
	info := &CreateInfo{ID: pkt.ReadEntityID()}
	readCreateBody(pkt, info)
	info.Authority = pkt.ReadParticipantID()
	return info
}

// ReadCreateRequest reads the body of a MT_CREATE_REQUEST message
func ReadCreateRequest(pkt *netutil.Packet) (uint32, *CreateInfo) {
	token := pkt.ReadUint32()
	info := &CreateInfo{ID: common.NilEntityID}
	readCreateBody(pkt, info)
	return token, info
}

func readCreateBody(pkt *netutil.Packet, info *CreateInfo) {
	info.TypeKey = pkt.ReadVarStr()
	info.Position = pkt.ReadVector3()
	info.Rotation = pkt.ReadVector3()
	info.ParentID = pkt.ReadEntityID()
}

// ReadVariableDelta reads the body of a MT_VARIABLE_DELTA message
func ReadVariableDelta(pkt *netutil.Packet) (common.EntityID, int, []byte) {
	id := pkt.ReadEntityID()
	index := int(pkt.ReadUint16())
	payload := pkt.ReadVarBytes()
	return id, index, payload
}

// Flush writes all queued messages
func (rc *ReplicaConnection) Flush() error {
	return rc.packetConn.Flush()
}

// QueuedBytes returns the number of bytes waiting for Flush
func (rc *ReplicaConnection) QueuedBytes() int {
	return rc.packetConn.QueuedBytes()
}

// Close flushes queued messages and closes the connection after at most linger
func (rc *ReplicaConnection) Close(linger time.Duration) error {
	return rc.packetConn.Close(linger)
}

// IsClosed tells if the connection is closed
func (rc *ReplicaConnection) IsClosed() bool {
	return rc.packetConn.IsClosed()
}

// Err returns the error which broke the connection, if any
func (rc *ReplicaConnection) Err() error {
	return rc.packetConn.Err()
}

// RemoteAddr returns the remote address
func (rc *ReplicaConnection) RemoteAddr() net.Addr {
	return rc.packetConn.RemoteAddr()
}

// LocalAddr returns the local address
func (rc *ReplicaConnection) LocalAddr() net.Addr {
	return rc.packetConn.LocalAddr()
}

func (rc *ReplicaConnection) String() string {
	return fmt.Sprintf("ReplicaConnection<%s-%s>", rc.LocalAddr(), rc.RemoteAddr())
}
