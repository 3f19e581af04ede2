package netutil

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/pkg/errors"
)

const (
	_MIN_PAYLOAD_CAP = 128
)

var (
	packetEndian = binary.LittleEndian

	// ErrPacketTooShort is panicked by Read* methods when the packet has less unread payload than required
	ErrPacketTooShort = errors.New("packet too short")

	packetPool = sync.Pool{
		New: func() interface{} {
			p := &Packet{}
			p.bytes = p.initialBytes[:0]
			return p
		},
	}
)

// Packet is a packet for sending and receiving data.
//
// Read methods panic with ErrPacketTooShort on truncated payloads; message handlers convert the panic into a protocol error.
type Packet struct {
	readCursor   int
	refcount     int64
	bytes        []byte
	initialBytes [_MIN_PAYLOAD_CAP]byte
}

// NewPacket allocates a new packet
func NewPacket() *Packet {
	pkt := packetPool.Get().(*Packet)
	pkt.refcount = 1
	return pkt
}

// NewPacketWithPayload allocates a new packet containing a copy of payload
func NewPacketWithPayload(payload []byte) *Packet {
	pkt := NewPacket()
	pkt.AppendBytes(payload)
	return pkt
}

// AddRefCount adds reference count of packet
func (p *Packet) AddRefCount(add int64) {
	atomic.AddInt64(&p.refcount, add)
}

// Release releases the packet to packet pool
func (p *Packet) Release() {
	refcount := atomic.AddInt64(&p.refcount, -1)

	if refcount == 0 {
		if cap(p.bytes) > 64*1024 {
			p.bytes = p.initialBytes[:0] // do not keep huge buffers in the pool
		}
		p.bytes = p.bytes[:0]
		p.readCursor = 0
		packetPool.Put(p)
	} else if refcount < 0 {
		gwlog.Panicf("releasing packet with refcount=%d", p.refcount)
	}
}

// Payload returns the total payload of packet
func (p *Packet) Payload() []byte {
	return p.bytes
}

// GetPayloadLen returns the payload length
func (p *Packet) GetPayloadLen() uint32 {
	return uint32(len(p.bytes))
}

// UnreadPayload returns the unread payload
func (p *Packet) UnreadPayload() []byte {
	return p.bytes[p.readCursor:]
}

// HasUnreadPayload returns if some payload is not read yet
func (p *Packet) HasUnreadPayload() bool {
	return p.readCursor < len(p.bytes)
}

// ClearPayload clears packet payload
func (p *Packet) ClearPayload() {
	p.readCursor = 0
	p.bytes = p.bytes[:0]
}

func (p *Packet) need(n int) int {
	pos := p.readCursor
	if n < 0 || pos+n > len(p.bytes) {
		panic(errors.Wrapf(ErrPacketTooShort, "reading %d bytes at %d of %d", n, pos, len(p.bytes)))
	}
	p.readCursor += n
	return pos
}

// AppendByte appends one byte to the end of payload
func (p *Packet) AppendByte(b byte) {
	p.bytes = append(p.bytes, b)
}

// ReadOneByte reads one byte from the beginning
func (p *Packet) ReadOneByte() byte {
	pos := p.need(1)
	return p.bytes[pos]
}

// AppendBool appends one byte 1/0 to the end of payload
func (p *Packet) AppendBool(b bool) {
	if b {
		p.AppendByte(1)
	} else {
		p.AppendByte(0)
	}
}

// ReadBool reads one byte 1/0 from the beginning of unread payload
func (p *Packet) ReadBool() bool {
	return p.ReadOneByte() != 0
}

// AppendUint16 appends one uint16 to the end of payload
func (p *Packet) AppendUint16(v uint16) {
	p.bytes = packetEndian.AppendUint16(p.bytes, v)
}

// AppendUint32 appends one uint32 to the end of payload
func (p *Packet) AppendUint32(v uint32) {
	p.bytes = packetEndian.AppendUint32(p.bytes, v)
}

// AppendUint64 appends one uint64 to the end of payload
func (p *Packet) AppendUint64(v uint64) {
	p.bytes = packetEndian.AppendUint64(p.bytes, v)
}

// AppendInt64 appends one int64 to the end of payload
func (p *Packet) AppendInt64(v int64) {
	p.AppendUint64(uint64(v))
}

// AppendVarint appends a zigzag varint to the end of payload
func (p *Packet) AppendVarint(v int64) {
	p.bytes = binary.AppendVarint(p.bytes, v)
}

// AppendUvarint appends an unsigned varint to the end of payload
func (p *Packet) AppendUvarint(v uint64) {
	p.bytes = binary.AppendUvarint(p.bytes, v)
}

// AppendFloat32 appends one float32 to the end of payload
func (p *Packet) AppendFloat32(f float32) {
	p.AppendUint32(math.Float32bits(f))
}

// AppendFloat64 appends one float64 to the end of payload
func (p *Packet) AppendFloat64(f float64) {
	p.AppendUint64(math.Float64bits(f))
}

// AppendBytes appends slice of bytes to the end of payload
func (p *Packet) AppendBytes(v []byte) {
	p.bytes = append(p.bytes, v...)
}

// AppendVarStr appends a varsize string to the end of payload
func (p *Packet) AppendVarStr(s string) {
	p.AppendUvarint(uint64(len(s)))
	p.bytes = append(p.bytes, s...)
}

// AppendVarBytes appends varsize bytes to the end of payload
func (p *Packet) AppendVarBytes(v []byte) {
	p.AppendUvarint(uint64(len(v)))
	p.AppendBytes(v)
}

// ReadUint16 reads one uint16 from the beginning of unread payload
func (p *Packet) ReadUint16() uint16 {
	pos := p.need(2)
	return packetEndian.Uint16(p.bytes[pos : pos+2])
}

// ReadUint32 reads one uint32 from the beginning of unread payload
func (p *Packet) ReadUint32() uint32 {
	pos := p.need(4)
	return packetEndian.Uint32(p.bytes[pos : pos+4])
}

// ReadUint64 reads one uint64 from the beginning of unread payload
func (p *Packet) ReadUint64() uint64 {
	pos := p.need(8)
	return packetEndian.Uint64(p.bytes[pos : pos+8])
}

// ReadInt64 reads one int64 from the beginning of unread payload
func (p *Packet) ReadInt64() int64 {
	return int64(p.ReadUint64())
}

// ReadVarint reads a zigzag varint from the beginning of unread payload
func (p *Packet) ReadVarint() int64 {
	v, n := binary.Varint(p.bytes[p.readCursor:])
	if n <= 0 {
		panic(errors.Wrap(ErrPacketTooShort, "bad varint"))
	}
	p.readCursor += n
	return v
}

// ReadUvarint reads an unsigned varint from the beginning of unread payload
func (p *Packet) ReadUvarint() uint64 {
	v, n := binary.Uvarint(p.bytes[p.readCursor:])
	if n <= 0 {
		panic(errors.Wrap(ErrPacketTooShort, "bad uvarint"))
	}
	p.readCursor += n
	return v
}

// ReadFloat32 reads one float32 from the beginning of unread payload
func (p *Packet) ReadFloat32() float32 {
	return math.Float32frombits(p.ReadUint32())
}

// ReadFloat64 reads one float64 from the beginning of unread payload
func (p *Packet) ReadFloat64() float64 {
	return math.Float64frombits(p.ReadUint64())
}

// ReadBytes reads bytes from the beginning of unread payload, the bytes are not copied
func (p *Packet) ReadBytes(size int) []byte {
	pos := p.need(size)
	return p.bytes[pos : pos+size]
}

// ReadVarStr reads a varsize string from the beginning of unread payload
func (p *Packet) ReadVarStr() string {
	return string(p.ReadVarBytes())
}

// ReadVarBytes reads a varsize slice of bytes from the beginning of unread payload
func (p *Packet) ReadVarBytes() []byte {
	blen := p.ReadUvarint()
	if blen > uint64(len(p.bytes)) {
		panic(errors.Wrapf(ErrPacketTooShort, "var bytes of length %d", blen))
	}
	return p.ReadBytes(int(blen))
}

// AppendEntityID appends one Entity ID to the end of payload
func (p *Packet) AppendEntityID(id common.EntityID) {
	p.AppendInt64(int64(id))
}

// ReadEntityID reads one EntityID from the beginning of unread payload
func (p *Packet) ReadEntityID() common.EntityID {
	return common.EntityID(p.ReadInt64())
}

// AppendParticipantID appends one participant ID to the end of payload
func (p *Packet) AppendParticipantID(pid common.ParticipantID) {
	p.AppendUint32(uint32(pid))
}

// ReadParticipantID reads one participant ID from the beginning of unread payload
func (p *Packet) ReadParticipantID() common.ParticipantID {
	return common.ParticipantID(p.ReadUint32())
}

// AppendVector3 appends a position or rotation to the end of payload
func (p *Packet) AppendVector3(v common.Vector3) {
	p.AppendFloat32(float32(v.X))
	p.AppendFloat32(float32(v.Y))
	p.AppendFloat32(float32(v.Z))
}

// ReadVector3 reads a position or rotation from the beginning of unread payload
func (p *Packet) ReadVector3() common.Vector3 {
	x := p.ReadFloat32()
	y := p.ReadFloat32()
	z := p.ReadFloat32()
	return common.Vector3{X: common.Coord(x), Y: common.Coord(y), Z: common.Coord(z)}
}

// AppendData appends one data of any type to the end of payload
func (p *Packet) AppendData(msg interface{}) {
	dataBytes, err := MSG_PACKER.PackMsg(msg, nil)
	if err != nil {
		gwlog.Panic(err)
	}

	p.AppendVarBytes(dataBytes)
}

// ReadData reads one data of any type from the beginning of unread payload
func (p *Packet) ReadData(msg interface{}) {
	b := p.ReadVarBytes()
	err := MSG_PACKER.UnpackMsg(b, msg)
	if err != nil {
		panic(errors.Wrap(err, "unpack data"))
	}
}

// AppendStringList appends a list of strings to the end of payload
func (p *Packet) AppendStringList(list []string) {
	p.AppendUvarint(uint64(len(list)))
	for _, s := range list {
		p.AppendVarStr(s)
	}
}

// ReadStringList reads a list of strings from the beginning of unread payload
func (p *Packet) ReadStringList() []string {
	listlen := p.ReadUvarint()
	if listlen > uint64(len(p.bytes)) {
		panic(errors.Wrapf(ErrPacketTooShort, "string list of length %d", listlen))
	}
	list := make([]string, listlen)
	for i := range list {
		list[i] = p.ReadVarStr()
	}
	return list
}
