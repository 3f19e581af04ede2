package netutil

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/colonyworld/replica/engine/consts"
	"github.com/colonyworld/replica/engine/gwerrors"
	"github.com/colonyworld/replica/engine/gwlog"
)

const (
	_SIZE_FIELD_SIZE = 4
	_RECV_CHUNK_SIZE = 8192
)

// Connection is the byte stream a PacketConnection is built upon, see transport.Stream
type Connection interface {
	io.ReadWriter
	Flush() error
	Available() bool
	CloseLinger(linger time.Duration) error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// PacketConnection sends and receives length prefixed packets over a Connection.
//
// It is owned by one goroutine: sends are queued and written by Flush, receives are drained by Poll without blocking.
type PacketConnection struct {
	conn    Connection
	tag     interface{}
	sendBuf []byte
	recvBuf []byte
	err     error
	closed  bool
}

// NewPacketConnection creates a packet connection based on a stream connection
func NewPacketConnection(conn Connection, tag interface{}) *PacketConnection {
	return &PacketConnection{
		conn: conn,
		tag:  tag,
	}
}

// Tag returns the tag given at creation
func (pc *PacketConnection) Tag() interface{} {
	return pc.tag
}

// NewPacket allocates a new packet (usually for sending)
func (pc *PacketConnection) NewPacket() *Packet {
	return NewPacket()
}

// SendPacket queues the packet to be written on the next Flush
func (pc *PacketConnection) SendPacket(packet *Packet) error {
	if pc.err != nil {
		return pc.err
	}
	if pc.closed {
		return gwerrors.NewTransportError("send", pc.RemoteAddr().String(), io.ErrClosedPipe)
	}

	payloadLen := packet.GetPayloadLen()
	if payloadLen > consts.MAX_PAYLOAD_LENGTH {
		gwlog.Panicf("%s: packet payload too large: %d", pc, payloadLen)
	}
	pc.sendBuf = packetEndian.AppendUint32(pc.sendBuf, payloadLen)
	pc.sendBuf = append(pc.sendBuf, packet.Payload()...)
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: send packet of %d bytes", pc, payloadLen)
	}
	return nil
}

// QueuedBytes returns the number of bytes waiting for Flush
func (pc *PacketConnection) QueuedBytes() int {
	return len(pc.sendBuf)
}

// Flush writes all queued packets to the stream
func (pc *PacketConnection) Flush() error {
	if pc.err != nil {
		return pc.err
	}
	if len(pc.sendBuf) == 0 {
		return nil
	}

	if _, err := pc.conn.Write(pc.sendBuf); err != nil {
		pc.err = err
		return err
	}
	pc.sendBuf = pc.sendBuf[:0]
	if err := pc.conn.Flush(); err != nil {
		pc.err = err
		return err
	}
	return nil
}

// Poll drains the bytes already received and returns the complete packets among them, it never blocks
func (pc *PacketConnection) Poll() ([]*Packet, error) {
	if pc.err != nil {
		return nil, pc.err
	}

	for pc.conn.Available() {
		if cap(pc.recvBuf)-len(pc.recvBuf) < _RECV_CHUNK_SIZE {
			grown := make([]byte, len(pc.recvBuf), 2*cap(pc.recvBuf)+_RECV_CHUNK_SIZE)
			copy(grown, pc.recvBuf)
			pc.recvBuf = grown
		}
		n, err := pc.conn.Read(pc.recvBuf[len(pc.recvBuf):cap(pc.recvBuf)])
		pc.recvBuf = pc.recvBuf[:len(pc.recvBuf)+n]
		if err != nil {
			pc.err = err
			break
		}
	}

	var packets []*Packet
	consumed := 0
	for len(pc.recvBuf)-consumed >= _SIZE_FIELD_SIZE {
		payloadLen := packetEndian.Uint32(pc.recvBuf[consumed : consumed+_SIZE_FIELD_SIZE])
		if payloadLen > consts.MAX_PAYLOAD_LENGTH {
			pc.err = gwerrors.NewProtocolError(-1, "%s: payload length %d exceeds %d", pc, payloadLen, consts.MAX_PAYLOAD_LENGTH)
			break
		}
		frameEnd := consumed + _SIZE_FIELD_SIZE + int(payloadLen)
		if frameEnd > len(pc.recvBuf) {
			break // wait for the rest of the packet
		}
		packets = append(packets, NewPacketWithPayload(pc.recvBuf[consumed+_SIZE_FIELD_SIZE:frameEnd]))
		consumed = frameEnd
	}

	if consumed > 0 {
		left := copy(pc.recvBuf, pc.recvBuf[consumed:])
		pc.recvBuf = pc.recvBuf[:left]
	}
	// packets received before the stream failed are still delivered, the error is reported by the next Poll
	if len(packets) > 0 {
		return packets, nil
	}
	return nil, pc.err
}

// Err returns the error which broke the connection, if any
func (pc *PacketConnection) Err() error {
	return pc.err
}

// Close flushes queued packets and closes the stream after at most linger
func (pc *PacketConnection) Close(linger time.Duration) error {
	if pc.closed {
		return nil
	}
	if pc.err == nil {
		pc.Flush()
	}
	pc.closed = true
	return pc.conn.CloseLinger(linger)
}

// IsClosed returns if Close was called
func (pc *PacketConnection) IsClosed() bool {
	return pc.closed
}

// RemoteAddr return the remote address
func (pc *PacketConnection) RemoteAddr() net.Addr {
	return pc.conn.RemoteAddr()
}

// LocalAddr returns the local address
func (pc *PacketConnection) LocalAddr() net.Addr {
	return pc.conn.LocalAddr()
}

func (pc *PacketConnection) String() string {
	return fmt.Sprintf("[%s >>> %s]", pc.LocalAddr(), pc.RemoteAddr())
}
