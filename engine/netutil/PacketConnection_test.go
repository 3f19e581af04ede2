package netutil

import (
	"bytes"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/colonyworld/replica/engine/transport"
)

func pollUntil(t *testing.T, pc *PacketConnection, n int) []*Packet {
	var packets []*Packet
	deadline := time.Now().Add(5 * time.Second)
	for len(packets) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timeout: got %d of %d packets", len(packets), n)
		}
		got, err := pc.Poll()
		if err != nil {
			t.Fatalf("poll failed: %v", err)
		}
		packets = append(packets, got...)
		if len(got) == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	return packets
}

func TestPacketConnection(t *testing.T) {
	a, b := transport.Pipe()
	pa := NewPacketConnection(a, "a")
	pb := NewPacketConnection(b, "b")
	defer pb.Close(0)

	big := bytes.Repeat([]byte{9}, 50000)
	for i := 0; i < 3; i++ {
		p := pa.NewPacket()
		p.AppendUint16(uint16(i))
		p.AppendVarBytes(big)
		assert.Equal(t, nil, pa.SendPacket(p))
		p.Release()
	}
	assert.T(t, pa.QueuedBytes() > 150000, "packets should be queued until flush")
	assert.Equal(t, nil, pa.Flush())
	assert.Equal(t, 0, pa.QueuedBytes())

	packets := pollUntil(t, pb, 3)
	for i, p := range packets {
		assert.Equal(t, uint16(i), p.ReadUint16())
		assert.T(t, bytes.Equal(big, p.ReadVarBytes()), "payload corrupted")
		p.Release()
	}

	// queued packets are flushed by Close
	p := pa.NewPacket()
	p.AppendVarStr("bye")
	pa.SendPacket(p)
	p.Release()
	assert.Equal(t, nil, pa.Close(10*time.Millisecond))
	assert.T(t, pa.IsClosed(), "should be closed")

	packets = pollUntil(t, pb, 1)
	assert.Equal(t, "bye", packets[0].ReadVarStr())

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := pb.Poll()
		if err != nil {
			assert.T(t, IsConnectionError(err), "disconnect should be a connection error")
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("peer close not detected")
		}
		time.Sleep(time.Millisecond)
	}
}
