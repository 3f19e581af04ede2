package netutil

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/gwutils"
	"github.com/pkg/errors"
)

func TestPacketAppendRead(t *testing.T) {
	p := NewPacket()
	defer p.Release()

	p.AppendUint16(0xBEEF)
	p.AppendEntityID(common.EntityID(123456789))
	p.AppendParticipantID(7)
	p.AppendVarint(-42)
	p.AppendFloat32(1.5)
	p.AppendFloat64(-2.25)
	p.AppendBool(true)
	p.AppendVarStr("settler")
	p.AppendVector3(common.Vector3{X: 1, Y: 2, Z: 3})
	p.AppendStringList([]string{"a", "bc"})
	p.AppendData(map[string]int{"wood": 3})

	assert.Equal(t, uint16(0xBEEF), p.ReadUint16())
	assert.Equal(t, common.EntityID(123456789), p.ReadEntityID())
	assert.Equal(t, common.ParticipantID(7), p.ReadParticipantID())
	assert.Equal(t, int64(-42), p.ReadVarint())
	assert.Equal(t, float32(1.5), p.ReadFloat32())
	assert.Equal(t, -2.25, p.ReadFloat64())
	assert.Equal(t, true, p.ReadBool())
	assert.Equal(t, "settler", p.ReadVarStr())
	assert.Equal(t, common.Vector3{X: 1, Y: 2, Z: 3}, p.ReadVector3())
	assert.Equal(t, []string{"a", "bc"}, p.ReadStringList())
	var counts map[string]int
	p.ReadData(&counts)
	assert.Equal(t, 3, counts["wood"])
	assert.T(t, !p.HasUnreadPayload(), "all payload should be read")
}

func TestPacketReadTooShort(t *testing.T) {
	p := NewPacketWithPayload([]byte{1, 2, 3})
	defer p.Release()

	err := gwutils.CatchPanic(func() {
		p.ReadUint64()
	})
	assert.Tf(t, errors.Cause(err) == ErrPacketTooShort, "expect ErrPacketTooShort, got %v", err)

	p.ClearPayload()
	p.AppendUvarint(1000) // claims more bytes than present
	err = gwutils.CatchPanic(func() {
		p.ReadVarBytes()
	})
	assert.Tf(t, errors.Cause(err) == ErrPacketTooShort, "expect ErrPacketTooShort, got %v", err)
}

func TestPacketPoolReuse(t *testing.T) {
	p := NewPacket()
	p.AppendBytes(make([]byte, 1000))
	p.Release()

	q := NewPacket()
	defer q.Release()
	assert.Equal(t, uint32(0), q.GetPayloadLen())
	assert.T(t, !q.HasUnreadPayload(), "fresh packet should be empty")
}
