package netutil

import (
	"testing"

	"github.com/bmizerany/assert"
)

type testRecord struct {
	TypeKey  string
	Position []float32
	Vars     [][]byte
}

func TestMessagePackMsgPacker(t *testing.T) {
	rec := testRecord{
		TypeKey:  "settler",
		Position: []float32{1, 2, 3},
		Vars:     [][]byte{{1}, {2, 3}},
	}
	buf, err := MessagePackMsgPacker{}.PackMsg(rec, nil)
	assert.Equal(t, nil, err)

	var restored testRecord
	assert.Equal(t, nil, MessagePackMsgPacker{}.UnpackMsg(buf, &restored))
	assert.Equal(t, rec, restored)
}

func TestMessagePackMsgPackerAppends(t *testing.T) {
	prefix := []byte{0xAA}
	buf, err := MessagePackMsgPacker{}.PackMsg("x", prefix)
	assert.Equal(t, nil, err)
	assert.Equal(t, byte(0xAA), buf[0])

	var s string
	assert.Equal(t, nil, MessagePackMsgPacker{}.UnpackMsg(buf[1:], &s))
	assert.Equal(t, "x", s)
}

func BenchmarkMessagePackMsgPacker(b *testing.B) {
	rec := testRecord{TypeKey: "stockpile", Position: []float32{1, 2, 3}, Vars: [][]byte{make([]byte, 64)}}
	for i := 0; i < b.N; i++ {
		buf, _ := MSG_PACKER.PackMsg(rec, nil)
		var restored testRecord
		_ = MSG_PACKER.UnpackMsg(buf, &restored)
	}
}
