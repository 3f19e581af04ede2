package opmon

import (
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestOperation(t *testing.T) {
	Dump()
	for i := 0; i < 3; i++ {
		op := StartOperation("test_op")
		time.Sleep(time.Millisecond)
		d := op.Finish(time.Hour)
		assert.T(t, d >= time.Millisecond, "duration too short")
	}
	out := Dump()
	assert.Tf(t, strings.Contains(out, "test_op") && strings.Contains(out, "x3"), "unexpected dump: %q", out)
	assert.Equal(t, "", Dump())
}
