package gwutils

import (
	"fmt"
	"testing"

	"github.com/bmizerany/assert"
)

func TestRunPanicless(t *testing.T) {
	assert.T(t, RunPanicless(func() {
		panic(1)
	}), "should report panic")
	assert.T(t, RunPanicless(func() {
		panic(fmt.Errorf("bad"))
	}), "should report panic")
	assert.T(t, !RunPanicless(func() {}), "should not report panic")
}

func TestCatchPanic(t *testing.T) {
	err := CatchPanic(func() {
		panic(fmt.Errorf("bad"))
	})
	assert.Equal(t, "bad", err.Error())

	err = CatchPanic(func() {
		panic("worse")
	})
	assert.Equal(t, "worse", err.Error())

	assert.Equal(t, nil, CatchPanic(func() {}))
}
