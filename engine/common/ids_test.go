package common

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestEntityID(t *testing.T) {
	assert.T(t, NilEntityID.IsNil(), "nil entity id should be nil")
	assert.T(t, !EntityID(0).IsNil(), "0 is a valid entity id")
	assert.Equal(t, "42", EntityID(42).String())
}

func TestParticipantID(t *testing.T) {
	assert.T(t, ServerParticipant.IsServer(), "server participant")
	assert.T(t, !ParticipantID(3).IsServer(), "client participant")
	assert.Equal(t, "client3", ParticipantID(3).String())
	assert.Equal(t, "server", ServerParticipant.String())
}
