package common

import (
	"math"
	"testing"

	"github.com/bmizerany/assert"
)

func TestVector3(t *testing.T) {
	a := Vector3{0, 0, 0}
	b := Vector3{3, 4, 0}
	assert.Equal(t, 5.0, a.DistanceTo(b))
	assert.Equal(t, Vector3{1.5, 2, 0}, a.Lerp(b, 0.5))
	assert.Equal(t, Vector3{6, 8, 0}, b.Mul(2))

	n := b.Normalized()
	assert.Tf(t, math.Abs(n.DistanceTo(a)-1) < 1e-6, "normalized length should be 1: %v", n)
}
