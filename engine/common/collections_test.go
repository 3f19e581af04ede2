package common

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestStringSet(t *testing.T) {
	ss := StringSet{}
	ss.Add("127.0.0.1:7001")
	ss.Add("127.0.0.1:7000")
	ss.Add("127.0.0.1:7001")
	assert.T(t, ss.Contains("127.0.0.1:7000"))
	assert.Equal(t, []string{"127.0.0.1:7000", "127.0.0.1:7001"}, ss.ToList())

	ss.Remove("127.0.0.1:7001")
	assert.T(t, !ss.Contains("127.0.0.1:7001"))
	assert.Equal(t, 1, len(ss))
}
