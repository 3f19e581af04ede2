package crontab

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

// 2024-03-03 is a Sunday
var sunday = time.Date(2024, time.March, 3, 4, 30, 0, 0, time.Local)

func TestParse(t *testing.T) {
	s, err := Parse("30 4 * * *")
	assert.Equal(t, nil, err)
	assert.T(t, s.Match(sunday))
	assert.T(t, !s.Match(sunday.Add(time.Minute)))

	s, err = Parse("*/15 * * * 0")
	assert.Equal(t, nil, err)
	assert.T(t, s.Match(sunday))
	assert.T(t, !s.Match(sunday.Add(time.Minute)))
	assert.T(t, !s.Match(sunday.AddDate(0, 0, 1)))

	s, err = Parse("30 4 * * 7")
	assert.Equal(t, nil, err)
	assert.T(t, s.Match(sunday))
}

func TestParseInvalid(t *testing.T) {
	for _, spec := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "* * 0 * *", "* * * 13 *", "* * * * 8", "* * * * */2", "*/0 * * * *", "a * * * *"} {
		_, err := Parse(spec)
		assert.Tf(t, err != nil, "spec %q should be invalid", spec)
	}
}

func TestCheck(t *testing.T) {
	table := New()
	count := 0
	_, err := table.Register("* * * * *", func() {
		count++
	})
	assert.Equal(t, nil, err)

	var h Handle
	h, err = table.Register("*/2 * * * *", func() {
		count += 10
		table.Unregister(h)
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, table.Len())

	table.Check(sunday)
	assert.Equal(t, 11, count)
	assert.Equal(t, 1, table.Len())
	table.Check(sunday)
	assert.Equal(t, 12, count)

	_, err = table.Register("bad", func() {})
	assert.T(t, err != nil)
	assert.Equal(t, 1, table.Len())
}
