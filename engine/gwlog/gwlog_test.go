package gwlog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bmizerany/assert"
)

func TestParseLevel(t *testing.T) {
	lv, ok := ParseLevel("WARNING")
	assert.T(t, ok, "warning should be known")
	assert.Equal(t, WarnLevel, lv)

	_, ok = ParseLevel("verbose")
	assert.T(t, !ok, "verbose should be unknown")
	assert.Equal(t, DebugLevel, StringToLevel("verbose"))
}

func TestSetOutputAndLevel(t *testing.T) {
	old := GetOutput()
	oldLevel := GetLevel()
	defer func() {
		SetOutput(old)
		SetLevel(oldLevel)
	}()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(InfoLevel)
	Debugf("hidden %d", 1)
	Infof("visible %d", 2)
	out := buf.String()
	assert.Tf(t, !strings.Contains(out, "hidden"), "debug message should be filtered: %q", out)
	assert.Tf(t, strings.Contains(out, "visible 2"), "info message missing: %q", out)
}
