package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Output: &buf})

	l.WithComponent("prober").Info("link up", "bond", "bondvet0", "mode", "802.3ad")

	out := buf.String()
	assert.Contains(t, out, "[info]")
	assert.Contains(t, out, "prober: link up")
	assert.Contains(t, out, "bond=bondvet0")
	assert.Contains(t, out, "mode=802.3ad")
}

func TestJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, JSON: true})

	l.WithHost("node-1").Warn("restore incomplete")

	out := buf.String()
	assert.Contains(t, out, `"host":"node-1"`)
	assert.Contains(t, out, `"msg":"restore incomplete"`)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})

	l.Debug("hidden")
	l.Info("also hidden")
	l.Warn("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})

	l.Debug("before")
	l.SetLevel(LevelDebug)
	l.Debug("after")

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
}
