package logging

import (
	"bytes"
	"log"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugf(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer Setup("info", false)

	debugEnabled.Store(false)
	Debugf("chunk %d planned", 1)
	assert.Empty(t, buf.String())

	debugEnabled.Store(true)
	Debugf("chunk %d planned", 2)
	assert.Contains(t, buf.String(), "[DEBUG] chunk 2 planned")
}

func TestSetup(t *testing.T) {
	defer Setup("info", false)

	Setup("DEBUG", false)
	assert.True(t, DebugEnabled())

	Setup("info", false)
	assert.False(t, DebugEnabled())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}
