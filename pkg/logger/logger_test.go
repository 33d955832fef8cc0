package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextAddsKnownKeys(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "json")
	t.Cleanup(func() { Init("info", "json") })

	ctx := WithContext(context.Background(), ProjectKey, "dragon")
	ctx = WithContext(ctx, PhaseKey, "outline")
	Info(ctx, "phase started", "attempt", 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "phase started", line["msg"])
	assert.Equal(t, "dragon", line["project"])
	assert.Equal(t, "outline", line["phase"])
	assert.EqualValues(t, 1, line["attempt"])
	assert.NotContains(t, line, "run_id")
}

func TestErrorAppendsErrorField(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")
	t.Cleanup(func() { Init("info", "json") })

	Error(context.Background(), "write failed", errors.New("disk full"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "disk full", line["error"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warning").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}
