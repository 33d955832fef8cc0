package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "z-novel-pipeline/pkg/errors"
)

func TestParseStartConfig(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want StartConfig
	}{
		{
			name: "plain",
			raw:  "Idea: A dragon hatches in a monastery, Tone: grim, Soft Target: 50000",
			want: StartConfig{Idea: "A dragon hatches in a monastery", Tone: "grim", SoftTarget: 50000},
		},
		{
			name: "last tone marker wins",
			raw:  "Idea: A dragon, Tone: grim, Tone: wait, Soft Target: 1000",
			want: StartConfig{Idea: "A dragon, Tone: grim", Tone: "wait", SoftTarget: 1000},
		},
		{
			name: "commas and newlines in idea",
			raw:  "Idea: Ash, smoke,\nand fire, Tone: dark, hopeful, Soft Target: 1200\n",
			want: StartConfig{Idea: "Ash, smoke,\nand fire", Tone: "dark, hopeful", SoftTarget: 1200},
		},
		{
			name: "missing soft target",
			raw:  "Idea: A dragon, Tone: grim",
			want: StartConfig{Idea: "A dragon", Tone: "grim"},
		},
		{
			name: "soft target not at the end stays in tone",
			raw:  "Idea: A dragon, Tone: grim, Soft Target: 10 or so",
			want: StartConfig{Idea: "A dragon", Tone: "grim, Soft Target: 10 or so"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStartConfig(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStartConfigInvalid(t *testing.T) {
	for _, raw := range []string{
		"",
		"A dragon, grim, Soft Target: 10",
		"Idea: A dragon, Soft Target: 10",
		"Tone: grim, Idea: A dragon",
	} {
		_, err := ParseStartConfig(raw)
		require.Error(t, err, raw)
		assert.Equal(t, apperrors.CodeInvalidConfig, apperrors.CodeOf(err), raw)
	}
}

func TestStartConfigRoundTrip(t *testing.T) {
	cfg := StartConfig{Idea: "A dragon, Tone: odd", Tone: "grim", SoftTarget: 42}
	got, err := ParseStartConfig(cfg.String())
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestIsClean(t *testing.T) {
	assert.True(t, IsClean("No issues found."))
	assert.True(t, IsClean("Result: NO ISSUES"))
	assert.False(t, IsClean("Issues: [timeline gap in chapter 3]"))
}
