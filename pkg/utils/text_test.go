package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	t.Run("object inside prose", func(t *testing.T) {
		got := ExtractJSON("Here you go:\n```json\n{\"a\": [1, 2]}\n```\nEnjoy")
		assert.Equal(t, `{"a": [1, 2]}`, got)
	})

	t.Run("array first", func(t *testing.T) {
		got := ExtractJSON(`[{"name":"Ana"}] trailing`)
		assert.Equal(t, `[{"name":"Ana"}]`, got)
	})

	t.Run("invalid json returns trimmed input", func(t *testing.T) {
		got := ExtractJSON("  {not json}  ")
		assert.Equal(t, "{not json}", got)
	})

	t.Run("no json", func(t *testing.T) {
		assert.Equal(t, "plain text", ExtractJSON(" plain text "))
	})
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "龙之", TruncateRunes("龙之歌", 2))
	assert.Equal(t, "abc", TruncateRunes("abc", 10))
	assert.Equal(t, "", TruncateRunes("abc", 0))
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 4, CountWords(" one two\n\nthree\tfour "))
	assert.Zero(t, CountWords("   "))
}
