package prompt

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	r := NewRegistry()
	msgs, err := r.Render(context.Background(), PromptSynopsis, map[string]any{
		"idea":        "A dragon learns to read",
		"tone":        "whimsical",
		"soft_target": 1000,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Idea: A dragon learns to read")
	assert.Contains(t, msgs[1].Content, "about 1000 words")
}

func TestValuesWithBracesAreNotReinterpreted(t *testing.T) {
	r := NewRegistry()
	msgs, err := r.Render(context.Background(), PromptSummary, map[string]any{
		"chapter": 1,
		"section": 2,
		"text":    "She wrote {name} on the wall.",
	})
	require.NoError(t, err)
	assert.Contains(t, msgs[1].Content, "She wrote {name} on the wall.")
}

func TestEveryPromptLoads(t *testing.T) {
	r := NewRegistry()
	ids := []PromptID{
		PromptSynopsis, PromptSynopsisRefine, PromptOutline, PromptCharacters, PromptWorld,
		PromptTimeline, PromptArtifactRevise, PromptResearch, PromptSectionDraft, PromptSectionRevise,
		PromptSectionPolishFlow, PromptSectionPolishStyle, PromptSummary, PromptContextDigest,
		PromptConsistency,
	}
	for _, id := range ids {
		tpl, err := r.ChatTemplate(id)
		require.NoError(t, err, id)
		again, err := r.ChatTemplate(id)
		require.NoError(t, err)
		assert.Equal(t, tpl, again)
	}

	_, err := r.ChatTemplate("nope")
	assert.Error(t, err)
}
