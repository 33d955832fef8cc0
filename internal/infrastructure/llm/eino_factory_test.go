package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-pipeline/internal/config"
)

func TestEinoFactoryCachesModels(t *testing.T) {
	f := NewEinoFactory(&config.LLMConfig{
		DefaultProvider: "ollama",
		Providers: map[string]config.ProviderConfig{
			"ollama": {
				APIKey:      "ollama",
				BaseURL:     "http://127.0.0.1:1/v1",
				Model:       "gemma3:12b",
				Temperature: 0.7,
				Timeout:     time.Second,
			},
		},
	})
	ctx := context.Background()

	a, err := f.Default(ctx)
	require.NoError(t, err)
	b, err := f.Get(ctx, "ollama")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "gemma3:12b", f.DefaultModel())
	assert.Equal(t, "ollama", f.DefaultProvider())

	_, err = f.Get(ctx, "missing")
	assert.Error(t, err)
}
