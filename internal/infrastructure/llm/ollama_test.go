package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOllamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Write([]byte("Ollama is running"))
		case "/api/tags":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"models":[{"name":"gemma3:12b","size":1},{"name":"llama3:latest","size":2}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaClient(t *testing.T) {
	srv := newOllamaServer(t)
	c := NewOllamaClient(srv.URL+"/", time.Second)
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, c.Ping(ctx))
	})

	t.Run("list models", func(t *testing.T) {
		models, err := c.ListModels(ctx)
		require.NoError(t, err)
		require.Len(t, models, 2)
		assert.Equal(t, "gemma3:12b", models[0].Name)
	})

	t.Run("has model", func(t *testing.T) {
		ok, err := c.HasModel(ctx, "gemma3:12b")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.HasModel(ctx, "llama3")
		require.NoError(t, err)
		assert.True(t, ok, "untagged name matches latest")

		ok, err = c.HasModel(ctx, "mistral")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestOllamaClientUnreachable(t *testing.T) {
	srv := newOllamaServer(t)
	url := srv.URL
	srv.Close()

	c := NewOllamaClient(url, 200*time.Millisecond)
	assert.Error(t, c.Ping(context.Background()))
	_, err := c.ListModels(context.Background())
	assert.Error(t, err)
}
