package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-pipeline/internal/config"
)

func writeConfig(t *testing.T) (dir, projects string) {
	t.Helper()
	dir = t.TempDir()
	projects = filepath.Join(dir, "projects")
	content := `
llm:
  default_provider: ollama
  providers:
    ollama:
      api_key: secret-key
      base_url: http://localhost:11434/v1
      model: gemma3:12b
pipeline:
  projects_dir: ` + projects + `
  sections_per_chapter: 2
  total_chapters: 4
  soft_target: 5000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	return dir, projects
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestProjectCommands(t *testing.T) {
	dir, projects := writeConfig(t)

	out := execute(t, "project", "list", "--config-dir", dir)
	assert.Contains(t, out, "no projects")

	out = execute(t, "project", "create", "dragons", "--config-dir", dir)
	assert.Contains(t, out, filepath.Join(projects, "dragons"))

	out = execute(t, "project", "list", "--config-dir", dir)
	assert.Contains(t, out, "dragons")

	out = execute(t, "project", "show", "dragons", "--config-dir", dir)
	assert.Contains(t, out, "Project:")
	assert.Contains(t, out, "Chapter 1, Section 1 of 4 chapters")
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	dir, _ := writeConfig(t)
	showSecrets = false

	out := execute(t, "config", "show", "--config-dir", dir)
	assert.Contains(t, out, "projects_dir:")
	assert.Contains(t, out, redacted)
	assert.NotContains(t, out, "secret-key")
}

func TestRedactSecretsCopies(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.Providers = map[string]config.ProviderConfig{"ollama": {APIKey: "k"}}
	cfg.Storage.Backup.SecretAccessKey = "s"

	out := redactSecrets(cfg)
	assert.Equal(t, redacted, out.LLM.Providers["ollama"].APIKey)
	assert.Equal(t, redacted, out.Storage.Backup.SecretAccessKey)
	assert.Equal(t, "k", cfg.LLM.Providers["ollama"].APIKey)
	assert.Equal(t, "s", cfg.Storage.Backup.SecretAccessKey)
}

func TestNewUploaderDisabled(t *testing.T) {
	u, err := newUploader(config.BackupStorageConfig{})
	require.NoError(t, err)
	assert.Nil(t, u)
}
