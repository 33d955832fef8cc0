package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadFromDefaultsOnly(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "projects", cfg.Pipeline.ProjectsDir)
	assert.Equal(t, 3, cfg.Pipeline.SectionsPerChapter)
	assert.Equal(t, 25, cfg.Pipeline.TotalChapters)
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.PausePollInterval)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)

	p, ok := cfg.LLM.DefaultProviderConfig()
	require.True(t, ok)
	assert.Equal(t, "gemma3:12b", p.Model)
	assert.InDelta(t, 0.7, p.Temperature, 1e-9)
}

func TestLoadFromMergesEnvFileAndExpandsVars(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
pipeline:
  projects_dir: ${TEST_PROJECTS_DIR:fallback}
  sections_per_chapter: 4
`)
	writeFile(t, dir, "config.staging.yaml", `
pipeline:
  total_chapters: 12
`)
	t.Setenv("APP_ENV", "staging")
	t.Setenv("TEST_PROJECTS_DIR", "/srv/novels")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "/srv/novels", cfg.Pipeline.ProjectsDir)
	assert.Equal(t, 4, cfg.Pipeline.SectionsPerChapter)
	assert.Equal(t, 12, cfg.Pipeline.TotalChapters)
}

func TestLoadFromEnvOverride(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestLoadFromRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "pipeline:\n  sections_per_chapter: 0\n")

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sections_per_chapter")
}

func TestExpandEnvKeepsUnknownWithoutDefault(t *testing.T) {
	assert.Equal(t, "${SURELY_UNSET_VAR_X}", expandEnv("${SURELY_UNSET_VAR_X}"))
	assert.Equal(t, "a:b", expandEnv("${SURELY_UNSET_VAR_X:a:b}"))
}
