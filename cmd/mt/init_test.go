package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/mailtriage/internal/config"
	"github.com/daviddao/mailtriage/internal/llm/claude"
	"github.com/daviddao/mailtriage/internal/llm/ollama"
)

func TestEnsureGitignore(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("bin/"), 0o644))

	require.NoError(t, ensureGitignore(root))
	require.NoError(t, ensureGitignore(root))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bin/\n\n# mailtriage local state (config, audit database)\n.mailtriage/\n", string(data))
}

func TestEnsureGitignoreCreates(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, ensureGitignore(root))

	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), ".mailtriage/\n")
}

func TestFindProjectRootFallsBackToCwd(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	got, err := filepath.EvalSymlinks(findProjectRoot())
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNewGateway(t *testing.T) {
	c := config.Default()

	gw, err := newGateway(c)
	require.NoError(t, err)
	assert.IsType(t, &ollama.Client{}, gw)

	c.Provider = config.ProviderClaude
	c.AnthropicAPIKey = "test-key"
	gw, err = newGateway(c)
	require.NoError(t, err)
	assert.IsType(t, &claude.Client{}, gw)

	c.Provider = "openai"
	_, err = newGateway(c)
	assert.Error(t, err)
}

func TestApplyRunFlagsOnlyChanged(t *testing.T) {
	cfg = config.Default()
	t.Cleanup(func() { cfg = config.Default() })

	require.NoError(t, runCmd.Flags().Set("label-prefix", "Triage/"))
	require.NoError(t, runCmd.Flags().Set("vip-senders", "Boss@Example.com, cfo@example.com"))
	applyRunFlags(runCmd)

	assert.Equal(t, "Triage/", cfg.LabelPrefix)
	assert.Equal(t, []string{"Boss@Example.com", "cfo@example.com"}, cfg.VIPSenders)
	assert.Equal(t, "llama3.1", cfg.Model, "unset flags keep the configured value")
}

func TestCheckFetch(t *testing.T) {
	assert.NoError(t, checkFetch(1))
	assert.NoError(t, checkFetch(500))
	assert.ErrorContains(t, checkFetch(0), "--fetch must be at least 1")
	assert.ErrorContains(t, checkFetch(-3), "got -3")
}
