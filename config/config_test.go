package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad_MissingFilesUseDefaults(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("BLOG_ADDR", "")
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "config.json"), filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultServerAddr, cfg.ServerAddr)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"server_addr": ":9000",
		"llm": {"provider": "openai", "model": "gpt-4o-mini", "api_key": "from-file", "base_url": "https://example.test/v1/"}
	}`)
	t.Setenv("DEEPSEEK_API_KEY", "from-env")
	t.Setenv("BLOG_ADDR", "")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, "https://example.test/v1/", cfg.LLM.BaseURL)
}

func TestLoad_DotEnv(t *testing.T) {
	t.Setenv("BLOG_LLM_MODEL", "")
	require.NoError(t, os.Unsetenv("BLOG_LLM_MODEL"))
	envFile := writeFile(t, ".env", "BLOG_LLM_MODEL=deepseek-reasoner\n")
	t.Cleanup(func() { _ = os.Unsetenv("BLOG_LLM_MODEL") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "deepseek-reasoner", cfg.LLM.Model)
}

func TestLoad_BadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"server_addr":`)
	_, err := Load(path, "")
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, map[string]string{
		"DEEPSEEK_API_KEY":  "sk-1",
		"BLOG_LLM_PROVIDER": "mock",
		"BLOG_LOG_LEVEL":    "debug",
	}))
	assert.Equal(t, "sk-1", cfg.LLM.APIKey)
	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DefaultServerAddr, cfg.ServerAddr)
}
