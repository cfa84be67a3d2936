package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "promptqa.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.LLM.Provider)
	assert.Nil(t, cfg.LLM.Temperature)
	assert.Zero(t, cfg.LLM.MaxTokens)
	assert.Zero(t, cfg.LLM.RequestsPerMinute)
	assert.True(t, cfg.Repair.Enabled)
	assert.Equal(t, 1, cfg.Repair.MaxRetries)
	assert.Equal(t, StoreMemory, cfg.Submission.Store)
	assert.Equal(t, "promptqa.db", cfg.Submission.DBPath)
	assert.Equal(t, 4, cfg.QA.Workers)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
[llm]
provider = "openai"
model = "gpt-4o"
temperature = 0.5
max_tokens = 1024

[repair]
max_retries = 2

[submission]
store = "sqlite"
db_path = "subs.db"
`)
	t.Setenv("PROMPTQA_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("PROMPTQA_REPAIR_ENABLED", "false")
	t.Setenv("PROMPTQA_LLM_REQUESTS_PER_MINUTE", "30")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.Equal(t, 0.5, *cfg.LLM.Temperature)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)
	assert.Equal(t, 30, cfg.LLM.RequestsPerMinute)
	assert.False(t, cfg.Repair.Enabled)
	assert.Equal(t, 2, cfg.Repair.MaxRetries)
	assert.Equal(t, StoreSQLite, cfg.Submission.Store)
	assert.Equal(t, "subs.db", cfg.Submission.DBPath)
}

func TestLoad_HomeFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, ".promptqa.toml"), []byte("[qa]\nworkers = 9\n"), 0o644))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.QA.Workers)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "[submission]\nstore = \"redis\"\n"))
	assert.ErrorContains(t, err, "unknown submission.store")

	_, err = Load(writeFile(t, "[llm]\ntemperature = 3.0\n"))
	assert.ErrorContains(t, err, "llm.temperature")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"PROMPTQA_LLM_MAX_TOKENS":     "llm.max_tokens",
		"PROMPTQA_REPAIR_MAX_RETRIES": "repair.max_retries",
		"PROMPTQA_SUBMISSION_DB_PATH": "submission.db_path",
		"PROMPTQA_QA_WORKERS":         "qa.workers",
	}
	for in, want := range tests {
		if got := EnvKey(in); got != want {
			t.Errorf("EnvKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	var cfg Config
	cfg.Submission.Store = StoreSQLite
	assert.ErrorContains(t, Validate(&cfg), "db_path")

	cfg.Submission.DBPath = "x.db"
	cfg.Repair.MaxRetries = -1
	assert.ErrorContains(t, Validate(&cfg), "max_retries")

	cfg.Repair.MaxRetries = 0
	assert.NoError(t, Validate(&cfg))
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promptqa.toml")
	require.NoError(t, Init(path))
	assert.Error(t, Init(path), "refuses to overwrite")

	t.Setenv("HOME", t.TempDir())
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Submission.Store)
	assert.Equal(t, 4, cfg.QA.Workers)
}
