// Package config loads promptqa CLI settings from defaults, an optional TOML
// file and PROMPTQA_ environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. PROMPTQA_LLM_MAX_TOKENS.
const EnvPrefix = "PROMPTQA_"

// Submission store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config is the CLI configuration. LLM fields left unset fall through to the
// asset's first adapter and then to the renderer defaults.
type Config struct {
	LLM struct {
		Provider          string   `koanf:"provider"`
		Model             string   `koanf:"model"`
		Temperature       *float64 `koanf:"temperature"`
		MaxTokens         int      `koanf:"max_tokens"`
		RequestsPerMinute int      `koanf:"requests_per_minute"`
	} `koanf:"llm"`

	Repair struct {
		Enabled    bool `koanf:"enabled"`
		MaxRetries int  `koanf:"max_retries"`
	} `koanf:"repair"`

	Submission struct {
		Store  string `koanf:"store"`
		DBPath string `koanf:"db_path"`
	} `koanf:"submission"`

	QA struct {
		Workers int `koanf:"workers"`
	} `koanf:"qa"`
}

// Defaults are loaded before any file or environment value.
var Defaults = map[string]interface{}{
	"llm.requests_per_minute": 0,
	"repair.enabled":          true,
	"repair.max_retries":      1,
	"submission.store":        StoreMemory,
	"submission.db_path":      "promptqa.db",
	"qa.workers":              4,
}

// DefaultPaths are tried in order when no config path is given.
var DefaultPaths = []string{"./promptqa.toml", "$HOME/.promptqa.toml"}

// Load reads the configuration. A non-empty configPath must exist; otherwise
// the first readable file in DefaultPaths is used, if any.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", configPath, err)
		}
	} else {
		for _, path := range DefaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("config: load %s: %w", path, err)
			}
			break
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", EnvKey), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnvKey maps PROMPTQA_SECTION_SOME_KEY to section.some_key. Only the first
// underscore after the prefix separates the section.
func EnvKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// Validate rejects values the CLI cannot act on.
func Validate(cfg *Config) error {
	if t := cfg.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("config: llm.temperature %v outside [0, 2]", *t)
	}
	if cfg.LLM.MaxTokens < 0 {
		return fmt.Errorf("config: llm.max_tokens must not be negative")
	}
	if cfg.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("config: llm.requests_per_minute must not be negative")
	}
	if cfg.Repair.MaxRetries < 0 {
		return fmt.Errorf("config: repair.max_retries must not be negative")
	}
	switch cfg.Submission.Store {
	case StoreMemory:
	case StoreSQLite:
		if cfg.Submission.DBPath == "" {
			return fmt.Errorf("config: submission.db_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("config: unknown submission.store %q (want %s or %s)", cfg.Submission.Store, StoreMemory, StoreSQLite)
	}
	return nil
}

// Sample is the commented configuration written by Init.
const Sample = `# promptqa configuration

[llm]
# provider = "anthropic"   # anthropic | openai | google
# model = "claude-sonnet-4-5"
# temperature = 0.2
# max_tokens = 4096
requests_per_minute = 0     # 0 disables throttling

[repair]
enabled = true
max_retries = 1

[submission]
store = "memory"            # memory | sqlite
db_path = "promptqa.db"

[qa]
workers = 4
`

// Init writes Sample to configPath. It refuses to overwrite an existing file.
func Init(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config: file already exists at %s", configPath)
	}
	if err := os.WriteFile(configPath, []byte(Sample), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", configPath, err)
	}
	return nil
}
