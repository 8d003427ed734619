// Package config loads the service configuration from YAML, .env files and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/dreamer/internal/guard"
)

const (
	BackendChromem = "chromem"
	BackendSQLite  = "sqlite"
)

var knownProviders = map[string]bool{
	"gemini": true, "openai": true, "ollama": true, "anthropic": true, "cli": true, "offline": true,
}

// embeds lists the providers with an embeddings API.
var embeds = map[string]bool{
	"gemini": true, "openai": true, "ollama": true, "offline": true,
}

// envKeys maps a provider to the environment variable holding its key.
var envKeys = map[string]string{
	"gemini":    "GOOGLE_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Memory    MemoryConfig    `yaml:"memory"`
	Guard     guard.Policy    `yaml:"guard"`
	Workers   int             `yaml:"workers"`
	// TaskBacklog is how many extractions may wait for a free worker.
	TaskBacklog int       `yaml:"task_backlog"`
	Log         LogConfig `yaml:"log"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LLMConfig struct {
	Provider string   `yaml:"provider"`
	Model    string   `yaml:"model"`
	BaseURL  string   `yaml:"base_url"`
	CLIPath  string   `yaml:"cli_path"`
	CLIArgs  []string `yaml:"cli_args"`
	// APIKey is never read from the file; it comes from the environment
	// or the encrypted configuration table.
	APIKey string `yaml:"-"`
}

type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"-"`
}

type MemoryConfig struct {
	Backend        string `yaml:"backend"`
	IDMode         string `yaml:"id_mode"`
	Dedup          string `yaml:"dedup"`
	EmbeddingCache int    `yaml:"embedding_cache"`
}

type LogConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

// ValidationResult represents the outcome of Validate.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// DefaultDataDir returns ~/.dreamer.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dreamer"
	}
	return filepath.Join(home, ".dreamer")
}

// DefaultPath returns the config file location under the default data dir.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Server: ServerConfig{
			Addr:           ":8000",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		LLM: LLMConfig{
			Provider: "gemini",
		},
		Memory: MemoryConfig{
			Backend:        BackendChromem,
			IDMode:         "uuid",
			Dedup:          "none",
			EmbeddingCache: 1024,
		},
		Guard:       guard.DefaultPolicy,
		Workers:     4,
		TaskBacklog: 256,
	}
}

// Load reads path on top of the defaults. A missing file yields the
// defaults. Values from a .env file in the working directory are added to
// the environment without overriding variables that are already set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML config: %w", err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv fills API keys from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DREAMER_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if k := EnvKey(c.LLM.Provider); k != "" {
		c.LLM.APIKey = k
	}
	if k := EnvKey(c.EmbeddingProvider()); k != "" {
		c.Embedding.APIKey = k
	}
}

// EnvKey returns the API key for provider from the environment.
func EnvKey(provider string) string {
	name, ok := envKeys[strings.ToLower(provider)]
	if !ok {
		return ""
	}
	return os.Getenv(name)
}

// SecretKey is the configuration-table key holding provider's API key.
func SecretKey(provider string) string {
	return strings.ToLower(provider) + ".api_key"
}

// NeedsKey reports whether provider requires an API key.
func NeedsKey(provider string) bool {
	_, ok := envKeys[strings.ToLower(provider)]
	return ok
}

// EmbeddingProvider falls back to the chat provider when unset.
func (c *Config) EmbeddingProvider() string {
	if c.Embedding.Provider != "" {
		return c.Embedding.Provider
	}
	return c.LLM.Provider
}

// FactsDB is the SQLite database path.
func (c *Config) FactsDB() string {
	return filepath.Join(c.DataDir, "facts.db")
}

// ChromaDir is the chromem persistence directory.
func (c *Config) ChromaDir() string {
	return filepath.Join(c.DataDir, "chroma")
}

// Validate checks the configuration for unknown settings and missing keys.
func (c *Config) Validate() ValidationResult {
	res := ValidationResult{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}
	fail := func(format string, args ...any) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}

	if !knownProviders[strings.ToLower(c.LLM.Provider)] {
		fail("unknown llm provider %q", c.LLM.Provider)
	}
	if p := strings.ToLower(c.EmbeddingProvider()); !knownProviders[p] || !embeds[p] {
		fail("unsupported embedding provider %q", c.EmbeddingProvider())
	}

	switch c.Memory.Backend {
	case BackendChromem, BackendSQLite:
	default:
		fail("unknown memory backend %q", c.Memory.Backend)
	}
	switch c.Memory.IDMode {
	case "uuid", "count":
	default:
		fail("unknown memory id_mode %q", c.Memory.IDMode)
	}
	switch c.Memory.Dedup {
	case "none", "exact", "":
	default:
		fail("unknown memory dedup policy %q", c.Memory.Dedup)
	}

	if c.Workers <= 0 {
		res.Warnings = append(res.Warnings, "workers must be positive; using 4")
	}
	if c.TaskBacklog <= 0 {
		res.Warnings = append(res.Warnings, "task_backlog must be positive; using 256")
	}
	if NeedsKey(c.LLM.Provider) && c.LLM.APIKey == "" {
		res.Warnings = append(res.Warnings, fmt.Sprintf("no API key for %s; LLM features will fail", c.LLM.Provider))
	}
	if c.Memory.IDMode == "count" {
		res.Warnings = append(res.Warnings, "id_mode count is only safe with a single writer process")
	}

	return res
}
