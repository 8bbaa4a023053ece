// Package config loads the YAML configuration shared by the CLI commands.
package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = goerr.New("invalid configuration")

// Config is the root configuration document.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Chunk     ChunkConfig     `yaml:"chunk"`
	Recall    RecallConfig    `yaml:"recall"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Completer CompleterConfig `yaml:"completer"`
	Tools     ToolsConfig     `yaml:"tools"`
	Log       LogConfig       `yaml:"log"`
}

type StoreConfig struct {
	// Backend is one of sqlite, postgres, mongo, neo4j or memory.
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	DSN       string `yaml:"dsn"`
	Database  string `yaml:"database"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Name      string `yaml:"name"`
	Dimension int    `yaml:"dimension"`
	Metric    string `yaml:"metric"`
}

type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type RecallConfig struct {
	Limit       int     `yaml:"limit"`
	MaxDistance float64 `yaml:"max_distance"`
}

type EmbedderConfig struct {
	// Provider is one of hash, openai, ollama, gemini or fastembed.
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	CacheDir  string        `yaml:"cache_dir"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type CompleterConfig struct {
	// Provider is one of offline, openai, anthropic, gemini or ollama.
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

type ToolsConfig struct {
	UTCPProvidersFile string `yaml:"utcp_providers_file"`
	UTCPQuery         string `yaml:"utcp_query"`
	UTCPLimit         int    `yaml:"utcp_limit"`
	Workers           int    `yaml:"workers"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration that runs fully on-device.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend:   "sqlite",
			Path:      "recall.db",
			Name:      "memories",
			Dimension: 384,
			Metric:    "cosine",
		},
		Chunk:  ChunkConfig{Size: 1024, Overlap: 100},
		Recall: RecallConfig{Limit: 3},
		Embedder: EmbedderConfig{
			Provider:  "hash",
			CacheSize: 1024,
			CacheTTL:  10 * time.Minute,
		},
		Completer: CompleterConfig{Provider: "offline", MaxTokens: 1024},
		Tools:     ToolsConfig{UTCPLimit: 20, Workers: 4},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads path and overlays it on Default. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, goerr.Wrap(err, "failed to read config", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, goerr.Wrap(err, "failed to parse config", goerr.V("path", path))
	}
	return cfg, cfg.Validate()
}

var storeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,48}$`)

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case "sqlite", "postgres", "mongo", "neo4j", "memory":
	default:
		return goerr.Wrap(ErrInvalidConfig, "unknown store backend", goerr.V("backend", c.Store.Backend))
	}
	if !storeNamePattern.MatchString(c.Store.Name) {
		return goerr.Wrap(ErrInvalidConfig, "store name must match [A-Za-z0-9_]{1,48}", goerr.V("name", c.Store.Name))
	}
	if c.Store.Dimension <= 0 {
		return goerr.Wrap(ErrInvalidConfig, "store dimension must be positive", goerr.V("dimension", c.Store.Dimension))
	}
	switch c.Store.Metric {
	case "cosine", "euclidean":
	default:
		return goerr.Wrap(ErrInvalidConfig, "unknown distance metric", goerr.V("metric", c.Store.Metric))
	}
	if c.Chunk.Size <= 0 || c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return goerr.Wrap(ErrInvalidConfig, "chunk overlap must be in [0, size)",
			goerr.V("size", c.Chunk.Size), goerr.V("overlap", c.Chunk.Overlap))
	}
	if c.Recall.Limit <= 0 {
		return goerr.Wrap(ErrInvalidConfig, "recall limit must be positive", goerr.V("limit", c.Recall.Limit))
	}
	if c.Recall.MaxDistance < 0 {
		return goerr.Wrap(ErrInvalidConfig, "max distance cannot be negative", goerr.V("max_distance", c.Recall.MaxDistance))
	}
	switch c.Embedder.Provider {
	case "hash", "openai", "ollama", "gemini", "fastembed":
	default:
		return goerr.Wrap(ErrInvalidConfig, "unknown embedder provider", goerr.V("provider", c.Embedder.Provider))
	}
	switch c.Completer.Provider {
	case "offline", "openai", "anthropic", "gemini", "ollama":
	default:
		return goerr.Wrap(ErrInvalidConfig, "unknown completer provider", goerr.V("provider", c.Completer.Provider))
	}
	return nil
}
