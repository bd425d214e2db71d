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

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	AI      AIConfig      `koanf:"ai"`
	Host    HostConfig    `koanf:"host"`
	Context ContextConfig `koanf:"context"`
	Store   StoreConfig   `koanf:"store"`
	Queue   QueueConfig   `koanf:"queue"`
	Log     LogConfig     `koanf:"log"`
}

type ServerConfig struct {
	Port      int      `koanf:"port"`
	APIKeys   []string `koanf:"api_keys"`
	JWTSecret string   `koanf:"jwt_secret"`
}

type AIConfig struct {
	Provider    string  `koanf:"provider"`
	APIKey      string  `koanf:"api_key"`
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
	// Small model used for intent classification; falls back to Model.
	ClassifierModel string `koanf:"classifier_model"`
	RatePerSecond   int    `koanf:"rate_per_second"`
	RateBurst       int    `koanf:"rate_burst"`
}

type HostConfig struct {
	Provider string `koanf:"provider"`
	Repo     string `koanf:"repo"`
	Token    string `koanf:"token"`
	BaseURL  string `koanf:"base_url"`
}

type ContextConfig struct {
	MaxFiles     int   `koanf:"max_files"`
	BudgetChars  int   `koanf:"budget_chars"`
	MaxFileBytes int64 `koanf:"max_file_bytes"`
	FetchWorkers int   `koanf:"fetch_workers"`
	ScanSecrets  bool  `koanf:"scan_secrets"`
}

type StoreConfig struct {
	Backend     string `koanf:"backend"` // file | postgres
	Dir         string `koanf:"dir"`
	DatabaseURL string `koanf:"database_url"`
	CacheSize   int    `koanf:"cache_size"`
}

type QueueConfig struct {
	Enabled    bool `koanf:"enabled"`
	MaxWorkers int  `koanf:"max_workers"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"server.port":            8811,
		"ai.provider":            "openai",
		"ai.model":               "gpt-4o",
		"ai.classifier_model":    "gpt-4o-mini",
		"ai.max_tokens":          4096,
		"ai.temperature":         0.2,
		"ai.rate_per_second":     1,
		"ai.rate_burst":          3,
		"host.provider":          "github",
		"context.max_files":      10,
		"context.budget_chars":   24000,
		"context.max_file_bytes": 51200,
		"context.fetch_workers":  4,
		"context.scan_secrets":   true,
		"store.backend":          "file",
		"store.dir":              "./csdata",
		"store.cache_size":       256,
		"queue.max_workers":      2,
		"log.level":              "info",
		"log.pretty":             true,
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		// Try to load from default locations
		defaultPaths := []string{"./csdata/changesmith.toml", "./changesmith.toml", "$HOME/.changesmith.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix CHANGESMITH_
	k.Load(env.Provider("CHANGESMITH_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "CHANGESMITH_")), "_", ".", -1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# Changesmith Configuration

[server]
port = 8811
# Plain keys or bcrypt hashes ($2a$...) both work.
api_keys = ["change-me"]
jwt_secret = "change-me-too"

[ai]
provider = "openai"
api_key = "your-api-key"
model = "gpt-4o"
classifier_model = "gpt-4o-mini"
max_tokens = 4096
temperature = 0.2

[host]
provider = "github"
repo = "owner/repo"
token = "your-host-token"

[context]
max_files = 10
budget_chars = 24000
max_file_bytes = 51200
scan_secrets = true

[store]
backend = "file"
dir = "./csdata"

[queue]
enabled = false
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration. A missing credential disables the
// dependent feature at startup instead of crashing mid-request, so this is
// called once and the errors are surfaced immediately.
func Validate(config *Config) error {
	if config.AI.Provider == "" {
		return fmt.Errorf("ai provider is required")
	}
	if config.AI.APIKey == "" && config.AI.Provider != "ollama" {
		return fmt.Errorf("ai api_key is required for provider %s", config.AI.Provider)
	}

	switch config.Host.Provider {
	case "github", "gitlab":
	case "":
		return fmt.Errorf("host provider is required")
	default:
		return fmt.Errorf("unsupported host provider %s", config.Host.Provider)
	}
	if config.Host.Repo == "" {
		return fmt.Errorf("host repo is required (owner/repo)")
	}
	if config.Host.Token == "" {
		return fmt.Errorf("host token is required")
	}

	if config.Store.Backend == "postgres" && config.Store.DatabaseURL == "" {
		return fmt.Errorf("store database_url is required for the postgres backend")
	}
	if config.Queue.Enabled && config.Store.DatabaseURL == "" {
		return fmt.Errorf("queue requires store database_url")
	}

	return nil
}
