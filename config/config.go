package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research system
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Search    SearchConfig    `mapstructure:"search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains LLM provider settings
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openrouter, openai
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// connection pool shared across concurrent workers
	MaxConnections       int           `mapstructure:"max_connections"`
	MaxIdleConnections   int           `mapstructure:"max_idle_connections"`
	IdleConnectionExpiry time.Duration `mapstructure:"idle_connection_expiry"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required (set DEEPRESEARCH_LLM_API_KEY)")
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model is required")
	}
	return nil
}

// AgentsConfig contains orchestrator and worker budgets
type AgentsConfig struct {
	MaxIterations       int           `mapstructure:"max_iterations"`        // single-agent mode
	WorkerMaxIterations int           `mapstructure:"worker_max_iterations"` // fan-out workers
	MaxTokens           int64         `mapstructure:"max_tokens"`
	WorkerTimeout       time.Duration `mapstructure:"worker_timeout"`
	CompressionTokens   int           `mapstructure:"compression_tokens"`
	PlanMaxRetries      int           `mapstructure:"plan_max_retries"`
	PlanRetryBackoff    time.Duration `mapstructure:"plan_retry_backoff"`
}

// SearchConfig contains web search provider settings
type SearchConfig struct {
	Provider     string        `mapstructure:"provider"` // brave, serper
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "", "brave":
		if strings.TrimSpace(s.BraveAPIKey) == "" {
			return fmt.Errorf("search.brave_api_key required for brave provider")
		}
	case "serper":
		if strings.TrimSpace(s.SerperAPIKey) == "" {
			return fmt.Errorf("search.serper_api_key required for serper provider")
		}
	default:
		return fmt.Errorf("unsupported search provider: %s", s.Provider)
	}
	return nil
}

// FetchConfig contains page fetching settings
type FetchConfig struct {
	Backend  string        `mapstructure:"backend"` // simple, chromedp
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxChars int           `mapstructure:"max_chars"`
}

// VaultConfig contains session store settings
type VaultConfig struct {
	Path string `mapstructure:"path"`
}

// TelemetryConfig contains metrics and cost tracking settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// Validate checks the parts of the config that cannot have sane defaults
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	return nil
}

// LoadConfig loads config from file, falling back to env vars and defaults.
// A missing config file is not an error; a missing API key is.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)

	if path == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(exe))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("DEEPRESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // read in environment variables that match (DEEPRESEARCH_*)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")

	v.SetDefault("server.address", ":8080")

	v.SetDefault("llm.provider", "openrouter")
	v.SetDefault("llm.api_key", "") // registers the key so DEEPRESEARCH_LLM_API_KEY binds
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "alibaba/tongyi-deepresearch-30b-a3b")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.max_connections", 100)
	v.SetDefault("llm.max_idle_connections", 50)
	v.SetDefault("llm.idle_connection_expiry", 30*time.Second)

	v.SetDefault("agents.max_iterations", 20)
	v.SetDefault("agents.worker_max_iterations", 15)
	v.SetDefault("agents.max_tokens", int64(50_000))
	v.SetDefault("agents.worker_timeout", 30*time.Minute)
	v.SetDefault("agents.compression_tokens", 2000)
	v.SetDefault("agents.plan_max_retries", 3)
	v.SetDefault("agents.plan_retry_backoff", 2*time.Second)

	v.SetDefault("search.provider", "brave")
	v.SetDefault("search.brave_api_key", "")
	v.SetDefault("search.serper_api_key", "")
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.timeout", 30*time.Second)

	v.SetDefault("fetch.backend", "simple")
	v.SetDefault("fetch.timeout", 60*time.Second)
	v.SetDefault("fetch.max_chars", 10_000)

	v.SetDefault("vault.path", "outputs/vault")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.cost_tracking", true)
}
