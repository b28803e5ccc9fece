// Package config loads engine configuration from the environment with
// an optional YAML file overlay, and wires up structured logging.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifies an embedding or LLM backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	// ProviderMock is the deterministic hash embedder, for tests and
	// fully offline runs.
	ProviderMock Provider = "mock"
)

// Config holds all configuration values.
type Config struct {
	// Storage
	DataDir string `yaml:"data_dir"`

	// Embedding (primary path)
	EmbedProvider  Provider      `yaml:"embed_provider"`
	EmbedModel     string        `yaml:"embed_model"`
	EmbedDimension int           `yaml:"embed_dimension"`
	EmbedTimeout   time.Duration `yaml:"embed_timeout"`

	// Embedding (local fallback path)
	FallbackModel     string `yaml:"fallback_model"`
	FallbackDimension int    `yaml:"fallback_dimension"`

	// Fallback latch: flip to the local model after this many failures
	// inside the window, for the remainder of the process lifetime.
	FailureThreshold int           `yaml:"failure_threshold"`
	FailureWindow    time.Duration `yaml:"failure_window"`

	// LLM (core-memory summarization, reranking)
	LLMProvider Provider      `yaml:"llm_provider"`
	LLMModel    string        `yaml:"llm_model"`
	ChatTimeout time.Duration `yaml:"chat_timeout"`

	// Provider credentials / endpoints
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OllamaHost      string `yaml:"ollama_host"`

	// Retrieval
	RerankEnabled bool `yaml:"rerank_enabled"`
	TopK          int  `yaml:"top_k"`

	// Context window
	MaxTurns       int `yaml:"max_turns"`
	ShortTermCap   int `yaml:"short_term_cap"`
	SummarizeEvery int `yaml:"summarize_every"`

	// Background work
	Workers int `yaml:"workers"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables, then overlays
// values from the YAML file named by CHATMEM_CONFIG if it exists.
func Load() (Config, error) {
	cfg := Config{
		DataDir: getEnv("CHATMEM_DATA_DIR", defaultDataDir()),

		EmbedProvider:  Provider(getEnv("CHATMEM_EMBED_PROVIDER", string(ProviderOllama))),
		EmbedModel:     getEnv("CHATMEM_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("CHATMEM_EMBED_DIMENSION", 384),
		EmbedTimeout:   getEnvDuration("CHATMEM_EMBED_TIMEOUT", 10*time.Second),

		FallbackModel:     getEnv("CHATMEM_FALLBACK_MODEL", "all-minilm:l6-v2"),
		FallbackDimension: getEnvInt("CHATMEM_FALLBACK_DIMENSION", 384),

		FailureThreshold: getEnvInt("CHATMEM_FAILURE_THRESHOLD", 3),
		FailureWindow:    getEnvDuration("CHATMEM_FAILURE_WINDOW", 30*time.Second),

		LLMProvider: Provider(getEnv("CHATMEM_LLM_PROVIDER", string(ProviderOllama))),
		LLMModel:    getEnv("CHATMEM_LLM_MODEL", "llama3.2"),
		ChatTimeout: getEnvDuration("CHATMEM_CHAT_TIMEOUT", 30*time.Second),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),

		RerankEnabled: getEnv("CHATMEM_RERANK", "false") == "true",
		TopK:          getEnvInt("CHATMEM_TOP_K", 5),

		MaxTurns:       getEnvInt("CHATMEM_MAX_TURNS", 20),
		ShortTermCap:   getEnvInt("CHATMEM_SHORT_TERM_CAP", 50),
		SummarizeEvery: getEnvInt("CHATMEM_SUMMARIZE_EVERY", 10),

		Workers: getEnvInt("CHATMEM_WORKERS", 4),

		LogFile:  getEnv("CHATMEM_LOG_FILE", ""),
		LogLevel: parseLogLevel(getEnv("CHATMEM_LOG_LEVEL", "INFO")),
	}

	if path := os.Getenv("CHATMEM_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports configuration errors that must be fatal at startup.
func (c Config) Validate() error {
	switch c.EmbedProvider {
	case ProviderOllama, ProviderMock:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("embed provider %q requires OPENAI_API_KEY", c.EmbedProvider)
		}
	default:
		return fmt.Errorf("unknown embed provider: %s", c.EmbedProvider)
	}

	switch c.LLMProvider {
	case ProviderOllama, ProviderMock:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("llm provider %q requires OPENAI_API_KEY", c.LLMProvider)
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("llm provider %q requires ANTHROPIC_API_KEY", c.LLMProvider)
		}
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLMProvider)
	}

	if c.EmbedDimension <= 0 {
		return fmt.Errorf("embed dimension must be positive, got %d", c.EmbedDimension)
	}
	if c.MaxTurns <= 0 {
		return fmt.Errorf("max turns must be positive, got %d", c.MaxTurns)
	}
	return nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var overlay struct {
		Config   `yaml:",inline"`
		LogLevel string `yaml:"log_level"`
	}
	overlay.Config = *c
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return err
	}
	*c = overlay.Config
	if overlay.LogLevel != "" {
		c.LogLevel = parseLogLevel(overlay.LogLevel)
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatmem"
	}
	return filepath.Join(home, ".chatmem")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
