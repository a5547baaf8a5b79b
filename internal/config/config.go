// Package config loads the research engine's runtime configuration from a
// YAML file overlaid with environment variables, following the loader/types
// split used by the pack's config package.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// ModelsConfig names the LLM/embedding models used by the tool layer (§6).
type ModelsConfig struct {
	ReasoningModel string `mapstructure:"reasoning_model"` // planner, reflect
	InstructModel  string `mapstructure:"instruct_model"`  // generate, summarize, finalize
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// VectorStoreConfig addresses the outbound vector store (§6).
type VectorStoreConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	EmbeddingDim  int    `mapstructure:"embedding_dim"`
	APIKey        string `mapstructure:"api_key"`
	UseTLS        bool   `mapstructure:"use_tls"`
}

// WebSearchConfig addresses the outbound web search provider (§6).
type WebSearchConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

// LimitsConfig holds the tunable bounds from §6.
type LimitsConfig struct {
	ReflectionLimit       int `mapstructure:"reflection_limit"`
	QueriesPerPass        int `mapstructure:"queries_per_pass"`
	WebTopK               int `mapstructure:"web_topk"`
	RAGTopK               int `mapstructure:"rag_topk"`
	SummaryCharLimit      int `mapstructure:"summary_char_limit"`
	UDFMaxSteps           int `mapstructure:"udf_max_steps"`
	RequestDeadlineSecs   int `mapstructure:"request_deadline_secs"`
	KeepaliveIntervalSecs int `mapstructure:"keepalive_interval_secs"`
}

// TimeoutsConfig holds the per-call timeouts from §5.
type TimeoutsConfig struct {
	LLMSecs         int `mapstructure:"llm_secs"`
	EmbeddingsSecs  int `mapstructure:"embeddings_secs"`
	VectorStoreSecs int `mapstructure:"vector_store_secs"`
	WebSearchSecs   int `mapstructure:"web_search_secs"`
}

// LogConfig configures the zap logger (see internal/logging).
type LogConfig struct {
	Level         string `mapstructure:"level"`
	FilePath      string `mapstructure:"file_path"`
	MaxSizeMB     int    `mapstructure:"max_size_mb"`
	MaxBackups    int    `mapstructure:"max_backups"`
	MaxAgeDays    int    `mapstructure:"max_age_days"`
	Compress      bool   `mapstructure:"compress"`
	Env           string `mapstructure:"env"`
	EnableConsole bool   `mapstructure:"enable_console"`
}

// ServerConfig configures the HTTP facade.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Config is the root configuration struct, mirroring every option recognized
// in spec §6.
type Config struct {
	Server      ServerConfig       `mapstructure:"server"`
	Log         LogConfig          `mapstructure:"log"`
	Models      ModelsConfig       `mapstructure:"models"`
	VectorStore VectorStoreConfig  `mapstructure:"vector_store"`
	WebSearch   WebSearchConfig    `mapstructure:"web_search"`
	Limits      LimitsConfig       `mapstructure:"limits"`
	Timeouts    TimeoutsConfig     `mapstructure:"timeouts"`
}

var (
	current Config
	mu      sync.RWMutex
)

func defaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.env", "development")
	v.SetDefault("log.enable_console", true)
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("models.reasoning_model", "gpt-4o")
	v.SetDefault("models.instruct_model", "gpt-4o-mini")
	v.SetDefault("models.embedding_model", "text-embedding-3-small")

	v.SetDefault("vector_store.host", "localhost")
	v.SetDefault("vector_store.port", 6334)
	v.SetDefault("vector_store.embedding_dim", 1024)

	v.SetDefault("limits.reflection_limit", 1)
	v.SetDefault("limits.queries_per_pass", 3)
	v.SetDefault("limits.web_topk", 5)
	v.SetDefault("limits.rag_topk", 4)
	v.SetDefault("limits.summary_char_limit", 12000)
	v.SetDefault("limits.udf_max_steps", 12)
	v.SetDefault("limits.request_deadline_secs", 300)
	v.SetDefault("limits.keepalive_interval_secs", 15)

	v.SetDefault("timeouts.llm_secs", 60)
	v.SetDefault("timeouts.embeddings_secs", 10)
	v.SetDefault("timeouts.vector_store_secs", 10)
	v.SetDefault("timeouts.web_search_secs", 15)
}

// Load reads configPath (if non-empty) or searches "." and "./config" for a
// "config.yaml", overlays environment variables prefixed RESEARCH_ (with "."
// replaced by "_"), and stores the result as the process-wide config.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	defaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("research")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if configPath != "" {
			return nil, fmt.Errorf("config: failed to read %s: %w", configPath, err)
		}
		// No file found at the default search paths: defaults + env only.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return &cfg, nil
}

// Get returns the last config loaded via Load, or zero-value defaults if
// Load was never called (useful in tests that construct components directly).
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	cp := current
	return &cp
}
