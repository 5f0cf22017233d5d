package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pricefeed/backend/internal/normalizer"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Mapping   MappingConfig
	Pipeline  PipelineConfig
	Store     StoreConfig
	Shops     map[string]ShopConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute, 0 disables
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// MappingConfig holds category mapping engine configuration
type MappingConfig struct {
	FuzzyThreshold    float64 `mapstructure:"fuzzy_threshold"`
	MinimumConfidence float64 `mapstructure:"minimum_confidence"`
	MaxSuggestions    int     `mapstructure:"max_suggestions"`
	EnableLearning    bool    `mapstructure:"enable_learning"`
	LearningThreshold int64   `mapstructure:"learning_threshold"`
	SampleCap         int     `mapstructure:"sample_cap"`
	CacheSize         int     `mapstructure:"cache_size"`
	RulesFile         string  `mapstructure:"rules_file"`
}

// PipelineConfig holds batch orchestrator configuration
type PipelineConfig struct {
	BatchSize        int  `mapstructure:"batch_size"`
	MemoryCheckpoint bool `mapstructure:"memory_checkpoint"`
	Parallelism      int  `mapstructure:"parallelism"`
}

// StoreConfig holds rule store configuration
type StoreConfig struct {
	Type        string `mapstructure:"type"` // "memory", "sqlite" or "redis"
	SQLitePath  string `mapstructure:"sqlite_path"`
	RedisURL    string `mapstructure:"redis_url"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

// ShopConfig overrides the built-in policy of one retailer. Unset fields
// keep the built-in value.
type ShopConfig struct {
	OverrideOther     *bool    `mapstructure:"override_other"`
	DefaultPath       []string `mapstructure:"default_path"`
	Currency          string   `mapstructure:"currency"`
	NormalizerVersion string   `mapstructure:"normalizer_version"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricefeed/")

	// Environment variable settings: PRICEFEED_MAPPING_FUZZY_THRESHOLD -> mapping.fuzzy_threshold
	v.SetEnvPrefix("PRICEFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads .env from the working directory when present.
// Variables already set in the environment win.
func loadEnvFile() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading .env file: %w", err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.max_body_bytes", 64<<20)

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	// Mapping defaults
	v.SetDefault("mapping.fuzzy_threshold", 0.82)
	v.SetDefault("mapping.minimum_confidence", 0.70)
	v.SetDefault("mapping.max_suggestions", 5)
	v.SetDefault("mapping.enable_learning", true)
	v.SetDefault("mapping.learning_threshold", 3)
	v.SetDefault("mapping.sample_cap", 5)
	v.SetDefault("mapping.cache_size", 2048)
	v.SetDefault("mapping.rules_file", "")

	// Pipeline defaults
	v.SetDefault("pipeline.batch_size", 1000)
	v.SetDefault("pipeline.memory_checkpoint", true)
	v.SetDefault("pipeline.parallelism", 0)

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.sqlite_path", "pricefeed.db")
	v.SetDefault("store.redis_url", "")
	v.SetDefault("store.redis_prefix", "pricefeed")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Mapping.FuzzyThreshold <= 0 || config.Mapping.FuzzyThreshold > 1 {
		return fmt.Errorf("mapping.fuzzy_threshold must be in (0,1], got: %v", config.Mapping.FuzzyThreshold)
	}
	if config.Mapping.MinimumConfidence <= 0 || config.Mapping.MinimumConfidence > 1 {
		return fmt.Errorf("mapping.minimum_confidence must be in (0,1], got: %v", config.Mapping.MinimumConfidence)
	}
	if config.Mapping.MaxSuggestions < 1 {
		return fmt.Errorf("mapping.max_suggestions must be positive, got: %d", config.Mapping.MaxSuggestions)
	}
	if config.Mapping.LearningThreshold < 1 {
		return fmt.Errorf("mapping.learning_threshold must be positive, got: %d", config.Mapping.LearningThreshold)
	}

	if config.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got: %d", config.Pipeline.BatchSize)
	}
	if config.Pipeline.Parallelism < 0 {
		return fmt.Errorf("pipeline.parallelism must not be negative, got: %d", config.Pipeline.Parallelism)
	}

	if config.RateLimit.PerIP < 0 {
		return fmt.Errorf("ratelimit.per_ip must not be negative, got: %d", config.RateLimit.PerIP)
	}

	switch config.Store.Type {
	case "memory":
	case "sqlite":
		if config.Store.SQLitePath == "" {
			return fmt.Errorf("SQLite path is required when store type is 'sqlite'")
		}
	case "redis":
		if config.Store.RedisURL == "" {
			return fmt.Errorf("Redis URL is required when store type is 'redis'")
		}
	default:
		return fmt.Errorf("store type must be 'memory', 'sqlite' or 'redis', got: %s", config.Store.Type)
	}

	for id, shop := range config.Shops {
		if shop.Currency != "" && shop.Currency != "RON" && shop.Currency != "EUR" {
			return fmt.Errorf("shops.%s.currency must be RON or EUR, got: %s", id, shop.Currency)
		}
	}

	return nil
}

// ShopConfigs returns the per-shop normalizer policy: the built-in defaults
// with configured values merged over them
func (c *Config) ShopConfigs() (map[string]normalizer.ShopConfig, error) {
	out := normalizer.DefaultShopConfigs()
	for id, s := range c.Shops {
		id = strings.ToLower(strings.TrimSpace(id))
		merged := out[id]
		override := normalizer.ShopConfig{
			DefaultPath: s.DefaultPath,
			Currency:    s.Currency,
			Version:     s.NormalizerVersion,
		}
		if err := mergo.Merge(&merged, override, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging shop %s config: %w", id, err)
		}
		// mergo cannot tell an explicit false from unset
		if s.OverrideOther != nil {
			merged.OverrideOther = *s.OverrideOther
		}
		out[id] = merged
	}
	return out, nil
}
