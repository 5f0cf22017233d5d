package config

import (
	"os"
	"reflect"
	"testing"

	"github.com/pricefeed/backend/internal/normalizer"
)

func TestLoad(t *testing.T) {
	// Clean up environment before tests
	cleanupEnv := func() {
		os.Unsetenv("PRICEFEED_SERVER_PORT")
		os.Unsetenv("PRICEFEED_SERVER_ENVIRONMENT")
		os.Unsetenv("PRICEFEED_MAPPING_FUZZY_THRESHOLD")
		os.Unsetenv("PRICEFEED_MAPPING_MINIMUM_CONFIDENCE")
		os.Unsetenv("PRICEFEED_PIPELINE_BATCH_SIZE")
		os.Unsetenv("PRICEFEED_STORE_TYPE")
		os.Unsetenv("PRICEFEED_STORE_REDIS_URL")
		os.Unsetenv("PRICEFEED_STORE_SQLITE_PATH")
		os.Unsetenv("PRICEFEED_RATELIMIT_PER_IP")
		os.Unsetenv("PRICEFEED_LOG_LEVEL")
	}

	t.Run("loads with defaults when no env vars set", func(t *testing.T) {
		cleanupEnv()
		defer cleanupEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		// Check defaults
		if cfg.Server.Port != "8080" {
			t.Errorf("Server.Port = %s, want 8080", cfg.Server.Port)
		}
		if cfg.Server.Environment != "development" {
			t.Errorf("Server.Environment = %s, want development", cfg.Server.Environment)
		}
		if cfg.Mapping.FuzzyThreshold != 0.82 {
			t.Errorf("Mapping.FuzzyThreshold = %v, want 0.82", cfg.Mapping.FuzzyThreshold)
		}
		if cfg.Mapping.MinimumConfidence != 0.70 {
			t.Errorf("Mapping.MinimumConfidence = %v, want 0.70", cfg.Mapping.MinimumConfidence)
		}
		if cfg.Mapping.MaxSuggestions != 5 {
			t.Errorf("Mapping.MaxSuggestions = %d, want 5", cfg.Mapping.MaxSuggestions)
		}
		if !cfg.Mapping.EnableLearning {
			t.Error("Mapping.EnableLearning = false, want true")
		}
		if cfg.Mapping.LearningThreshold != 3 {
			t.Errorf("Mapping.LearningThreshold = %d, want 3", cfg.Mapping.LearningThreshold)
		}
		if cfg.Pipeline.BatchSize != 1000 {
			t.Errorf("Pipeline.BatchSize = %d, want 1000", cfg.Pipeline.BatchSize)
		}
		if !cfg.Pipeline.MemoryCheckpoint {
			t.Error("Pipeline.MemoryCheckpoint = false, want true")
		}
		if cfg.Store.Type != "memory" {
			t.Errorf("Store.Type = %s, want memory", cfg.Store.Type)
		}
		if cfg.RateLimit.PerIP != 100 {
			t.Errorf("RateLimit.PerIP = %d, want 100", cfg.RateLimit.PerIP)
		}
		if cfg.Log.Level != "info" {
			t.Errorf("Log.Level = %s, want info", cfg.Log.Level)
		}
	})

	t.Run("loads custom values from environment variables", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("PRICEFEED_SERVER_PORT", "9090")
		os.Setenv("PRICEFEED_SERVER_ENVIRONMENT", "production")
		os.Setenv("PRICEFEED_MAPPING_FUZZY_THRESHOLD", "0.9")
		os.Setenv("PRICEFEED_PIPELINE_BATCH_SIZE", "250")
		os.Setenv("PRICEFEED_STORE_TYPE", "redis")
		os.Setenv("PRICEFEED_STORE_REDIS_URL", "redis://localhost:6379")
		os.Setenv("PRICEFEED_RATELIMIT_PER_IP", "200")
		os.Setenv("PRICEFEED_LOG_LEVEL", "debug")
		defer cleanupEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "9090" {
			t.Errorf("Server.Port = %s, want 9090", cfg.Server.Port)
		}
		if cfg.Server.Environment != "production" {
			t.Errorf("Server.Environment = %s, want production", cfg.Server.Environment)
		}
		if cfg.Mapping.FuzzyThreshold != 0.9 {
			t.Errorf("Mapping.FuzzyThreshold = %v, want 0.9", cfg.Mapping.FuzzyThreshold)
		}
		if cfg.Pipeline.BatchSize != 250 {
			t.Errorf("Pipeline.BatchSize = %d, want 250", cfg.Pipeline.BatchSize)
		}
		if cfg.Store.Type != "redis" {
			t.Errorf("Store.Type = %s, want redis", cfg.Store.Type)
		}
		if cfg.Store.RedisURL != "redis://localhost:6379" {
			t.Errorf("Store.RedisURL = %s, want redis://localhost:6379", cfg.Store.RedisURL)
		}
		if cfg.RateLimit.PerIP != 200 {
			t.Errorf("RateLimit.PerIP = %d, want 200", cfg.RateLimit.PerIP)
		}
		if cfg.Log.Level != "debug" {
			t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
		}
	})

	t.Run("fails validation for out of range threshold", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("PRICEFEED_MAPPING_MINIMUM_CONFIDENCE", "1.5")
		defer cleanupEnv()

		_, err := Load()
		if err == nil {
			t.Error("Load() error = nil, want error for minimum_confidence > 1")
		}
	})

	t.Run("fails validation for invalid store type", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("PRICEFEED_STORE_TYPE", "invalid")
		defer cleanupEnv()

		_, err := Load()
		if err == nil {
			t.Error("Load() error = nil, want error for invalid store type")
		}
	})

	t.Run("fails validation when redis URL missing for redis store", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("PRICEFEED_STORE_TYPE", "redis")
		defer cleanupEnv()

		_, err := Load()
		if err == nil {
			t.Error("Load() error = nil, want error for missing Redis URL")
		}
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("returns nil when .env file doesn't exist", func(t *testing.T) {
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)

		os.Chdir(t.TempDir())

		if err := loadEnvFile(); err != nil {
			t.Errorf("loadEnvFile() error = %v, want nil when file doesn't exist", err)
		}
	})

	t.Run("loads variables and skips comments", func(t *testing.T) {
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)

		os.Chdir(t.TempDir())

		envContent := `
# Comment line
TEST_PF_VAR_1=value1

TEST_PF_VAR_2=value2
# TEST_PF_COMMENTED=should_not_load
`
		if err := os.WriteFile(".env", []byte(envContent), 0644); err != nil {
			t.Fatalf("Failed to create test .env file: %v", err)
		}

		os.Unsetenv("TEST_PF_VAR_1")
		os.Unsetenv("TEST_PF_VAR_2")
		os.Unsetenv("TEST_PF_COMMENTED")
		defer func() {
			os.Unsetenv("TEST_PF_VAR_1")
			os.Unsetenv("TEST_PF_VAR_2")
		}()

		if err := loadEnvFile(); err != nil {
			t.Fatalf("loadEnvFile() error = %v, want nil", err)
		}

		if os.Getenv("TEST_PF_VAR_1") != "value1" {
			t.Errorf("TEST_PF_VAR_1 = %s, want value1", os.Getenv("TEST_PF_VAR_1"))
		}
		if os.Getenv("TEST_PF_VAR_2") != "value2" {
			t.Errorf("TEST_PF_VAR_2 = %s, want value2", os.Getenv("TEST_PF_VAR_2"))
		}
		if os.Getenv("TEST_PF_COMMENTED") != "" {
			t.Errorf("TEST_PF_COMMENTED should not be loaded from comment")
		}
	})

	t.Run("doesn't override existing environment variables", func(t *testing.T) {
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)

		os.Chdir(t.TempDir())

		os.Setenv("TEST_PF_OVERRIDE", "existing-value")
		defer os.Unsetenv("TEST_PF_OVERRIDE")

		if err := os.WriteFile(".env", []byte("TEST_PF_OVERRIDE=new-value"), 0644); err != nil {
			t.Fatalf("Failed to create test .env file: %v", err)
		}

		if err := loadEnvFile(); err != nil {
			t.Fatalf("loadEnvFile() error = %v, want nil", err)
		}

		if os.Getenv("TEST_PF_OVERRIDE") != "existing-value" {
			t.Errorf("TEST_PF_OVERRIDE = %s, want existing-value (should not override)", os.Getenv("TEST_PF_OVERRIDE"))
		}
	})
}

func validConfig() *Config {
	return &Config{
		Mapping: MappingConfig{
			FuzzyThreshold:    0.82,
			MinimumConfidence: 0.7,
			MaxSuggestions:    5,
			LearningThreshold: 3,
		},
		Pipeline: PipelineConfig{BatchSize: 1000},
		Store:    StoreConfig{Type: "memory"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"zero fuzzy threshold", func(c *Config) { c.Mapping.FuzzyThreshold = 0 }, true},
		{"minimum confidence above one", func(c *Config) { c.Mapping.MinimumConfidence = 1.2 }, true},
		{"no suggestions", func(c *Config) { c.Mapping.MaxSuggestions = 0 }, true},
		{"zero learning threshold", func(c *Config) { c.Mapping.LearningThreshold = 0 }, true},
		{"zero batch size", func(c *Config) { c.Pipeline.BatchSize = 0 }, true},
		{"negative parallelism", func(c *Config) { c.Pipeline.Parallelism = -1 }, true},
		{"negative rate limit", func(c *Config) { c.RateLimit.PerIP = -1 }, true},
		{"invalid store type", func(c *Config) { c.Store.Type = "postgres" }, true},
		{"sqlite with path", func(c *Config) { c.Store = StoreConfig{Type: "sqlite", SQLitePath: "x.db"} }, false},
		{"sqlite without path", func(c *Config) { c.Store = StoreConfig{Type: "sqlite"} }, true},
		{"redis with url", func(c *Config) { c.Store = StoreConfig{Type: "redis", RedisURL: "redis://localhost:6379"} }, false},
		{"redis without url", func(c *Config) { c.Store = StoreConfig{Type: "redis"} }, true},
		{"unknown shop currency", func(c *Config) {
			c.Shops = map[string]ShopConfig{"auchan": {Currency: "USD"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestShopConfigs(t *testing.T) {
	t.Run("no overrides returns built-in policy", func(t *testing.T) {
		cfg := validConfig()
		got, err := cfg.ShopConfigs()
		if err != nil {
			t.Fatalf("ShopConfigs() error = %v", err)
		}
		if !reflect.DeepEqual(got, normalizer.DefaultShopConfigs()) {
			t.Errorf("ShopConfigs() = %+v, want defaults", got)
		}
	})

	t.Run("overrides merge over defaults", func(t *testing.T) {
		off := false
		cfg := validConfig()
		cfg.Shops = map[string]ShopConfig{
			"Carrefour": {OverrideOther: &off, NormalizerVersion: "carrefour-v9"},
		}

		got, err := cfg.ShopConfigs()
		if err != nil {
			t.Fatalf("ShopConfigs() error = %v", err)
		}

		def := normalizer.DefaultCarrefourConfig()
		c := got[normalizer.CarrefourShop]
		if c.OverrideOther {
			t.Error("OverrideOther = true, want false")
		}
		if c.Version != "carrefour-v9" {
			t.Errorf("Version = %s, want carrefour-v9", c.Version)
		}
		if c.Currency != def.Currency {
			t.Errorf("Currency = %s, want %s", c.Currency, def.Currency)
		}
		if !reflect.DeepEqual(c.DefaultPath, def.DefaultPath) {
			t.Errorf("DefaultPath = %v, want %v", c.DefaultPath, def.DefaultPath)
		}
		if !reflect.DeepEqual(got[normalizer.AuchanShop], normalizer.DefaultAuchanConfig()) {
			t.Errorf("auchan config changed: %+v", got[normalizer.AuchanShop])
		}
	})
}
