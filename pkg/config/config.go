package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"github.com/spf13/viper"
)

var (
	once    sync.Once
	initErr error
)

// Init initializes the configuration system
// This should be called once at application startup
func Init() error {
	once.Do(func() {
		// A local .env is optional; real environment variables win
		_ = godotenv.Load()

		setDefaults()

		viper.SetEnvPrefix("ECHONOTE")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		configPath := filepath.Clean("./config/settings.yaml")
		viper.SetConfigFile(configPath)

		if err := viper.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				initErr = fmt.Errorf("error reading config file %s: %w", configPath, err)
				return
			}
		}

		if err := validate(); err != nil {
			initErr = fmt.Errorf("invalid configuration: %w", err)
		}
	})

	return initErr
}

// Reset clears viper state so Init can run again. Tests only.
func Reset() {
	viper.Reset()
	once = sync.Once{}
	initErr = nil
}

// GetConfig returns the current configuration as a struct
// Init() must be called before using this
func GetConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// GetString returns a string config value
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetDuration returns a time.Duration config value
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// validate validates the configuration using Viper values
func validate() error {
	port := GetInt("server.port")
	if port <= 0 || port > 65535 {
		return apperrors.ConfigError("server.port", fmt.Sprintf("invalid server port: %d", port))
	}

	if err := validateAPIKeys(); err != nil {
		return err
	}

	if GetInt("processing.workers") <= 0 {
		viper.Set("processing.workers", 2)
	}
	if GetInt("processing.max_parallel_chunks") <= 0 {
		viper.Set("processing.max_parallel_chunks", 4)
	}
	if GetInt("recognition.max_attempts") <= 0 {
		viper.Set("recognition.max_attempts", 3)
	}
	if GetDuration("chunking.max_chunk_duration") <= 0 {
		viper.Set("chunking.max_chunk_duration", 5*time.Minute)
	}

	return nil
}

// validateAPIKeys validates that provider credentials are not placeholder values
func validateAPIKeys() error {
	env := GetString("environment")
	isProduction := env == "production" || env == "prod"

	placeholders := []string{
		"YOUR_KEY_HERE",
		"YOUR_API_KEY",
		"changeme",
		"CHANGEME",
		"",
	}

	check := func(key, label string) error {
		value := GetString(key)
		for _, placeholder := range placeholders {
			if value == placeholder {
				if isProduction {
					return apperrors.ConfigError(key, fmt.Sprintf("%s cannot use a placeholder value in production", label))
				}
				fmt.Printf("Warning: %s is using a placeholder value\n", label)
				break
			}
		}
		return nil
	}

	switch GetString("summarization.provider") {
	case "openai":
		if err := check("summarization.openai_api_key", "OpenAI API key"); err != nil {
			return err
		}
	case "gemini":
		if err := check("summarization.gemini_api_key", "Gemini API key"); err != nil {
			return err
		}
	}

	if GetString("storage.backend") == "s3" {
		if err := check("storage.s3.secret_access_key", "S3 secret access key"); err != nil {
			return err
		}
	}

	return nil
}

// Validate validates a Config struct and fills in safe values for
// out-of-range tuning knobs.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return apperrors.ConfigError("server.port", fmt.Sprintf("invalid server port: %d", c.Server.Port))
	}

	if c.Processing.Workers <= 0 {
		c.Processing.Workers = 2
	}
	if c.Processing.MaxParallelChunks <= 0 {
		c.Processing.MaxParallelChunks = 4
	}
	if c.Recognition.MaxAttempts <= 0 {
		c.Recognition.MaxAttempts = 3
	}
	if c.Chunking.MaxChunkDuration <= 0 {
		c.Chunking.MaxChunkDuration = 5 * time.Minute
	}
	if c.Chunking.MinChunkDuration < 0 || c.Chunking.MinChunkDuration >= c.Chunking.MaxChunkDuration {
		return apperrors.ConfigError("chunking.min_chunk_duration", fmt.Sprintf("%s must be in [0, %s)",
			c.Chunking.MinChunkDuration, c.Chunking.MaxChunkDuration))
	}

	switch c.Summarization.Provider {
	case "", "openai", "gemini", "basic":
	default:
		return apperrors.ConfigError("summarization.provider", fmt.Sprintf("unsupported provider %q", c.Summarization.Provider))
	}

	switch c.Storage.Backend {
	case "", "filesystem", "s3":
	default:
		return apperrors.ConfigError("storage.backend", fmt.Sprintf("unsupported backend %q", c.Storage.Backend))
	}

	if c.Storage.Backend == "s3" && c.Storage.S3.Bucket == "" {
		return apperrors.ConfigError("storage.s3.bucket", "required for the s3 backend")
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("environment", "development")

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 60*time.Second)
	viper.SetDefault("server.write_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.max_header_bytes", 1048576)
	viper.SetDefault("server.max_upload_size", 524288000)

	// Database defaults
	viper.SetDefault("database.path", "./data/echonote.db")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.max_idle_connections", 5)
	viper.SetDefault("database.connection_max_lifetime", 30*time.Minute)
	viper.SetDefault("database.enable_wal", true)
	viper.SetDefault("database.log_queries", false)

	// Processing defaults
	viper.SetDefault("processing.workers", 2)
	viper.SetDefault("processing.poll_interval", 2*time.Second)
	viper.SetDefault("processing.job_timeout", 2*time.Hour)
	viper.SetDefault("processing.max_parallel_chunks", 4)
	viper.SetDefault("processing.ffmpeg_path", "ffmpeg")
	viper.SetDefault("processing.ffprobe_path", "ffprobe")
	viper.SetDefault("processing.ffmpeg_timeout", 5*time.Minute)

	// Chunking defaults
	viper.SetDefault("chunking.max_chunk_duration", 5*time.Minute)
	viper.SetDefault("chunking.min_chunk_duration", 30*time.Second)
	viper.SetDefault("chunking.silence_threshold_db", -35.0)
	viper.SetDefault("chunking.min_silence_duration", time.Second)

	// Recognition defaults
	viper.SetDefault("recognition.provider", "google")
	viper.SetDefault("recognition.endpoint", "https://speech.googleapis.com/v1")
	viper.SetDefault("recognition.model", "video")
	viper.SetDefault("recognition.min_speakers", 1)
	viper.SetDefault("recognition.max_speakers", 10)
	viper.SetDefault("recognition.max_attempts", 3)
	viper.SetDefault("recognition.initial_backoff", 2*time.Second)
	viper.SetDefault("recognition.max_backoff", 30*time.Second)
	viper.SetDefault("recognition.requests_per_second", 5.0)
	viper.SetDefault("recognition.poll_interval", 5*time.Second)
	viper.SetDefault("recognition.operation_timeout", 15*time.Minute)

	// Summarization defaults
	viper.SetDefault("summarization.provider", "gemini")
	viper.SetDefault("summarization.openai_model", "gpt-4o-mini")
	viper.SetDefault("summarization.gemini_model", "gemini-2.0-flash")
	viper.SetDefault("summarization.timeout", 2*time.Minute)
	viper.SetDefault("summarization.fallback_basic", false)

	// Storage defaults
	viper.SetDefault("storage.backend", "filesystem")
	viper.SetDefault("storage.base_dir", "./data/audio")
	viper.SetDefault("storage.temp_dir", "./tmp")
	viper.SetDefault("storage.max_temp_age", 24*time.Hour)
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.use_path_style", false)

	// Cleanup defaults
	viper.SetDefault("cleanup.interval", time.Hour)
	viper.SetDefault("cleanup.chunk_retention", time.Hour)
	viper.SetDefault("cleanup.error_retention", 7*24*time.Hour)

	// Rate limiting defaults
	viper.SetDefault("rate_limiting.enabled", true)
	viper.SetDefault("rate_limiting.requests_per_minute", 120)
	viper.SetDefault("rate_limiting.burst", 20)

	// Security defaults
	viper.SetDefault("security.enable_cors", true)
	viper.SetDefault("security.cors_origins", []string{"*"})

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}
