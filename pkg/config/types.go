package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Environment   string              `mapstructure:"environment"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Processing    ProcessingConfig    `mapstructure:"processing"`
	Chunking      ChunkingConfig      `mapstructure:"chunking"`
	Recognition   RecognitionConfig   `mapstructure:"recognition"`
	Summarization SummarizationConfig `mapstructure:"summarization"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Cleanup       CleanupConfig       `mapstructure:"cleanup"`
	RateLimiting  RateLimitConfig     `mapstructure:"rate_limiting"`
	Security      SecurityConfig      `mapstructure:"security"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	MaxUploadSize   int64         `mapstructure:"max_upload_size"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path                  string        `mapstructure:"path"`
	MaxConnections        int           `mapstructure:"max_connections"`
	MaxIdleConnections    int           `mapstructure:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
	EnableWAL             bool          `mapstructure:"enable_wal"`
	LogQueries            bool          `mapstructure:"log_queries"`
}

// ProcessingConfig contains job processing settings
type ProcessingConfig struct {
	Workers           int           `mapstructure:"workers"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	MaxParallelChunks int           `mapstructure:"max_parallel_chunks"`
	FFmpegPath        string        `mapstructure:"ffmpeg_path"`
	FFprobePath       string        `mapstructure:"ffprobe_path"`
	FFmpegTimeout     time.Duration `mapstructure:"ffmpeg_timeout"`
}

// ChunkingConfig controls how recordings are split before recognition
type ChunkingConfig struct {
	MaxChunkDuration   time.Duration `mapstructure:"max_chunk_duration"`
	MinChunkDuration   time.Duration `mapstructure:"min_chunk_duration"`
	SilenceThresholdDB float64       `mapstructure:"silence_threshold_db"`
	MinSilenceDuration time.Duration `mapstructure:"min_silence_duration"`
}

// RecognitionConfig contains speech recognition settings
type RecognitionConfig struct {
	Provider          string        `mapstructure:"provider"`
	ProjectID         string        `mapstructure:"project_id"`
	Credentials       string        `mapstructure:"credentials"`
	Endpoint          string        `mapstructure:"endpoint"`
	Model             string        `mapstructure:"model"`
	MinSpeakers       int           `mapstructure:"min_speakers"`
	MaxSpeakers       int           `mapstructure:"max_speakers"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	OperationTimeout  time.Duration `mapstructure:"operation_timeout"`
}

// SummarizationConfig contains summary provider settings
type SummarizationConfig struct {
	Provider      string        `mapstructure:"provider"`
	OpenAIAPIKey  string        `mapstructure:"openai_api_key"`
	OpenAIModel   string        `mapstructure:"openai_model"`
	GeminiAPIKey  string        `mapstructure:"gemini_api_key"`
	GeminiModel   string        `mapstructure:"gemini_model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FallbackBasic bool          `mapstructure:"fallback_basic"`
}

// StorageConfig contains blob and temp storage settings
type StorageConfig struct {
	Backend    string        `mapstructure:"backend"`
	BaseDir    string        `mapstructure:"base_dir"`
	TempDir    string        `mapstructure:"temp_dir"`
	MaxTempAge time.Duration `mapstructure:"max_temp_age"`
	S3         S3Config      `mapstructure:"s3"`
}

// S3Config contains S3-compatible object storage settings
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// CleanupConfig contains retention settings for the cleanup service
type CleanupConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	ChunkRetention time.Duration `mapstructure:"chunk_retention"`
	ErrorRetention time.Duration `mapstructure:"error_retention"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	EnableCORS  bool     `mapstructure:"enable_cors"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
