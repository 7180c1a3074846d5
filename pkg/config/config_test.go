package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/killallgit/echonote-api/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T)
		wantErr bool
		check   func(t *testing.T)
	}{
		{
			name: "load from settings.yaml",
			setup: func(t *testing.T) {
				content := `
server:
  host: "127.0.0.1"
  port: 8181
chunking:
  max_chunk_duration: 4m
`
				require.NoError(t, os.MkdirAll("config", 0755))
				require.NoError(t, os.WriteFile(filepath.Join("config", "settings.yaml"), []byte(content), 0644))
			},
			check: func(t *testing.T) {
				assert.Equal(t, 8181, GetInt("server.port"))
				assert.Equal(t, 4*time.Minute, GetDuration("chunking.max_chunk_duration"))
			},
		},
		{
			name: "environment variable override",
			setup: func(t *testing.T) {
				t.Setenv("ECHONOTE_SERVER_PORT", "9090")
				t.Setenv("ECHONOTE_PROCESSING_MAX_PARALLEL_CHUNKS", "8")
			},
			check: func(t *testing.T) {
				assert.Equal(t, 9090, GetInt("server.port"))
				assert.Equal(t, 8, GetInt("processing.max_parallel_chunks"))
			},
		},
		{
			name:  "missing config file with defaults",
			setup: func(t *testing.T) {},
			check: func(t *testing.T) {
				assert.Equal(t, 8080, GetInt("server.port"))
				assert.Equal(t, 5*time.Minute, GetDuration("chunking.max_chunk_duration"))
				assert.Equal(t, 3, GetInt("recognition.max_attempts"))
				assert.Equal(t, "filesystem", GetString("storage.backend"))
			},
		},
		{
			name: "invalid port",
			setup: func(t *testing.T) {
				t.Setenv("ECHONOTE_SERVER_PORT", "70000")
			},
			wantErr: true,
		},
		{
			name: "placeholder key rejected in production",
			setup: func(t *testing.T) {
				t.Setenv("ECHONOTE_ENVIRONMENT", "production")
				t.Setenv("ECHONOTE_SUMMARIZATION_PROVIDER", "openai")
				t.Setenv("ECHONOTE_SUMMARIZATION_OPENAI_API_KEY", "changeme")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			Reset()
			defer Reset()
			tt.setup(t)

			err := Init()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t)
			}
		})
	}
}

func TestGetConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	Reset()
	defer Reset()

	require.NoError(t, Init())
	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Chunking.MaxChunkDuration)
	assert.Equal(t, 4, cfg.Processing.MaxParallelChunks)
	assert.Equal(t, "video", cfg.Recognition.Model)
	assert.Equal(t, 10, cfg.Recognition.MaxSpeakers)
	assert.Equal(t, "gemini", cfg.Summarization.Provider)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
		check   func(t *testing.T, c *Config)
	}{
		{
			name: "valid config",
			config: &Config{
				Server:   ServerConfig{Host: "localhost", Port: 8080},
				Chunking: ChunkingConfig{MaxChunkDuration: 5 * time.Minute},
			},
		},
		{
			name:    "invalid port",
			config:  &Config{Server: ServerConfig{Port: 0}},
			wantErr: true,
		},
		{
			name:   "zero values auto-corrected",
			config: &Config{Server: ServerConfig{Port: 8080}},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 2, c.Processing.Workers)
				assert.Equal(t, 4, c.Processing.MaxParallelChunks)
				assert.Equal(t, 3, c.Recognition.MaxAttempts)
				assert.Equal(t, 5*time.Minute, c.Chunking.MaxChunkDuration)
			},
		},
		{
			name: "min chunk not below max",
			config: &Config{
				Server:   ServerConfig{Port: 8080},
				Chunking: ChunkingConfig{MaxChunkDuration: time.Minute, MinChunkDuration: time.Minute},
			},
			wantErr: true,
		},
		{
			name: "unknown summarization provider",
			config: &Config{
				Server:        ServerConfig{Port: 8080},
				Summarization: SummarizationConfig{Provider: "claude"},
			},
			wantErr: true,
		},
		{
			name: "s3 without bucket",
			config: &Config{
				Server:  ServerConfig{Port: 8080},
				Storage: StorageConfig{Backend: "s3"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.True(t, apperrors.Is(err, apperrors.ErrCodeConfigInvalid), "got %v", err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, tt.config)
			}
		})
	}
}
