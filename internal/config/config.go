// Package config provides environment-driven configuration for mua.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Object store backends.
const (
	ObjectStoreLocal = "local"
	ObjectStoreGCS   = "gcs"
)

// Config holds all application configuration values.
type Config struct {
	DatabaseURL Secret
	DBMaxConns  int
	Port        string
	ListenHost  string
	MetricsPort string
	CORSOrigins []string
	APIKey      Secret
	LogLevel    string
	LogFormat   string

	OllamaURL           string
	OllamaAllowRemote   bool
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbedWorkers        int
	TaskWorkers         int
	TaskQueueSize       int

	CompletionBaseURL     string
	CompletionAPIKey      Secret
	CompletionModel       string
	CompletionTokenBudget int

	ProcessBatchSize   int
	ProcessMaxAttempts int
	ProcessStaleAfter  time.Duration
	ProcessorVersion   string

	ObjectStore    string
	GCSBucket      string
	LocalObjectDir string

	IntakeDir     string
	IntakeInclude []string
	IntakeExclude []string

	GCPProjectID          string
	DocumentAILocation    string
	DocumentAIProcessorID string
	SpeechLanguage        string
	FFmpegPath            string

	OTelEnabled     bool
	OTelEndpoint    string
	OTelInsecure    bool
	OTelSampleRatio float64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: Secret(envOrDefault("DATABASE_URL", "")),
		Port:        envOrDefault("PORT", "3040"),
		ListenHost:  envOrDefault("LISTEN_HOST", "127.0.0.1"),
		MetricsPort: envOrDefault("METRICS_PORT", "9091"),
		CORSOrigins: envList("CORS_ORIGINS", "http://localhost:3002"),
		APIKey:      Secret(envOrDefault("API_KEY", "")),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		LogFormat:   envOrDefault("LOG_FORMAT", "text"),

		OllamaURL:         envOrDefault("OLLAMA_URL", "http://localhost:11434"),
		OllamaAllowRemote: envBool("OLLAMA_ALLOW_REMOTE"),
		EmbeddingModel:    envOrDefault("EMBEDDING_MODEL", "qwen3-embedding:0.6b"),

		CompletionBaseURL: envOrDefault("COMPLETION_BASE_URL", "https://api.openai.com/v1"),
		CompletionAPIKey:  Secret(envOrDefault("COMPLETION_API_KEY", "")),
		CompletionModel:   envOrDefault("COMPLETION_MODEL", "gpt-4o-mini"),
		ProcessorVersion:  envOrDefault("PROCESSOR_VERSION", "enrich-v1"),

		ObjectStore:    strings.ToLower(envOrDefault("OBJECT_STORE", ObjectStoreLocal)),
		GCSBucket:      envOrDefault("GCS_BUCKET", ""),
		LocalObjectDir: envOrDefault("LOCAL_OBJECT_DIR", "./data/objects"),

		IntakeDir:     envOrDefault("INTAKE_DIR", "./data/intake"),
		IntakeInclude: envList("INTAKE_INCLUDE", ""),
		IntakeExclude: envList("INTAKE_EXCLUDE", ".*,*.tmp,*.part"),

		GCPProjectID:          envOrDefault("GCP_PROJECT_ID", ""),
		DocumentAILocation:    envOrDefault("DOCUMENTAI_LOCATION", "us"),
		DocumentAIProcessorID: envOrDefault("DOCUMENTAI_PROCESSOR_ID", ""),
		SpeechLanguage:        envOrDefault("SPEECH_LANGUAGE", "en-US"),
		FFmpegPath:            envOrDefault("FFMPEG_PATH", "ffmpeg"),

		OTelEnabled:  envBool("OTEL_ENABLED"),
		OTelEndpoint: envOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE"),
	}

	ints := []struct {
		key      string
		def      int
		min, max int
		dst      *int
	}{
		{"DB_MAX_CONNS", 11, 2, 200, &cfg.DBMaxConns},
		{"EMBEDDING_DIMENSIONS", 1024, 1, 4096, &cfg.EmbeddingDimensions},
		{"EMBED_WORKERS", 4, 1, 16, &cfg.EmbedWorkers},
		{"TASK_WORKERS", 4, 1, 64, &cfg.TaskWorkers},
		{"TASK_QUEUE_SIZE", 1000, 1, 100000, &cfg.TaskQueueSize},
		{"COMPLETION_TOKEN_BUDGET", 6000, 500, 200000, &cfg.CompletionTokenBudget},
		{"PROCESS_BATCH_SIZE", 25, 1, 1000, &cfg.ProcessBatchSize},
		{"PROCESS_MAX_ATTEMPTS", 8, 0, 100, &cfg.ProcessMaxAttempts},
	}

	for _, v := range ints {
		n, err := envInt(v.key, v.def, v.min, v.max)
		if err != nil {
			return nil, err
		}

		*v.dst = n
	}

	staleAfter, err := time.ParseDuration(envOrDefault("PROCESS_STALE_AFTER", "30m"))
	if err != nil || staleAfter < time.Minute {
		return nil, fmt.Errorf("PROCESS_STALE_AFTER must be a duration of at least 1m")
	}
	cfg.ProcessStaleAfter = staleAfter

	ratio, err := strconv.ParseFloat(envOrDefault("OTEL_SAMPLER_RATIO", "0.1"), 64)
	if err != nil {
		return nil, fmt.Errorf("OTEL_SAMPLER_RATIO must be a number: %w", err)
	}
	cfg.OTelSampleRatio = ratio

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

// MetricsAddr returns the metrics listen address in host:port format.
func (c *Config) MetricsAddr() string {
	return c.ListenHost + ":" + c.MetricsPort
}

// RequireAPIKey checks the settings only the HTTP server needs.
func (c *Config) RequireAPIKey() error {
	if c.APIKey.Value() == "" {
		return fmt.Errorf("API_KEY is required to serve the API")
	}

	if len(c.APIKey.Value()) < 16 {
		return fmt.Errorf("API_KEY must be at least 16 characters")
	}

	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}

	return fallback
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}

	return false
}

func envInt(key string, fallback, lo, hi int) (int, error) {
	n, err := strconv.Atoi(envOrDefault(key, strconv.Itoa(fallback)))
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", key, lo, hi)
	}

	return n, nil
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key, fallback string) []string {
	raw := envOrDefault(key, fallback)
	out := []string{}

	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
