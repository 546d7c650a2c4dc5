package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"
)

func (c *Config) validate() error {
	checks := []func() error{
		c.validateDatabase,
		c.validateNetwork,
		c.validateLogging,
		c.validateOllama,
		c.validateCompletion,
		c.validateCORS,
		c.validateObjectStore,
		c.validateIntake,
		c.validateTracing,
	}

	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.DatabaseURL.Value() == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	dbURL, err := url.Parse(c.DatabaseURL.Value())
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme must be postgres:// or postgresql://")
	}

	if dbURL.Hostname() == "" {
		return fmt.Errorf("DATABASE_URL must include a host")
	}

	dbHost := dbURL.Hostname()
	if !isLoopback(dbHost) && dbURL.Query().Get("sslmode") == "disable" {
		return fmt.Errorf("DATABASE_URL sslmode=disable is not allowed for non-local host %q", dbHost)
	}

	return nil
}

func (c *Config) validateNetwork() error {
	port, err := parsePort("PORT", c.Port)
	if err != nil {
		return err
	}

	// Loopback for local use; 0.0.0.0/:: when a container boundary guards the port.
	validHosts := map[string]bool{
		"127.0.0.1": true,
		"::1":       true,
		"localhost": true,
		"0.0.0.0":   true,
		"::":        true,
	}
	if !validHosts[c.ListenHost] {
		return fmt.Errorf("LISTEN_HOST must be a loopback address or 0.0.0.0/:: for containers (got %q)", c.ListenHost)
	}

	metricsPort, err := parsePort("METRICS_PORT", c.MetricsPort)
	if err != nil {
		return err
	}

	if metricsPort == port {
		return fmt.Errorf("METRICS_PORT must differ from PORT")
	}

	return nil
}

func parsePort(name, value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", name, err)
	}

	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%s must be between 1 and 65535", name)
	}

	return port, nil
}

func (c *Config) validateLogging() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be 'text' or 'json', got %q", c.LogFormat)
	}

	return nil
}

func (c *Config) validateOllama() error {
	ollamaURL, err := url.ParseRequestURI(c.OllamaURL)
	if err != nil {
		return fmt.Errorf("OLLAMA_URL is not a valid URL: %w", err)
	}

	if !isLoopback(ollamaURL.Hostname()) && !c.OllamaAllowRemote {
		return fmt.Errorf("OLLAMA_URL must point to localhost (set OLLAMA_ALLOW_REMOTE=true for distributed deployments)")
	}

	return nil
}

func (c *Config) validateCompletion() error {
	u, err := url.ParseRequestURI(c.CompletionBaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("COMPLETION_BASE_URL is not a valid URL")
	}

	if u.Scheme != "https" && !isLoopback(u.Hostname()) {
		return fmt.Errorf("COMPLETION_BASE_URL must use HTTPS for non-localhost hosts")
	}

	if strings.TrimSpace(c.CompletionModel) == "" {
		return fmt.Errorf("COMPLETION_MODEL must not be empty")
	}

	return nil
}

func (c *Config) validateCORS() error {
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return fmt.Errorf("CORS_ORIGINS must not contain wildcard '*'")
		}
		if strings.ContainsAny(origin, "*?[]") {
			return fmt.Errorf("CORS_ORIGINS must not contain glob characters (*?[]), got %q", origin)
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ORIGINS contains invalid origin %q (must have scheme and host)", origin)
		}
	}

	return nil
}

func (c *Config) validateObjectStore() error {
	switch c.ObjectStore {
	case ObjectStoreLocal:
		if c.LocalObjectDir == "" {
			return fmt.Errorf("LOCAL_OBJECT_DIR is required when OBJECT_STORE is local")
		}
	case ObjectStoreGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when OBJECT_STORE is gcs")
		}
	default:
		return fmt.Errorf("OBJECT_STORE must be 'local' or 'gcs', got %q", c.ObjectStore)
	}

	return nil
}

func (c *Config) validateIntake() error {
	filters := []struct {
		name     string
		patterns []string
	}{
		{"INTAKE_INCLUDE", c.IntakeInclude},
		{"INTAKE_EXCLUDE", c.IntakeExclude},
	}

	for _, f := range filters {
		for _, p := range f.patterns {
			if _, err := glob.Compile(p); err != nil {
				return fmt.Errorf("%s contains invalid pattern %q: %w", f.name, p, err)
			}
		}
	}

	if c.DocumentAIProcessorID != "" && c.GCPProjectID == "" {
		return fmt.Errorf("DOCUMENTAI_PROCESSOR_ID requires GCP_PROJECT_ID")
	}

	return nil
}

func (c *Config) validateTracing() error {
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLER_RATIO must be between 0 and 1")
	}

	return nil
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
