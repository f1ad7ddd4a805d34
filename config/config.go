// Package config loads and validates configuration for the memory graph
// service: environment-variable driven by default (adapted from the
// teacher's EnvConfig loader), with an optional YAML overlay via
// github.com/spf13/viper for the extraction-provider block, which
// benefits from nested structure that flat env vars don't give cleanly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvConfig reads environment variables under an optional prefix.
type EnvConfig struct {
	prefix string
}

// NewEnvConfig creates a loader that reads PREFIX_KEY when prefix is set,
// or KEY directly when it is empty.
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{prefix: prefix}
}

func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix != "" {
		return ec.prefix + "_" + key
	}
	return key
}

// GetString returns the value for key, or defaultValue if unset.
func (ec *EnvConfig) GetString(key, defaultValue string) string {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		return value
	}
	return defaultValue
}

// MustGetString returns the value for key or panics if unset.
func (ec *EnvConfig) MustGetString(key string) string {
	fullKey := ec.buildKey(key)
	value := os.Getenv(fullKey)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s not set", fullKey))
	}
	return value
}

// GetInt returns the integer value for key, or defaultValue if unset or invalid.
func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// MustGetInt returns the integer value for key or panics if unset or invalid.
func (ec *EnvConfig) MustGetInt(key string) int {
	fullKey := ec.buildKey(key)
	value := os.Getenv(fullKey)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s not set", fullKey))
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		panic(fmt.Sprintf("environment variable %s is not a valid integer: %v", fullKey, err))
	}
	return parsed
}

// GetFloat returns the float value for key, or defaultValue if unset or invalid.
func (ec *EnvConfig) GetFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetBool returns the boolean value for key, or defaultValue if unset or invalid.
func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDuration returns the duration value for key, or defaultValue if unset or invalid.
func (ec *EnvConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetStringSlice returns a comma-separated list for key, or defaultValue if unset.
func (ec *EnvConfig) GetStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(ec.buildKey(key))
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// ServerConfig holds the HTTP server's listen and timeout settings.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       float64
}

// ServiceConfig holds service identity and log settings.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
	LogFormat   string
}

// GraphConfig holds the Neo4j connection used by C1.
type GraphConfig struct {
	URI               string
	Username          string
	Password          string
	Database          string
	MaxConnectionPool int
	ConnectTimeout    time.Duration
}

// OllamaConfig holds self-hosted extraction-provider settings (C5).
type OllamaConfig struct {
	BaseURL             string
	Model               string
	Timeout             time.Duration
	MaxRetries          int
	KeepAlive           string
	ContextWindowTokens int
}

// CloudProviderConfig holds a cloud extraction provider's connection settings.
type CloudProviderConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// ExtractionConfig holds the active extraction provider and fallback policy (C5-C7).
type ExtractionConfig struct {
	Provider      string
	AllowFallback bool
	Ollama        OllamaConfig
	OpenAI        CloudProviderConfig
	Anthropic     CloudProviderConfig
}

// CacheConfig holds the optional Redis search-result cache (C10).
type CacheConfig struct {
	Enabled bool
	URL     string
	TTL     time.Duration
}

// MediaConfig holds the optional S3 attachment-body resolver (C4).
type MediaConfig struct {
	Enabled bool
	Region  string
	Bucket  string
	Prefix  string
}

// AuthConfig holds JWT bearer-token validation settings for C11.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// CORSConfig holds allowed-origin settings for the HTTP API.
type CORSConfig struct {
	AllowedOrigins []string
}

// Config is the fully assembled service configuration.
type Config struct {
	Server     ServerConfig
	Service    ServiceConfig
	Graph      GraphConfig
	Extraction ExtractionConfig
	Cache      CacheConfig
	Media      MediaConfig
	Auth       AuthConfig
	CORS       CORSConfig
}

// Load assembles Config from environment variables, then applies an
// optional YAML overlay (read via viper) for the extraction-provider
// block when overlayPath is non-empty.
func Load(overlayPath string) (*Config, error) {
	env := NewEnvConfig("")

	cfg := &Config{
		Server: ServerConfig{
			Port:            env.GetInt("PORT", 8080),
			Host:            env.GetString("HOST", "0.0.0.0"),
			ReadTimeout:     env.GetDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    env.GetDuration("WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: env.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			RateLimit:       env.GetFloat("RATE_LIMIT", 0),
		},
		Service: ServiceConfig{
			Name:        env.GetString("SERVICE_NAME", "momento"),
			Version:     env.GetString("SERVICE_VERSION", "0.1.0"),
			Environment: env.GetString("ENVIRONMENT", "development"),
			LogLevel:    env.GetString("LOG_LEVEL", "info"),
			LogFormat:   env.GetString("LOG_FORMAT", "text"),
		},
		Graph: GraphConfig{
			URI:               env.GetString("NEO4J_URI", "bolt://localhost:7687"),
			Username:          env.GetString("NEO4J_USERNAME", "neo4j"),
			Password:          env.GetString("NEO4J_PASSWORD", ""),
			Database:          env.GetString("NEO4J_DATABASE", "neo4j"),
			MaxConnectionPool: env.GetInt("NEO4J_MAX_CONNECTION_POOL", 50),
			ConnectTimeout:    env.GetDuration("NEO4J_CONNECT_TIMEOUT", 10*time.Second),
		},
		Extraction: ExtractionConfig{
			Provider:      env.GetString("EXTRACTION_PROVIDER", "local"),
			AllowFallback: env.GetBool("EXTRACTION_ALLOW_FALLBACK", true),
			Ollama: OllamaConfig{
				BaseURL:             env.GetString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:               env.GetString("OLLAMA_MODEL", "llama3"),
				Timeout:             env.GetDuration("OLLAMA_TIMEOUT", 30*time.Second),
				MaxRetries:          env.GetInt("OLLAMA_MAX_RETRIES", 2),
				KeepAlive:           env.GetString("OLLAMA_KEEP_ALIVE", "5m"),
				ContextWindowTokens: env.GetInt("OLLAMA_CONTEXT_WINDOW_TOKENS", 4096),
			},
			OpenAI: CloudProviderConfig{
				BaseURL: env.GetString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Model:   env.GetString("OPENAI_MODEL", "gpt-4o-mini"),
				APIKey:  env.GetString("OPENAI_API_KEY", ""),
			},
			Anthropic: CloudProviderConfig{
				BaseURL: env.GetString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				Model:   env.GetString("ANTHROPIC_MODEL", "claude-3-haiku-20240307"),
				APIKey:  env.GetString("ANTHROPIC_API_KEY", ""),
			},
		},
		Cache: CacheConfig{
			Enabled: env.GetBool("CACHE_ENABLED", false),
			URL:     env.GetString("CACHE_REDIS_URL", "redis://localhost:6379/0"),
			TTL:     env.GetDuration("CACHE_TTL", 5*time.Minute),
		},
		Media: MediaConfig{
			Enabled: env.GetBool("MEDIA_S3_ENABLED", false),
			Region:  env.GetString("MEDIA_S3_REGION", "us-east-1"),
			Bucket:  env.GetString("MEDIA_S3_BUCKET", ""),
			Prefix:  env.GetString("MEDIA_S3_PREFIX", ""),
		},
		Auth: AuthConfig{
			JWTSecret: env.GetString("JWT_SECRET", ""),
			JWTIssuer: env.GetString("JWT_ISSUER", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: env.GetStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
	}

	if overlayPath != "" {
		if err := applyExtractionOverlay(cfg, overlayPath); err != nil {
			return nil, err
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyExtractionOverlay reads a YAML file via viper and overrides the
// extraction-provider block with the keys it sets among: provider,
// allow_fallback, the ollama base_url/model/timeout/max_retries/keep_alive/
// context_window_tokens, and the openai and anthropic base_url/model. API
// keys are not read from the overlay. A missing file is not an error; this
// overlay is optional.
func applyExtractionOverlay(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading extraction config overlay %s: %w", path, err)
	}

	if v.IsSet("extraction.provider") {
		cfg.Extraction.Provider = v.GetString("extraction.provider")
	}
	if v.IsSet("extraction.allow_fallback") {
		cfg.Extraction.AllowFallback = v.GetBool("extraction.allow_fallback")
	}
	if v.IsSet("extraction.ollama.base_url") {
		cfg.Extraction.Ollama.BaseURL = v.GetString("extraction.ollama.base_url")
	}
	if v.IsSet("extraction.ollama.model") {
		cfg.Extraction.Ollama.Model = v.GetString("extraction.ollama.model")
	}
	if v.IsSet("extraction.ollama.timeout") {
		cfg.Extraction.Ollama.Timeout = v.GetDuration("extraction.ollama.timeout")
	}
	if v.IsSet("extraction.ollama.max_retries") {
		cfg.Extraction.Ollama.MaxRetries = v.GetInt("extraction.ollama.max_retries")
	}
	if v.IsSet("extraction.ollama.keep_alive") {
		cfg.Extraction.Ollama.KeepAlive = v.GetString("extraction.ollama.keep_alive")
	}
	if v.IsSet("extraction.ollama.context_window_tokens") {
		cfg.Extraction.Ollama.ContextWindowTokens = v.GetInt("extraction.ollama.context_window_tokens")
	}
	if v.IsSet("extraction.openai.base_url") {
		cfg.Extraction.OpenAI.BaseURL = v.GetString("extraction.openai.base_url")
	}
	if v.IsSet("extraction.openai.model") {
		cfg.Extraction.OpenAI.Model = v.GetString("extraction.openai.model")
	}
	if v.IsSet("extraction.anthropic.base_url") {
		cfg.Extraction.Anthropic.BaseURL = v.GetString("extraction.anthropic.base_url")
	}
	if v.IsSet("extraction.anthropic.model") {
		cfg.Extraction.Anthropic.Model = v.GetString("extraction.anthropic.model")
	}

	return nil
}

// validate checks required fields and closed-vocabulary settings, collecting
// every failure before returning a single error.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 {
		errs = append(errs, "Server.Port must be positive")
	}
	if cfg.Graph.URI == "" {
		errs = append(errs, "Graph.URI is required")
	}
	switch cfg.Service.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "Service.LogLevel must be one of: debug, info, warn, error")
	}
	switch cfg.Extraction.Provider {
	case "local", "ollama", "openai", "anthropic":
	default:
		errs = append(errs, "Extraction.Provider must be one of: local, ollama, openai, anthropic")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
