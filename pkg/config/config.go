package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the configuration file read by Load.
const DefaultPath = "config.yaml"

// Config holds all configuration for clearquote-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Database is the demo store the generated queries run against.
	Database DatabaseConfig `yaml:"database"`

	// Guardrail bounds what a generated query may touch and how much it may cost.
	Guardrail GuardrailConfig `yaml:"guardrail"`

	// LLM is the NL->SQL translator endpoint.
	LLM LLMConfig `yaml:"llm"`

	// Redis backs the translation cache. Empty host uses an in-process cache.
	Redis RedisConfig `yaml:"redis"`

	// MCP exposes the ask/validate tools over the Model Context Protocol.
	MCP MCPConfig `yaml:"mcp"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Type           string `yaml:"type" env:"PGTYPE" env-default:"postgres"`
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"clearquote"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"clearquote"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	// AutoMigrate applies the embedded demo schema at startup.
	AutoMigrate bool `yaml:"auto_migrate" env:"PGAUTO_MIGRATE" env-default:"true"`
}

// GuardrailConfig holds the limits applied to every generated query.
type GuardrailConfig struct {
	MaxRows            int      `yaml:"max_rows" env:"MAX_ROWS" env-default:"200"`
	StatementTimeoutMs int      `yaml:"statement_timeout_ms" env:"STATEMENT_TIMEOUT_MS" env-default:"8000"`
	AllowlistPath      string   `yaml:"allowlist_path" env:"ALLOWLIST_PATH" env-default:""`
	ForbiddenKinds     []string `yaml:"forbidden_kinds" env:"FORBIDDEN_KINDS" env-separator:","`
	// ForbiddenFunctions replaces the allowlist's forbidden function names.
	ForbiddenFunctions []string `yaml:"forbidden_functions" env:"FORBIDDEN_FUNCTIONS" env-separator:","`
	AllowedSchemas     []string `yaml:"allowed_schemas" env:"ALLOWED_SCHEMAS" env-separator:","`
	// RejectSuspiciousParams turns libinjection findings on bound values into rejections.
	RejectSuspiciousParams bool `yaml:"reject_suspicious_params" env:"REJECT_SUSPICIOUS_PARAMS" env-default:"false"`
	// CheckSchemaDrift compares the allowlist with the live schema at startup.
	CheckSchemaDrift bool `yaml:"check_schema_drift" env:"CHECK_SCHEMA_DRIFT" env-default:"true"`
}

// StatementTimeout returns the configured timeout as a duration.
func (g *GuardrailConfig) StatementTimeout() time.Duration {
	return time.Duration(g.StatementTimeoutMs) * time.Millisecond
}

// LLMConfig holds the translator model configuration.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider       string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL        string  `yaml:"base_url" env:"LLM_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model          string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey         string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature    float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens      int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"30"`
	MaxRetries     int     `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"2"`
}

// Timeout returns the per-request translator timeout.
func (l *LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// RedisConfig holds Redis configuration for the translation cache.
type RedisConfig struct {
	Host       string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port       int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password   string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB         int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TTLSeconds int    `yaml:"ttl_seconds" env:"REDIS_TTL_SECONDS" env-default:"3600"`
	KeyPrefix  string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"clearquote:nl2sql:"`
}

// TTL returns how long a cached translation stays valid.
func (r *RedisConfig) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// MCPConfig holds MCP server configuration.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"MCP_PATH" env-default:"/mcp"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultPath, version)
}

// LoadFile reads configuration from path with environment variable overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if err := cfg.validateGuardrail(); err != nil {
		return nil, fmt.Errorf("invalid guardrail configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	// Use HTTPS scheme if TLS is configured
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.BindAddr, c.Port)
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return errors.New("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

func (c *Config) validateGuardrail() error {
	if c.Guardrail.MaxRows <= 0 {
		return fmt.Errorf("max_rows must be positive, got %d", c.Guardrail.MaxRows)
	}
	if c.Guardrail.StatementTimeoutMs <= 0 {
		return fmt.Errorf("statement_timeout_ms must be positive, got %d", c.Guardrail.StatementTimeoutMs)
	}
	return nil
}

// AdapterConfig returns the generic datasource config map consumed by the
// registered adapter factory. The host is rewritten for Docker when needed.
func (c *DatabaseConfig) AdapterConfig() map[string]any {
	return map[string]any{
		"host":      ResolveHostForDocker(c.Host),
		"port":      c.Port,
		"user":      c.User,
		"password":  c.Password,
		"database":  c.Database,
		"ssl_mode":  c.SSLMode,
		"max_conns": int(c.MaxConnections),
	}
}

// URL returns a PostgreSQL connection URL with escaped credentials.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(ResolveHostForDocker(c.Host), strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}
