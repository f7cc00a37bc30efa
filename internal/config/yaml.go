package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/validate"
)

// YAMLConfig represents the top-level schemaguard configuration file.
type YAMLConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Sources    []SourceYAML     `yaml:"sources"`
	Snapshots  SnapshotConfig   `yaml:"snapshots"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Policy     validate.Policy  `yaml:"policy"`
	MCP        MCPConfig        `yaml:"mcp"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host              string     `yaml:"host"`
	Port              int        `yaml:"port"`
	MaxUploadSize     string     `yaml:"max_upload_size"`
	ShutdownTimeout   string     `yaml:"shutdown_timeout"`
	RateLimit         int        `yaml:"rate_limit_per_minute"`
	ValidateRateLimit int        `yaml:"validate_rate_limit_per_minute"`
	CORS              CORSConfig `yaml:"cors"`
	TLS               TLSConfig  `yaml:"tls"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// TLSConfig controls TLS termination at the server level.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AuthConfig controls authentication settings.
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	JWTExpiry    string `yaml:"jwt_expiry"`
	APIKeyHeader string `yaml:"api_key_header"`
}

// SourceYAML defines a reference database in the YAML configuration file.
// Sources declared here are merged into the config store at startup.
type SourceYAML struct {
	Name           string          `yaml:"name"`
	Driver         string          `yaml:"driver"`
	DSN            string          `yaml:"dsn"`
	Schema         string          `yaml:"schema"`
	PrivateKeyPath string          `yaml:"private_key_path,omitempty"`
	Pool           *PoolYAMLConfig `yaml:"pool,omitempty"`
}

// PoolYAMLConfig controls the connection pool for a source in YAML config.
type PoolYAMLConfig struct {
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

// Snapshot archive backends.
const (
	SnapshotBackendSQLite = "sqlite"
	SnapshotBackendFiles  = "files"
)

// SnapshotConfig selects where schema snapshots are archived.
type SnapshotConfig struct {
	Backend string `yaml:"backend"` // sqlite or files
	Dir     string `yaml:"dir"`     // files backend only; defaults to <data-dir>/snapshots
}

// PipelineConfig controls per-file validation runs.
type PipelineConfig struct {
	Workers         int     `yaml:"workers"`
	HistoryDepth    int     `yaml:"history_depth"`
	AutoSelectScore float64 `yaml:"auto_select_score"`
	MaxRows         int     `yaml:"max_rows"`
	Source          string  `yaml:"source"` // default reference source
}

// EnrichmentConfig points at an OpenAI-compatible chat completions endpoint.
// An empty endpoint disables enrichment.
type EnrichmentConfig struct {
	Endpoint          string `yaml:"endpoint"`
	APIKey            string `yaml:"api_key"`
	Model             string `yaml:"model"`
	Timeout           string `yaml:"timeout"`
	MaxRetries        int    `yaml:"max_retries"`
	BackoffBase       string `yaml:"backoff_base"`
	BackoffMax        string `yaml:"backoff_max"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Transport string `yaml:"transport"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
// Values absent from the file keep their defaults.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, "read config file")
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, errs.Wrap(err, "parse config file")
	}
	cfg.Policy = cfg.Policy.WithDefaults()
	return cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			MaxUploadSize:     "50MB",
			ShutdownTimeout:   "30s",
			RateLimit:         120,
			ValidateRateLimit: 30,
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "DELETE"},
			},
		},
		Auth: AuthConfig{
			JWTExpiry:    "1h",
			APIKeyHeader: "X-API-Key",
		},
		Snapshots: SnapshotConfig{
			Backend: SnapshotBackendSQLite,
		},
		Pipeline: PipelineConfig{
			Workers:         4,
			HistoryDepth:    5,
			AutoSelectScore: 0.8,
		},
		Enrichment: EnrichmentConfig{
			Model:             "gpt-4o-mini",
			Timeout:           "60s",
			MaxRetries:        3,
			BackoffBase:       "1s",
			BackoffMax:        "30s",
			RequestsPerMinute: 30,
		},
		Policy: validate.DefaultPolicy(),
		MCP: MCPConfig{
			Enabled:   true,
			Transport: "stdio",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errs.Wrap(err, "encode default config")
	}
	return os.WriteFile(path, data, 0644)
}

// ParseDuration parses a duration string from the config file, returning
// fallback when s is empty or malformed.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
