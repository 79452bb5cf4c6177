package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Index     IndexConfig     `yaml:"index"`
	Report    ReportConfig    `yaml:"report"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig contains status API server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains platform Postgres settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // env-only, never in YAML
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN assembles the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// IndexConfig contains local chunk index settings.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// ReportConfig contains report scheduling and audience settings.
type ReportConfig struct {
	CheckpointHours []int    `yaml:"checkpoint_hours"`
	MinuteOffset    int      `yaml:"minute_offset"`
	Timezone        string   `yaml:"timezone"`
	DepartmentID    string   `yaml:"department_id"`
	AudienceEmails  []string `yaml:"audience_emails"`
	FetchChunkSize  int      `yaml:"fetch_chunk_size"`
}

// RetrievalConfig contains chunk retrieval settings.
type RetrievalConfig struct {
	K          int     `yaml:"k"`
	FetchK     int     `yaml:"fetch_k"`
	LambdaMult float64 `yaml:"lambda_mult"`
}

// EmbeddingConfig contains embedding service settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"-"` // env-only, never in YAML
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
}

// SMTPConfig contains mail transport settings.
type SMTPConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"-"` // env-only, never in YAML
	Sender     string   `yaml:"sender"`
	Recipients []string `yaml:"recipients"`
}

// ArchiveConfig contains optional S3-compatible report archive settings.
// An empty bucket disables archiving.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"-"` // env-only, never in YAML
	SecretKey string `yaml:"-"` // env-only, never in YAML
	UseSSL    bool   `yaml:"use_ssl"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("RECAP_CONFIG_PATH", "config/recap.yaml")

	// Missing file is not an error; defaults plus env still apply.
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location resolves the report timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Report.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid report timezone %q: %w", c.Report.Timezone, err)
	}
	return loc, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			Name:    "platform",
			User:    "recap",
			SSLMode: "disable",
		},
		Index: IndexConfig{
			Path: "data/recap.db",
		},
		Report: ReportConfig{
			CheckpointHours: []int{4, 7, 10, 13},
			MinuteOffset:    30,
			Timezone:        "UTC",
			FetchChunkSize:  10000,
		},
		Retrieval: RetrievalConfig{
			K:          50,
			FetchK:     100,
			LambdaMult: 0.2,
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			BatchSize:  64,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("RECAP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Database
	if v := os.Getenv("RECAP_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("RECAP_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("RECAP_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("RECAP_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("RECAP_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("RECAP_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}

	// Index
	if v := os.Getenv("RECAP_INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}

	// Report
	if v := os.Getenv("RECAP_CHECKPOINT_HOURS"); v != "" {
		if hours, err := parseIntList(v); err == nil {
			cfg.Report.CheckpointHours = hours
		}
	}
	if v := os.Getenv("RECAP_MINUTE_OFFSET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Report.MinuteOffset = n
		}
	}
	if v := os.Getenv("RECAP_REPORT_TIMEZONE"); v != "" {
		cfg.Report.Timezone = v
	}
	if v := os.Getenv("RECAP_DEPARTMENT_ID"); v != "" {
		cfg.Report.DepartmentID = v
	}
	if v := os.Getenv("RECAP_AUDIENCE_EMAILS"); v != "" {
		cfg.Report.AudienceEmails = splitList(v)
	}
	if v := os.Getenv("RECAP_FETCH_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Report.FetchChunkSize = n
		}
	}

	// Retrieval
	if v := os.Getenv("RECAP_RETRIEVAL_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.K = n
		}
	}
	if v := os.Getenv("RECAP_RETRIEVAL_FETCH_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.FetchK = n
		}
	}
	if v := os.Getenv("RECAP_RETRIEVAL_LAMBDA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.LambdaMult = f
		}
	}

	// Embedding (OPENAI_API_KEY is industry convention)
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("RECAP_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("RECAP_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimensions = n
		}
	}

	// SMTP
	if v := os.Getenv("RECAP_SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := os.Getenv("RECAP_SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.SMTP.Port = port
		}
	}
	if v := os.Getenv("RECAP_SMTP_USERNAME"); v != "" {
		cfg.SMTP.Username = v
	}
	if v := os.Getenv("RECAP_SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("RECAP_SENDER_EMAIL"); v != "" {
		cfg.SMTP.Sender = v
	}
	if v := os.Getenv("RECAP_RECEIVER_EMAILS"); v != "" {
		cfg.SMTP.Recipients = splitList(v)
	}

	// Archive
	if v := os.Getenv("RECAP_S3_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("RECAP_S3_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("RECAP_S3_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("RECAP_S3_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("RECAP_S3_USE_SSL"); v != "" {
		cfg.Archive.UseSSL = v == "true" || v == "1"
	}

	// Log
	if v := os.Getenv("RECAP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("RECAP_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
// In dev mode (RECAP_DEV_MODE=true), secret validation is skipped.
func (c *Config) validate() error {
	if len(c.Report.CheckpointHours) == 0 {
		return errors.New("report.checkpoint_hours must not be empty")
	}
	if c.Report.MinuteOffset < 0 || c.Report.MinuteOffset > 59 {
		return fmt.Errorf("report.minute_offset %d out of range", c.Report.MinuteOffset)
	}
	if c.Retrieval.K <= 0 || c.Retrieval.FetchK < c.Retrieval.K {
		return fmt.Errorf("retrieval requires 0 < k <= fetch_k, got k=%d fetch_k=%d", c.Retrieval.K, c.Retrieval.FetchK)
	}
	if c.Retrieval.LambdaMult < 0 || c.Retrieval.LambdaMult > 1 {
		return fmt.Errorf("retrieval.lambda_mult %v out of range [0,1]", c.Retrieval.LambdaMult)
	}

	if os.Getenv("RECAP_DEV_MODE") == "true" {
		return nil
	}
	if c.Embedding.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	if c.Database.Password == "" {
		return errors.New("RECAP_DB_PASSWORD is required")
	}
	return nil
}

// splitList parses a comma-separated list, tolerating the bracketed form the
// legacy deployment used ("[a@x.com, b@y.com]").
func splitList(value string) []string {
	value = strings.Trim(strings.TrimSpace(value), "[]")
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"'`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseIntList parses a comma-separated list of integers.
func parseIntList(value string) ([]int, error) {
	parts := splitList(value)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
