// Package config defines the TOML configuration for the ezlist mailing
// list relay. Configuration is loaded once at startup and is immutable
// for the lifetime of the process.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ListConfig holds the mailing list policy settings.
type ListConfig struct {
	Address             string   `toml:"address"`              // The address of the mailing list
	SubjectPrefix       string   `toml:"subject_prefix"`       // Prepended to forwarded subjects, e.g. "[List]"
	SkipSender          bool     `toml:"skip_sender"`          // Exclude the poster from the fan-out recipients
	ManageSubscriptions bool     `toml:"manage_subscriptions"` // Recognize subscribe/unsubscribe commands
	DefaultLanguage     string   `toml:"default_language"`     // Language for automated replies, e.g. "en"
	SubscribeTokens     []string `toml:"subscribe_tokens"`     // Command tokens that trigger a subscription
	UnsubscribeTokens   []string `toml:"unsubscribe_tokens"`   // Command tokens that trigger an unsubscription
	PollInterval        string   `toml:"poll_interval"`        // How often the inbox is polled, e.g. "30s"
}

// IMAPConfig holds the inbound mailbox connection settings.
type IMAPConfig struct {
	Addr               string `toml:"addr"` // host:port
	Username           string `toml:"username"`
	Password           string `toml:"password"`
	Mailbox            string `toml:"mailbox"` // Folder to poll, defaults to INBOX
	TLS                bool   `toml:"tls"`
	StartTLS           bool   `toml:"starttls"` // Ignored when tls is set
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	Debug              bool   `toml:"debug"` // Print all commands and responses
}

// SMTPConfig holds the outbound delivery settings.
type SMTPConfig struct {
	Addr               string `toml:"addr"` // host:port
	Username           string `toml:"username"`
	Password           string `toml:"password"`
	HELODomain         string `toml:"helo_domain"` // Domain announced in HELO/EHLO and used in Message-Id
	TLS                bool   `toml:"tls"`
	StartTLS           bool   `toml:"starttls"` // Ignored when tls is set
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// SQLiteConfig holds settings for the SQLite registry backend.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// PostgresConfig holds settings for the Postgres registry backend.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
	TLSMode  bool   `toml:"tls"`
}

// StorageConfig selects and configures the subscriber registry backend.
type StorageConfig struct {
	Backend  string         `toml:"backend"` // "sqlite" or "postgres"
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Postgres PostgresConfig `toml:"postgres"`
}

// TemplatesConfig points at the localized reply templates.
type TemplatesConfig struct {
	Path string `toml:"path"` // Directory containing one subdirectory per language code
}

// ArchiveConfig holds optional S3 archival of forwarded posts.
type ArchiveConfig struct {
	Enable    bool   `toml:"enable"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseTLS    bool   `toml:"tls"`
	Trace     bool   `toml:"trace"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Output string `toml:"output"` // Log output: "stderr", "stdout", "syslog", or file path
	Format string `toml:"format"` // Log format: "json" or "console"
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", "error"
}

// MetricsConfig holds the optional Prometheus metrics endpoint.
type MetricsConfig struct {
	Enable bool   `toml:"enable"`
	Addr   string `toml:"addr"` // host:port for the /metrics listener
}

// Config holds all configuration for the application.
type Config struct {
	Logging   LoggingConfig   `toml:"logging"`
	List      ListConfig      `toml:"list"`
	IMAP      IMAPConfig      `toml:"imap"`
	SMTP      SMTPConfig      `toml:"smtp"`
	Storage   StorageConfig   `toml:"storage"`
	Templates TemplatesConfig `toml:"templates"`
	Archive   ArchiveConfig   `toml:"archive"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// NewDefault returns a Config populated with application defaults.
// Values from the TOML file and command-line flags override these.
func NewDefault() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
		List: ListConfig{
			SubjectPrefix:       "[List]",
			SkipSender:          true,
			ManageSubscriptions: true,
			DefaultLanguage:     "en",
			SubscribeTokens:     []string{"subscribe"},
			UnsubscribeTokens:   []string{"unsubscribe"},
			PollInterval:        "30s",
		},
		IMAP: IMAPConfig{
			Mailbox: "INBOX",
			TLS:     true,
		},
		SMTP: SMTPConfig{
			TLS: true,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			SQLite:  SQLiteConfig{Path: "ezlist.db"},
			Postgres: PostgresConfig{
				Host: "localhost",
				Port: "5432",
				User: "postgres",
				Name: "ezlist_db",
			},
		},
		Templates: TemplatesConfig{
			Path: "templates",
		},
		Metrics: MetricsConfig{
			Addr: "localhost:9090",
		},
	}
}

// Load reads the TOML file at path on top of the application defaults.
func Load(path string) (Config, error) {
	cfg := NewDefault()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// PollInterval parses the configured poll interval.
func (c *ListConfig) PollIntervalDuration() (time.Duration, error) {
	if c.PollInterval == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll_interval %q: %w", c.PollInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("poll_interval must be positive, got %q", c.PollInterval)
	}
	return d, nil
}

// Validate checks that a registry backend is selected and configured.
func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case "sqlite":
		if s.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for the sqlite backend")
		}
	case "postgres":
		if s.Postgres.Host == "" || s.Postgres.Name == "" {
			return fmt.Errorf("storage.postgres.host and storage.postgres.name are required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (expected \"sqlite\" or \"postgres\")", s.Backend)
	}
	return nil
}

// Validate checks that the configuration is complete enough to start.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.List.Address) == "" {
		return fmt.Errorf("list.address is required")
	}
	if !strings.Contains(c.List.Address, "@") {
		return fmt.Errorf("list.address %q is not an email address", c.List.Address)
	}
	if c.IMAP.Addr == "" {
		return fmt.Errorf("imap.addr is required")
	}
	if c.SMTP.Addr == "" {
		return fmt.Errorf("smtp.addr is required")
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if c.List.ManageSubscriptions && len(c.List.SubscribeTokens) == 0 && len(c.List.UnsubscribeTokens) == 0 {
		return fmt.Errorf("manage_subscriptions is enabled but no command tokens are configured")
	}
	if c.Archive.Enable {
		if c.Archive.Endpoint == "" || c.Archive.Bucket == "" {
			return fmt.Errorf("archive.endpoint and archive.bucket are required when the archive is enabled")
		}
	}
	if _, err := c.List.PollIntervalDuration(); err != nil {
		return err
	}
	return nil
}
