package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported provider types.
const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

// DatabaseConfig holds the email store settings.
type DatabaseConfig struct {
	// Path is the SQLite database file. ":memory:" is accepted.
	Path string `mapstructure:"path" yaml:"path"`
}

// RulesConfig controls where the rule set is loaded from.
type RulesConfig struct {
	// Path is the JSON or YAML rule file reloaded on every processing run.
	Path string `mapstructure:"path" yaml:"path"`

	// WriteDefault writes the default rule file when Path does not exist.
	WriteDefault bool `mapstructure:"write_default" yaml:"write_default"`
}

// ProviderConfig holds settings shared by every mail provider.
type ProviderConfig struct {
	// Type selects the provider implementation ("gmail" or "imap").
	Type string `mapstructure:"type" yaml:"type"`

	// Query is the provider search query used when listing messages.
	Query string `mapstructure:"query" yaml:"query"`

	// CallTimeout bounds each individual provider call.
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`

	// RatePerSec limits label mutations issued against the provider.
	RatePerSec float64 `mapstructure:"rate_per_sec" yaml:"rate_per_sec"`

	// Burst is the token bucket size for RatePerSec.
	Burst int `mapstructure:"burst" yaml:"burst"`
}

// GmailConfig holds the Gmail API settings.
type GmailConfig struct {
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	TokenFile       string `mapstructure:"token_file" yaml:"token_file"`
	User            string `mapstructure:"user" yaml:"user"`
}

// IMAPConfig holds the IMAP server settings. The password is read from
// the system keyring, never from the config file.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
	Mailbox  string `mapstructure:"mailbox" yaml:"mailbox"`
}

// SyncConfig holds the ingestion settings.
type SyncConfig struct {
	MaxMessages int `mapstructure:"max_messages" yaml:"max_messages"`
	Workers     int `mapstructure:"workers" yaml:"workers"`
}

// ProcessConfig holds the rule processing settings.
type ProcessConfig struct {
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
	Workers   int `mapstructure:"workers" yaml:"workers"`
}

// WatchConfig holds the background loop settings.
type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables it.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Rules    RulesConfig    `mapstructure:"rules" yaml:"rules"`
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Gmail    GmailConfig    `mapstructure:"gmail" yaml:"gmail"`
	IMAP     IMAPConfig     `mapstructure:"imap" yaml:"imap"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Process  ProcessConfig  `mapstructure:"process" yaml:"process"`
	Watch    WatchConfig    `mapstructure:"watch" yaml:"watch"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// ConfigDir returns ~/.config/rulemaster, or "." when the home
// directory cannot be determined.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "rulemaster")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/rulemaster/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// setDefaults registers every default on v so missing keys resolve to
// sensible values.
func setDefaults(v *viper.Viper) {
	dir := ConfigDir()
	v.SetDefault("database.path", filepath.Join(dir, "emails.db"))
	v.SetDefault("rules.path", filepath.Join(dir, "rules.json"))
	v.SetDefault("rules.write_default", true)
	v.SetDefault("provider.type", ProviderGmail)
	v.SetDefault("provider.query", "in:inbox -in:draft")
	v.SetDefault("provider.call_timeout", 30*time.Second)
	v.SetDefault("provider.rate_per_sec", 10.0)
	v.SetDefault("provider.burst", 5)
	v.SetDefault("gmail.credentials_file", "credentials.json")
	v.SetDefault("gmail.token_file", "token.json")
	v.SetDefault("gmail.user", "me")
	v.SetDefault("imap.host", "")
	v.SetDefault("imap.port", "993")
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("sync.max_messages", 50)
	v.SetDefault("sync.workers", 4)
	v.SetDefault("process.batch_size", 100)
	v.SetDefault("process.workers", 4)
	v.SetDefault("watch.interval", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("metrics.addr", "")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	v := viper.New()
	setDefaults(v)
	cfg := &AppConfig{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with RULEMASTER_ override file values
// (e.g. RULEMASTER_PROVIDER_TYPE=imap). A missing file yields defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RULEMASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, pathErr := err.(*os.PathError)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !pathErr && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *AppConfig) Validate() error {
	switch c.Provider.Type {
	case ProviderGmail:
	case ProviderIMAP:
		if c.IMAP.Host == "" || c.IMAP.Username == "" {
			return fmt.Errorf("imap provider requires imap.host and imap.username")
		}
	default:
		return fmt.Errorf("unknown provider type %q", c.Provider.Type)
	}
	if c.Sync.Workers < 1 {
		c.Sync.Workers = 1
	}
	if c.Process.Workers < 1 {
		c.Process.Workers = 1
	}
	if c.Process.BatchSize < 1 {
		c.Process.BatchSize = 100
	}
	return nil
}
