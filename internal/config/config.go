// Package config loads indexer settings from defaults, an optional config
// file and INDEXER_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. INDEXER_POSTGRES_DSN.
const EnvPrefix = "INDEXER"

// Config is the complete indexer configuration.
type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Solana     SolanaConfig     `mapstructure:"solana"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Clickhouse ClickhouseConfig `mapstructure:"clickhouse"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
	Log        LogConfig        `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	WebhookPath     string        `mapstructure:"webhook_path"`
	AuthToken       string        `mapstructure:"auth_token"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SolanaConfig struct {
	RPCURL     string `mapstructure:"rpc_url"`
	WSURL      string `mapstructure:"ws_url"`
	ProgramID  string `mapstructure:"program_id"`
	Commitment string `mapstructure:"commitment"`
}

type FetchConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	AbsentRechecks int           `mapstructure:"absent_rechecks"`
}

type StorageConfig struct {
	UseMemory bool `mapstructure:"use_memory"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ClickhouseConfig is optional; an empty DSN disables the instruction log.
type ClickhouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ReconcileConfig struct {
	Interval       time.Duration `mapstructure:"interval"`        // 0 disables the periodic sweep in serve
	ReplayInterval time.Duration `mapstructure:"replay_interval"` // 0 disables the skip replay loop
	AbsentGrace    time.Duration `mapstructure:"absent_grace"`    // age after which an absent account counts as closed
	BatchSize      int           `mapstructure:"batch_size"`
	Concurrency    int           `mapstructure:"concurrency"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // console or json
	File       string `mapstructure:"file"`   // empty disables the rotated file
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

var defaults = map[string]interface{}{
	"http.addr":             ":8080",
	"http.webhook_path":     "/webhook",
	"http.auth_token":       "",
	"http.max_body_bytes":   10 << 20,
	"http.shutdown_timeout": 15 * time.Second,

	"solana.rpc_url":    "https://api.mainnet-beta.solana.com",
	"solana.ws_url":     "",
	"solana.program_id": "",
	"solana.commitment": "confirmed",

	"fetch.max_attempts":    4,
	"fetch.retry_delay":     250 * time.Millisecond,
	"fetch.max_delay":       2 * time.Second,
	"fetch.absent_rechecks": 1,

	"storage.use_memory": false,
	"postgres.dsn":       "",
	"clickhouse.dsn":     "",

	"reconcile.interval":        time.Duration(0),
	"reconcile.replay_interval": time.Minute,
	"reconcile.absent_grace":    time.Minute,
	"reconcile.batch_size":      100,
	"reconcile.concurrency":     4,

	"log.level":        "info",
	"log.format":       "console",
	"log.file":         "",
	"log.max_size_mb":  100,
	"log.max_backups":  3,
	"log.max_age_days": 7,
	"log.compress":     true,
}

// New returns a viper instance with defaults and environment overrides set.
// Callers may bind command-line flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file at path into v and returns the
// validated configuration.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if !strings.HasPrefix(c.HTTP.WebhookPath, "/") {
		errs = append(errs, errors.New("http.webhook_path must start with /"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be positive"))
	}
	if err := validateURL(c.Solana.RPCURL, "http"); err != nil {
		errs = append(errs, fmt.Errorf("solana.rpc_url: %w", err))
	}
	if c.Solana.WSURL != "" {
		if err := validateURL(c.Solana.WSURL, "ws"); err != nil {
			errs = append(errs, fmt.Errorf("solana.ws_url: %w", err))
		}
	}
	if c.Solana.ProgramID == "" {
		errs = append(errs, errors.New("solana.program_id is required"))
	} else if _, err := solana.PublicKeyFromBase58(c.Solana.ProgramID); err != nil {
		errs = append(errs, fmt.Errorf("solana.program_id: %w", err))
	}
	switch c.Solana.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		errs = append(errs, fmt.Errorf("solana.commitment: unknown level %q", c.Solana.Commitment))
	}
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, errors.New("fetch.max_attempts must be at least 1"))
	}
	if c.Fetch.AbsentRechecks < 0 {
		errs = append(errs, errors.New("fetch.absent_rechecks must not be negative"))
	}
	if !c.Storage.UseMemory && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required (set storage.use_memory for in-memory storage)"))
	}
	if c.Reconcile.Interval < 0 {
		errs = append(errs, errors.New("reconcile.interval must not be negative"))
	}
	if c.Reconcile.ReplayInterval < 0 {
		errs = append(errs, errors.New("reconcile.replay_interval must not be negative"))
	}
	if c.Reconcile.AbsentGrace <= 0 {
		errs = append(errs, errors.New("reconcile.absent_grace must be positive"))
	}
	if c.Reconcile.BatchSize < 1 || c.Reconcile.BatchSize > 100 {
		errs = append(errs, errors.New("reconcile.batch_size must be between 1 and 100"))
	}
	if c.Reconcile.Concurrency < 1 {
		errs = append(errs, errors.New("reconcile.concurrency must be at least 1"))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Program returns the parsed program ID. Only valid after Validate.
func (c *Config) Program() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.Solana.ProgramID)
}

func validateURL(raw, scheme string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !strings.HasPrefix(parsed.Scheme, scheme) || parsed.Host == "" {
		return fmt.Errorf("expected %s(s)://host, got %q", scheme, raw)
	}
	return nil
}
