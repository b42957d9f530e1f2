// Package config provides Viper-based configuration loading for the bucks ledger.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cory-johannsen/crypdoebucks/internal/game/dice"
)

// Storage backends accepted in ledger.storage.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// Migrate applies pending schema migrations at startup.
	Migrate bool `mapstructure:"migrate"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// File optionally mirrors the log as rotated JSON files.
	File LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures rotated log files. An empty Path disables them.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TracingConfig holds OpenTelemetry trace export settings.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector URL. Empty disables tracing.
	Endpoint string `mapstructure:"endpoint"`
	// SampleRatio is the fraction of root spans recorded, in [0, 1].
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// GRPCConfig holds the ledger gRPC listener settings.
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
func (g GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// LedgerConfig holds token ledger settings.
type LedgerConfig struct {
	// Storage selects the backend: "memory", "postgres" or "sqlite".
	Storage string `mapstructure:"storage"`
	// SQLitePath is the database file used when Storage is "sqlite".
	SQLitePath string `mapstructure:"sqlite_path"`
	// MetadataURI is the collection metadata URI template, e.g.
	// "https://token-cdn-domain/{id}.json".
	MetadataURI string `mapstructure:"metadata_uri"`
	// StylesDir holds fighting style YAML files. Empty uses the built-in table.
	StylesDir string `mapstructure:"styles_dir"`
}

// CombatConfig holds fight resolution settings.
type CombatConfig struct {
	// Roll is the dice expression each side rolls, e.g. "1d20".
	Roll string `mapstructure:"roll"`
	// DrawMargin is the largest score gap still counted as a draw.
	DrawMargin int `mapstructure:"draw_margin"`
	// Cooldown is how long an attacker waits after a decided fight.
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// MintConfig selects who may create bucks.
type MintConfig struct {
	// Policy is "allowlist", "open", or "script".
	Policy string `mapstructure:"policy"`
	// Admins lists the accounts allowed under the allowlist policy.
	Admins []string `mapstructure:"admins"`
	// Script is the Lua file used by the script policy.
	Script string `mapstructure:"script"`
	// InstructionLimit caps Lua opcodes per policy call; 0 uses the default.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// Config is the top-level application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Combat   CombatConfig   `mapstructure:"combat"`
	Mint     MintConfig     `mapstructure:"mint"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_ratio must be in [0, 1], got %g", c.Tracing.SampleRatio))
	}
	if err := validateGRPC(c.GRPC); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLedger(c.Ledger); err != nil {
		errs = append(errs, err.Error())
	}
	// Database settings only matter when Postgres backs the ledger.
	if c.Ledger.Storage == StoragePostgres {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateCombat(c.Combat); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateMint(c.Mint); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	if l.File.MaxSizeMB < 0 || l.File.MaxBackups < 0 || l.File.MaxAgeDays < 0 {
		return errors.New("logging.file sizes and counts must not be negative")
	}
	return nil
}

func validateGRPC(g GRPCConfig) error {
	var errs []string
	if g.Host == "" {
		errs = append(errs, "grpc.host must not be empty")
	}
	if g.Port < 1 || g.Port > 65535 {
		errs = append(errs, fmt.Sprintf("grpc.port must be 1-65535, got %d", g.Port))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLedger(l LedgerConfig) error {
	var errs []string
	switch l.Storage {
	case StorageMemory, StoragePostgres:
	case StorageSQLite:
		if strings.TrimSpace(l.SQLitePath) == "" {
			errs = append(errs, "ledger.sqlite_path must not be empty when ledger.storage is sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("ledger.storage must be one of [memory, postgres, sqlite], got %q", l.Storage))
	}
	if l.MetadataURI == "" {
		errs = append(errs, "ledger.metadata_uri must not be empty")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateCombat(c CombatConfig) error {
	var errs []string
	if _, err := dice.Parse(c.Roll); err != nil {
		errs = append(errs, fmt.Sprintf("combat.roll: %v", err))
	}
	if c.DrawMargin < 0 {
		errs = append(errs, fmt.Sprintf("combat.draw_margin must be >= 0, got %d", c.DrawMargin))
	}
	if c.Cooldown <= 0 {
		errs = append(errs, fmt.Sprintf("combat.cooldown must be > 0, got %s", c.Cooldown))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateMint(m MintConfig) error {
	switch m.Policy {
	case "allowlist":
		if len(m.Admins) == 0 {
			return errors.New("mint.admins must not be empty for the allowlist policy")
		}
	case "open":
	case "script":
		if m.Script == "" {
			return errors.New("mint.script must be set for the script policy")
		}
	default:
		return fmt.Errorf("mint.policy must be one of [allowlist, open, script], got %q", m.Policy)
	}
	if m.InstructionLimit < 0 {
		return fmt.Errorf("mint.instruction_limit must be >= 0, got %d", m.InstructionLimit)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with BUCKS_ prefix
	v.SetEnvPrefix("BUCKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the default settings.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bucks")
	v.SetDefault("database.password", "bucks")
	v.SetDefault("database.name", "bucks")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.migrate", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 28)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("grpc.host", "127.0.0.1")
	v.SetDefault("grpc.port", 50061)

	v.SetDefault("ledger.storage", StorageMemory)
	v.SetDefault("ledger.sqlite_path", "data/ledger.db")
	v.SetDefault("ledger.metadata_uri", "https://token-cdn-domain/{id}.json")
	v.SetDefault("ledger.styles_dir", "")

	v.SetDefault("combat.roll", "1d20")
	v.SetDefault("combat.draw_margin", 1)
	v.SetDefault("combat.cooldown", "24h")

	v.SetDefault("mint.policy", "allowlist")
	v.SetDefault("mint.instruction_limit", 0)
}
