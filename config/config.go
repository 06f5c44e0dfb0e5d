// Package config handles process configuration: where the database is, how
// the batch runs, and who gets told about invoices.  Used by both prized and
// prizeadmin.
//
// Values come from .prizepayout.yaml (in $HOME, or wherever --config points)
// and can be overridden from the environment with a PRIZE_ prefix, so
// PRIZE_DB_URL sets db.url.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"maze.io/x/duration"
)

const (
	envPrefix      = "PRIZE"
	configFileName = ".prizepayout"
)

type Config struct {
	DB      DBConfig      `mapstructure:"db"`
	Log     LogConfig     `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Prize   PrizeConfig   `mapstructure:"prize"`
	Invoice InvoiceConfig `mapstructure:"invoice"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Local   LocalConfig   `mapstructure:"local"`
}

type DBConfig struct {
	URL string `mapstructure:"url"`
	// Connector is "pgx" for a plain URL or "connector" for the Cloud SQL
	// connector, which reads its settings from the environment.
	Connector string `mapstructure:"connector"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type ServerConfig struct {
	ListenAddress  string   `mapstructure:"listen_address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// CacheMaxAge is how long clients may cache summary responses.
	CacheMaxAge string `mapstructure:"cache_max_age"`
}

type BatchConfig struct {
	Concurrency         int    `mapstructure:"concurrency"`
	EligibleNamePattern string `mapstructure:"eligible_name_pattern"`
	DefaultEntryFee     string `mapstructure:"default_entry_fee"`
	// MaxPlaces caps the places paid per division; 0 pays every place the
	// split strategy has.
	MaxPlaces           int    `mapstructure:"max_places"`
	PersistAttempts     int    `mapstructure:"persist_attempts"`
	Cron                string `mapstructure:"cron"`
}

type PrizeConfig struct {
	// TableFile is a YAML prize table.  Empty means the built-in table.
	TableFile     string `mapstructure:"table_file"`
	LookbackYears int    `mapstructure:"lookback_years"`
}

type InvoiceConfig struct {
	Container       string `mapstructure:"container"`
	SASExpiry       string `mapstructure:"sas_expiry"`
	FinanceGroup    string `mapstructure:"finance_group"`
	FinanceAssignee string `mapstructure:"finance_assignee"`
	FinanceStatus   string `mapstructure:"finance_status"`
	DeadlineDays    int    `mapstructure:"deadline_days"`
	ProShopEmail    string `mapstructure:"pro_shop_email"`
	FromAddress     string `mapstructure:"from_address"`
	Cron            string `mapstructure:"cron"`
}

// SASExpiryDuration parses SASExpiry.  Day and week units are accepted
// ("7d"), as well as anything time.ParseDuration takes.
func (c InvoiceConfig) SASExpiryDuration() (time.Duration, error) {
	return ParseDuration(c.SASExpiry)
}

type CacheConfig struct {
	Size int `mapstructure:"size"`
}

// LocalConfig points the standalone collaborators at files on disk, for
// running without the club's portal and back-office services.
type LocalConfig struct {
	ExportDir       string `mapstructure:"export_dir"`
	PlayersFile     string `mapstructure:"players_file"`
	DocumentDir     string `mapstructure:"document_dir"`
	DocumentBaseURL string `mapstructure:"document_base_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.url", "")
	v.SetDefault("db.connector", "pgx")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", false)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("server.listen_address", ":8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.cache_max_age", "1m")
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("batch.eligible_name_pattern", ".*")
	v.SetDefault("batch.default_entry_fee", "5.00")
	v.SetDefault("batch.max_places", 0)
	v.SetDefault("batch.persist_attempts", 3)
	v.SetDefault("batch.cron", "0 21 * * *")
	v.SetDefault("prize.table_file", "")
	v.SetDefault("prize.lookback_years", 5)
	v.SetDefault("invoice.container", "prize-invoices")
	v.SetDefault("invoice.sas_expiry", "30d")
	v.SetDefault("invoice.finance_group", "Prize Payouts")
	v.SetDefault("invoice.finance_assignee", "")
	v.SetDefault("invoice.finance_status", "To Pay")
	v.SetDefault("invoice.deadline_days", 7)
	v.SetDefault("invoice.pro_shop_email", "")
	v.SetDefault("invoice.from_address", "")
	v.SetDefault("invoice.cron", "")
	v.SetDefault("cache.size", 256)
	v.SetDefault("local.export_dir", "exports")
	v.SetDefault("local.players_file", "")
	v.SetDefault("local.document_dir", "documents")
	v.SetDefault("local.document_base_url", "")
}

// Load reads configuration.  path may name a config file explicitly; when it
// is empty, $HOME/.prizepayout.yaml is used if it exists.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		v.SetConfigName(configFileName)
		v.AddConfigPath(home)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("can't read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("can't decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate catches settings that would only fail much later.
func (c *Config) Validate() error {
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch.concurrency must be at least 1, got %d", c.Batch.Concurrency)
	}
	if c.Batch.PersistAttempts < 1 {
		return fmt.Errorf("batch.persist_attempts must be at least 1, got %d", c.Batch.PersistAttempts)
	}
	if c.Batch.MaxPlaces < 0 {
		return fmt.Errorf("batch.max_places can't be negative, got %d", c.Batch.MaxPlaces)
	}
	if c.Prize.LookbackYears < 0 {
		return fmt.Errorf("prize.lookback_years can't be negative, got %d", c.Prize.LookbackYears)
	}
	if _, err := ParseDuration(c.Server.CacheMaxAge); err != nil {
		return fmt.Errorf("server.cache_max_age: %w", err)
	}
	if _, err := c.Invoice.SASExpiryDuration(); err != nil {
		return fmt.Errorf("invoice.sas_expiry: %w", err)
	}
	switch c.DB.Connector {
	case "pgx", "connector":
	default:
		return fmt.Errorf("unknown db.connector %q", c.DB.Connector)
	}
	return nil
}

// ParseDuration accepts the extended units of maze.io/x/duration.
func ParseDuration(s string) (time.Duration, error) {
	d, err := duration.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(d), nil
}
