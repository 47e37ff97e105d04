// Package config loads engine configuration from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"token-curve-engine/internal/curve"
	"token-curve-engine/internal/fees"
	"token-curve-engine/internal/logger"
)

// EnvPrefix is prepended to every environment override, e.g. CURVE_ENGINE_STORAGE_DRIVER.
const EnvPrefix = "CURVE_ENGINE"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	DefaultConnectRetries = 5
	DefaultSnapshotCron   = "@every 30s"
	DefaultMetricsAddr    = ":9090"
	DefaultSQLitePath     = "curve-engine.db"
)

// Config is the root configuration.
type Config struct {
	Curve     CurveConfig     `mapstructure:"curve"`
	Fees      FeesConfig      `mapstructure:"fees"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       logger.Config   `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// CurveConfig holds the bonding curve constants in base units.
type CurveConfig struct {
	VirtualTokenReserves uint64 `mapstructure:"virtual_token_reserves"`
	VirtualSolReserves   uint64 `mapstructure:"virtual_sol_reserves"`
	TotalSupply          uint64 `mapstructure:"total_supply"`
	GraduationThreshold  uint64 `mapstructure:"graduation_threshold"`
	TokenDecimals        int32  `mapstructure:"token_decimals"`
	SolDecimals          int32  `mapstructure:"sol_decimals"`
}

// FeesConfig holds the trading fee rates in basis points.
type FeesConfig struct {
	TotalBps   uint32 `mapstructure:"total_bps"`
	CreatorBps uint32 `mapstructure:"creator_bps"`
}

// StorageConfig selects the state store and the optional trade archive.
type StorageConfig struct {
	Driver         string `mapstructure:"driver"`
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	SQLitePath     string `mapstructure:"sqlite_path"`
	ClickHouseDSN  string `mapstructure:"clickhouse_dsn"`
	ConnectRetries uint   `mapstructure:"connect_retries"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables serving.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	Addr      string `mapstructure:"addr"`
}

// SchedulerConfig configures the periodic metrics snapshot. An empty spec disables it.
type SchedulerConfig struct {
	SnapshotCron string `mapstructure:"snapshot_cron"`
}

func defaults() map[string]interface{} {
	params := curve.DefaultParams()
	policy := fees.DefaultPolicy()
	logCfg := logger.DefaultConfig()
	return map[string]interface{}{
		"curve.virtual_token_reserves": params.VirtualTokenReserves,
		"curve.virtual_sol_reserves":   params.VirtualSolReserves,
		"curve.total_supply":           params.TotalSupply,
		"curve.graduation_threshold":   params.GraduationThreshold,
		"curve.token_decimals":         params.TokenDecimals,
		"curve.sol_decimals":           params.SolDecimals,
		"fees.total_bps":               policy.TotalBps,
		"fees.creator_bps":             policy.CreatorBps,
		"storage.driver":               DriverMemory,
		"storage.postgres_dsn":         "",
		"storage.sqlite_path":          DefaultSQLitePath,
		"storage.clickhouse_dsn":       "",
		"storage.connect_retries":      DefaultConnectRetries,
		"log.level":                    logCfg.Level,
		"log.file":                     logCfg.File,
		"log.max_size":                 logCfg.MaxSize,
		"log.max_age":                  logCfg.MaxAge,
		"log.max_backups":              logCfg.MaxBackups,
		"log.compress":                 logCfg.Compress,
		"log.development":              logCfg.Development,
		"metrics.namespace":            "curve_engine",
		"metrics.addr":                 "",
		"scheduler.snapshot_cron":      DefaultSnapshotCron,
	}
}

// Load reads the config file at path, if any, applies environment overrides and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := c.CurveParams().Validate(); err != nil {
		return fmt.Errorf("curve: %w", err)
	}
	if err := c.FeePolicy().Validate(); err != nil {
		return fmt.Errorf("fees: %w", err)
	}
	if err := c.Storage.validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if c.Scheduler.SnapshotCron != "" {
		if _, err := cron.ParseStandard(c.Scheduler.SnapshotCron); err != nil {
			return fmt.Errorf("scheduler: invalid snapshot_cron %q: %w", c.Scheduler.SnapshotCron, err)
		}
	}
	return nil
}

func (s StorageConfig) validate() error {
	switch s.Driver {
	case DriverMemory:
	case DriverPostgres:
		if s.PostgresDSN == "" {
			return errors.New("postgres_dsn is required for the postgres driver")
		}
		if err := validateURL(s.PostgresDSN, "postgres"); err != nil {
			return fmt.Errorf("postgres_dsn: %w", err)
		}
	case DriverSQLite:
		if s.SQLitePath == "" {
			return errors.New("sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown driver %q", s.Driver)
	}
	if s.ClickHouseDSN != "" {
		if err := validateURL(s.ClickHouseDSN, "clickhouse"); err != nil {
			return fmt.Errorf("clickhouse_dsn: %w", err)
		}
	}
	if s.ConnectRetries == 0 {
		return errors.New("connect_retries must be positive")
	}
	return nil
}

func validateURL(rawURL, scheme string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, scheme) {
		return fmt.Errorf("expected %s:// scheme", scheme)
	}
	return nil
}

// CurveParams converts the curve section to curve parameters.
func (c *Config) CurveParams() curve.Params {
	return curve.Params{
		VirtualTokenReserves: c.Curve.VirtualTokenReserves,
		VirtualSolReserves:   c.Curve.VirtualSolReserves,
		TotalSupply:          c.Curve.TotalSupply,
		GraduationThreshold:  c.Curve.GraduationThreshold,
		TokenDecimals:        c.Curve.TokenDecimals,
		SolDecimals:          c.Curve.SolDecimals,
	}
}

// FeePolicy converts the fees section to a fee policy.
func (c *Config) FeePolicy() fees.Policy {
	return fees.Policy{
		TotalBps:   c.Fees.TotalBps,
		CreatorBps: c.Fees.CreatorBps,
	}
}
