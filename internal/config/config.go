// Package config loads runtime configuration from a YAML file and
// environment variables. Environment variables use the ETL_ prefix and
// override file values; flags in cmd/ override both.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"crypto-metrics-etl/internal/domain"
)

// Config holds the full runtime configuration.
type Config struct {
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`

	// Sources to run, in priority order with the most trusted last.
	Sources []string `mapstructure:"sources"`

	CoinGeckoBaseURL   string `mapstructure:"coingecko_base_url"`
	CoinGeckoAPIKey    string `mapstructure:"coingecko_api_key"`
	CoinPaprikaBaseURL string `mapstructure:"coinpaprika_base_url"`
	CoinPaprikaAPIKey  string `mapstructure:"coinpaprika_api_key"`
	CSVPath            string `mapstructure:"csv_path"`
	WSURL              string `mapstructure:"ws_url"`
	WSSubscribe        string `mapstructure:"ws_subscribe"`

	Interval time.Duration `mapstructure:"interval"`
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
	Owner    string        `mapstructure:"owner"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Load reads configuration. A .env file in the working directory is
// loaded first when present; path, when non-empty, names an explicit
// YAML config file, otherwise etl.yml is searched in the usual places.
func Load(path string) (*Config, error) {
	// Development convenience only; absence is not an error.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("etl")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/crypto-metrics-etl")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
			// No file found; defaults and environment apply.
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("sources", []string{"csv", "coinpaprika", "coingecko"})
	v.SetDefault("interval", 5*time.Minute)
	v.SetDefault("lease_ttl", 5*time.Minute)
	v.SetDefault("owner", "")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("csv_path", "data/drop.csv")
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("config: at least one source required")
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if !domain.Source(s).IsValid() {
			return fmt.Errorf("config: unknown source %q", s)
		}
		if seen[s] {
			return fmt.Errorf("config: source %q listed twice", s)
		}
		seen[s] = true
	}
	if c.Interval <= 0 {
		return fmt.Errorf("config: interval must be positive")
	}
	if c.LeaseTTL <= 0 {
		return fmt.Errorf("config: lease_ttl must be positive")
	}
	return nil
}

// SourceList converts the configured source names into domain values.
// Call after Validate.
func (c *Config) SourceList() []domain.Source {
	out := make([]domain.Source, len(c.Sources))
	for i, s := range c.Sources {
		out[i] = domain.Source(s)
	}
	return out
}
