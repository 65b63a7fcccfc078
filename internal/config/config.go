// Package config loads the application configuration from file and
// environment and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	BrightData    BrightDataConfig    `yaml:"brightdata" mapstructure:"brightdata"`
	LeadMagic     LeadMagicConfig     `yaml:"leadmagic" mapstructure:"leadmagic"`
	BetterContact BetterContactConfig `yaml:"bettercontact" mapstructure:"bettercontact"`
	Match         MatchConfig         `yaml:"match" mapstructure:"match"`
	Filter        FilterConfig        `yaml:"filter" mapstructure:"filter"`
	Scan          ScanConfig          `yaml:"scan" mapstructure:"scan"`
	Checkpoint    CheckpointConfig    `yaml:"checkpoint" mapstructure:"checkpoint"`
	Spool         SpoolConfig         `yaml:"spool" mapstructure:"spool"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the roster backend.
type StoreConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	Path    string `yaml:"path" mapstructure:"path"`
	Sheet   string `yaml:"sheet" mapstructure:"sheet"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

// RateConfig is the per-provider traffic envelope.
type RateConfig struct {
	MaxInFlight   int `yaml:"max_in_flight" mapstructure:"max_in_flight"`
	MinIntervalMS int `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	MaxAttempts   int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// MinInterval returns the spacing floor as a duration.
func (r RateConfig) MinInterval() time.Duration {
	return time.Duration(r.MinIntervalMS) * time.Millisecond
}

// BrightDataConfig holds the profile snapshot API settings.
type BrightDataConfig struct {
	APIKey           string     `yaml:"api_key" mapstructure:"api_key"`
	DatasetID        string     `yaml:"dataset_id" mapstructure:"dataset_id"`
	BaseURL          string     `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int        `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BatchSize        int        `yaml:"batch_size" mapstructure:"batch_size"`
	MaxBatches       int        `yaml:"max_batches" mapstructure:"max_batches"`
	PollIntervalSecs int        `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	MaxPollAttempts  int        `yaml:"max_poll_attempts" mapstructure:"max_poll_attempts"`
	Rate             RateConfig `yaml:"rate" mapstructure:"rate"`
}

// LeadMagicConfig holds the synchronous finder API settings.
type LeadMagicConfig struct {
	APIKey        string     `yaml:"api_key" mapstructure:"api_key"`
	BaseURL       string     `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs   int        `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConcurrent int        `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	Rate          RateConfig `yaml:"rate" mapstructure:"rate"`
}

// BetterContactConfig holds the async enrichment API settings.
type BetterContactConfig struct {
	APIKey           string     `yaml:"api_key" mapstructure:"api_key"`
	BaseURL          string     `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int        `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BatchSize        int        `yaml:"batch_size" mapstructure:"batch_size"`
	MaxBatches       int        `yaml:"max_batches" mapstructure:"max_batches"`
	PollIntervalSecs int        `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	MaxPollAttempts  int        `yaml:"max_poll_attempts" mapstructure:"max_poll_attempts"`
	Rate             RateConfig `yaml:"rate" mapstructure:"rate"`
}

// MatchConfig configures company-name matching.
type MatchConfig struct {
	// ConfigPath points at an optional YAML file overriding the threshold,
	// alias groups and suffix table.
	ConfigPath string `yaml:"config_path" mapstructure:"config_path"`
}

// FilterConfig configures the skip rules.
type FilterConfig struct {
	InternalDomains []string `yaml:"internal_domains" mapstructure:"internal_domains"`
}

// ScanConfig holds the scan defaults the run command's flags override.
type ScanConfig struct {
	StartRow  int `yaml:"start_row" mapstructure:"start_row"`
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// CheckpointConfig configures checkpoint persistence.
type CheckpointConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// SpoolConfig configures the failed-update spool.
type SpoolConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("JOBCHANGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.backend", "xlsx")
	v.SetDefault("store.path", "contacts.xlsx")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("scan.start_row", 2)
	v.SetDefault("scan.batch_size", 10)
	v.SetDefault("checkpoint.dir", "checkpoints")
	v.SetDefault("spool.dir", "spool")
	v.SetDefault("brightdata.timeout_secs", 90)
	v.SetDefault("brightdata.batch_size", 20)
	v.SetDefault("brightdata.max_batches", 3)
	v.SetDefault("brightdata.poll_interval_secs", 15)
	v.SetDefault("brightdata.max_poll_attempts", 60)
	v.SetDefault("brightdata.rate.max_in_flight", 3)
	v.SetDefault("brightdata.rate.min_interval_ms", 500)
	v.SetDefault("brightdata.rate.max_attempts", 3)
	v.SetDefault("leadmagic.timeout_secs", 30)
	v.SetDefault("leadmagic.max_concurrent", 5)
	v.SetDefault("leadmagic.rate.max_in_flight", 5)
	v.SetDefault("leadmagic.rate.min_interval_ms", 200)
	v.SetDefault("leadmagic.rate.max_attempts", 3)
	v.SetDefault("bettercontact.timeout_secs", 30)
	v.SetDefault("bettercontact.batch_size", 10)
	v.SetDefault("bettercontact.max_batches", 2)
	v.SetDefault("bettercontact.poll_interval_secs", 10)
	v.SetDefault("bettercontact.max_poll_attempts", 60)
	v.SetDefault("bettercontact.rate.max_in_flight", 2)
	v.SetDefault("bettercontact.rate.min_interval_ms", 500)
	v.SetDefault("bettercontact.rate.max_attempts", 3)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command actually needs. mode is the command
// name: "run" needs the provider credentials, "serve" and "status" only the
// local paths.
func (c *Config) Validate(mode string) error {
	var missing []string

	checkStore := func() {
		switch c.Store.Backend {
		case "xlsx", "sqlite":
			if c.Store.Path == "" {
				missing = append(missing, "store.path is required")
			}
		case "postgres":
			if c.Store.DSN == "" {
				missing = append(missing, "store.dsn is required")
			}
		default:
			missing = append(missing, "store.backend must be xlsx, sqlite or postgres")
		}
	}

	switch mode {
	case "run":
		checkStore()
		if c.BrightData.APIKey == "" {
			missing = append(missing, "brightdata.api_key is required")
		}
		if c.BrightData.DatasetID == "" {
			missing = append(missing, "brightdata.dataset_id is required")
		}
		if c.LeadMagic.APIKey == "" {
			missing = append(missing, "leadmagic.api_key is required")
		}
		if c.BetterContact.APIKey == "" {
			missing = append(missing, "bettercontact.api_key is required")
		}
	case "status":
		// Checkpoints alone suffice; the store is optional for the drift report.
	case "serve":
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
