package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Storage StorageConfig `mapstructure:"storage"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Outbox  OutboxConfig  `mapstructure:"outbox"`
	Timer   TimerConfig   `mapstructure:"timer"`
	Cues    CuesConfig    `mapstructure:"cues"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Stub    StubConfig    `mapstructure:"stub"`
}

// BackendConfig defines how the training backend is reached
type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// StorageConfig defines where the session slot lives
type StorageConfig struct {
	Type string `mapstructure:"type"` // "file" or "redis"
	Dir  string `mapstructure:"dir"`
	Slot string `mapstructure:"slot"`
}

// RedisConfig is used when storage.type is "redis"
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// OutboxConfig defines the completion outbox database
type OutboxConfig struct {
	Path string `mapstructure:"path"`
}

// TimerConfig tunes the timer engine
type TimerConfig struct {
	RestoreCatchUpCap time.Duration `mapstructure:"restore_catchup_cap"`
	RenderTick        time.Duration `mapstructure:"render_tick"`
}

// CuesConfig tunes cue scheduling
type CuesConfig struct {
	Lead time.Duration `mapstructure:"lead"`
}

// AudioConfig selects the cue player
type AudioConfig struct {
	Player string `mapstructure:"player"` // "bell" or "none"
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"` // empty logs to stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MetricsConfig defines the Prometheus endpoint; an empty listen address disables it
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// StubConfig defines the local stub backend
type StubConfig struct {
	Listen  string `mapstructure:"listen"`
	Library string `mapstructure:"library"`
}

// Load loads configuration from defaults, an optional file, TRAINER_*
// environment variables and, when flags is non-nil, its changed flags.
// Flag names use dots like the config keys, e.g. --backend.url.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetEnvPrefix("TRAINER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, use defaults and environment variables
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Backend defaults
	v.SetDefault("backend.url", "http://127.0.0.1:8086")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.retries", 3)

	// Storage defaults
	v.SetDefault("storage.type", "file")
	v.SetDefault("storage.dir", "./state")
	v.SetDefault("storage.slot", "training-session")

	// Redis defaults
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "training-timer:")

	// Outbox defaults
	v.SetDefault("outbox.path", "./state/outbox.db")

	// Timer defaults
	v.SetDefault("timer.restore_catchup_cap", "30s")
	v.SetDefault("timer.render_tick", "100ms")
	v.SetDefault("cues.lead", "3s")
	v.SetDefault("audio.player", "bell")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "./state/training-timer.log")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	// Metrics are off unless asked for
	v.SetDefault("metrics.listen", "")

	// Stub backend defaults
	v.SetDefault("stub.listen", "127.0.0.1:8086")
	v.SetDefault("stub.library", "./configs/workouts.yaml")
}

// validate validates the configuration
func validate(cfg *Config) error {
	u, err := url.Parse(cfg.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend url: %q", cfg.Backend.URL)
	}
	if cfg.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive: %s", cfg.Backend.Timeout)
	}
	if cfg.Backend.Retries < 1 {
		return fmt.Errorf("backend retries must be at least 1: %d", cfg.Backend.Retries)
	}

	switch cfg.Storage.Type {
	case "file":
		if cfg.Storage.Dir == "" {
			return fmt.Errorf("storage dir is required")
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %q", cfg.Storage.Type)
	}
	if cfg.Storage.Slot == "" {
		return fmt.Errorf("storage slot is required")
	}
	if cfg.Outbox.Path == "" {
		return fmt.Errorf("outbox path is required")
	}

	if cfg.Timer.RestoreCatchUpCap <= 0 {
		return fmt.Errorf("restore catch-up cap must be positive: %s", cfg.Timer.RestoreCatchUpCap)
	}
	if cfg.Timer.RenderTick <= 0 {
		return fmt.Errorf("render tick must be positive: %s", cfg.Timer.RenderTick)
	}
	if cfg.Cues.Lead < 0 {
		return fmt.Errorf("cue lead cannot be negative: %s", cfg.Cues.Lead)
	}

	switch cfg.Audio.Player {
	case "bell", "none":
	default:
		return fmt.Errorf("unknown audio player: %q", cfg.Audio.Player)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format: %q", cfg.Logging.Format)
	}

	return nil
}
