package config

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/flashybank-client/internal/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix = "FLASHY"

type Config interface {
	AppConfig
	APIConfig
	StorageConfig
	QuickModeConfig
}

type mainConfig struct {
	App       `mapstructure:",squash"`
	API       `mapstructure:"api"`
	Storage   `mapstructure:"storage"`
	QuickMode `mapstructure:"quickmode"`
}

// Load reads configuration from the given file (or flashy.yaml in the usual
// locations when configFile is empty) and FLASHY_* environment variables.
// Environment variables use underscores for nesting, e.g. FLASHY_API_BASEURL.
func Load(configFile string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("[config.Load] read %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("flashy")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/flashybank")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("[config.Load] read config: %w", err)
			}
		}
	}

	var cfg mainConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		)
	}); err != nil {
		return nil, fmt.Errorf("[config.Load] unmarshal: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "FlashyBank")
	v.SetDefault("environment", "development")

	v.SetDefault("api.baseurl", "http://localhost:8080")
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("api.requestspersecond", 0)
	v.SetDefault("api.burst", 1)
	v.SetDefault("api.rememberlogin", true)

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", defaultStoragePath())
	v.SetDefault("storage.passphrase", "")
	v.SetDefault("storage.redisaddr", "127.0.0.1:6379")
	v.SetDefault("storage.redispassword", "")
	v.SetDefault("storage.redisdb", 0)
	v.SetDefault("storage.redisprefix", "flashybank:")

	v.SetDefault("quickmode.duration", "2h")
	v.SetDefault("quickmode.warninglead", "30m")
	v.SetDefault("quickmode.pollinterval", "1s")
}

func (c mainConfig) validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "[config.Load] api.baseurl is required")
	}
	if c.API.Timeout <= 0 {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "[config.Load] api.timeout must be positive")
	}
	switch c.Storage.Driver {
	case StorageDriverFile, StorageDriverRedis, StorageDriverMemory:
	default:
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "[config.Load] unknown storage.driver %q", c.Storage.Driver)
	}
	if c.QuickMode.Duration <= 0 || c.QuickMode.PollInterval <= 0 {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "[config.Load] quickmode durations must be positive")
	}
	// a slower poll can step over the one-minute reminder window
	if c.QuickMode.PollInterval >= time.Minute {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "[config.Load] quickmode.pollinterval must be under a minute")
	}
	if c.QuickMode.WarningLead <= 0 || c.QuickMode.WarningLead >= c.QuickMode.Duration {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "[config.Load] quickmode.warninglead must be within the duration")
	}
	return nil
}
