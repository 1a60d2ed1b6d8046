package internal

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/tuannm99/novabuf/internal/logger"
)

type NovaBufConfig struct {
	AppName string `mapstructure:"app_name"`

	Pool struct {
		Capacity int `mapstructure:"capacity"`
	} `mapstructure:"pool"`

	Storage struct {
		Workdir string `mapstructure:"workdir"`
		Base    string `mapstructure:"base"`
	} `mapstructure:"storage"`

	Log logger.Config `mapstructure:"log"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	} `mapstructure:"metrics"`
}

// LoadConfig reads a YAML config file. An empty path uses defaults only.
// Every key can be overridden from the environment, e.g.
// NOVABUF_POOL_CAPACITY=64.
func LoadConfig(path string) (*NovaBufConfig, error) {
	v := viper.New()
	v.SetDefault("app_name", "novabuf")
	v.SetDefault("pool.capacity", 128)
	v.SetDefault("storage.workdir", "./data")
	v.SetDefault("storage.base", "pages")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "stderr")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9109")

	v.SetEnvPrefix("NOVABUF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg NovaBufConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Pool.Capacity <= 0 {
		return nil, fmt.Errorf("config: pool.capacity must be positive, got %d", cfg.Pool.Capacity)
	}

	return &cfg, nil
}
