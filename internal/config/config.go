// Package config loads service configuration via viper, matching the
// corpus's preferred layered config style (defaults, file, environment)
// over a single hardcoded connection string.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved configuration for one service instance.
type Config struct {
	Repositories []string `mapstructure:"repositories"`

	UpdateInterval time.Duration `mapstructure:"update_interval"`
	CorpusDir      string        `mapstructure:"corpus_dir"`
	IndexDir       string        `mapstructure:"index_dir"`

	LimitDefault      int `mapstructure:"limit_default"`
	LimitMax          int `mapstructure:"limit_max"`
	IngestConcurrency int `mapstructure:"ingest_concurrency"`
	RelationCacheSize int `mapstructure:"relation_cache_size"`

	DebugAddr string `mapstructure:"debug_addr"`
}

// Load reads configuration from (in ascending priority) built-in
// defaults, a config file named "cartograph" discovered on the given
// search paths, and CARTOGRAPH_-prefixed environment variables.
func Load(searchPaths ...string) (Config, error) {
	v := viper.New()
	v.SetConfigName("cartograph")
	v.SetConfigType("yaml")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("cartograph")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Repositories) == 0 {
		return Config{}, fmt.Errorf("at least one repository must be configured")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("update_interval", 5*time.Minute)
	v.SetDefault("corpus_dir", "./data/corpus")
	v.SetDefault("index_dir", "./data/index")
	v.SetDefault("limit_default", 100)
	v.SetDefault("limit_max", 1000)
	v.SetDefault("ingest_concurrency", 4)
	v.SetDefault("relation_cache_size", 256)
	v.SetDefault("debug_addr", ":8090")
}
