// Package config loads service configuration from an optional config.yaml
// and CONFIGCACHE_* environment variables.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/policy"
)

// EnvPrefix is prepended to every environment variable, so redis.addr is
// read from CONFIGCACHE_REDIS_ADDR.
const EnvPrefix = "CONFIGCACHE"

type Config struct {
	Log      LogConfig       `mapstructure:"log"`
	HTTP     HTTPConfig      `mapstructure:"http"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Database DatabaseConfig  `mapstructure:"database"`
	Capacity policy.Capacity `mapstructure:"capacity"`
	Remote   RemoteConfig    `mapstructure:"remote"`
	Cache    CacheConfig     `mapstructure:"cache"`
	Client   ClientConfig    `mapstructure:"client"`
	Warmup   WarmupConfig    `mapstructure:"warmup"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	// Addr empty disables the persistent tier.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type DatabaseConfig struct {
	// URL empty disables the remote tiers.
	URL    string `mapstructure:"url"`
	Schema string `mapstructure:"schema"`
}

type RemoteConfig struct {
	NegativeTTL time.Duration `mapstructure:"negative_ttl"`
}

type CacheConfig struct {
	EventBufferSize int `mapstructure:"event_buffer_size"`
}

type ClientConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type WarmupConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info"},
		HTTP:     HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Redis:    RedisConfig{Addr: "localhost:6379", Prefix: "skiplum:cfg:"},
		Capacity: policy.DefaultCapacity(),
		Remote:   RemoteConfig{NegativeTTL: 30 * time.Second},
		Cache:    CacheConfig{EventBufferSize: 100},
		Client:   ClientConfig{Timeout: 2 * time.Second},
		Warmup:   WarmupConfig{Enabled: true, MaxConcurrency: 4, Timeout: 5 * time.Second},
	}
}

// Load reads config.yaml from the working directory when present, then
// applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Capacity.VolatileBudgetBytes < 0 || c.Capacity.PersistentBudgetBytes < 0 {
		return fmt.Errorf("capacity budgets must be >= 0")
	}
	if c.Client.Timeout < 0 {
		return fmt.Errorf("client.timeout must be >= 0 (got %s)", c.Client.Timeout)
	}
	if c.Cache.EventBufferSize < 0 {
		return fmt.Errorf("cache.event_buffer_size must be >= 0 (got %d)", c.Cache.EventBufferSize)
	}
	return nil
}

// bindEnvs registers every mapstructure key with viper so AutomaticEnv
// sees nested fields during Unmarshal.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string(nil), parts...), tag)
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
