// Package config loads the codecache CLI configuration. Environment
// variables (CODECACHE_*) override the config file, which overrides defaults.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const EnvPrefix = "CODECACHE"

// Backend names.
const (
	BackendMemory    = "memory"
	BackendFile      = "file"
	BackendRedis     = "redis"
	BackendRistretto = "ristretto"
	BackendBigCache  = "bigcache"
)

// Executor names.
const (
	ExecutorNone = "none"
	ExecutorPHP  = "php"
	ExecutorExpr = "expr"
)

type Config struct {
	Identifier      string        `mapstructure:"identifier"`
	Backend         string        `mapstructure:"backend"`
	Namespace       string        `mapstructure:"namespace"`
	DefaultLifetime time.Duration `mapstructure:"default_lifetime"`
	Compress        bool          `mapstructure:"compress"`
	Executor        string        `mapstructure:"executor"`

	Log       Log       `mapstructure:"log"`
	File      File      `mapstructure:"file"`
	Redis     Redis     `mapstructure:"redis"`
	Ristretto Ristretto `mapstructure:"ristretto"`
	BigCache  BigCache  `mapstructure:"bigcache"`
	PHP       PHP       `mapstructure:"php"`
	Expr      Expr      `mapstructure:"expr"`
}

type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type File struct {
	Dir       string `mapstructure:"dir"`
	MetaCodec string `mapstructure:"meta_codec"` // json | cbor | msgpack | proto
}

type Redis struct {
	Addrs    []string      `mapstructure:"addrs"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	GenTTL   time.Duration `mapstructure:"gen_ttl"`
}

type Ristretto struct {
	NumCounters int64 `mapstructure:"num_counters"`
	MaxCost     int64 `mapstructure:"max_cost"`
	BufferItems int64 `mapstructure:"buffer_items"`
}

type BigCache struct {
	Shards             int `mapstructure:"shards"`
	MaxEntrySize       int `mapstructure:"max_entry_size"`
	HardMaxCacheSizeMB int `mapstructure:"hard_max_cache_size_mb"`
}

type PHP struct {
	Binary  string        `mapstructure:"binary"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Expr struct {
	Parameters map[string]any `mapstructure:"parameters"`
}

var defaults = map[string]any{
	"identifier":       "codecache",
	"backend":          BackendFile,
	"namespace":        "codecache",
	"default_lifetime": time.Duration(0),
	"compress":         false,
	"executor":         ExecutorNone,

	"log.level":       "info",
	"log.development": false,

	"file.dir":        ".codecache",
	"file.meta_codec": "cbor",

	"redis.addrs":    []string{"127.0.0.1:6379"},
	"redis.username": "",
	"redis.password": "",
	"redis.db":       0,
	"redis.timeout":  2 * time.Second,
	"redis.gen_ttl":  time.Duration(0),

	"ristretto.num_counters": int64(100_000),
	"ristretto.max_cost":     int64(64 << 20),
	"ristretto.buffer_items": int64(64),

	"bigcache.shards":                 1024,
	"bigcache.max_entry_size":         4096,
	"bigcache.hard_max_cache_size_mb": 0,

	"php.binary":  "php",
	"php.args":    []string{},
	"php.timeout": 30 * time.Second,

	"expr.parameters": map[string]any{},
}

// New returns a viper instance with defaults and env binding set up.
func New() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (optional) into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	decoderOpt := func(cfg *mapstructure.DecoderConfig) {
		cfg.ErrorUnused = true
		cfg.WeaklyTypedInput = true
		cfg.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			lifetimeHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg, decoderOpt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// lifetimeHook accepts "unlimited" and "default" for durations.
func lifetimeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch strings.ToLower(data.(string)) {
	case "unlimited", "never":
		return time.Duration(0), nil
	case "default":
		return time.Duration(-1), nil
	}
	return data, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendFile, BackendRedis, BackendRistretto, BackendBigCache:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	switch c.Executor {
	case ExecutorNone, ExecutorPHP, ExecutorExpr:
	default:
		return fmt.Errorf("config: unknown executor %q", c.Executor)
	}
	if c.Namespace == "" {
		return fmt.Errorf("config: namespace must not be empty")
	}
	if c.Backend == BackendFile && c.File.Dir == "" {
		return fmt.Errorf("config: file.dir must not be empty")
	}
	if c.Backend == BackendRedis && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("config: redis.addrs must not be empty")
	}
	return nil
}
