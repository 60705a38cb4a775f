// Package config loads process configuration and persists the user's
// render parameters between restarts.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the whole process configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Stats    StatsConfig    `mapstructure:"stats"`
	Render   RenderConfig   `mapstructure:"render"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	DataDir  string         `mapstructure:"data_dir" validate:"required"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	MaxUploadMB     int           `mapstructure:"max_upload_mb" validate:"min=1"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"min=0"`
}

type CacheConfig struct {
	Backend       string `mapstructure:"backend" validate:"oneof=memory redis postgres"`
	MaxSize       int    `mapstructure:"max_size" validate:"min=1"`
	MemoryMaxCost int64  `mapstructure:"memory_max_cost" validate:"min=0"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
	Prefix   string `mapstructure:"prefix"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns" validate:"min=1"`
}

type UpstreamConfig struct {
	TileURL   string        `mapstructure:"tile_url" validate:"required,contains=%d"`
	RateLimit int           `mapstructure:"rate_limit" validate:"min=1"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

type StatsConfig struct {
	ChunkSize    int           `mapstructure:"chunk_size" validate:"min=1"`
	ChunkPause   time.Duration `mapstructure:"chunk_pause"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type RenderConfig struct {
	Mode           string `mapstructure:"mode"`
	Device         string `mapstructure:"device" validate:"oneof=gpu cpu"`
	FilterIDs      []int  `mapstructure:"filter_ids" validate:"dive,min=1,max=63"`
	CachingEnabled bool   `mapstructure:"caching_enabled"`
}

type FeedConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

type DiscordConfig struct {
	Token         string `mapstructure:"token"`
	GuildID       string `mapstructure:"guild_id"`
	CommandPrefix string `mapstructure:"command_prefix"`
}

var validate = validator.New()

// Load reads the optional YAML file named by OVERLAY_CONFIG (or path, when
// given), then environment variables prefixed OVERLAY_ (server.port ->
// OVERLAY_SERVER_PORT), on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OVERLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("OVERLAY_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.max_size", 100)
	v.SetDefault("cache.memory_max_cost", 64<<20)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "overlay:")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 5)

	v.SetDefault("upstream.tile_url", "https://backend.wplace.live/files/s0/tiles/%d/%d.png")
	v.SetDefault("upstream.rate_limit", 3)
	v.SetDefault("upstream.timeout", 12*time.Second)
	v.SetDefault("upstream.cache_ttl", 2*time.Minute)

	v.SetDefault("stats.chunk_size", 4)
	v.SetDefault("stats.chunk_pause", 200*time.Millisecond)
	v.SetDefault("stats.fetch_timeout", 10*time.Second)

	v.SetDefault("render.mode", "dot")
	v.SetDefault("render.device", "gpu")
	v.SetDefault("render.filter_ids", []int{})
	v.SetDefault("render.caching_enabled", true)

	v.SetDefault("feed.url", "")

	v.SetDefault("discord.token", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.command_prefix", "!")

	v.SetDefault("data_dir", "data")
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Cache.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("invalid config: redis.addr is required for the redis cache backend")
	}
	if c.Cache.Backend == "postgres" && c.Postgres.DSN == "" {
		return errors.New("invalid config: postgres.dsn is required for the postgres cache backend")
	}
	return nil
}

// ServerAddr is host:port for the HTTP listener.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
