package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all affinity configuration. Values come from Default() and
// may be overridden by AFFINITY_* environment variables via FromEnv.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Engine   EngineConfig   `toml:"engine"`
	RPC      RPCConfig      `toml:"rpc"`
	Hooks    HooksConfig    `toml:"hooks"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"` // empty = store.DefaultDBPath()
}

// RedisConfig selects the Redis backend when Addr is set.
type RedisConfig struct {
	Addr   string        `toml:"addr"`
	Prefix string        `toml:"prefix"`
	TTL    time.Duration `toml:"ttl"`
}

type EngineConfig struct {
	Archetype     string        `toml:"archetype"`      // for relationships created without one
	Seed          uint64        `toml:"seed"`           // base seed for per-relationship noise
	FlushInterval time.Duration `toml:"flush_interval"` // write-behind period
}

// RPCConfig enables the gRPC listener when Addr is set.
type RPCConfig struct {
	Addr string `toml:"addr"`
}

type HooksConfig struct {
	URL     string `toml:"url"`
	Timeout int    `toml:"timeout"` // seconds
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Redis: RedisConfig{
			Prefix: "affinity",
		},
		Engine: EngineConfig{
			Archetype:     "anxious_attached",
			Seed:          1,
			FlushInterval: 30 * time.Second,
		},
		Hooks: HooksConfig{
			URL:     "http://127.0.0.1:37778",
			Timeout: 5,
		},
	}
}

// FromEnv returns Default() with AFFINITY_* overrides applied. Malformed
// numeric values are logged and ignored.
func FromEnv() Config {
	c := Default()
	c.ApplyEnv(os.Getenv)
	return c
}

// ApplyEnv overrides fields from the given lookup function.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("AFFINITY_DB", &c.Database.Path)
	str("AFFINITY_BIND", &c.Server.Bind)
	str("AFFINITY_REDIS_ADDR", &c.Redis.Addr)
	str("AFFINITY_REDIS_PREFIX", &c.Redis.Prefix)
	str("AFFINITY_ARCHETYPE", &c.Engine.Archetype)
	str("AFFINITY_GRPC_ADDR", &c.RPC.Addr)
	str("AFFINITY_URL", &c.Hooks.URL)

	if v := getenv("AFFINITY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			c.Server.Port = port
		} else {
			log.Printf("config: ignoring AFFINITY_PORT=%q", v)
		}
	}
	if v := getenv("AFFINITY_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Engine.Seed = seed
		} else {
			log.Printf("config: ignoring AFFINITY_SEED=%q", v)
		}
	}
	if v := getenv("AFFINITY_FLUSH_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Engine.FlushInterval = time.Duration(secs) * time.Second
		} else {
			log.Printf("config: ignoring AFFINITY_FLUSH_SECONDS=%q", v)
		}
	}
	if v := getenv("AFFINITY_REDIS_TTL_HOURS"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h >= 0 {
			c.Redis.TTL = time.Duration(h) * time.Hour
		} else {
			log.Printf("config: ignoring AFFINITY_REDIS_TTL_HOURS=%q", v)
		}
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
