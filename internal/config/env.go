package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrMissingSecret = errors.New("jwt secret is required")

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "synk-backend")
	v.SetDefault("service.env", "development")
	v.SetDefault("service.addr", ":8080")
	v.SetDefault("service.shutdown_timeout", 10*time.Second)
	v.SetDefault("service.allowed_origins", []string{})

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.ping_timeout", 2*time.Second)
	v.SetDefault("redis.key_prefix", "{synk}")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_open_conns", 25)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 15*time.Minute)
	v.SetDefault("postgres.conn_max_idle_time", 5*time.Minute)
	v.SetDefault("postgres.ping_timeout", 5*time.Second)
	v.SetDefault("postgres.migrate", true)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("tracer.address", "")

	v.SetDefault("ws.idle_timeout", 60*time.Second)
	v.SetDefault("ws.ping_interval", 25*time.Second)
	v.SetDefault("ws.write_timeout", 10*time.Second)
	v.SetDefault("ws.send_timeout", 2*time.Second)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.read_limit", 512*1024)

	v.SetDefault("presence.heartbeat_interval", 10*time.Second)
	v.SetDefault("presence.instance_ttl", 30*time.Second)
	v.SetDefault("presence.profile_cache_size", 10000)

	v.SetDefault("bridge.channel", "synk:bridge")
	v.SetDefault("bridge.outbox_size", 1024)

	v.SetDefault("jwt_secret", "")
}

// Load reads configuration from an optional config file, a .env file and
// the environment (SYNK_ prefix, "." replaced by "_"). The unprefixed
// variables REDIS_URL, DATABASE_URL and JWT_SECRET are honoured as well.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("synk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SYNK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("redis.url", "SYNK_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("postgres.dsn", "SYNK_POSTGRES_DSN", "DATABASE_URL")
	_ = v.BindEnv("jwt_secret", "SYNK_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("logger.level", "SYNK_LOGGER_LEVEL", "LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks what serve cannot run without.
func (c *Config) Validate() error {
	if c.SecretToken == "" {
		return ErrMissingSecret
	}
	if c.WebSocket.PingInterval >= c.WebSocket.IdleTimeout {
		return fmt.Errorf("ws.ping_interval (%s) must be shorter than ws.idle_timeout (%s)",
			c.WebSocket.PingInterval, c.WebSocket.IdleTimeout)
	}
	return nil
}
