package config

import "time"

type Config struct {
	Service     *ServiceConfig   `mapstructure:"service"`
	Redis       *RedisConfig     `mapstructure:"redis"`
	Postgres    *PostgresConfig  `mapstructure:"postgres"`
	Logger      *LoggerConfig    `mapstructure:"logger"`
	Tracer      *TracerConfig    `mapstructure:"tracer"`
	WebSocket   *WebSocketConfig `mapstructure:"ws"`
	Presence    *PresenceConfig  `mapstructure:"presence"`
	Bridge      *BridgeConfig    `mapstructure:"bridge"`
	SecretToken string           `mapstructure:"jwt_secret"`
}

type ServiceConfig struct {
	Name            string        `mapstructure:"name"`
	Env             string        `mapstructure:"env"`
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// RedisConfig configures the distributed presence backend. An empty URL
// keeps the process single-instance.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	PingTimeout  time.Duration `mapstructure:"ping_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// PostgresConfig configures the durable message store. An empty DSN falls
// back to the in-memory store.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
	Migrate         bool          `mapstructure:"migrate"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracerConfig struct {
	Address string `mapstructure:"address"`
}

type WebSocketConfig struct {
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	ReadLimit    int64         `mapstructure:"read_limit"`
}

type PresenceConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	InstanceTTL       time.Duration `mapstructure:"instance_ttl"`
	ProfileCacheSize  int           `mapstructure:"profile_cache_size"`
}

type BridgeConfig struct {
	Channel    string `mapstructure:"channel"`
	OutboxSize int    `mapstructure:"outbox_size"`
}
