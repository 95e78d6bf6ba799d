package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Game     GameConfig     `mapstructure:"game"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type GameConfig struct {
	// HeartbeatWindowMs is how long a session may stay silent before the
	// watchdog disconnects it.
	HeartbeatWindowMs int `mapstructure:"heartbeat_window_ms"`
	// BroadcastIntervalMs is the auto-broadcast sweep period.
	BroadcastIntervalMs int `mapstructure:"broadcast_interval_ms"`
	// SaveIntervalS is the dirty-entity persistence sweep period.
	SaveIntervalS int `mapstructure:"save_interval_s"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/game.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("game.heartbeat_window_ms", 15000)
	v.SetDefault("game.broadcast_interval_ms", 250)
	v.SetDefault("game.save_interval_s", 300)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
