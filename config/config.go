package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Security     SecurityConfig     `mapstructure:"security"`
	Gamification GamificationConfig `mapstructure:"gamification"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminIPs []string `mapstructure:"admin_ips"`
}

type DatabaseConfig struct {
	Mode            string        `mapstructure:"mode"` // sqlite | mysql | postgres
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MySQLDSN        string        `mapstructure:"mysql_dsn"`
	PostgresDSN     string        `mapstructure:"postgres_dsn"`
	MaxOpen         int           `mapstructure:"max_open"`
	MaxIdle         int           `mapstructure:"max_idle"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTL         time.Duration `mapstructure:"jwt_ttl"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

type GamificationConfig struct {
	// SweepInterval controls how often challenges past their end date are
	// moved from active to finished.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// RankingRefreshInterval controls the leaderboard cache rebuild.
	RankingRefreshInterval time.Duration `mapstructure:"ranking_refresh_interval"`
	// NotifyBuffer is the queue size of the notification dispatcher.
	NotifyBuffer int `mapstructure:"notify_buffer"`
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
	v.SetDefault("database.sqlite_path", "./data/plans.db")
	v.SetDefault("database.max_open", 50)
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_ttl", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("gamification.sweep_interval", "1m")
	v.SetDefault("gamification.ranking_refresh_interval", "5m")
	v.SetDefault("gamification.notify_buffer", 1024)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
