package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "CHALLENGE"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Session  SessionConfig  `mapstructure:"session"`
	Gomoku   GomokuConfig   `mapstructure:"gomoku"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	// Player-facing TCP listener.
	Address string `mapstructure:"address"`
	// Metrics, display websocket and JSON api. Empty disables the HTTP server.
	HTTPAddress string `mapstructure:"http_address"`
	// net/rpc admin listener. Empty disables it.
	RPCAddress    string        `mapstructure:"rpc_address"`
	MaxLineLength int           `mapstructure:"max_line_length"`
	SendQueue     int           `mapstructure:"send_queue"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

type SessionConfig struct {
	MinPlayers int           `mapstructure:"min_players"`
	TurnDelay  time.Duration `mapstructure:"turn_delay"`
	Mode       string        `mapstructure:"mode"`
}

type GomokuConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

type AuthConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

type DatabaseConfig struct {
	// One of "", "sqlite", "postgres" (gorm) or "pq" (database/sql).
	Driver     string         `mapstructure:"driver"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1:7654")
	v.SetDefault("server.http_address", "127.0.0.1:7655")
	v.SetDefault("server.rpc_address", "127.0.0.1:7656")
	v.SetDefault("server.max_line_length", 64*1024)
	v.SetDefault("server.send_queue", 64)
	v.SetDefault("server.write_timeout", 5*time.Second)

	v.SetDefault("session.min_players", 2)
	v.SetDefault("session.turn_delay", time.Duration(0))
	v.SetDefault("session.mode", "practice")

	v.SetDefault("gomoku.width", 50)
	v.SetDefault("gomoku.height", 50)

	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("database.driver", "")
	v.SetDefault("database.sqlite_path", "challenge.db")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "challenge")

	v.SetDefault("redis.url", "")

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from path, if present, on top of the defaults.
// Environment variables prefixed with CHALLENGE_ override both.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server.address must be set")
	}
	if c.Server.MaxLineLength <= 0 {
		return errors.New("server.max_line_length must be positive")
	}
	if c.Server.SendQueue <= 0 {
		return errors.New("server.send_queue must be positive")
	}
	if c.Session.MinPlayers < 1 {
		return errors.New("session.min_players must be at least 1")
	}
	if c.Session.TurnDelay < 0 {
		return errors.New("session.turn_delay must not be negative")
	}
	switch c.Session.Mode {
	case "practice", "gating", "competition":
	default:
		return errors.New("session.mode must be one of practice, gating, competition")
	}
	if c.Gomoku.Width < 1 || c.Gomoku.Height < 1 {
		return errors.New("gomoku.width and gomoku.height must be at least 1")
	}
	switch c.Database.Driver {
	case "", "sqlite", "postgres", "pq":
	default:
		return errors.New("database.driver must be one of sqlite, postgres, pq")
	}
	return nil
}
