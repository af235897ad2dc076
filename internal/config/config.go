package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":3000"
	DefaultEnvironment  = "development"
	DefaultJWTExpiresIn = "15m"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "flashback"
	DefaultPGSSLMode    = "disable"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	App      AppConfig      `toml:"app"`
	Admin    AdminConfig    `toml:"admin"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AppConfig struct {
	Environment string `toml:"environment"`
}

// IsDevelopment reports whether seed data and verbose logging are enabled.
func (c AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

type AdminConfig struct {
	Email    string `toml:"email"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		App: AppConfig{
			Environment: DefaultEnvironment,
		},
		Admin: AdminConfig{
			Email:    "admin@example.com",
			Password: "change-your-password-here",
			Name:     "Administrator",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
