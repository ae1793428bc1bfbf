package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var ErrMissingSecret = errors.New("auth.jwt_secret (JWT_SECRET) must be set")

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	AWS      AWSConfig
	LogLevel string
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AcquireTimeout  time.Duration
}

type AuthConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	ProtectRenewal bool
}

type AWSConfig struct {
	Region   string
	S3Bucket string
}

// envBindings maps viper keys onto the environment variables used in
// deployment (.env files included).
var envBindings = map[string]string{
	"server.port":          "PORT",
	"db.host":              "DB_HOST",
	"db.port":              "DB_PORT",
	"db.name":              "DB_NAME",
	"db.user":              "DB_USER",
	"db.password":          "DB_PASSWORD",
	"db.max_open_conns":    "DB_MAX_OPEN_CONNS",
	"db.max_idle_conns":    "DB_MAX_IDLE_CONNS",
	"db.conn_max_lifetime": "DB_CONN_MAX_LIFETIME",
	"db.acquire_timeout":   "DB_ACQUIRE_TIMEOUT",
	"auth.jwt_secret":      "JWT_SECRET",
	"auth.token_ttl":       "JWT_TTL",
	"auth.protect_renewal": "RENEW_EXPIRY_REQUIRES_AUTH",
	"aws.region":           "AWS_REGION",
	"aws.s3_bucket":        "S3_BUCKET",
	"log.level":            "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("db.host", "127.0.0.1")
	v.SetDefault("db.port", "3306")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("db.acquire_timeout", 30*time.Second)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.protect_renewal", false)
	v.SetDefault("log.level", "info")
}

// Load reads configuration once at startup. A .env file and cmd/config/config.yaml
// are both optional; environment variables take precedence over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("cmd/config/")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config file")
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrapf(err, "binding %s", env)
		}
	}

	cfg := &Config{
		Server: ServerConfig{Port: v.GetString("server.port")},
		Database: DatabaseConfig{
			Host:            v.GetString("db.host"),
			Port:            v.GetString("db.port"),
			Name:            v.GetString("db.name"),
			User:            v.GetString("db.user"),
			Password:        v.GetString("db.password"),
			MaxOpenConns:    v.GetInt("db.max_open_conns"),
			MaxIdleConns:    v.GetInt("db.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("db.conn_max_lifetime"),
			AcquireTimeout:  v.GetDuration("db.acquire_timeout"),
		},
		Auth: AuthConfig{
			JWTSecret:      v.GetString("auth.jwt_secret"),
			TokenTTL:       v.GetDuration("auth.token_ttl"),
			ProtectRenewal: v.GetBool("auth.protect_renewal"),
		},
		AWS: AWSConfig{
			Region:   v.GetString("aws.region"),
			S3Bucket: v.GetString("aws.s3_bucket"),
		},
		LogLevel: v.GetString("log.level"),
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.Database.MaxOpenConns <= 0 {
		return nil, errors.Errorf("db.max_open_conns must be positive, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.AcquireTimeout <= 0 {
		return nil, errors.Errorf("db.acquire_timeout must be positive, got %s", cfg.Database.AcquireTimeout)
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Server.Port, ":") {
		return c.Server.Port
	}
	return ":" + c.Server.Port
}
