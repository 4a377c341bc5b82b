package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Log struct {
		Level string
	}
	Database struct {
		// Driver is one of "sqlite", "postgres" or "mongo".
		Driver string
		Path   string
		URL    string
	}
	Mongo struct {
		URI      string
		Database string
	}
	Auth struct {
		JWTSecret       string
		Issuer          string
		TokenTTLMinutes int
		BcryptCost      int
		RequireToken    bool
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Idempotency struct {
		TTLMinutes int
	}
	Backup struct {
		Bucket          string
		KeyPrefix       string
		Region          string
		Endpoint        string
		IntervalMinutes int
		Retain          int
	}
	AWS struct {
		Profile string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// variables already in the environment win over .env
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("BANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/bank.db")
	v.SetDefault("database.url", "")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "bank")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.issuer", "simple-bank")
	v.SetDefault("auth.tokenttlminutes", 60)
	v.SetDefault("auth.bcryptcost", 10)
	v.SetDefault("auth.requiretoken", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("idempotency.ttlminutes", 1440)
	v.SetDefault("backup.bucket", "")
	v.SetDefault("backup.keyprefix", "bank-backups")
	v.SetDefault("backup.region", "us-east-1")
	v.SetDefault("backup.endpoint", "")
	v.SetDefault("backup.intervalminutes", 60)
	v.SetDefault("backup.retain", 24)
	v.SetDefault("aws.profile", "")
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth jwt secret is required (BANK_AUTH_JWTSECRET)")
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database url is required for postgres")
		}
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return fmt.Errorf("mongo uri and database are required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("auth token ttl must be positive")
	}
	return nil
}
