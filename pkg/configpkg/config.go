// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Lock drivers.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config stores all configuration of the application.
//
// The values are read by viper fron a config file or environement variables.
type Config struct {
	Environement    string        `mapstructure:"GO_ENV"`
	ServerAddress   string        `mapstructure:"SERVER_ADDRESS"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	StoreDriver     string        `mapstructure:"STORE_DRIVER"`
	DBDriver        string        `mapstructure:"DB_DRIVER"`
	DBSource        string        `mapstructure:"DB_SOURCE"`
	LockDriver      string        `mapstructure:"LOCK_DRIVER"`
	RedisAddress    string        `mapstructure:"REDIS_ADDRESS"`
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int           `mapstructure:"REDIS_DB"`
	LockExpiry      time.Duration `mapstructure:"LOCK_EXPIRY"`
	LockTries       int           `mapstructure:"LOCK_TRIES"`
	LockRetryDelay  time.Duration `mapstructure:"LOCK_RETRY_DELAY"`
	KafkaBrokers    []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic      string        `mapstructure:"KAFKA_TOPIC"`
	SeedUsers       []int64       `mapstructure:"SEED_USERS"`
}

var defaults = map[string]any{
	"GO_ENV":           "production",
	"SERVER_ADDRESS":   "0.0.0.0:8080",
	"SHUTDOWN_TIMEOUT": 10 * time.Second,
	"STORE_DRIVER":     StoreMemory,
	"DB_DRIVER":        "postgres",
	"DB_SOURCE":        "",
	"LOCK_DRIVER":      LockLocal,
	"REDIS_ADDRESS":    "",
	"REDIS_PASSWORD":   "",
	"REDIS_DB":         0,
	"LOCK_EXPIRY":      10 * time.Second,
	"LOCK_TRIES":       200,
	"LOCK_RETRY_DELAY": 50 * time.Millisecond,
	"KAFKA_BROKERS":    []string{},
	"KAFKA_TOPIC":      "point-events",
	"SEED_USERS":       []int64{},
}

// Load read configuration from file or environment variables.
//
// The file is path/app.env; it is optional when the environment provides the values.
func Load(path string) (Config, error) {
	var c Config

	v := viper.New()

	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	if err := c.Validate(); err != nil {
		return c, err
	}

	return c, nil
}

// Validate checks that the selected drivers have what they need.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DBSource == "" {
			return errors.New("DB_SOURCE is required for postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.LockDriver {
	case LockLocal:
	case LockRedis:
		if c.RedisAddress == "" {
			return errors.New("REDIS_ADDRESS is required for redis lock")
		}
	default:
		return fmt.Errorf("unknown LOCK_DRIVER %q", c.LockDriver)
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}
