package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the storefront binary needs from the environment.
type Config struct {
	Port string `envconfig:"PORT" default:"8081"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"storefront"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"storefront"`
	DBName     string `envconfig:"DB_NAME" default:"storefront"`

	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	RedisAddr    string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	GatewayURL    string `envconfig:"PAYMENT_GATEWAY_URL" default:"http://localhost:8082"`
	PaymentSecret string `envconfig:"PAYMENT_SECRET" required:"true"`
	Currency      string `envconfig:"CURRENCY" default:"INR"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN builds the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}
