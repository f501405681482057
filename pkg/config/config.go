package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/exlabs/exchange-engine/internal/infrastructure/postgresql"
	"github.com/joho/godotenv"
)

// MustLoad loads the configuration from environment variables and .env file.
func MustLoad[T any](cfg T) {
	_ = godotenv.Load() // Load environment variables from .env file

	env.Must(cfg, env.Parse(cfg))
}

// Load loads the configuration from environment variables and .env file.
func Load[T any](cfg T) error {
	_ = godotenv.Load() // .env file is optional

	if err := env.Parse(cfg); err != nil {
		return err // Return error if environment variable parsing fails
	}

	return nil // Return nil if everything is successful
}

// Config holds the configuration for the application
type Config struct {
	Symbols  []string `env:"SYMBOLS,required"`               // Traded symbols, e.g., BTC-USD,ETH-USD
	HTTPAddr string   `env:"HTTP_ADDR" envDefault:":8080"`   // Gateway listen address
	Snapshot SnapshotConfig
	Postgres postgresql.Config    `envPrefix:"POSTGRES_"` // PostgreSQL configuration
	Kafka    KafkaConfig          `envPrefix:"KAFKA_"`    // Order intake configuration
	Trades   TradePublisherConfig `envPrefix:"TRADES_"`   // Trade feed configuration
	Redis    RedisConfig          `envPrefix:"REDIS_"`    // Redis configuration
}

// KafkaConfig holds the configuration for the order intake consumer.
type KafkaConfig struct {
	Topic   string   `env:"TOPIC,required"`
	GroupID string   `env:"GROUP_ID" envDefault:"default_group"`
	Brokers []string `env:"BROKER,required"`
}

// TradePublisherConfig holds the configuration for the trade feed producer.
type TradePublisherConfig struct {
	Topic   string   `env:"TOPIC,required"`
	Brokers []string `env:"BROKER,required"`
}

// RedisConfig holds the configuration for Redis client.
type RedisConfig struct {
	Addr     string `env:"ADDRESS,required"`
	Password string `env:"PASSWORD" envDefault:""`
	Username string `env:"USERNAME" envDefault:""`
	DB       int    `env:"DB" envDefault:"0"`
}

// SnapshotConfig holds the configuration for the periodic book snapshot.
type SnapshotConfig struct {
	Interval time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"30s"`
	Key      string        `env:"SNAPSHOT_KEY" envDefault:"engine:snapshot"`
}
