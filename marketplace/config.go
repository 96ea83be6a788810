package marketplace

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bidworks/marketplace/marketplace/database"
	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

type Config struct {
	Log     LogConfig         `toml:"log"`
	DB      database.DBConfig `toml:"db"`
	Mongo   MongoConfig       `toml:"mongo"`
	Kafka   KafkaConfig       `toml:"kafka"`
	Workers WorkersConfig     `toml:"workers"`
}

type LogConfig struct {
	Level slog.Level `toml:"level"`
}

type MongoConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

type KafkaConfig struct {
	Brokers            []string `toml:"brokers"`
	NotificationsTopic string   `toml:"notifications_topic"`
	MessagesTopic      string   `toml:"messages_topic"`
}

type WorkersConfig struct {
	AuctionSweepSeconds int    `toml:"auction_sweep_seconds"`
	OrderSweepSeconds   int    `toml:"order_sweep_seconds"`
	PaymentWindowHours  int    `toml:"payment_window_hours"`
	AdminUserID         string `toml:"admin_user_id"`
}

func (c *Config) applyDefaults() {
	if c.Workers.AuctionSweepSeconds <= 0 {
		c.Workers.AuctionSweepSeconds = 30
	}
	if c.Workers.OrderSweepSeconds <= 0 {
		c.Workers.OrderSweepSeconds = 60
	}
	if c.Workers.PaymentWindowHours <= 0 {
		c.Workers.PaymentWindowHours = 48
	}
}

func (c WorkersConfig) AuctionSweepInterval() time.Duration {
	return time.Duration(c.AuctionSweepSeconds) * time.Second
}

func (c WorkersConfig) OrderSweepInterval() time.Duration {
	return time.Duration(c.OrderSweepSeconds) * time.Second
}

func (c WorkersConfig) PaymentWindow() time.Duration {
	return time.Duration(c.PaymentWindowHours) * time.Hour
}
