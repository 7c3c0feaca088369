package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	MongoDB  MongoDBConfig
	JWT      JWTConfig
	Raffle   RaffleConfig
	Oracle   OracleConfig
	Ledger   LedgerConfig
	Events   EventsConfig
	LogLevel string
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	AllowedHosts []string
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// JWTConfig holds JWT-specific configuration for the operator API
type JWTConfig struct {
	Secret    string
	ExpiresIn int
}

// RaffleConfig holds the round parameters. These are fixed at
// construction and never mutated for the lifetime of the service.
type RaffleConfig struct {
	EntranceFee          int64
	MinInterval          time.Duration
	RerequestGracePeriod time.Duration
}

// OracleConfig holds randomness-oracle configuration. KeyHash,
// SubscriptionID, RequestConfirmations and CallbackGasLimit are opaque
// request parameters passed through to the oracle unmodified.
// DeliveryToken authenticates the oracle's randomness callback.
type OracleConfig struct {
	BaseURL              string
	APIKey               string
	DeliveryToken        string
	KeyHash              string
	SubscriptionID       string
	RequestConfirmations int
	CallbackGasLimit     int64
	MockOracle           bool
}

// LedgerConfig holds transfer-service configuration
type LedgerConfig struct {
	BaseURL    string
	APIKey     string
	MockLedger bool
}

// EventsConfig selects the notification sink implementation
type EventsConfig struct {
	Sink       string // "log", "webhook" or "mock"
	WebhookURL string
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if config file is not found, we'll use environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Unmarshal configuration
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// validate rejects configurations the round manager cannot run with
func (c *Config) validate() error {
	if c.Raffle.EntranceFee <= 0 {
		return errors.New("config: Raffle.EntranceFee must be positive")
	}
	if c.Raffle.MinInterval <= 0 {
		return errors.New("config: Raffle.MinInterval must be positive")
	}
	if c.Oracle.DeliveryToken == "" {
		return errors.New("config: Oracle.DeliveryToken is required")
	}
	return nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	viper.SetDefault("Server.Port", "4000")
	viper.SetDefault("Server.AllowedHosts", []string{"localhost:3000"})
	viper.SetDefault("MongoDB.URI", "mongodb://localhost:27017")
	viper.SetDefault("MongoDB.Database", "raffle")
	viper.SetDefault("JWT.ExpiresIn", 24*60*60) // 24 hours
	viper.SetDefault("LogLevel", "info")
	viper.SetDefault("Raffle.EntranceFee", 10)
	viper.SetDefault("Raffle.MinInterval", "60s")
	viper.SetDefault("Raffle.RerequestGracePeriod", "10m")
	viper.SetDefault("Oracle.RequestConfirmations", 3)
	viper.SetDefault("Oracle.CallbackGasLimit", 100000)
	viper.SetDefault("Oracle.MockOracle", true)
	viper.SetDefault("Ledger.MockLedger", true)
	viper.SetDefault("Events.Sink", "log")
}
