package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Data Store API
	Endpoint string `mapstructure:"endpoint"`

	// Staging bucket
	StagingBucket string `mapstructure:"staging-bucket"`
	AWSRegion     string `mapstructure:"aws-region"`

	// GCP project billed for requester-pays source reads
	GoogleProject string `mapstructure:"google-project"`

	// Optional per-provider metadata credentials
	AWSCredentialsFile string `mapstructure:"aws-credentials-file"`
	GCPCredentialsFile string `mapstructure:"gcp-credentials-file"`

	// Execution
	DryRun      bool `mapstructure:"dry-run"`
	MaxInFlight int  `mapstructure:"max-in-flight"`
	MaxAttempts int  `mapstructure:"max-attempts"`

	// Local state paths
	LedgerPath string `mapstructure:"ledger-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("endpoint", "")
	viper.SetDefault("staging-bucket", "")
	viper.SetDefault("aws-region", "us-east-1")
	viper.SetDefault("google-project", "")
	viper.SetDefault("dry-run", false)
	viper.SetDefault("max-in-flight", 8)
	viper.SetDefault("max-attempts", 3)
	viper.SetDefault("ledger-path", ".artifacts/ledger.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm.db")
	viper.SetDefault("fsm-max-retries", 5)

	// Environment variables (will be LOADER_ENDPOINT, etc.)
	viper.SetEnvPrefix("LOADER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.bundle-loader")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	if c.StagingBucket == "" {
		return fmt.Errorf("staging-bucket cannot be empty")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("ledger-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.MaxInFlight <= 0 {
		return fmt.Errorf("max-in-flight must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max-attempts must be positive")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	return nil
}
