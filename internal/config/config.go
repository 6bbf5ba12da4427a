package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment  DeploymentConfig  `validate:"required"`
	Logging     LoggingConfig     `validate:"required"`
	Cache       CacheConfig       `validate:"required"`
	Entitlement EntitlementConfig `validate:"required"`
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type CacheConfig struct {
	Enabled bool
	// TTL applied to cached balance history results
	HistoryTTL time.Duration
}

type EntitlementConfig struct {
	// MaxHistorySegments caps how many burn-down segments a single history
	// query may produce before it is rejected
	MaxHistorySegments int `validate:"required,min=1"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/meterflow")

	// Set up environment variables support
	v.SetEnvPrefix("METERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(types.ModeAPI))
	v.SetDefault("logging.level", string(types.LogLevelInfo))
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.historyttl", "5m")
	v.SetDefault("entitlement.maxhistorysegments", 1000)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Cache: CacheConfig{
			Enabled:    true,
			HistoryTTL: 5 * time.Minute,
		},
		Entitlement: EntitlementConfig{
			MaxHistorySegments: 1000,
		},
	}
}
