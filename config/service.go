package config

import (
	"github.com/kbukum/eventkit/logger"
	"github.com/kbukum/eventkit/validation"
	"github.com/kbukum/eventkit/version"
)

// Environments accepted by ServiceConfig.
var Environments = []string{"development", "staging", "production"}

// ServiceConfig contains the configuration of an event-driven service.
// Projects extend this by embedding it in their own config structs.
//
// Example:
//
//	type MyConfig struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Billing BillingConfig `yaml:"billing" mapstructure:"billing"`
//	}
type ServiceConfig struct {
	Name        string          `yaml:"name" mapstructure:"name" validate:"required"`
	Environment string          `yaml:"environment" mapstructure:"environment" validate:"oneof=development staging production"`
	Version     string          `yaml:"version" mapstructure:"version"`
	Debug       bool            `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config   `yaml:"logging" mapstructure:"logging" validate:"-"`
	Dispatch    DispatchConfig  `yaml:"dispatch" mapstructure:"dispatch"`
	Telemetry   TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	Sources     SourcesConfig   `yaml:"sources" mapstructure:"sources"`
}

// GetServiceConfig returns the base ServiceConfig.
// When embedded in a larger config struct, this method is promoted
// so the embedding struct automatically satisfies the Config interface.
func (c *ServiceConfig) GetServiceConfig() *ServiceConfig {
	return c
}

// ApplyDefaults applies default values to the base configuration.
// Override this in embedding structs and call c.ServiceConfig.ApplyDefaults() first.
func (c *ServiceConfig) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	if c.Version == "" {
		c.Version = version.Get().Short()
	}
	// Propagate service name into logging so Init() uses the right tag.
	if c.Logging.ServiceName == "" && c.Name != "" {
		c.Logging.ServiceName = c.Name
	}
	c.Logging.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
	c.Sources.ApplyDefaults()
}

// Validate validates the configuration.
// Override this in embedding structs and call c.ServiceConfig.Validate() first.
func (c *ServiceConfig) Validate() error {
	v := validation.New()
	v.Merge("config", validation.Validate(c))
	v.Merge("config.logging", c.Logging.Validate())
	v.Unique("config.sources", c.Sources.Names())
	v.Custom(!c.Telemetry.Enabled || c.Telemetry.Endpoint != "",
		"config.telemetry.endpoint", "is required when telemetry is enabled")
	return v.Err()
}
