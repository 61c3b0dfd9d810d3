package bootstrap

import (
	"github.com/kbukum/eventkit/config"
)

// Config constrains the App's configuration type. Embedding
// config.ServiceConfig satisfies it through promoted methods:
//
//	type BillingConfig struct {
//	    config.ServiceConfig `mapstructure:",squash"`
//	    Currency string      `mapstructure:"currency"`
//	}
type Config = config.Config
