// Package validation validates configuration values.
//
// It supports both struct tag validation (using the validator library) and
// programmatic validation with error collection. Both report a
// VALIDATION_FAILED AppError whose details list the failing fields.
//
// # Struct Tag Validation
//
//	type TimerConfig struct {
//	    Name     string        `mapstructure:"name" validate:"required"`
//	    Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
//	}
//	err := validation.Validate(cfg)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Required("name", cfg.Name).OneOf("format", cfg.Format, formats)
//	err := v.Err()
package validation
