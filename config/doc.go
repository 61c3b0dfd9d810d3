// Package config loads service configuration.
//
// It uses Viper to load a YAML file and environment variables, with an
// optional .env file loaded through godotenv. ServiceConfig carries the
// logging, dispatch, telemetry and event source settings and validates
// itself through the validation package.
//
// # Usage
//
//	cfg, err := config.Load[config.ServiceConfig]("billing")
//
// Environment variables override file values using underscore-separated
// paths (e.g., LOGGING_LEVEL or TELEMETRY_ENDPOINT).
package config
