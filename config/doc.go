// Package config loads service configuration from YAML files, .env files
// and the process environment using viper.
//
// Services embed ServiceConfig in their own config struct and call
// LoadConfig with the service name. FileSource re-reads the providers
// section of a config file so individual providers can be reloaded
// without restarting the process.
//
// Environment variables override file values; PROVIDERS_DB_TIMEOUT style
// keys are expanded into every plausible nested key variant.
package config
