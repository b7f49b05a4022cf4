// Package config defines the application configuration structure and
// loading logic. Configuration comes from an optional YAML file and
// from environment variables with the BRANDSYNC_ prefix, with the
// environment taking precedence. All loaded configuration is validated
// before use.
package config
