// Package config loads gateway configuration from environment variables.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v6"
)

// Storage backend names accepted by STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendMongoDB  = "mongodb"
	BackendPostgres = "postgres"
)

// Rule enforcement modes accepted by RULE_MODE.
const (
	RuleModeFailOpen   = "fail-open"
	RuleModeFailClosed = "fail-closed"
)

// ServerConfig holds the listen address.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"localhost"`
	Port string `env:"SERVER_PORT" envDefault:"3000"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// Config holds all gateway configuration.
type Config struct {
	Server ServerConfig

	// Backend selects the storage adapter.
	Backend string `env:"STORAGE_BACKEND" envDefault:"memory"`

	MongoDBURI  string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	PostgresURL string `env:"POSTGRES_URL"`

	// RedisAddr enables the change journal when set.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// JWTSecret verifies session tokens on the websocket endpoint.
	JWTSecret string `env:"JWT_SECRET"`

	// RuleMode selects how a missing rule is treated: fail-open allows the
	// operation, fail-closed denies it.
	RuleMode string `env:"RULE_MODE" envDefault:"fail-open"`

	// RulesFile points at an optional CEL rule table definition.
	RulesFile string `env:"RULES_FILE"`

	// EventBufferSize is the per-connection buffer for outbound change events.
	EventBufferSize int `env:"EVENT_BUFFER_SIZE" envDefault:"256"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load gateway configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.Server); err != nil {
		return nil, errors.New("failed to load server configuration from environment: " + err.Error())
	}

	switch cfg.Backend {
	case BackendMemory, BackendMongoDB, BackendPostgres:
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if cfg.Backend == BackendPostgres && cfg.PostgresURL == "" {
		return nil, errors.New("POSTGRES_URL is required for the postgres backend")
	}

	switch cfg.RuleMode {
	case RuleModeFailOpen, RuleModeFailClosed:
	default:
		return nil, fmt.Errorf("unknown rule mode %q", cfg.RuleMode)
	}

	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 256
	}
	return cfg, nil
}
