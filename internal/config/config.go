// Package config holds the defaults of the command line tool, read from the environment.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Environment variables.
const (
	EnvModel        = "NEURALTOK_MODEL"
	EnvLanguage     = "NEURALTOK_LANGUAGE"
	EnvAddr         = "NEURALTOK_ADDR"
	EnvMaxBodyBytes = "NEURALTOK_MAX_BODY_BYTES"
)

// Default values.
const (
	DefaultLanguage     = "en"
	DefaultAddr         = ":8095"
	DefaultMaxBodyBytes = 10 << 20 // 10MB
)

// Config of the command line tool.
type Config struct {
	// ModelPath is the default boundary model file.
	ModelPath string

	// Language is the default ISO 639-1 language code.
	Language string

	// Addr is the address the server listens on.
	Addr string

	// MaxBodyBytes limits the size of server requests.
	MaxBodyBytes int64
}

// Load reads the configuration from the environment, after loading the given .env files (or
// ".env" if none is given) when they exist. Variables already set in the environment take
// precedence over the .env files.
func Load(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			klog.Warningf("Failed to load %q: %v", envFile, err)
		}
	}

	cfg := Config{
		ModelPath:    os.Getenv(EnvModel),
		Language:     envOr(EnvLanguage, DefaultLanguage),
		Addr:         envOr(EnvAddr, DefaultAddr),
		MaxBodyBytes: envInt64(EnvMaxBodyBytes, DefaultMaxBodyBytes),
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return cfg
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Language == "" {
		return errors.Errorf("%s must not be empty", EnvLanguage)
	}
	if c.Addr == "" {
		return errors.Errorf("%s must not be empty", EnvAddr)
	}
	if c.MaxBodyBytes <= 0 {
		return errors.Errorf("%s must be positive, got %d", EnvMaxBodyBytes, c.MaxBodyBytes)
	}
	return nil
}

// RequireModel returns an error if no model path was configured.
func (c Config) RequireModel() error {
	if c.ModelPath == "" {
		return errors.Errorf("no model given: use --model or set %s", EnvModel)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		klog.Warningf("Ignoring invalid %s=%q", key, v)
	}
	return fallback
}
