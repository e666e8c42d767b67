// Package config loads typed configuration structs from environment
// variables, with an optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrParsingConfig = errors.New("config.failed_to_parse")
	ErrNilPointer    = errors.New("config.nil_pointer")
)

var dotenvOnce sync.Once

// Load parses environment variables into the struct by its `env` tags. The
// .env file, if present, is loaded once per process before the first parse.
func Load[T any](v *T) error {
	dotenvOnce.Do(func() {
		// Missing .env is fine.
		_ = godotenv.Load()
	})

	if v == nil {
		return ErrNilPointer
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Use for configuration the
// process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
