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

// ErrParsing wraps any failure to map environment variables onto the
// target struct, including missing required values.
var ErrParsing = errors.New("config: failed to parse environment")

var loadDotEnv sync.Once

// Load fills v from the environment based on `env` struct tags. The .env
// file, if present, is loaded once per process before the first parse.
func Load[T any](v *T) error {
	loadDotEnv.Do(func() {
		// Missing .env is fine; real environments set variables directly.
		_ = godotenv.Load()
	})

	if v == nil {
		return fmt.Errorf("%w: nil target", ErrParsing)
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsing, err)
	}
	return nil
}

// MustLoad is Load for configuration the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(err)
	}
}
