package config

import (
	"errors"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	mu     sync.Mutex
	loaded = map[reflect.Type]any{}

	dotenvOnce sync.Once
)

// LoadEnv reads the given .env files into the process environment without
// overriding variables that are already set. With no arguments it reads
// ./.env. A missing default file is not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		dotenvOnce.Do(func() { _ = godotenv.Load() })
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// Load fills v from the environment. Each config type is parsed once per
// process; later calls copy the cached value.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	_ = LoadEnv()

	key := reflect.TypeFor[T]()

	mu.Lock()
	defer mu.Unlock()

	if cached, ok := loaded[key]; ok {
		*v = cached.(T)
		return nil
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	loaded[key] = *v
	return nil
}

// MustLoad is Load that panics on failure.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(err)
	}
}

// Reset drops every cached config. Tests use it after t.Setenv.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	clear(loaded)
}
