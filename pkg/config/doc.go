// Package config loads typed configuration from the environment.
//
// LoadEnv reads .env files with godotenv; Load parses a struct with
// caarlos0/env tags and caches the result per type, so packages can each
// declare their own Config and load it independently:
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
// Reset clears the cache for tests that change the environment.
package config
