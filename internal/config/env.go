// Package config provides configuration helpers for smartstop commands.
package config

import "os"

// Env returns the value of the environment variable, or fallback when
// unset or empty.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// FlagOrEnv resolves a setting from an explicit flag value first, then
// the environment, then the fallback.
func FlagOrEnv(flagValue, key, fallback string) string {
	if flagValue != "" {
		return flagValue
	}
	return Env(key, fallback)
}
