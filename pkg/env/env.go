// Package env reads process environment variables with fallbacks, for the
// few settings resolved before the config layer is up.
package env

import "os"

// Get returns the variable's value, or fallback when it is unset or empty.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
