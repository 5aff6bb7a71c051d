// Package utils provides small helpers shared across the proxy: environment
// lookups and safe token display.
package utils

import "os"

// GetEnvWithDefault retrieves an environment variable or returns a default
// value if not set.
func GetEnvWithDefault(name, defaultValue string) string {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue
	}
	return value
}

// MaskToken masks a token for display, showing only the first and last four
// characters so logs never leak a usable credential.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
