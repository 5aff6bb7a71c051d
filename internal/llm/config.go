// Package llm implements the anonymous-session proxy core for the upstream
// conversation backend.
package llm

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config contains configuration for the proxy core. This centralizes every
// tunable related to the upstream backend and session rotation.
type Config struct {
	// BaseURL is the root URL of the conversation backend.
	BaseURL string
	// APIToken is the bearer token callers must present to this proxy.
	APIToken string
	// Model is the upstream model identifier sent on every conversation request.
	Model string
	// ServedModel is the model name reported back to callers.
	ServedModel string
	// RollInterval is how often the background loop rotates the session.
	RollInterval time.Duration
	// RotateMaxRetries bounds the retry attempts of a single rotation call.
	RotateMaxRetries int
	// RotateRetryDelay is the target delay between rotation retries.
	RotateRetryDelay time.Duration
	// RotateRetryJitter is the symmetric random offset applied to the delay.
	RotateRetryJitter time.Duration
	// AuthJWTSecret enables JWT client authentication when non-empty.
	AuthJWTSecret string
	// DisableAuth bypasses the client auth gate for local development.
	DisableAuth bool
}

var (
	// config is the singleton instance of the configuration
	config *Config
	// configOnce ensures the configuration is initialized only once
	configOnce sync.Once
)

// GetConfig returns the singleton proxy configuration. On first call it loads
// values from environment variables; if API_TOKEN is unset a random sk- token
// is generated so the instance never starts without a client credential.
func GetConfig() *Config {
	configOnce.Do(func() {
		apiToken := os.Getenv("API_TOKEN")
		if apiToken == "" {
			apiToken = "sk-" + strings.ReplaceAll(uuid.NewString(), "-", "")
		}

		config = &Config{
			BaseURL:           getEnvWithDefault("BASE_URL", "https://chat.openai.com"),
			APIToken:          apiToken,
			Model:             "text-davinci-002-render-sha",
			ServedModel:       "gpt-3.5-turbo",
			RollInterval:      getEnvDuration("SESSION_ROLL_INTERVAL", time.Minute),
			RotateMaxRetries:  getEnvInt("SESSION_MAX_RETRIES", 5),
			RotateRetryDelay:  3 * time.Second,
			RotateRetryJitter: 500 * time.Millisecond,
			AuthJWTSecret:     os.Getenv("AUTH_JWT_SECRET"),
			DisableAuth:       getEnvBool("DISABLE_AUTH", false),
		}
	})
	return config
}

func getEnvWithDefault(name, defaultValue string) string {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvDuration parses a duration environment variable, accepting either a
// Go duration string ("90s") or a bare millisecond count as the original
// deployment used.
func getEnvDuration(name string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvBool(name string, defaultValue bool) bool {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1"
}

func getEnvInt(name string, defaultValue int) int {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// Addr returns the listen address derived from APP_PORT.
func Addr() string {
	return fmt.Sprintf(":%s", getEnvWithDefault("APP_PORT", "3000"))
}
