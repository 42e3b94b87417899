package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	errspkg "github.com/drblury/funchost/internal/runtime/errors"
)

const (
	// DefaultListenAddress is where the invocation endpoint is served.
	DefaultListenAddress = ":8080"

	// DefaultShutdownTimeout bounds the drain-and-stop sequence. When the stop
	// hook has not returned once the budget elapses, the process is terminated.
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultLivenessPath and DefaultReadinessPath are the reserved probe
	// routes. Requests to them never reach the user handler.
	DefaultLivenessPath  = "/health/liveness"
	DefaultReadinessPath = "/health/readiness"
)

// Config groups the runtime settings for a function host. Zero values fall
// back to library defaults.
type Config struct {
	// ListenAddress is the address the invocation endpoint binds to.
	ListenAddress string

	// ShutdownTimeout is the budget shared by request draining and the stop
	// hook. Zero selects DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// LivenessPath and ReadinessPath override the reserved probe routes.
	LivenessPath  string
	ReadinessPath string

	// Env is the flat configuration mapping handed to the function's start
	// hook. The host copies it before the call; it is typically derived from
	// the process environment by the embedding program. The runtime itself
	// never reads environment variables.
	Env map[string]string

	// Metrics configuration.
	MetricsEnabled bool
	// MetricsPort is the port where Prometheus metrics will be exposed.
	MetricsPort int
}

// WithDefaults returns a copy of the config with defaults applied.
func (c Config) WithDefaults() Config {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.LivenessPath == "" {
		c.LivenessPath = DefaultLivenessPath
	}
	if c.ReadinessPath == "" {
		c.ReadinessPath = DefaultReadinessPath
	}
	return c
}

// ValidateConfig checks the supplied configuration for values the runtime
// cannot serve with. A nil config is rejected with ErrConfigRequired.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errspkg.NewConfigValidationError(errspkg.ErrConfigRequired)
	}
	if c.ShutdownTimeout < 0 {
		return errspkg.NewConfigValidationError(fmt.Errorf("shutdown timeout must not be negative, got %v", c.ShutdownTimeout))
	}
	if c.LivenessPath != "" && !strings.HasPrefix(c.LivenessPath, "/") {
		return errspkg.NewConfigValidationError(fmt.Errorf("liveness path must begin with /, got %q", c.LivenessPath))
	}
	if c.ReadinessPath != "" && !strings.HasPrefix(c.ReadinessPath, "/") {
		return errspkg.NewConfigValidationError(fmt.Errorf("readiness path must begin with /, got %q", c.ReadinessPath))
	}
	if c.LivenessPath != "" && c.LivenessPath == c.ReadinessPath {
		return errspkg.NewConfigValidationError(fmt.Errorf("liveness and readiness paths must differ, both are %q", c.LivenessPath))
	}
	if c.MetricsEnabled && (c.MetricsPort < 0 || c.MetricsPort > 65535) {
		return errspkg.NewConfigValidationError(fmt.Errorf("metrics port out of range: %d", c.MetricsPort))
	}
	return nil
}

var secretKeyMarkers = []string{"secret", "password", "token", "credential", "apikey", "api_key", "private"}

func (c Config) String() string {
	// Redact env values whose keys look like credentials before printing.
	copied := c
	if len(c.Env) > 0 {
		copied.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			if looksSecret(k) {
				copied.Env[k] = "***REDACTED***"
			} else {
				copied.Env[k] = v
			}
		}
	}
	// Use a type alias to avoid infinite recursion when printing.
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(copied))
}

func looksSecret(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range secretKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// CloneEnv returns a sorted-key deep copy of the env mapping, suitable for
// handing to the start hook without exposing the source of truth.
func (c Config) CloneEnv() map[string]string {
	if c.Env == nil {
		return map[string]string{}
	}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	copied := make(map[string]string, len(keys))
	for _, k := range keys {
		copied[k] = c.Env[k]
	}
	return copied
}
