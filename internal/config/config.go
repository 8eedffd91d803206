// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config is the full service configuration.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Optimization struct {
		// DefaultBackend is used when a request names no backend.
		DefaultBackend string `env:"OPT_DEFAULT_BACKEND" envDefault:"quasinewton"`
		// DefaultPreset seeds the convergence criteria for minimizations
		// when a request names no preset.
		DefaultPreset string `env:"OPT_DEFAULT_PRESET" envDefault:"QCHEM"`
		// MaxIterationsCap bounds the per-request iteration budget.
		MaxIterationsCap int `env:"OPT_MAX_ITERATIONS_CAP" envDefault:"1000"`
		// MaxConcurrentSessions bounds the number of sessions running at once.
		MaxConcurrentSessions int `env:"OPT_MAX_CONCURRENT_SESSIONS" envDefault:"8"`
	}
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	if cfg.Optimization.MaxConcurrentSessions < 1 {
		return nil, fmt.Errorf("OPT_MAX_CONCURRENT_SESSIONS must be positive")
	}
	if cfg.Optimization.MaxIterationsCap < 1 {
		return nil, fmt.Errorf("OPT_MAX_ITERATIONS_CAP must be positive")
	}

	return cfg, nil
}
