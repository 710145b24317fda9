package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000/api",
			TimeoutSeconds: 60,
		},
		Store: StoreConfig{
			Backend:       "sqlite",
			RedisAddr:     "localhost:6379",
			Namespace:     "default",
			AgentsKey:     "publishedAgents",
			RepositoryKey: "repositoryAgents",
			SeededFlagKey: "officialAgentsSeeded",
		},
		Fetch: FetchConfig{
			TimeoutSeconds:      30,
			SlowTimeoutSeconds:  120,
			ClassifyConcurrency: 4,
		},
		Gateway: GatewayConfig{
			Port: 18790,
			Bind: "loopback",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

// FetchTimeout returns the fetch race timeout, honoring slow mode.
func (c FetchConfig) FetchTimeout() time.Duration {
	if c.SlowMode {
		return time.Duration(c.SlowTimeoutSeconds) * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HTTPTimeout returns the per-request HTTP client timeout.
func (c APIConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
