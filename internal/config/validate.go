package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// API validation
	if cfg.API.BaseURL != "" {
		u, err := url.Parse(cfg.API.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, ValidationIssue{
				Path:    "api.baseUrl",
				Message: fmt.Sprintf("must be an absolute URL, got %q", cfg.API.BaseURL),
			})
		}
	}
	if cfg.API.TimeoutSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "api.timeoutSeconds",
			Message: "must not be negative",
		})
	}

	// Store validation
	validBackends := []string{"sqlite", "redis", "memory"}
	if cfg.Store.Backend != "" && !slices.Contains(validBackends, cfg.Store.Backend) {
		issues = append(issues, ValidationIssue{
			Path:    "store.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", validBackends, cfg.Store.Backend),
		})
	}
	if cfg.Store.Backend == "redis" {
		if cfg.Store.RedisAddr == "" {
			issues = append(issues, ValidationIssue{
				Path:    "store.redisAddr",
				Message: "redis backend requires an address",
			})
		}
		if cfg.Store.Namespace == "" {
			issues = append(issues, ValidationIssue{
				Path:    "store.namespace",
				Message: "redis backend requires a namespace",
			})
		}
	}
	if cfg.Store.AgentsKey != "" && cfg.Store.AgentsKey == cfg.Store.RepositoryKey {
		issues = append(issues, ValidationIssue{
			Path:    "store.repositoryKey",
			Message: "must differ from store.agentsKey",
		})
	}

	// Fetch validation
	if cfg.Fetch.TimeoutSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "fetch.timeoutSeconds",
			Message: "must not be negative",
		})
	}
	if cfg.Fetch.SlowTimeoutSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "fetch.slowTimeoutSeconds",
			Message: "must not be negative",
		})
	}
	if cfg.Fetch.ClassifyConcurrency < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "fetch.classifyConcurrency",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Fetch.ClassifyConcurrency),
		})
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "custom bind requires a host",
		})
	}

	validAuthModes := []string{"token", "password", "none"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.auth.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode),
		})
	}
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.tls",
			Message: "tls requires certPath and keyPath",
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	return issues
}
