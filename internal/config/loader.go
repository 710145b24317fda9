package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so tokens and passwords can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.API.Token = expandEnvVars(cfg.API.Token)
	cfg.Store.RedisPassword = expandEnvVars(cfg.Store.RedisPassword)
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
}

// isTOML reports whether path should be parsed as TOML.
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only. Files ending in
// .toml are parsed as TOML, everything else as YAML.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	raw := map[string]any{}
	if isTOML(path) {
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
		return raw, nil
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	return raw, nil
}

// FromRaw decodes a generic config map the way Load decodes a file,
// without environment overrides.
func FromRaw(raw map[string]any) (Config, error) {
	cfg := Defaults()
	data, err := yaml.Marshal(raw)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "invalid config value: " + err.Error()}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func cloneRaw(raw map[string]any) (map[string]any, error) {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveRaw writes a generic map back to the config file in its format.
func SaveRaw(path string, raw map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if isTOML(path) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		return toml.NewEncoder(f).Encode(raw)
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = d.API.BaseURL
	}
	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = d.API.TimeoutSeconds
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = d.Store.Backend
	}
	if cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = d.Store.RedisAddr
	}
	if cfg.Store.Namespace == "" {
		cfg.Store.Namespace = d.Store.Namespace
	}
	if cfg.Store.AgentsKey == "" {
		cfg.Store.AgentsKey = d.Store.AgentsKey
	}
	if cfg.Store.RepositoryKey == "" {
		cfg.Store.RepositoryKey = d.Store.RepositoryKey
	}
	if cfg.Store.SeededFlagKey == "" {
		cfg.Store.SeededFlagKey = d.Store.SeededFlagKey
	}
	if cfg.Fetch.TimeoutSeconds == 0 {
		cfg.Fetch.TimeoutSeconds = d.Fetch.TimeoutSeconds
	}
	if cfg.Fetch.SlowTimeoutSeconds == 0 {
		cfg.Fetch.SlowTimeoutSeconds = d.Fetch.SlowTimeoutSeconds
	}
	if cfg.Fetch.ClassifyConcurrency == 0 {
		cfg.Fetch.ClassifyConcurrency = d.Fetch.ClassifyConcurrency
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = d.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = d.Gateway.Bind
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = d.Logging.ConsoleStyle
	}
}

// applyEnvOverrides reads BAZAAR_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BAZAAR_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("BAZAAR_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("BAZAAR_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("BAZAAR_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("BAZAAR_REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("BAZAAR_FETCH_SLOW"); v != "" {
		if slow, err := strconv.ParseBool(v); err == nil {
			cfg.Fetch.SlowMode = slow
		}
	}
	if v := os.Getenv("BAZAAR_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("BAZAAR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("BAZAAR_USER_ID"); v != "" {
		cfg.Identity.UserID = v
	}
}
