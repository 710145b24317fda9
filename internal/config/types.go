package config

// Config is the root configuration for bazaar.
type Config struct {
	API      APIConfig      `yaml:"api,omitempty" toml:"api"`
	Store    StoreConfig    `yaml:"store,omitempty" toml:"store"`
	Fetch    FetchConfig    `yaml:"fetch,omitempty" toml:"fetch"`
	Seeding  SeedingConfig  `yaml:"seeding,omitempty" toml:"seeding"`
	Gateway  GatewayConfig  `yaml:"gateway,omitempty" toml:"gateway"`
	Logging  LoggingConfig  `yaml:"logging,omitempty" toml:"logging"`
	Identity IdentityConfig `yaml:"identity,omitempty" toml:"identity"`
}

// APIConfig points at the remote templates API.
type APIConfig struct {
	BaseURL string `yaml:"baseUrl,omitempty" toml:"baseUrl"`
	// Token may reference an environment variable as ${VAR}.
	Token          string `yaml:"token,omitempty" toml:"token"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty" toml:"timeoutSeconds"`
}

// StoreConfig selects and configures the persistent key/value store.
type StoreConfig struct {
	// Backend is one of "sqlite", "redis" or "memory".
	Backend string `yaml:"backend,omitempty" toml:"backend"`
	// Path is the SQLite file; empty means <data>/bazaar.db.
	Path          string `yaml:"path,omitempty" toml:"path"`
	RedisAddr     string `yaml:"redisAddr,omitempty" toml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword,omitempty" toml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb,omitempty" toml:"redisDb"`
	Namespace     string `yaml:"namespace,omitempty" toml:"namespace"`
	AgentsKey     string `yaml:"agentsKey,omitempty" toml:"agentsKey"`
	RepositoryKey string `yaml:"repositoryKey,omitempty" toml:"repositoryKey"`
	SeededFlagKey string `yaml:"seededFlagKey,omitempty" toml:"seededFlagKey"`
}

// FetchConfig tunes the async fetch state machine.
type FetchConfig struct {
	TimeoutSeconds     int `yaml:"timeoutSeconds,omitempty" toml:"timeoutSeconds"`
	SlowTimeoutSeconds int `yaml:"slowTimeoutSeconds,omitempty" toml:"slowTimeoutSeconds"`
	// SlowMode selects the slow timeout for instrumented or heavily loaded runs.
	SlowMode            bool `yaml:"slowMode,omitempty" toml:"slowMode"`
	ClassifyConcurrency int  `yaml:"classifyConcurrency,omitempty" toml:"classifyConcurrency"`
}

// SeedingConfig controls the official-agent seeder.
type SeedingConfig struct {
	// OnStart runs the seeder once when the gateway starts.
	OnStart bool `yaml:"onStart,omitempty" toml:"onStart"`
}

// GatewayConfig controls the HTTP/WebSocket surface.
type GatewayConfig struct {
	Port int `yaml:"port,omitempty" toml:"port"`
	// Bind is one of "loopback", "lan" or "custom".
	Bind           string      `yaml:"bind,omitempty" toml:"bind"`
	CustomBindHost string      `yaml:"customBindHost,omitempty" toml:"customBindHost"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty" toml:"allowedOrigins"`
	Auth           GatewayAuth `yaml:"auth,omitempty" toml:"auth"`
	TLS            GatewayTLS  `yaml:"tls,omitempty" toml:"tls"`
}

// GatewayAuth configures how WebSocket and API clients authenticate.
type GatewayAuth struct {
	// Mode is "token", "password" or "none".
	Mode     string `yaml:"mode,omitempty" toml:"mode"`
	Token    string `yaml:"token,omitempty" toml:"token"`
	Password string `yaml:"password,omitempty" toml:"password"`
}

// GatewayTLS enables TLS on the gateway listener.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty" toml:"enabled"`
	CertPath string `yaml:"certPath,omitempty" toml:"certPath"`
	KeyPath  string `yaml:"keyPath,omitempty" toml:"keyPath"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty" toml:"level"`
	// ConsoleStyle is "pretty" or "json".
	ConsoleStyle string `yaml:"consoleStyle,omitempty" toml:"consoleStyle"`
}

// IdentityConfig is the local caller identity used for author backfill,
// publishing and deletion ownership checks.
type IdentityConfig struct {
	UserID   string `yaml:"userId,omitempty" toml:"userId"`
	Username string `yaml:"username,omitempty" toml:"username"`
	Email    string `yaml:"email,omitempty" toml:"email"`
}
