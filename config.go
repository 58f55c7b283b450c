package lensmcp

// Config is the engine configuration used by library mode via New().
// It is immutable after Validate(): the engine never re-reads it, and the CLI
// assembles it once from flags and environment variables at startup.
type Config struct {
	Driver       string            `json:"driver"` // "mysql" or "postgres"
	Connection   ConnectionConfig  `json:"connection"`
	Tunnel       TunnelConfig      `json:"tunnel"`
	Pool         PoolConfig        `json:"pool"`
	Query        QueryConfig       `json:"query"`
	Policy       map[string]string `json:"policy"` // capability tag -> "allow" | "deny"
	Masking      []MaskRule        `json:"masking"`
	ErrorPrompts []ErrorPromptRule `json:"error_prompts"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Server  ServerSettings `json:"server"`
	Logging LoggingConfig  `json:"logging"`
}

// ConnectionConfig holds database connection parameters.
type ConnectionConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"` // postgres only
}

// TunnelConfig holds SSH tunnel parameters. When Enabled, exactly one of
// KeyPath and Password must be set.
type TunnelConfig struct {
	Enabled       bool   `json:"enabled"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	User          string `json:"user"`
	KeyPath       string `json:"key_path"`
	Password      string `json:"password"`
	LocalBindPort int    `json:"local_bind_port"` // 0 picks a free port
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxConns              int    `json:"max_conns"`
	MaxIdleConns          int    `json:"max_idle_conns"`
	AcquireTimeoutSeconds int    `json:"acquire_timeout_seconds"`
	ShutdownGraceSeconds  int    `json:"shutdown_grace_seconds"`
	MaxConnLifetime       string `json:"max_conn_lifetime"`
	MaxConnIdleTime       string `json:"max_conn_idle_time"`
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	DefaultTimeoutSeconds int           `json:"default_timeout_seconds"`
	SchemaTimeoutSeconds  int           `json:"schema_timeout_seconds"`
	MaxSQLLength          int           `json:"max_sql_length"`
	MaxResultLength       int           `json:"max_result_length"`
	MaxRows               int           `json:"max_rows"`
	TimeoutRules          []TimeoutRule `json:"timeout_rules"`
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ErrorPromptRule maps an error message pattern to a guidance message that is
// appended to (never substituted for) the original error text.
type ErrorPromptRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// MaskRule defines a regex-based result value masking rule.
type MaskRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Description string `json:"description"`
}

// ServerSettings holds transport settings for CLI mode.
type ServerSettings struct {
	Transport          string `json:"transport"` // "stdio" or "http"
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stderr, or file path
}

const (
	defaultMaxConns       = 5
	defaultAcquireTimeout = 10
	defaultShutdownGrace  = 15
	defaultQueryTimeout   = 30
	defaultSchemaTimeout  = 10
	defaultMaxSQLLength   = 100000
	defaultMaxResultLen   = 100000
	defaultMaxRows        = 10000
)

// Validate checks the configuration and applies defaults for zero values.
// Returns a *ConfigError on the first problem found. A failed Validate is a
// startup-fatal condition: the process must exit non-zero without touching
// the database or the SSH host.
func (c *Config) Validate() error {
	switch c.Driver {
	case "mysql", "postgres":
	case "":
		return configErrorf("driver is required (mysql or postgres)")
	default:
		return configErrorf("unsupported driver %q (mysql or postgres)", c.Driver)
	}

	if c.Connection.User == "" {
		return configErrorf("connection.user is required")
	}
	if c.Connection.Database == "" {
		return configErrorf("connection.database is required")
	}
	if c.Connection.Host == "" {
		c.Connection.Host = "localhost"
	}
	if c.Connection.Port == 0 {
		if c.Driver == "mysql" {
			c.Connection.Port = 3306
		} else {
			c.Connection.Port = 5432
		}
	}

	if c.Tunnel.Enabled {
		if c.Tunnel.Host == "" {
			return configErrorf("tunnel.host is required when the tunnel is enabled")
		}
		if c.Tunnel.User == "" {
			return configErrorf("tunnel.user is required when the tunnel is enabled")
		}
		if c.Tunnel.KeyPath != "" && c.Tunnel.Password != "" {
			return configErrorf("ambiguous SSH auth: both tunnel.key_path and tunnel.password are set, configure exactly one")
		}
		if c.Tunnel.KeyPath == "" && c.Tunnel.Password == "" {
			return configErrorf("missing SSH auth: set either tunnel.key_path or tunnel.password")
		}
		if c.Tunnel.Port == 0 {
			c.Tunnel.Port = 22
		}
		if c.Tunnel.LocalBindPort < 0 {
			return configErrorf("tunnel.local_bind_port must be >= 0")
		}
	}

	if c.Pool.MaxConns == 0 {
		c.Pool.MaxConns = defaultMaxConns
	}
	if c.Pool.MaxConns < 0 {
		return configErrorf("pool.max_conns must be > 0")
	}
	if c.Pool.MaxIdleConns == 0 {
		c.Pool.MaxIdleConns = c.Pool.MaxConns
	}
	if c.Pool.AcquireTimeoutSeconds == 0 {
		c.Pool.AcquireTimeoutSeconds = defaultAcquireTimeout
	}
	if c.Pool.AcquireTimeoutSeconds < 0 {
		return configErrorf("pool.acquire_timeout_seconds must be > 0")
	}
	if c.Pool.ShutdownGraceSeconds == 0 {
		c.Pool.ShutdownGraceSeconds = defaultShutdownGrace
	}

	if c.Query.DefaultTimeoutSeconds == 0 {
		c.Query.DefaultTimeoutSeconds = defaultQueryTimeout
	}
	if c.Query.DefaultTimeoutSeconds < 0 {
		return configErrorf("query.default_timeout_seconds must be > 0")
	}
	if c.Query.SchemaTimeoutSeconds == 0 {
		c.Query.SchemaTimeoutSeconds = defaultSchemaTimeout
	}
	if c.Query.MaxSQLLength == 0 {
		c.Query.MaxSQLLength = defaultMaxSQLLength
	}
	if c.Query.MaxResultLength == 0 {
		c.Query.MaxResultLength = defaultMaxResultLen
	}
	if c.Query.MaxRows == 0 {
		c.Query.MaxRows = defaultMaxRows
	}
	if c.Query.MaxRows < 0 {
		return configErrorf("query.max_rows must be > 0")
	}
	for _, rule := range c.Query.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			return configErrorf("timeout_rule with pattern %q has timeout_seconds <= 0", rule.Pattern)
		}
	}

	for tag, rule := range c.Policy {
		if rule != "allow" && rule != "deny" {
			return configErrorf("policy rule for tag %q must be \"allow\" or \"deny\", got %q", tag, rule)
		}
	}

	return nil
}
