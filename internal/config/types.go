package config

import (
	"strconv"
	"time"
)

// RootConfig is the top-level config document loaded by Load[RootConfig].
type RootConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	JobQueue  JobQueueConfig  `yaml:"job_queue"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cache     CacheConfig     `yaml:"cache"`
	Output    OutputConfig    `yaml:"output"`
	MCP       MCPConfig       `yaml:"mcp"`
	Registry  RegistryConfig  `yaml:"registry"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Env       string          `yaml:"env" env:"RATCHET_ENV"` // deployment environment name; the job processor does not pass it to output delivery, where {{env}} renders as an empty string
}

// SetDefaults cascades SetDefaults to every sub-config.
func (c *RootConfig) SetDefaults() {
	c.Server.SetDefaults()
	c.Database.SetDefaults()
	c.Logging.SetDefaults()
	c.JobQueue.SetDefaults()
	c.Scheduler.SetDefaults()
	c.Cache.SetDefaults()
	c.Output.SetDefaults()
	c.MCP.SetDefaults()
	c.Registry.SetDefaults()
	c.Executor.SetDefaults()
	if c.Env == "" {
		c.Env = "development"
	}
}

// ServerConfig holds the MCP SSE HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" env:"RATCHET_SERVER_HOST"`
	Port         int           `yaml:"port" env:"RATCHET_SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	AllowedOrigins []string    `yaml:"allowed_origins"`
	AllowCredentials bool      `yaml:"allow_credentials"`
}

func (c *ServerConfig) Address() string {
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}

func (c *ServerConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8090
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	// CORS default: allowed_origins must not contain "*" unless
	// the operator explicitly sets it; leave nil (deny-by-default) rather
	// than defaulting to a wildcard.
}

// DatabaseConfig holds the Postgres connection configuration.
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"RATCHET_DB_HOST"`
	Port            int           `yaml:"port" env:"RATCHET_DB_PORT"`
	User            string        `yaml:"user" env:"RATCHET_DB_USER"`
	Password        string        `yaml:"password" env:"RATCHET_DB_PASSWORD"`
	Database        string        `yaml:"database" env:"RATCHET_DB_NAME"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxIdleConns    int           `yaml:"max_idle_connections"`
	ConnMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
	Timeout         time.Duration `yaml:"timeout"` // per-call repository timeout (default 60s)
}

func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

func (c *DatabaseConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// LoggingConfig holds structured-logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"RATCHET_LOG_LEVEL"`   // trace|debug|info|warn|error
	Format string `yaml:"format" env:"RATCHET_LOG_FORMAT"` // text|json|pretty|compact
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}

// JobQueueConfig controls the job processor poll loop.
type JobQueueConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval" env:"RATCHET_JOBQUEUE_POLL_INTERVAL"`
	BatchSize       int           `yaml:"batch_size" env:"RATCHET_JOBQUEUE_BATCH_SIZE"`
	ExecutorTimeout time.Duration `yaml:"executor_timeout"`
	MaxBackoff      time.Duration `yaml:"max_store_backoff"` // store-unavailable backoff cap, default 30s
}

func (c *JobQueueConfig) SetDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = 10
	}
	if c.ExecutorTimeout == 0 {
		c.ExecutorTimeout = 300 * time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
}

// SchedulerConfig controls the cron-tick scheduler.
type SchedulerConfig struct {
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

func (c *SchedulerConfig) SetDefaults() {
	if c.ReloadInterval == 0 {
		c.ReloadInterval = time.Minute
	}
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	Enabled          bool          `yaml:"enabled" env:"RATCHET_CACHE_ENABLED"`
	MaxEntries       int           `yaml:"max_entries" env:"RATCHET_CACHE_MAX_ENTRIES"`
	MaxResultSize    int           `yaml:"max_result_size"`
	TTL              time.Duration `yaml:"ttl" env:"RATCHET_CACHE_TTL"`
	CacheOnlySuccess bool          `yaml:"cache_only_success"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

func (c *CacheConfig) SetDefaults() {
	c.Enabled = true
	if c.MaxEntries == 0 {
		c.MaxEntries = 10_000
	}
	if c.MaxResultSize == 0 {
		c.MaxResultSize = 1 << 20 // 1 MiB
	}
	if c.TTL == 0 {
		c.TTL = time.Hour
	}
	c.CacheOnlySuccess = true
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Minute
	}
}

// OutputConfig controls output delivery defaults.
type OutputConfig struct {
	FilesystemTimeout time.Duration `yaml:"filesystem_timeout"`
	WebhookTimeout    time.Duration `yaml:"webhook_timeout"`
	DefaultPermissions uint32       `yaml:"default_permissions"`
	WebhookSecret     string        `yaml:"webhook_secret" env:"RATCHET_WEBHOOK_SECRET"`
}

func (c *OutputConfig) SetDefaults() {
	if c.FilesystemTimeout == 0 {
		c.FilesystemTimeout = 30 * time.Second
	}
	if c.WebhookTimeout == 0 {
		c.WebhookTimeout = 30 * time.Second
	}
	if c.DefaultPermissions == 0 {
		c.DefaultPermissions = 0644
	}
}

// MCPConfig controls the JSON-RPC protocol layer.
type MCPConfig struct {
	SessionTimeout     time.Duration `yaml:"session_timeout"`
	SSEBufferSize      int           `yaml:"sse_buffer_size"` // per-session replay buffer, default 1000
	MaxMessageBytes    int           `yaml:"max_message_bytes"`
	JWTSecret          string        `yaml:"jwt_secret" env:"RATCHET_JWT_SECRET"`
	RequireAuth        bool          `yaml:"require_auth"`
	RateLimitPerWindow int           `yaml:"rate_limit_per_window"`
	RateLimitWindow    time.Duration `yaml:"rate_limit_window"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	AllowDangerousTasks bool         `yaml:"allow_dangerous_tasks"`
	// Environment scopes tool visibility: "local" exposes every tool
	// including destructive ones (delete_task); "shared" and "prod" hide
	// them unless AllowDangerousTasks overrides it.
	Environment string `yaml:"environment" env:"RATCHET_MCP_ENVIRONMENT"`
}

func (c *MCPConfig) SetDefaults() {
	if c.SessionTimeout == 0 {
		c.SessionTimeout = time.Hour
	}
	if c.SSEBufferSize == 0 {
		c.SSEBufferSize = 1000
	}
	if c.MaxMessageBytes == 0 {
		c.MaxMessageBytes = 1 << 20 // 1 MiB
	}
	if c.RateLimitPerWindow == 0 {
		c.RateLimitPerWindow = 100
	}
	if c.RateLimitWindow == 0 {
		c.RateLimitWindow = time.Minute
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 20
	}
	if c.Environment == "" {
		c.Environment = "shared"
	}
}

// RegistryConfig controls task registry discovery.
type RegistryConfig struct {
	FilesystemRoot  string        `yaml:"filesystem_root" env:"RATCHET_REGISTRY_ROOT"`
	Watch           bool          `yaml:"watch"`
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

func (c *RegistryConfig) SetDefaults() {
	if c.DebounceInterval == 0 {
		c.DebounceInterval = 200 * time.Millisecond
	}
}

// ExecutorConfig controls the goja-backed JavaScript task runtime.
type ExecutorConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent" env:"RATCHET_EXECUTOR_MAX_CONCURRENT"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	FetchEnabled  bool          `yaml:"fetch_enabled"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
}

func (c *ExecutorConfig) SetDefaults() {
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 8
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = 300 * time.Second
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 30 * time.Second
	}
}
