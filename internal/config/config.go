package config

import (
	"fmt"
	"time"
)

// Config represents the global configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	CircuitBreak CircuitBreakConfig `mapstructure:"circuit_break"`
	Security     SecurityConfig     `mapstructure:"security"`
	EventBus     EventBusConfig     `mapstructure:"event_bus"`
	Settlement   SettlementConfig   `mapstructure:"settlement"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Mail         MailConfig         `mapstructure:"mail"`
	Dedupe       DedupeConfig       `mapstructure:"dedupe"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	Charset         string        `mapstructure:"charset"`
	ParseTime       bool          `mapstructure:"parse_time"`
	Loc             string        `mapstructure:"loc"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig represents tracing configuration
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Global  struct {
		RPS   int `mapstructure:"rps"`
		Burst int `mapstructure:"burst"`
	} `mapstructure:"global"`
	PerBuyer struct {
		Limit  int           `mapstructure:"limit"`
		Window time.Duration `mapstructure:"window"`
	} `mapstructure:"per_buyer"`
}

// CircuitBreakConfig represents circuit breaker configuration
type CircuitBreakConfig struct {
	MaxFailures      int           `mapstructure:"max_failures"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRequests      int           `mapstructure:"max_requests"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	JWT struct {
		Secret string        `mapstructure:"secret"`
		Expire time.Duration `mapstructure:"expire"`
		Issuer string        `mapstructure:"issuer"`
	} `mapstructure:"jwt"`
	CORS struct {
		Enabled          bool     `mapstructure:"enabled"`
		AllowOrigins     []string `mapstructure:"allow_origins"`
		AllowCredentials bool     `mapstructure:"allow_credentials"`
		MaxAge           int      `mapstructure:"max_age"`
	} `mapstructure:"cors"`
}

// EventBusConfig configures the backing queue behind the event bus
type EventBusConfig struct {
	Driver       string        `mapstructure:"driver"` // memory, redis
	StreamPrefix string        `mapstructure:"stream_prefix"`
	BufferSize   int           `mapstructure:"buffer_size"`
	MaxLen       int64         `mapstructure:"max_len"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	BlockTimeout time.Duration `mapstructure:"block_timeout"`
	ClaimMinIdle time.Duration `mapstructure:"claim_min_idle"`
	BatchSize    int64         `mapstructure:"batch_size"`
	PublishWait  time.Duration `mapstructure:"publish_wait"`
}

// SettlementConfig holds pricing and ledger settings
type SettlementConfig struct {
	DefaultCommissionBps int           `mapstructure:"default_commission_bps"`
	MinTipAmount         int64         `mapstructure:"min_tip_amount"`
	MaxQuantity          int           `mapstructure:"max_quantity"`
	LedgerTimeout        time.Duration `mapstructure:"ledger_timeout"`
	MonthlyPeriod        time.Duration `mapstructure:"monthly_period"`
	YearlyPeriod         time.Duration `mapstructure:"yearly_period"`
	WorkerID             int64         `mapstructure:"worker_id"`
}

// SchedulerConfig holds job store and transition runner settings
type SchedulerConfig struct {
	KeyPrefix          string        `mapstructure:"key_prefix"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	TransitionInterval time.Duration `mapstructure:"transition_interval"`
	RetryInterval      time.Duration `mapstructure:"retry_interval"`
	InitialDelay       time.Duration `mapstructure:"initial_delay"`
	BatchSize          int           `mapstructure:"batch_size"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
	StockSyncInterval  time.Duration `mapstructure:"stock_sync_interval"`
}

// MailConfig configures outbound notifications
type MailConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	From    string        `mapstructure:"from"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DedupeConfig configures listener de-duplication
type DedupeConfig struct {
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
	LocalTTL  time.Duration `mapstructure:"local_ttl"`
}

// GetAddr returns the server address
func (s *ServerConfig) GetAddr() string {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetDSN returns the database DSN
func (d *DatabaseConfig) GetDSN() string {
	if d.Charset == "" {
		d.Charset = "utf8mb4"
	}
	if d.Loc == "" {
		d.Loc = "Local"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, d.Charset, d.ParseTime, d.Loc)
}

// GetAddr returns the Redis address
func (r *RedisConfig) GetAddr() string {
	if r.Host == "" {
		r.Host = "localhost"
	}
	if r.Port == 0 {
		r.Port = 6379
	}
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}

	if c.Security.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	switch c.EventBus.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported event bus driver: %q", c.EventBus.Driver)
	}

	if c.Settlement.DefaultCommissionBps < 0 || c.Settlement.DefaultCommissionBps > 10000 {
		return fmt.Errorf("default commission must be within [0, 10000] bps, got %d", c.Settlement.DefaultCommissionBps)
	}

	if c.Settlement.LedgerTimeout <= 0 {
		return fmt.Errorf("settlement ledger timeout must be positive")
	}

	if c.Scheduler.RetryInterval >= c.Scheduler.TransitionInterval {
		return fmt.Errorf("scheduler retry interval (%s) must be shorter than transition interval (%s)",
			c.Scheduler.RetryInterval, c.Scheduler.TransitionInterval)
	}

	return nil
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "debug"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.Loc == "" {
		c.Database.Loc = "Local"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}
	if c.Database.ConnMaxIdleTime == 0 {
		c.Database.ConnMaxIdleTime = 10 * time.Minute
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "warn"
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.MaxRetries == 0 {
		c.Redis.MaxRetries = 3
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.PoolTimeout == 0 {
		c.Redis.PoolTimeout = 4 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "fanhub"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "fanhub"
	}

	if c.RateLimit.Global.RPS == 0 {
		c.RateLimit.Global.RPS = 1000
	}
	if c.RateLimit.Global.Burst == 0 {
		c.RateLimit.Global.Burst = 2000
	}
	if c.RateLimit.PerBuyer.Limit == 0 {
		c.RateLimit.PerBuyer.Limit = 30
	}
	if c.RateLimit.PerBuyer.Window == 0 {
		c.RateLimit.PerBuyer.Window = time.Minute
	}

	if c.CircuitBreak.MaxFailures == 0 {
		c.CircuitBreak.MaxFailures = 5
	}
	if c.CircuitBreak.SuccessThreshold == 0 {
		c.CircuitBreak.SuccessThreshold = 2
	}
	if c.CircuitBreak.Timeout == 0 {
		c.CircuitBreak.Timeout = 30 * time.Second
	}
	if c.CircuitBreak.MaxRequests == 0 {
		c.CircuitBreak.MaxRequests = 1
	}

	if c.Security.JWT.Expire == 0 {
		c.Security.JWT.Expire = 2 * time.Hour
	}
	if c.Security.JWT.Issuer == "" {
		c.Security.JWT.Issuer = "fanhub"
	}

	if c.EventBus.Driver == "" {
		c.EventBus.Driver = "redis"
	}
	if c.EventBus.StreamPrefix == "" {
		c.EventBus.StreamPrefix = "events:"
	}
	if c.EventBus.BufferSize == 0 {
		c.EventBus.BufferSize = 1024
	}
	if c.EventBus.MaxLen == 0 {
		c.EventBus.MaxLen = 100000
	}
	if c.EventBus.MaxAttempts == 0 {
		c.EventBus.MaxAttempts = 5
	}
	if c.EventBus.RetryBackoff == 0 {
		c.EventBus.RetryBackoff = time.Second
	}
	if c.EventBus.BlockTimeout == 0 {
		c.EventBus.BlockTimeout = 2 * time.Second
	}
	if c.EventBus.ClaimMinIdle == 0 {
		c.EventBus.ClaimMinIdle = 30 * time.Second
	}
	if c.EventBus.BatchSize == 0 {
		c.EventBus.BatchSize = 16
	}
	if c.EventBus.PublishWait == 0 {
		c.EventBus.PublishWait = 3 * time.Second
	}

	if c.Settlement.DefaultCommissionBps == 0 {
		c.Settlement.DefaultCommissionBps = 2000
	}
	if c.Settlement.MinTipAmount == 0 {
		c.Settlement.MinTipAmount = 100
	}
	if c.Settlement.MaxQuantity == 0 {
		c.Settlement.MaxQuantity = 99
	}
	if c.Settlement.LedgerTimeout == 0 {
		c.Settlement.LedgerTimeout = 5 * time.Second
	}
	if c.Settlement.MonthlyPeriod == 0 {
		c.Settlement.MonthlyPeriod = 30 * 24 * time.Hour
	}
	if c.Settlement.YearlyPeriod == 0 {
		c.Settlement.YearlyPeriod = 365 * 24 * time.Hour
	}

	if c.Scheduler.KeyPrefix == "" {
		c.Scheduler.KeyPrefix = "jobs:"
	}
	if c.Scheduler.PollInterval == 0 {
		c.Scheduler.PollInterval = time.Second
	}
	if c.Scheduler.TransitionInterval == 0 {
		c.Scheduler.TransitionInterval = 5 * time.Minute
	}
	if c.Scheduler.RetryInterval == 0 {
		c.Scheduler.RetryInterval = 20 * time.Second
	}
	if c.Scheduler.InitialDelay == 0 {
		c.Scheduler.InitialDelay = 5 * time.Second
	}
	if c.Scheduler.BatchSize == 0 {
		c.Scheduler.BatchSize = 200
	}
	if c.Scheduler.LockTTL == 0 {
		c.Scheduler.LockTTL = time.Minute
	}
	if c.Scheduler.StockSyncInterval == 0 {
		c.Scheduler.StockSyncInterval = 10 * time.Minute
	}

	if c.Mail.From == "" {
		c.Mail.From = "no-reply@fanhub.local"
	}
	if c.Mail.Timeout == 0 {
		c.Mail.Timeout = 10 * time.Second
	}

	if c.Dedupe.KeyPrefix == "" {
		c.Dedupe.KeyPrefix = "dedupe:"
	}
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = 7 * 24 * time.Hour
	}
	if c.Dedupe.LocalTTL == 0 {
		c.Dedupe.LocalTTL = 10 * time.Minute
	}
}
