package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Shopee       ShopeeConfig
	MercadoLivre MercadoLivreConfig
	Retry        RetryConfig
	Sync         SyncConfig
	Schedule     ScheduleConfig
	Storage      StorageConfig
	Telemetry    TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	AutoMigrate     bool
}

// RedisConfig holds Redis connection settings. Renewal locks fall back to
// an in-process locker when Enabled is false.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	LockTTL  time.Duration
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
}

// ShopeeConfig holds Shopee Open Platform settings
type ShopeeConfig struct {
	APIBaseURL     string
	IsSandbox      bool
	TimeoutSeconds int
}

// MercadoLivreConfig holds Mercado Livre API settings
type MercadoLivreConfig struct {
	APIBaseURL     string
	TimeoutSeconds int
}

// RetryConfig holds the shared upstream retry policy
type RetryConfig struct {
	MaxAttempts        int
	ForbiddenBaseDelay time.Duration
	RateLimitCooldown  time.Duration
}

// SyncConfig holds pagination, batching and fan-out limits
type SyncConfig struct {
	PageSize            int
	MaxPages            int
	PagePause           time.Duration
	DetailBatchSize     int
	EscrowBatchSize     int
	BillingBatchSize    int
	BatchPause          time.Duration
	FanOut              int
	MaxConcurrentStores int
	RenewalMargin       time.Duration
	StorePause          time.Duration
	RetentionDays       int
	RetentionEnabled    bool
}

// ScheduleConfig holds the interval triggers
type ScheduleConfig struct {
	Enabled           bool
	TokenRefresh      time.Duration
	OrderSync         time.Duration
	FinancialSync     time.Duration
	DefaultWindow     string
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// StorageConfig holds the raw payload archive settings
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// TelemetryConfig holds OpenTelemetry trace export settings
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	Insecure          bool
	TraceDatabase     bool
	TraceSQLVariables bool
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with MKTSYNC_ prefix (e.g., MKTSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("MKTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that default to true need an explicit default, since an
	// unset key reads as false
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("sync.retention_enabled", true)
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("telemetry.sampling_ratio", 1.0)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LockTTL:  v.GetDuration("redis.lock_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Shopee: ShopeeConfig{
			APIBaseURL:     v.GetString("shopee.api_base_url"),
			IsSandbox:      v.GetBool("shopee.is_sandbox"),
			TimeoutSeconds: v.GetInt("shopee.timeout_seconds"),
		},
		MercadoLivre: MercadoLivreConfig{
			APIBaseURL:     v.GetString("mercado_livre.api_base_url"),
			TimeoutSeconds: v.GetInt("mercado_livre.timeout_seconds"),
		},
		Retry: RetryConfig{
			MaxAttempts:        v.GetInt("retry.max_attempts"),
			ForbiddenBaseDelay: v.GetDuration("retry.forbidden_base_delay"),
			RateLimitCooldown:  v.GetDuration("retry.rate_limit_cooldown"),
		},
		Sync: SyncConfig{
			PageSize:            v.GetInt("sync.page_size"),
			MaxPages:            v.GetInt("sync.max_pages"),
			PagePause:           v.GetDuration("sync.page_pause"),
			DetailBatchSize:     v.GetInt("sync.detail_batch_size"),
			EscrowBatchSize:     v.GetInt("sync.escrow_batch_size"),
			BillingBatchSize:    v.GetInt("sync.billing_batch_size"),
			BatchPause:          v.GetDuration("sync.batch_pause"),
			FanOut:              v.GetInt("sync.fan_out"),
			MaxConcurrentStores: v.GetInt("sync.max_concurrent_stores"),
			RenewalMargin:       v.GetDuration("sync.renewal_margin"),
			StorePause:          v.GetDuration("sync.store_pause"),
			RetentionDays:       v.GetInt("sync.retention_days"),
			RetentionEnabled:    v.GetBool("sync.retention_enabled"),
		},
		Schedule: ScheduleConfig{
			Enabled:           v.GetBool("schedule.enabled"),
			TokenRefresh:      v.GetDuration("schedule.token_refresh"),
			OrderSync:         v.GetDuration("schedule.order_sync"),
			FinancialSync:     v.GetDuration("schedule.financial_sync"),
			DefaultWindow:     v.GetString("schedule.default_window"),
			MaxConcurrentJobs: v.GetInt("schedule.max_concurrent_jobs"),
			JobTimeout:        v.GetDuration("schedule.job_timeout"),
			RetryAttempts:     v.GetInt("schedule.retry_attempts"),
			RetryDelay:        v.GetDuration("schedule.retry_delay"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			Insecure:          v.GetBool("telemetry.insecure"),
			TraceDatabase:     v.GetBool("telemetry.trace_database"),
			TraceSQLVariables: v.GetBool("telemetry.trace_sql_variables"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "marketsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "marketsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "marketsync.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	// Sync requests run inline, so the write timeout covers a whole run
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.Shopee.TimeoutSeconds == 0 {
		cfg.Shopee.TimeoutSeconds = 30
	}
	if cfg.MercadoLivre.TimeoutSeconds == 0 {
		cfg.MercadoLivre.TimeoutSeconds = 30
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.ForbiddenBaseDelay == 0 {
		cfg.Retry.ForbiddenBaseDelay = 30 * time.Second
	}
	if cfg.Retry.RateLimitCooldown == 0 {
		cfg.Retry.RateLimitCooldown = 60 * time.Second
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 100
	}
	if cfg.Sync.MaxPages == 0 {
		cfg.Sync.MaxPages = 100
	}
	if cfg.Sync.PagePause == 0 {
		cfg.Sync.PagePause = time.Second
	}
	if cfg.Sync.DetailBatchSize == 0 {
		cfg.Sync.DetailBatchSize = 50
	}
	if cfg.Sync.EscrowBatchSize == 0 {
		cfg.Sync.EscrowBatchSize = 20
	}
	if cfg.Sync.BillingBatchSize == 0 {
		cfg.Sync.BillingBatchSize = 50
	}
	if cfg.Sync.BatchPause == 0 {
		cfg.Sync.BatchPause = 2 * time.Second
	}
	if cfg.Sync.FanOut == 0 {
		cfg.Sync.FanOut = 20
	}
	if cfg.Sync.MaxConcurrentStores == 0 {
		cfg.Sync.MaxConcurrentStores = 3
	}
	if cfg.Sync.RenewalMargin == 0 {
		cfg.Sync.RenewalMargin = 5 * time.Minute
	}
	if cfg.Sync.StorePause == 0 {
		cfg.Sync.StorePause = 2 * time.Second
	}
	if cfg.Sync.RetentionDays == 0 {
		cfg.Sync.RetentionDays = 15
	}
	if cfg.Schedule.TokenRefresh == 0 {
		cfg.Schedule.TokenRefresh = 3 * time.Hour
	}
	if cfg.Schedule.OrderSync == 0 {
		cfg.Schedule.OrderSync = 2 * time.Hour
	}
	if cfg.Schedule.FinancialSync == 0 {
		cfg.Schedule.FinancialSync = 6 * time.Hour
	}
	if cfg.Schedule.DefaultWindow == "" {
		cfg.Schedule.DefaultWindow = "week"
	}
	if cfg.Schedule.MaxConcurrentJobs == 0 {
		cfg.Schedule.MaxConcurrentJobs = 2
	}
	if cfg.Schedule.JobTimeout == 0 {
		cfg.Schedule.JobTimeout = time.Hour
	}
	if cfg.Schedule.RetryAttempts == 0 {
		cfg.Schedule.RetryAttempts = 2
	}
	if cfg.Schedule.RetryDelay == 0 {
		cfg.Schedule.RetryDelay = 5 * time.Minute
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Sync.BillingBatchSize > 50 {
		return fmt.Errorf("sync.billing_batch_size cannot exceed 50, got %d", c.Sync.BillingBatchSize)
	}
	if c.Sync.DetailBatchSize > 50 {
		return fmt.Errorf("sync.detail_batch_size cannot exceed 50, got %d", c.Sync.DetailBatchSize)
	}
	if c.Sync.FanOut < 1 || c.Sync.FanOut > 20 {
		return fmt.Errorf("sync.fan_out must be between 1 and 20, got %d", c.Sync.FanOut)
	}
	if c.Sync.MaxConcurrentStores < 1 {
		return fmt.Errorf("sync.max_concurrent_stores must be positive")
	}

	switch c.Schedule.DefaultWindow {
	case "24h", "week", "month":
	default:
		return fmt.Errorf("schedule.default_window must be one of 24h, week, month, got %q", c.Schedule.DefaultWindow)
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0 and 1, got %v", c.Telemetry.SamplingRatio)
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
		if c.Shopee.IsSandbox {
			return fmt.Errorf("shopee.is_sandbox must be false in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
