package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Logger          LoggerConfig          `mapstructure:"logger"`
	Auth            AuthConfig            `mapstructure:"auth"`
	ClaimID         ClaimIDConfig         `mapstructure:"claim_id"`
	FiscalYear      FiscalYearConfig      `mapstructure:"fiscal_year"`
	Sequence        SequenceConfig        `mapstructure:"sequence"`
	Query           QueryConfig           `mapstructure:"query"`
	EmployeeService EmployeeServiceConfig `mapstructure:"employee_service"`
	Redis           RedisConfig           `mapstructure:"redis"`
	Lark            LarkConfig            `mapstructure:"lark"`
	Metrics         MetricsConfig         `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite3 or pgx
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	SigningKey string `mapstructure:"signing_key"`
	Issuer     string `mapstructure:"issuer"`
	Audience   string `mapstructure:"audience"`
}

// ClaimIDConfig controls claim id formatting
type ClaimIDConfig struct {
	Prefix    string `mapstructure:"prefix"`
	Separator string `mapstructure:"separator"`
	Pad       int    `mapstructure:"pad"`
	UseRange  bool   `mapstructure:"use_range"`
}

// FiscalYearConfig holds the fiscal year start
type FiscalYearConfig struct {
	StartMonth int `mapstructure:"start_month"`
	StartDay   int `mapstructure:"start_day"`
}

// SequenceConfig bounds serialization retries
type SequenceConfig struct {
	MaxRetries int `mapstructure:"max_retries"`
}

// QueryConfig holds paging limits
type QueryConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
	MaxFIFO         int `mapstructure:"max_fifo"`
}

// EmployeeServiceConfig holds the employee lookup client settings
type EmployeeServiceConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig holds the lookup cache connection. An empty URL disables caching.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LarkConfig holds decision notification settings
type LarkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
	ChatID    string `mapstructure:"chat_id"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "data/claims.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Claim id and fiscal year defaults
	v.SetDefault("claim_id.prefix", "Claim")
	v.SetDefault("claim_id.separator", "-")
	v.SetDefault("claim_id.pad", 5)
	v.SetDefault("claim_id.use_range", true)
	v.SetDefault("fiscal_year.start_month", 7)
	v.SetDefault("fiscal_year.start_day", 1)

	v.SetDefault("sequence.max_retries", 5)

	v.SetDefault("query.default_page_size", 50)
	v.SetDefault("query.max_page_size", 200)
	v.SetDefault("query.max_fifo", 500)

	v.SetDefault("employee_service.timeout", 5*time.Second)
	v.SetDefault("employee_service.cache_ttl", 10*time.Minute)

	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("lark.enabled", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("auth.signing_key", "AUTH_SIGNING_KEY")
	_ = v.BindEnv("database.dsn", "DATABASE_DSN")
	_ = v.BindEnv("redis.url", "REDIS_URL")
	_ = v.BindEnv("employee_service.base_url", "EMPLOYEE_SERVICE_URL")
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.chat_id", "LARK_CHAT_ID")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.SigningKey == "" {
		return fmt.Errorf("auth.signing_key is required")
	}

	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3":
		if c.Database.Path == "" && c.Database.DSN == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres", "pgx":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}

	if c.ClaimID.Prefix == "" {
		return fmt.Errorf("claim_id.prefix is required")
	}
	if c.ClaimID.Pad < 1 || c.ClaimID.Pad > 18 {
		return fmt.Errorf("claim_id.pad must be between 1 and 18")
	}
	if c.FiscalYear.StartMonth < 1 || c.FiscalYear.StartMonth > 12 {
		return fmt.Errorf("fiscal_year.start_month must be between 1 and 12")
	}
	if c.FiscalYear.StartDay < 1 || c.FiscalYear.StartDay > 31 {
		return fmt.Errorf("fiscal_year.start_day must be between 1 and 31")
	}
	if c.Sequence.MaxRetries < 0 {
		return fmt.Errorf("sequence.max_retries cannot be negative")
	}
	if c.Query.DefaultPageSize < 1 || c.Query.MaxPageSize < c.Query.DefaultPageSize {
		return fmt.Errorf("query.default_page_size must be positive and not above query.max_page_size")
	}
	if c.Query.MaxFIFO < 1 {
		return fmt.Errorf("query.max_fifo must be positive")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" || c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_id and lark.app_secret are required when lark is enabled")
		}
		if c.Lark.ChatID == "" {
			return fmt.Errorf("lark.chat_id is required when lark is enabled")
		}
	}

	return nil
}

// Addr returns the HTTP listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
