package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/nutriadmin/admin-api/internal/spreadsheet"
	"github.com/nutriadmin/admin-api/pkg/messaging/redis"
	"github.com/nutriadmin/admin-api/pkg/worker"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Outbox      OutboxConfig      `mapstructure:"outbox"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Upload      UploadConfig      `mapstructure:"upload"`
	Spreadsheet SpreadsheetConfig `mapstructure:"spreadsheet"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds" split_words:"true"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl" split_words:"true"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Channel      string        `mapstructure:"channel"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Retention     time.Duration `mapstructure:"retention"`
	HealthPort    int           `mapstructure:"health_port"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	ClientTTL         time.Duration `mapstructure:"client_ttl"`
}

type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes" split_words:"true"`
}

// SpreadsheetConfig positions are 1-based, as a user reads them in the sheet.
type SpreadsheetConfig struct {
	SessionDateRow    int    `mapstructure:"session_date_row"`
	SessionDateColumn int    `mapstructure:"session_date_column"`
	FirstDataRow      int    `mapstructure:"first_data_row"`
	MaxRows           int    `mapstructure:"max_rows"`
	MaxEmptyRun       int    `mapstructure:"max_empty_run"`
	NonSubjectPattern string `mapstructure:"non_subject_pattern"`
	RunEndPattern     string `mapstructure:"run_end_pattern"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 30)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("jwt.issuer", "nutriadmin")
	v.SetDefault("jwt.token_ttl", "24h")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel", "measurement.events")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")
	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", "5s")
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", "2s")
	v.SetDefault("outbox.retention", "168h")
	v.SetDefault("outbox.health_port", 8081)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 5)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.client_ttl", "10m")
	v.SetDefault("upload.max_bytes", 10<<20)
	v.SetDefault("spreadsheet.session_date_row", 4)
	v.SetDefault("spreadsheet.session_date_column", 2)
	v.SetDefault("spreadsheet.first_data_row", 7)
	v.SetDefault("spreadsheet.max_rows", 1000)
	v.SetDefault("spreadsheet.max_empty_run", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.namespace", "nutriadmin")
}

// LoadConfig reads config.yaml from the working directory or ./config (a
// missing file leaves the defaults), then applies NUTRI_* environment
// overrides such as NUTRI_DATABASE_HOST or NUTRI_JWT_SECRET.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnv(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyEnv(config *Config) error {
	sections := map[string]interface{}{
		"NUTRI_SERVER":   &config.Server,
		"NUTRI_DATABASE": &config.Database,
		"NUTRI_JWT":      &config.JWT,
		"NUTRI_REDIS":    &config.Redis,
		"NUTRI_UPLOAD":   &config.Upload,
		"NUTRI_LOG":      &config.Log,
	}
	for prefix, section := range sections {
		if err := envconfig.Process(prefix, section); err != nil {
			return fmt.Errorf("failed to apply %s_* environment: %w", prefix, err)
		}
	}
	return nil
}

// Layout converts the 1-based sheet positions into a parser layout.
func (c SpreadsheetConfig) Layout() (spreadsheet.Layout, error) {
	layout := spreadsheet.DefaultLayout()
	if c.SessionDateRow > 0 {
		layout.SessionDateRow = c.SessionDateRow - 1
	}
	if c.SessionDateColumn > 0 {
		layout.SessionDateColumn = c.SessionDateColumn - 1
	}
	if c.FirstDataRow > 0 {
		layout.FirstDataRow = c.FirstDataRow - 1
	}
	if c.MaxRows > 0 {
		layout.MaxRows = c.MaxRows
	}
	if c.MaxEmptyRun > 0 {
		layout.MaxEmptyRun = c.MaxEmptyRun
	}
	if c.NonSubjectPattern != "" {
		re, err := regexp.Compile(c.NonSubjectPattern)
		if err != nil {
			return layout, fmt.Errorf("invalid spreadsheet.non_subject_pattern: %w", err)
		}
		layout.NonSubject = re
	}
	if c.RunEndPattern != "" {
		re, err := regexp.Compile(c.RunEndPattern)
		if err != nil {
			return layout, fmt.Errorf("invalid spreadsheet.run_end_pattern: %w", err)
		}
		layout.RunEnd = re
	}
	return layout, nil
}

func (c RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c OutboxConfig) ToWorkerConfig(channel string) worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
		Retention:     c.Retention,
		Channel:       channel,
	}
}
