package config

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	DatabaseDriver       string `mapstructure:"database_driver" yaml:"database_driver"`
	DatabaseDSN          string `mapstructure:"database_dsn" yaml:"database_dsn"`
	DatabaseMaxOpenConns int    `mapstructure:"database_max_open_conns" yaml:"database_max_open_conns"`

	// RedisURL selects the Redis bus and rate limiter. Empty keeps both in-process.
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url"`

	JWTSecret       string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer       string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience     string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl" yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl" yaml:"refresh_token_ttl"`

	WSMaxMessageBytes   int64         `mapstructure:"ws_max_message_bytes" yaml:"ws_max_message_bytes"`
	WSWriteTimeout      time.Duration `mapstructure:"ws_write_timeout" yaml:"ws_write_timeout"`
	WSCommandsPerMinute int           `mapstructure:"ws_commands_per_minute" yaml:"ws_commands_per_minute"`
	// WSEventBuffer is the per-session event queue. A session that falls this
	// far behind loses the overflow; zero selects the bus default.
	WSEventBuffer       int           `mapstructure:"ws_event_buffer" yaml:"ws_event_buffer"`

	S3Endpoint  string        `mapstructure:"s3_endpoint" yaml:"s3_endpoint"`
	S3Region    string        `mapstructure:"s3_region" yaml:"s3_region"`
	S3AccessKey string        `mapstructure:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey string        `mapstructure:"s3_secret_key" yaml:"s3_secret_key"`
	S3Bucket    string        `mapstructure:"s3_bucket" yaml:"s3_bucket"`
	S3URLTTL    time.Duration `mapstructure:"s3_url_ttl" yaml:"s3_url_ttl"`

	InvitePurgeCron string `mapstructure:"invite_purge_cron" yaml:"invite_purge_cron"`

	// CORSAllowedOrigins lists browser origins allowed to call the REST API; "*" allows all.
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins" yaml:"cors_allowed_origins"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   10 * time.Second,

		LogLevel:  "info",
		LogFormat: "console",

		DatabaseDriver:       "sqlite3",
		DatabaseDSN:          "campus.db",
		DatabaseMaxOpenConns: 10,

		JWTSecret:       "change-me",
		JWTIssuer:       "campus",
		JWTAudience:     "campus-clients",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,

		WSMaxMessageBytes:   64 << 10,
		WSWriteTimeout:      10 * time.Second,
		WSCommandsPerMinute: 120,
		WSEventBuffer:       64,

		S3Endpoint: "http://localhost:9000",
		S3Region:   "us-east-1",
		S3Bucket:   "campus",
		S3URLTTL:   5 * time.Minute,

		InvitePurgeCron: "0 * * * *",

		CORSAllowedOrigins: []string{"*"},
	}
}

// Validate checks that the resolved configuration is usable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.LogFormat, validation.In("console", "json")),
		validation.Field(&c.DatabaseDriver, validation.Required, validation.In("sqlite3", "postgres")),
		validation.Field(&c.DatabaseDSN, validation.Required),
		validation.Field(&c.RedisURL, is.RequestURL),
		validation.Field(&c.JWTSecret, validation.Required),
		validation.Field(&c.AccessTokenTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.RefreshTokenTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.WSMaxMessageBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.WSEventBuffer, validation.Min(0)),
		validation.Field(&c.S3URLTTL, validation.Min(0*time.Second)),
	)
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// It applies command-line overrides on top of a loaded configuration.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabaseDriver != "" {
		c.DatabaseDriver = other.DatabaseDriver
	}
	if other.DatabaseDSN != "" {
		c.DatabaseDSN = other.DatabaseDSN
	}
	if other.RedisURL != "" {
		c.RedisURL = other.RedisURL
	}
}
