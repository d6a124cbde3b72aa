package teams

import (
	"errors"
	"time"
)

var (
	// ErrDSNRequired is returned when no postgres DSN is configured
	ErrDSNRequired = errors.New("teams dsn is required")
)

// Config contains the connection settings for the external teams store.
type Config struct {
	// DSN is the postgres connection string for the application database
	DSN string `yaml:"dsn"`
	// MinConns is the minimum pool size
	MinConns int32 `yaml:"minConns" default:"2"`
	// MaxConns is the maximum pool size
	MaxConns int32 `yaml:"maxConns" default:"10"`
	// MaxConnLifetime bounds how long a pooled connection lives
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime" default:"1h"`
	// MaxConnIdleTime bounds how long an idle connection is kept
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime" default:"30m"`
	// CacheTTL is how long cached team rows stay fresh in Redis
	CacheTTL time.Duration `yaml:"cacheTTL" default:"5m"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.DSN == "" {
		return ErrDSNRequired
	}

	return nil
}

// SetDefaults fills in zero values
func (c *Config) SetDefaults() {
	if c.MinConns == 0 {
		c.MinConns = 2
	}

	if c.MaxConns == 0 {
		c.MaxConns = 10
	}

	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}

	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 30 * time.Minute
	}

	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Minute
	}
}
