// Package clickhouse provides the native-protocol client every statement
// in this project executes through.
package clickhouse

import (
	"errors"
	"time"
)

// Static errors for configuration validation
var (
	ErrURLRequired = errors.New("URL is required")
)

// Config contains ClickHouse connection and cluster settings
type Config struct {
	URL             string        `yaml:"url" validate:"required,url"`
	Database        string        `yaml:"database"`
	Cluster         string        `yaml:"cluster"`
	LocalSuffix     string        `yaml:"localSuffix"`
	QueryTimeout    time.Duration `yaml:"queryTimeout"`
	InsertTimeout   time.Duration `yaml:"insertTimeout"`
	DialTimeout     time.Duration `yaml:"dialTimeout"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	Debug           bool          `yaml:"debug"`

	// Settings are applied to every statement unless the statement carries
	// its own.
	Settings map[string]any `yaml:"settings"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	return nil
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30 * time.Second
	}

	if c.InsertTimeout == 0 {
		// Backfill inserts scan days of raw events.
		c.InsertTimeout = 30 * time.Minute
	}

	if c.DialTimeout == 0 {
		c.DialTimeout = 30 * time.Second
	}

	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}

	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}

	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
}

// LocalTable maps a logical table name to the one partition operations
// must target. On clustered deployments ALTERs address the local table on
// each host, conventionally suffixed "_local".
func (c *Config) LocalTable(table string) string {
	if c.Cluster != "" && c.LocalSuffix != "" {
		return table + c.LocalSuffix
	}

	return table
}
