// Package redis holds the shared Redis connection settings used by the
// task queue, the scheduler lease, the teams cache, and the flag-change
// channel.
package redis

import (
	"errors"
	"fmt"
)

var (
	ErrAddressRequired = errors.New("redis address is required")
)

// Config holds Redis client configuration. All services in one
// deployment point at the same Redis, so the prefix keeps their keys
// from colliding with other tenants of the instance.
type Config struct {
	Address string `yaml:"address"`
	Prefix  string `yaml:"prefix"`
}

// Validate checks if the configuration is valid and applies the default
// key prefix.
func (c *Config) Validate() error {
	if c.Address == "" {
		return ErrAddressRequired
	}

	if c.Prefix == "" {
		c.Prefix = "sumhouse"
	}

	return nil
}

// PrefixKey namespaces a Redis key under the configured prefix.
func (c *Config) PrefixKey(key string) string {
	if c.Prefix == "" {
		return key
	}

	return fmt.Sprintf("%s:%s", c.Prefix, key)
}
