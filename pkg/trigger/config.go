package trigger

// Config tunes the flag-change trigger.
type Config struct {
	// Channel is the Redis Pub/Sub channel flag-change events arrive on
	Channel string `yaml:"channel" default:"sumhouse:team_flags"`
	// Days is the window enqueued backfills cover; 0 uses the
	// orchestrator default
	Days int `yaml:"days"`
}

// SetDefaults fills in zero values
func (c *Config) SetDefaults() {
	if c.Channel == "" {
		c.Channel = "sumhouse:team_flags"
	}
}
