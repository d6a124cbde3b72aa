package backfill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/sumhouse/sumhouse/pkg/rollup"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, (&Config{}).Validate())
	assert.NoError(t, (&Config{PersonJoin: "overrides"}).Validate())
	assert.NoError(t, (&Config{PersonJoin: "direct"}).Validate())
	assert.Error(t, (&Config{PersonJoin: "psychic"}).Validate())
}

func TestConfigSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, 90, cfg.MaxBackfillDays)
	assert.Equal(t, 30, cfg.DefaultDays)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, rollup.PersonJoinOverrides, cfg.PersonJoinMode())
}

func TestConfigSetDefaultsKeepsExplicit(t *testing.T) {
	cfg := &Config{MaxBackfillDays: 30, PersonJoin: "direct"}
	cfg.SetDefaults()

	assert.Equal(t, 30, cfg.MaxBackfillDays)
	assert.Equal(t, rollup.PersonJoinDirect, cfg.PersonJoinMode())
}
