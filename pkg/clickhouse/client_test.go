package clickhouse

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(logrus.New(), &Config{})
	require.ErrorIs(t, err, ErrURLRequired)
}

func TestNewClientRejectsMalformedDSN(t *testing.T) {
	_, err := NewClient(logrus.New(), &Config{URL: "://not-a-dsn"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN")
}

func TestNewClientAppliesDatabaseOverride(t *testing.T) {
	raw, err := NewClient(logrus.New(), &Config{
		URL:      "clickhouse://localhost:9000/default",
		Database: "analytics",
	})
	require.NoError(t, err)

	c, ok := raw.(*client)
	require.True(t, ok)
	assert.Equal(t, "analytics", c.opts.Auth.Database)
}

func TestStatementKind(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"SELECT 1", "SELECT"},
		{"  insert into t values", "INSERT"},
		{"ALTER TABLE t DROP PARTITION '20240115'", "ALTER"},
		{"\nCREATE TABLE t (x UInt8) ENGINE = Memory", "CREATE"},
		{"", "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statementKind(tt.query))
	}
}
