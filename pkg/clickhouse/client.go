package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/sumhouse/sumhouse/pkg/observability"
	"github.com/sumhouse/sumhouse/pkg/retry"
)

// ClientInterface defines the methods for interacting with ClickHouse
type ClientInterface interface {
	// Start opens the connection pool and verifies connectivity
	Start(ctx context.Context) error
	// Stop closes the client
	Stop() error
	// Execute runs a statement that returns no rows
	Execute(ctx context.Context, query string, settings map[string]any) error
	// QueryRow executes a query and scans the first result row into dest
	QueryRow(ctx context.Context, query string, dest ...any) error
}

// client implements ClientInterface on the native protocol
type client struct {
	log  logrus.FieldLogger
	cfg  *Config
	opts *clickhouse.Options
	conn driver.Conn
}

var _ ClientInterface = (*client)(nil)

// NewClient creates a native-protocol ClickHouse client from a DSN URL.
func NewClient(log logrus.FieldLogger, cfg *Config) (ClientInterface, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.SetDefaults()

	opts, err := clickhouse.ParseDSN(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse DSN: %w", err)
	}

	if cfg.Database != "" {
		opts.Auth.Database = cfg.Database
	}

	opts.DialTimeout = cfg.DialTimeout
	opts.MaxOpenConns = cfg.MaxOpenConns
	opts.MaxIdleConns = cfg.MaxIdleConns
	opts.ConnMaxLifetime = cfg.ConnMaxLifetime
	opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	opts.Debug = cfg.Debug

	return &client{
		log:  log.WithField("component", "clickhouse"),
		cfg:  cfg,
		opts: opts,
	}, nil
}

func (c *client) Start(ctx context.Context) error {
	err := retry.WithBackoff(ctx, retry.DefaultConfig(), c.log, "clickhouse_connection", func() error {
		conn, openErr := clickhouse.Open(c.opts)
		if openErr != nil {
			return fmt.Errorf("open connection: %w", openErr)
		}

		pingCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()

		if pingErr := conn.Ping(pingCtx); pingErr != nil {
			_ = conn.Close()

			return fmt.Errorf("ping: %w", pingErr)
		}

		c.conn = conn

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	c.log.WithField("database", c.opts.Auth.Database).Info("Connected to ClickHouse")

	return nil
}

func (c *client) Stop() error {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
	}

	c.log.Info("Closed ClickHouse client")

	return nil
}

func (c *client) Execute(ctx context.Context, query string, settings map[string]any) error {
	ctx, cancel := c.withTimeout(ctx, query)
	defer cancel()

	ctx = c.withSettings(ctx, settings)

	kind := statementKind(query)
	c.debugLog(query)

	started := time.Now()
	err := c.conn.Exec(ctx, query)
	observability.RecordSQLStatement(kind, time.Since(started), err)

	if err != nil {
		return fmt.Errorf("execute %s statement: %w", strings.ToLower(kind), err)
	}

	return nil
}

func (c *client) QueryRow(ctx context.Context, query string, dest ...any) error {
	ctx, cancel := c.withTimeout(ctx, query)
	defer cancel()

	ctx = c.withSettings(ctx, nil)

	c.debugLog(query)

	started := time.Now()
	err := c.conn.QueryRow(ctx, query).Scan(dest...)
	observability.RecordSQLStatement(statementKind(query), time.Since(started), err)

	if err != nil {
		return fmt.Errorf("query row: %w", err)
	}

	return nil
}

// withTimeout applies the configured statement timeout unless the caller
// already set a deadline.
func (c *client) withTimeout(ctx context.Context, query string) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}

	timeout := c.cfg.QueryTimeout
	if statementKind(query) == "INSERT" {
		timeout = c.cfg.InsertTimeout
	}

	return context.WithTimeout(ctx, timeout)
}

// withSettings merges the config-level settings with per-statement ones;
// per-statement values win.
func (c *client) withSettings(ctx context.Context, settings map[string]any) context.Context {
	if len(c.cfg.Settings) == 0 && len(settings) == 0 {
		return ctx
	}

	merged := make(clickhouse.Settings, len(c.cfg.Settings)+len(settings))

	for k, v := range c.cfg.Settings {
		merged[k] = v
	}

	for k, v := range settings {
		merged[k] = v
	}

	return clickhouse.Context(ctx, clickhouse.WithSettings(merged))
}

func (c *client) debugLog(query string) {
	if !c.cfg.Debug {
		return
	}

	logQuery := query
	if len(logQuery) > 1000 {
		logQuery = logQuery[:1000] + "... (truncated)"
	}

	c.log.WithField("query", logQuery).Debug("Executing ClickHouse statement")
}

func statementKind(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "UNKNOWN"
	}

	return strings.ToUpper(fields[0])
}
