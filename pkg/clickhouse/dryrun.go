package clickhouse

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// DryRunClient wraps a real client, letting reads through while capturing
// mutating statements instead of executing them. Operational commands use
// it to print the exact plan a run would execute.
type DryRunClient struct {
	log   logrus.FieldLogger
	inner ClientInterface

	mu      sync.Mutex
	planned []string
}

var _ ClientInterface = (*DryRunClient)(nil)

// NewDryRunClient wraps inner. With a nil inner, reads fail-soft by leaving
// dest untouched, which keeps plan printing usable without a live store.
func NewDryRunClient(log logrus.FieldLogger, inner ClientInterface) *DryRunClient {
	return &DryRunClient{
		log:   log.WithField("component", "clickhouse-dryrun"),
		inner: inner,
	}
}

func (c *DryRunClient) Start(ctx context.Context) error {
	if c.inner == nil {
		return nil
	}

	return c.inner.Start(ctx)
}

func (c *DryRunClient) Stop() error {
	if c.inner == nil {
		return nil
	}

	return c.inner.Stop()
}

// Execute records the statement without running it.
func (c *DryRunClient) Execute(_ context.Context, query string, _ map[string]any) error {
	c.mu.Lock()
	c.planned = append(c.planned, query)
	c.mu.Unlock()

	c.log.WithField("statement", query).Info("Dry run: statement not executed")

	return nil
}

// QueryRow passes reads through; row counts and presence checks stay real
// so the reported plan reflects the store's actual state.
func (c *DryRunClient) QueryRow(ctx context.Context, query string, dest ...any) error {
	if c.inner == nil {
		return nil
	}

	return c.inner.QueryRow(ctx, query, dest...)
}

// Planned returns the captured statements in execution order.
func (c *DryRunClient) Planned() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.planned))
	copy(out, c.planned)

	return out
}
