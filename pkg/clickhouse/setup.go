package clickhouse

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Setup creates and starts a client in one call, for one-shot commands
// that have no service lifecycle to hang the connection on.
func Setup(ctx context.Context, log logrus.FieldLogger, cfg *Config) (ClientInterface, error) {
	client, err := NewClient(log, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
	}

	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start ClickHouse client: %w", err)
	}

	return client, nil
}
