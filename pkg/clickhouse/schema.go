package clickhouse

import (
	"context"
	"fmt"

	"github.com/sumhouse/sumhouse/pkg/sqlbuilder"
)

// TableExists checks if a table exists in the given database.
func TableExists(ctx context.Context, client ClientInterface, database, table string) (bool, error) {
	query := fmt.Sprintf(
		"SELECT count() FROM system.tables WHERE database = %s AND name = %s",
		sqlbuilder.Quote(database), sqlbuilder.Quote(table),
	)

	var count uint64
	if err := client.QueryRow(ctx, query, &count); err != nil {
		return false, fmt.Errorf("check table %s.%s: %w", database, table, err)
	}

	return count > 0, nil
}
