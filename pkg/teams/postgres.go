package teams

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/sumhouse/sumhouse/pkg/retry"
)

// PostgresStore reads team configuration from the application database.
// The teams table is owned by the main application; this store never
// issues DDL against it.
type PostgresStore struct {
	log  logrus.FieldLogger
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the application database with retry and
// returns a pooled store.
func NewPostgresStore(ctx context.Context, log logrus.FieldLogger, cfg *Config) (*PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse teams dsn: %w", err)
	}

	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	storeLog := log.WithField("component", "teams")

	var pool *pgxpool.Pool

	err = retry.WithBackoff(ctx, retry.DefaultConfig(), storeLog, "connect to teams database", func() error {
		p, connErr := pgxpool.NewWithConfig(ctx, poolCfg)
		if connErr != nil {
			return connErr
		}

		if pingErr := p.Ping(ctx); pingErr != nil {
			p.Close()

			return pingErr
		}

		pool = p

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to teams database: %w", err)
	}

	storeLog.WithFields(logrus.Fields{
		"min_conns": cfg.MinConns,
		"max_conns": cfg.MaxConns,
	}).Info("Connected to teams database")

	return &PostgresStore{
		log:  storeLog,
		pool: pool,
	}, nil
}

// GetTeam fetches one team row.
func (s *PostgresStore) GetTeam(ctx context.Context, id int64) (*Team, error) {
	const query = `SELECT id, COALESCE(timezone, 'UTC'), rollup_enabled FROM teams WHERE id = $1`

	var team Team

	err := s.pool.QueryRow(ctx, query, id).Scan(&team.ID, &team.Timezone, &team.RollupEnabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("team %d: %w", id, ErrTeamNotFound)
		}

		return nil, fmt.Errorf("get team %d: %w", id, err)
	}

	return &team, nil
}

// ListRollupEnabled returns up to limit team IDs with rollups enabled,
// oldest IDs first so batch discovery walks tenants in a stable order.
func (s *PostgresStore) ListRollupEnabled(ctx context.Context, limit int) ([]int64, error) {
	const query = `SELECT id FROM teams WHERE rollup_enabled ORDER BY id LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list rollup-enabled teams: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, limit)

	for rows.Next() {
		var id int64

		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("scan team id: %w", scanErr)
		}

		ids = append(ids, id)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("list rollup-enabled teams: %w", rowsErr)
	}

	return ids, nil
}

// SetRollupEnabled flips the rollup flag for one team.
func (s *PostgresStore) SetRollupEnabled(ctx context.Context, id int64, enabled bool) error {
	const query = `UPDATE teams SET rollup_enabled = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, enabled)
	if err != nil {
		return fmt.Errorf("set rollup_enabled for team %d: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("team %d: %w", id, ErrTeamNotFound)
	}

	s.log.WithFields(logrus.Fields{
		"team_id": id,
		"enabled": enabled,
	}).Info("Updated rollup flag")

	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
