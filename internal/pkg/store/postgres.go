package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type postgresSnapshotter struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a snapshot table in the Postgres database at dsn.
func OpenPostgres(ctx context.Context, dsn string) (Snapshotter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "create pgx pool failed")
	}
	if _, err := pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS state_entries (
			key text not null primary key,
			value text not null
		)`,
	); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "create state_entries table failed")
	}
	return &postgresSnapshotter{pool: pool}, nil
}

func (s *postgresSnapshotter) Save(ctx context.Context, state map[string]any) error {
	rows := make([][]any, 0, len(state))
	for k, v := range state {
		raw, err := encodeValue(v)
		if err != nil {
			return err
		}
		rows = append(rows, []any{k, raw})
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM state_entries`); err != nil {
			return errors.Wrap(err, "clear state_entries failed")
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"state_entries"},
			[]string{"key", "value"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return errors.Wrap(err, "copy state_entries failed")
		}
		return nil
	})
}

func (s *postgresSnapshotter) Load(ctx context.Context) (map[string]any, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM state_entries`)
	if err != nil {
		return nil, errors.Wrap(err, "query state_entries failed")
	}
	defer rows.Close()
	state := make(map[string]any)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, errors.Wrap(err, "scan failed")
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "key %q", key)
		}
		state[key] = v
	}
	return state, errors.Wrap(rows.Err(), "iterate state_entries failed")
}

func (s *postgresSnapshotter) Close() error {
	s.pool.Close()
	return nil
}
