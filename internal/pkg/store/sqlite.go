package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

type sqliteSnapshotter struct {
	db *sql.DB
}

// OpenSQLite opens a snapshot table in the sqlite database at path.
func OpenSQLite(ctx context.Context, path string) (Snapshotter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite failed")
	}
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS state_entries (
			key text not null primary key,
			value text not null
		)`,
	); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create state_entries table failed")
	}
	return &sqliteSnapshotter{db: db}, nil
}

func (s *sqliteSnapshotter) Save(ctx context.Context, state map[string]any) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx failed")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM state_entries`); err != nil {
		return errors.Wrap(err, "clear state_entries failed")
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO state_entries (key, value) VALUES (?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare insert failed")
	}
	defer stmt.Close()
	for k, v := range state {
		var raw string
		if raw, err = encodeValue(v); err != nil {
			return err
		}
		if _, err = stmt.ExecContext(ctx, k, raw); err != nil {
			return errors.Wrapf(err, "insert %q failed", k)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit failed")
	}
	return nil
}

func (s *sqliteSnapshotter) Load(ctx context.Context) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM state_entries`)
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

func (s *sqliteSnapshotter) Close() error {
	return s.db.Close()
}
