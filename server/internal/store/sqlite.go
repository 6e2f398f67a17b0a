package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/livefeed/livefeed/pkg/types"
)

// AUTOINCREMENT keeps ids from being reused after the highest row is deleted.
const schemaSQL = `CREATE TABLE IF NOT EXISTS data (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	body      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS data_timestamp ON data (timestamp, id);`

// SQLite is a Store backed by a SQLite database.
type SQLite struct {
	db *sql.DB

	mu  sync.Mutex // serializes mutations and guards rnd
	rnd *rand.Rand
}

// OpenSQLite opens the database at dsn and applies the schema.
//
// The pool is limited to one connection: a ":memory:" database exists per
// connection, and SQLite allows a single writer anyway.
func OpenSQLite(dsn string, seed int64) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: connect sqlite: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &SQLite{db: db, rnd: newRand(seed)}, nil
}

func (s *SQLite) Insert(ctx context.Context, timestamp int64, body string) (types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec types.Record
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO data (timestamp, body) VALUES (?, ?) RETURNING id, timestamp, body`,
		timestamp, body,
	).Scan(&rec.ID, &rec.Timestamp, &rec.Body)
	if err != nil {
		return types.Record{}, fmt.Errorf("store: insert: %w", err)
	}
	return rec, nil
}

func (s *SQLite) DeleteRandom(ctx context.Context) (types.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec types.Record
	ok, err := s.withRandomRow(ctx, &rec, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM data WHERE id = ?`, rec.ID)
		return err
	})
	if err != nil {
		return types.Record{}, false, fmt.Errorf("store: delete: %w", err)
	}
	return rec, ok, nil
}

func (s *SQLite) MutateRandom(ctx context.Context, body string) (types.Mutation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var old types.Record
	ok, err := s.withRandomRow(ctx, &old, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE data SET body = ? WHERE id = ?`, body, old.ID)
		return err
	})
	if err != nil {
		return types.Mutation{}, false, fmt.Errorf("store: mutate: %w", err)
	}
	if !ok {
		return types.Mutation{}, false, nil
	}

	updated := old
	updated.Body = body
	return types.Mutation{Old: old, New: updated}, true, nil
}

// withRandomRow picks one row uniformly at random into rec and runs act in
// the same transaction. It reports false without calling act when the table
// is empty. Callers hold s.mu.
func (s *SQLite) withRandomRow(ctx context.Context, rec *types.Record, act func(*sql.Tx) error) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM data`).Scan(&n); err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	err = tx.QueryRowContext(ctx,
		`SELECT id, timestamp, body FROM data ORDER BY id LIMIT 1 OFFSET ?`,
		s.rnd.Int64N(n),
	).Scan(&rec.ID, &rec.Timestamp, &rec.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := act(tx); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *SQLite) Query(ctx context.Context, r Range) ([]types.Record, error) {
	var (
		where []string
		args  []any
	)
	if r.Start != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *r.Start)
	}
	if r.Stop != nil {
		where = append(where, "timestamp < ?")
		args = append(args, *r.Stop)
	}

	q := `SELECT id, timestamp, body FROM data`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp, id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	out := make([]types.Record, 0)
	for rows.Next() {
		var rec types.Record
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Body); err != nil {
			return nil, fmt.Errorf("store: query scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query rows: %w", err)
	}
	return out, nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM data`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Close closes the database. An in-memory database is discarded.
func (s *SQLite) Close() error {
	return s.db.Close()
}
