// Package postgres provides a PostgreSQL-backed fetch-and-save store. Each
// update runs in a transaction holding a row lock for the id, so updates are
// atomic per id and independent across distinct ids.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/go-estoria/catchup"
)

// A Store persists per-id state in a PostgreSQL table. State values are
// serialized with the configured marshaler (JSON by default).
type Store[S any] struct {
	db        *sql.DB
	table     string
	marshaler catchup.Marshaler[S, *S]

	log catchup.Logger
}

var _ catchup.FetchAndSaver[string, int] = (*Store[int])(nil)

// NewStore creates a store backed by the given PostgreSQL connection string.
func NewStore[S any](connectionString string, opts ...StoreOption[S]) (*Store[S], error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, catchup.InitializationError{Err: fmt.Errorf("opening database connection: %w", err)}
	}

	if err := db.Ping(); err != nil {
		return nil, catchup.InitializationError{Err: fmt.Errorf("pinging database: %w", err)}
	}

	store := &Store[S]{
		db:        db,
		table:     "catchup_cursors",
		marshaler: catchup.JSONMarshaler[S]{},
		log:       catchup.GetLogger().WithGroup("cursorstore"),
	}

	for _, opt := range opts {
		if err := opt(store); err != nil {
			return nil, catchup.InitializationError{Err: fmt.Errorf("applying option: %w", err)}
		}
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store[S]) Close() error {
	return s.db.Close()
}

// InitSchema creates the backing table if it does not exist.
func (s *Store[S]) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(255) PRIMARY KEY,
		state BYTEA NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);
	`, s.table)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}

	return nil
}

// FetchAndSave atomically applies update to the state stored for id. The row
// for id is locked for the duration of the update; when the update or the
// write fails, the transaction rolls back and the prior value is unchanged.
func (s *Store[S]) FetchAndSave(ctx context.Context, id string, update catchup.UpdateFunc[S]) (S, error) {
	var zero S

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return zero, catchup.PersistenceError{ID: id, Err: fmt.Errorf("beginning transaction: %w", err)}
	}

	defer tx.Rollback() //nolint:errcheck // No-op after commit

	var data []byte
	exists := true

	row := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT state FROM %s WHERE id = $1 FOR UPDATE", s.table), id)
	if err := row.Scan(&data); errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return zero, catchup.PersistenceError{ID: id, Err: fmt.Errorf("fetching state: %w", err)}
	}

	var old S
	if exists {
		if err := s.marshaler.Unmarshal(data, &old); err != nil {
			return zero, catchup.PersistenceError{ID: id, Err: fmt.Errorf("unmarshaling state: %w", err)}
		}
	}

	updated, err := update(old, exists)
	if err != nil {
		return zero, err
	}

	encoded, err := s.marshaler.Marshal(&updated)
	if err != nil {
		return zero, catchup.PersistenceError{ID: id, Err: fmt.Errorf("marshaling state: %w", err)}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, state, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()
	`, s.table), id, encoded); err != nil {
		return zero, catchup.PersistenceError{ID: id, Err: fmt.Errorf("saving state: %w", err)}
	}

	if err := tx.Commit(); err != nil {
		return zero, catchup.PersistenceError{ID: id, Err: fmt.Errorf("committing transaction: %w", err)}
	}

	s.log.Debug("saved state", "id", id)

	return updated, nil
}

// A StoreOption configures a Store.
type StoreOption[S any] func(*Store[S]) error

// WithTable sets the name of the backing table.
func WithTable[S any](table string) StoreOption[S] {
	return func(s *Store[S]) error {
		if table == "" {
			return errors.New("table name cannot be empty")
		}

		s.table = table
		return nil
	}
}

// WithMarshaler configures the store to use a custom state marshaler.
func WithMarshaler[S any](marshaler catchup.Marshaler[S, *S]) StoreOption[S] {
	return func(s *Store[S]) error {
		if marshaler == nil {
			return errors.New("marshaler cannot be nil")
		}

		s.marshaler = marshaler
		return nil
	}
}
