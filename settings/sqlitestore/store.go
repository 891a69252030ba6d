// Package sqlitestore implements the structured settings store on SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// BusyTimeoutMS is applied to every connection opened by Open.
const BusyTimeoutMS = 5000

const schema = `CREATE TABLE IF NOT EXISTS settings_categories (
	category   TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// Store keeps one JSON document per settings category.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens (or creates) the SQLite database at path and prepares the schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open settings database")
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = " + strconv.Itoa(BusyTimeoutMS),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "apply %q", p)
		}
	}
	s, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("settings database opened", zap.String("path", path))
	}
	return s, nil
}

// New wraps an existing database handle and ensures the schema exists.
func New(db *sql.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "create settings schema")
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetCategory returns the stored values for name, or nil when unset.
func (s *Store) GetCategory(ctx context.Context, name string) (map[string]any, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM settings_categories WHERE category = ?", name,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read settings category %q", name)
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return nil, errors.Wrapf(err, "decode settings category %q", name)
	}
	return values, nil
}

// UpdateCategory replaces the stored values for name.
func (s *Store) UpdateCategory(ctx context.Context, name string, values map[string]any) error {
	if values == nil {
		values = map[string]any{}
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return errors.Wrapf(err, "encode settings category %q", name)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings_categories (category, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		name, string(payload), s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "write settings category %q", name)
	}
	s.logger.Debug("settings category updated", zap.String("category", name), zap.Int("keys", len(values)))
	return nil
}
