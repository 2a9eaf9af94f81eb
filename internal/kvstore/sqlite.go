package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

const (
	pragmaJournalModeWAL = `PRAGMA journal_mode=WAL`
	pragmaBusyTimeout    = `PRAGMA busy_timeout=5000`
	pragmaSynchronous    = `PRAGMA synchronous=FULL`
)

// SQLite keeps every leaf as one row keyed by its full path.
type SQLite struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLite)(nil)

func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("open sqlite store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("open sqlite store: create parent dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// One writer keeps WAL checkpoints and the replace-subtree transaction simple.
	db.SetMaxOpenConns(1)

	if err := configureSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := RunMigrations(db, DefaultMigrations()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureDBPermissions(path); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *SQLite) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if err := ValidatePath(path); err != nil {
		return nil, false, err
	}
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM entries WHERE path = ?`, path).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, accessError("get", path, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, path string, value []byte) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries(path, value, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, path, value, nowUTCString())
	return accessError("set", path, err)
}

func (s *SQLite) Delete(ctx context.Context, path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE path = ?`, path)
	return accessError("delete", path, err)
}

func (s *SQLite) ListChildren(ctx context.Context, path string) ([]string, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	prefix := path + Separator
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM entries WHERE substr(path, 1, ?) = ?`, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, accessError("list", path, err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var full string
		if err := rows.Scan(&full); err != nil {
			return nil, accessError("list", path, err)
		}
		if name, ok := childName(path, full); ok {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, accessError("list", path, err)
	}
	return sortedUnique(names), nil
}

func (s *SQLite) ExportSubtree(ctx context.Context, path string) (*Snapshot, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	prefix := path + Separator
	rows, err := s.db.QueryContext(ctx, `SELECT path, value FROM entries WHERE substr(path, 1, ?) = ?`, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, accessError("export", path, err)
	}
	defer rows.Close()

	snap := newSnapshot(path)
	for rows.Next() {
		var (
			full  string
			value []byte
		)
		if err := rows.Scan(&full, &value); err != nil {
			return nil, accessError("export", path, err)
		}
		snap.Entries[full[len(prefix):]] = value
	}
	if err := rows.Err(); err != nil {
		return nil, accessError("export", path, err)
	}
	return snap, nil
}

// ImportSubtree runs inside one SQL transaction, so a failed restore leaves
// the previous contents in place.
func (s *SQLite) ImportSubtree(ctx context.Context, path string, snap *Snapshot) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if snap == nil {
		return accessError("import", path, errNilSnapshot)
	}
	for rel := range snap.Entries {
		if err := ValidatePath(Join(path, rel)); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return accessError("import", path, err)
	}
	prefix := path + Separator
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE substr(path, 1, ?) = ?`, utf8.RuneCountInString(prefix), prefix); err != nil {
		_ = tx.Rollback()
		return accessError("import", path, err)
	}
	now := nowUTCString()
	for _, rel := range snap.Paths() {
		value := snap.Entries[rel]
		if value == nil {
			value = []byte{}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO entries(path, value, updated_at) VALUES(?, ?, ?)`, prefix+rel, value, now); err != nil {
			_ = tx.Rollback()
			return accessError("import", path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return accessError("import", path, err)
	}
	return nil
}

func (s *SQLite) HasAccess(ctx context.Context, path string) bool {
	if ValidatePath(path) != nil {
		return false
	}
	return s.db.PingContext(ctx) == nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{pragmaJournalModeWAL, pragmaBusyTimeout, pragmaSynchronous}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("configure sqlite %q: %w", stmt, err)
		}
	}
	return nil
}

func ensureDBPermissions(path string) error {
	for _, p := range []string{path, path + "-wal"} {
		if err := os.Chmod(p, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("set permissions on %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}
