// Package settings persists the one piece of server state that must survive
// a restart: the server's display name and each plug-in's own configuration
// overrides, keyed by plug-in name. Everything else (client identity, fan-out
// state) is in-memory only, owned by server/internal/hub.
//
// Migration design follows the teacher's store package: SQL statements live
// in the ordered [migrations] slice, each applied exactly once and recorded
// in schema_migrations. To add a migration, append a new string — never edit
// or reorder existing entries.
package settings

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

var migrations = []string{
	// v1 — generic key/value settings store
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	// v2 — WAL mode for concurrent readers
	`PRAGMA journal_mode=WAL`,
}

// Store wraps a SQLite database holding the settings table.
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// Open opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage
// (tests).
func Open(path string, log *zap.SugaredLogger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Warnw("busy_timeout pragma failed, continuing", "error", err)
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		s.log.Debugw("applied settings migration", "version", v)
	}
	return nil
}

// Get returns the value stored under key. ok is false when the key does
// not exist; err is only non-nil for a real I/O failure.
func (s *Store) Get(key string) (value string, ok bool, err error) {
	err = s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set upserts key -> value.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// pluginKey namespaces a plug-in's own settings key under its name, so two
// plug-ins may reuse the same sub-key without colliding.
func pluginKey(pluginName, key string) string {
	return "plugin." + pluginName + "." + key
}

// GetPluginSetting reads a plug-in-scoped setting.
func (s *Store) GetPluginSetting(pluginName, key string) (string, bool, error) {
	return s.Get(pluginKey(pluginName, key))
}

// SetPluginSetting writes a plug-in-scoped setting.
func (s *Store) SetPluginSetting(pluginName, key, value string) error {
	return s.Set(pluginKey(pluginName, key), value)
}
