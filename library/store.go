package library

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Keys under which the signed-in identity is persisted.
const (
	KeyUsername = "username"
	KeyRole     = "role"
	KeyFullName = "fullName"
)

var identityKeys = []string{KeyUsername, KeyRole, KeyFullName}

// Store is the persisted key/value state that survives process restarts,
// the CLI's equivalent of browser local storage.
type Store struct {
	db *sql.DB

	getStmt *sql.Stmt
	setStmt *sql.Stmt
}

// OpenStore opens (or creates) the SQLite file at path, applies schema
// migrations, and prepares common statements.
func OpenStore(path string) (*Store, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := migrateStore(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases prepared statements and closes the DB.
func (s *Store) Close() error {
	if s.getStmt != nil {
		s.getStmt.Close()
	}
	if s.setStmt != nil {
		s.setStmt.Close()
	}
	return s.db.Close()
}

const storeSchemaVersion = 1

func migrateStore(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= storeSchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL
        );`,
		`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, storeSchemaVersion); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) prepareStatements() error {
	var err error
	if s.getStmt, err = s.db.Prepare(`SELECT value FROM kv WHERE key=?`); err != nil {
		return err
	}
	if s.setStmt, err = s.db.Prepare(`INSERT INTO kv(key,value) VALUES(?,?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value`); err != nil {
		return err
	}
	return nil
}

// Get returns the value stored under key and whether it was present.
func (s *Store) Get(key string) (string, bool, error) {
	var v string
	err := s.getStmt.QueryRow(key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	_, err := s.setStmt.Exec(key, value)
	return err
}

// Delete removes the given keys. Missing keys are ignored.
func (s *Store) Delete(keys ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, k := range keys {
		if _, err := tx.Exec(`DELETE FROM kv WHERE key=?`, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Username returns the persisted username, or "" when signed out.
// It is what the API client attaches as the identity header.
func (s *Store) Username() (string, error) {
	v, _, err := s.Get(KeyUsername)
	return v, err
}

// SaveIdentity writes all identity keys in one transaction so a crash never
// leaves a partial identity behind.
func (s *Store) SaveIdentity(id Identity) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	set := tx.Stmt(s.setStmt)
	values := map[string]string{
		KeyUsername: id.Username,
		KeyRole:     id.Role.Wire(),
		KeyFullName: id.FullName,
	}
	for _, k := range identityKeys {
		if _, err := set.Exec(k, values[k]); err != nil {
			return fmt.Errorf("persist %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// LoadIdentity reads the persisted identity. ok is false when no username is stored.
func (s *Store) LoadIdentity() (id Identity, ok bool, err error) {
	username, ok, err := s.Get(KeyUsername)
	if err != nil || !ok || username == "" {
		return Identity{}, false, err
	}
	role, _, err := s.Get(KeyRole)
	if err != nil {
		return Identity{}, false, err
	}
	fullName, _, err := s.Get(KeyFullName)
	if err != nil {
		return Identity{}, false, err
	}
	return Identity{Username: username, FullName: fullName, Role: ParseRole(role)}, true, nil
}

// ClearIdentity removes every identity key.
func (s *Store) ClearIdentity() error {
	return s.Delete(identityKeys...)
}
