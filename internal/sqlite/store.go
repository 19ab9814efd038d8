package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dyluth/xray/pkg/projectstore"
	_ "modernc.org/sqlite"
)

// Store implements projectstore.Store on a local SQLite file.
// Unlike the Redis backend it publishes no project events.
type Store struct {
	db *sql.DB
}

var _ projectstore.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
    project_key TEXT PRIMARY KEY,
    created_at_ms INTEGER NOT NULL,
    updated_at_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS project_fields (
    project_key TEXT NOT NULL,
    field TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at_ms INTEGER NOT NULL,
    PRIMARY KEY (project_key, field),
    FOREIGN KEY (project_key) REFERENCES projects(project_key)
);
`

// Open opens (creating if needed) the SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Fetch workers write concurrently; a single connection serializes them
	// instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get reads a key-value entry. Returns projectstore.ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", projectstore.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, nil
}

// Set writes a key-value entry, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// SaveProjectRecord upserts data onto the project's record in one transaction,
// replacing fields with the same name and keeping the rest.
func (s *Store) SaveProjectRecord(ctx context.Context, projectKey string, data map[string]json.RawMessage) error {
	if projectKey == "" {
		return fmt.Errorf("project key cannot be empty")
	}

	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (project_key, created_at_ms, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(project_key) DO UPDATE SET updated_at_ms = excluded.updated_at_ms
	`, projectKey, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	for name, raw := range data {
		if name == "" {
			return fmt.Errorf("field name cannot be empty")
		}
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		if !json.Valid(raw) {
			return fmt.Errorf("field %q is not valid JSON", name)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO project_fields (project_key, field, value, updated_at_ms) VALUES (?, ?, ?, ?)
			ON CONFLICT(project_key, field) DO UPDATE SET
				value = excluded.value,
				updated_at_ms = excluded.updated_at_ms
		`, projectKey, name, string(raw), now)
		if err != nil {
			return fmt.Errorf("failed to upsert field %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit project record: %w", err)
	}

	return nil
}

// GetProjectRecord retrieves a project record. Returns projectstore.ErrNotFound when absent.
func (s *Store) GetProjectRecord(ctx context.Context, projectKey string) (*projectstore.ProjectRecord, error) {
	record := &projectstore.ProjectRecord{
		ProjectKey: projectKey,
		Fields:     make(map[string]json.RawMessage),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT created_at_ms, updated_at_ms FROM projects WHERE project_key = ?
	`, projectKey).Scan(&record.CreatedAtMs, &record.UpdatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, projectstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}

	if err := s.loadFields(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}

// ListProjectRecords returns every project record, oldest first.
func (s *Store) ListProjectRecords(ctx context.Context) ([]*projectstore.ProjectRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_key, created_at_ms, updated_at_ms
		FROM projects
		ORDER BY created_at_ms ASC, project_key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	var records []*projectstore.ProjectRecord
	for rows.Next() {
		record := &projectstore.ProjectRecord{Fields: make(map[string]json.RawMessage)}
		if err := rows.Scan(&record.ProjectKey, &record.CreatedAtMs, &record.UpdatedAtMs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	rows.Close()

	// Fields are loaded after the cursor is closed: the pool holds one connection.
	for _, record := range records {
		if err := s.loadFields(ctx, record); err != nil {
			return nil, err
		}
	}

	return records, nil
}

func (s *Store) loadFields(ctx context.Context, record *projectstore.ProjectRecord) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field, value FROM project_fields WHERE project_key = ?
	`, record.ProjectKey)
	if err != nil {
		return fmt.Errorf("failed to read project fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return fmt.Errorf("failed to scan project field: %w", err)
		}
		record.Fields[field] = json.RawMessage(value)
	}
	return rows.Err()
}

// ListSeen returns every project key with a seen marker, sorted.
func (s *Store) ListSeen(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM kv WHERE substr(key, 1, ?) = ?
	`, len(projectstore.SeenKeyPrefix), projectstore.SeenKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list seen markers: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan seen marker: %w", err)
		}
		keys = append(keys, key[len(projectstore.SeenKeyPrefix):])
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate seen markers: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

// ForgetSeen deletes the seen marker for projectID. Reports whether one existed.
func (s *Store) ForgetSeen(ctx context.Context, projectID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, projectstore.SeenKey(projectID))
	if err != nil {
		return false, fmt.Errorf("failed to delete seen marker: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}
