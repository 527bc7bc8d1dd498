// Package store is chatd's document store: schemaless JSON documents grouped
// into app-scoped collections, backed by a single sqlite table.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/xlzhou/vibechat/internal/model/chat"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrForbidden = errors.New("document is owned by another user")
)

// Store wraps the sqlite connection. Writes are serialized behind a mutex;
// sqlite tolerates little write concurrency and the emulator needs none.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	now func() time.Time
}

// Open initializes the database, creating the file and schema on first use.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS documents (
		app        TEXT NOT NULL,
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		fields     TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (app, collection, id)
	);`); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	log.Printf("[store] database ready: %s", path)
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new document with a server-assigned id and returns it.
func (s *Store) Create(ctx context.Context, app, collection string, fields map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	now := s.now().UTC()
	resolveServerStamps(fields, now)

	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (app, collection, id, fields, updated_at) VALUES (?, ?, ?, ?, ?)`,
		app, collection, id, string(data), now.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

// Update merges fields into an existing document, subject to the ownership
// rule. senderId and the creation timestamp are fixed at create time; values
// for them in the patch are dropped.
func (s *Store) Update(ctx context.Context, app, collection, id, requester string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadFields(ctx, app, collection, id)
	if err != nil {
		return err
	}
	if err := authorize(id, requester, existing); err != nil {
		return err
	}

	delete(fields, "senderId")
	delete(fields, "timestamp")

	now := s.now().UTC()
	resolveServerStamps(fields, now)
	for k, v := range fields {
		existing[k] = v
	}

	data, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE documents SET fields = ?, updated_at = ? WHERE app = ? AND collection = ? AND id = ?`,
		string(data), now.Format(time.RFC3339Nano), app, collection, id)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// Upsert creates or fully replaces a document whose id the requester owns.
// This is the presence write path: id = user identity.
func (s *Store) Upsert(ctx context.Context, app, collection, id, requester string, fields map[string]any) error {
	if id != requester {
		return ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	resolveServerStamps(fields, now)

	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (app, collection, id, fields, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (app, collection, id) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
		app, collection, id, string(data), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// Delete removes a document, enforcing the same ownership rule as Update.
func (s *Store) Delete(ctx context.Context, app, collection, id, requester string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadFields(ctx, app, collection, id)
	if err != nil {
		return err
	}
	if err := authorize(id, requester, existing); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE app = ? AND collection = ? AND id = ?`,
		app, collection, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// List returns the full current document set of a collection. Order is
// unspecified; snapshot consumers sort for themselves.
func (s *Store) List(ctx context.Context, app, collection string) ([]chat.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fields FROM documents WHERE app = ? AND collection = ?`,
		app, collection)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]chat.Document, 0, 16)
	for rows.Next() {
		var id, fields string
		if err := rows.Scan(&id, &fields); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, chat.Document{ID: id, Fields: json.RawMessage(fields)})
	}
	return docs, rows.Err()
}

func (s *Store) loadFields(ctx context.Context, app, collection, id string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT fields FROM documents WHERE app = ? AND collection = ? AND id = ?`,
		app, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	fields := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}

// authorize applies the write-ownership rule: a document carrying a senderId
// belongs to that sender; a document without one is keyed by user identity
// and belongs to the user whose id it carries.
func authorize(id, requester string, existing map[string]any) error {
	owner, ok := existing["senderId"].(string)
	if !ok {
		owner = id
	}
	if owner != requester {
		return ErrForbidden
	}
	return nil
}

// resolveServerStamps replaces server-timestamp sentinel values with the
// store's clock. Clients never assign timestamps themselves.
func resolveServerStamps(fields map[string]any, now time.Time) {
	for k, v := range fields {
		if chat.IsServerTimestamp(v) {
			fields[k] = now.Format(time.RFC3339Nano)
		}
	}
}
