// Package docstore is a document store over SQLite: JSON documents grouped into collections,
// with optimistic multi-document transactions that are retried on conflict.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a document read in a transaction changed before commit.
	ErrConflict = errors.New("document changed by a concurrent writer")
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 10 * time.Millisecond
)

// Document is a stored JSON object and its version.
type Document struct {
	Collection string
	ID         string
	Data       json.RawMessage
	Version    int64
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// Path joins collection path segments, e.g. Path("projects", id, "fittings").
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}

// Store reads and writes documents.
type Store struct {
	db         *sql.DB
	maxRetries uint64
	baseDelay  time.Duration
	newID      func() string
}

// Option customises a Store.
type Option func(*Store)

// WithRetries sets how many times a conflicting transaction is re-run and the first backoff delay.
func WithRetries(max uint64, base time.Duration) Option {
	return func(s *Store) {
		s.maxRetries = max
		s.baseDelay = base
	}
}

// New returns a Store backed by db. The documents table must exist.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:         db,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getDocument(ctx context.Context, q queryer, collection, id string) (Document, error) {
	doc := Document{Collection: collection, ID: id}
	var data string
	err := q.QueryRowContext(ctx, `
		SELECT data, version
		FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id).Scan(&data, &doc.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("query document %s/%s: %w", collection, id, err)
	}
	doc.Data = json.RawMessage(data)
	return doc, nil
}

func listDocuments(ctx context.Context, q queryer, collection string) ([]Document, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, data, version
		FROM documents
		WHERE collection = ?
		ORDER BY rowid
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		doc := Document{Collection: collection}
		var data string
		if err := rows.Scan(&doc.ID, &data, &doc.Version); err != nil {
			return nil, fmt.Errorf("scan document in %s: %w", collection, err)
		}
		doc.Data = json.RawMessage(data)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection %s: %w", collection, err)
	}
	return docs, nil
}

// Get reads one document.
func (s *Store) Get(ctx context.Context, collection, id string) (Document, error) {
	return getDocument(ctx, s.db, collection, id)
}

// List reads every document of a collection in insertion order.
func (s *Store) List(ctx context.Context, collection string) ([]Document, error) {
	return listDocuments(ctx, s.db, collection)
}

// Create stores data under a new random ID.
func (s *Store) Create(ctx context.Context, collection string, data any) (Document, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Document{}, fmt.Errorf("encode document for %s: %w", collection, err)
	}
	id := s.newID()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, version)
		VALUES (?, ?, ?, 1)
	`, collection, id, string(raw)); err != nil {
		return Document{}, fmt.Errorf("insert document %s/%s: %w", collection, id, err)
	}
	return Document{Collection: collection, ID: id, Data: raw, Version: 1}, nil
}

// Set creates or replaces a document, bumping its version.
func (s *Store) Set(ctx context.Context, collection, id string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode document %s/%s: %w", collection, id, err)
	}
	return upsert(ctx, s.db, collection, id, raw)
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, e execer, collection, id string, raw []byte) error {
	if _, err := e.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, version)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(collection, id) DO UPDATE SET
			data = excluded.data,
			version = documents.version + 1,
			updated_at = CURRENT_TIMESTAMP
	`, collection, id, string(raw)); err != nil {
		return fmt.Errorf("upsert document %s/%s: %w", collection, id, err)
	}
	return nil
}

// RunTransaction runs fn against a consistent view of the store. Reads are validated at
// commit; if any document read (or any collection listed) changed meanwhile, the commit
// aborts and fn is run again from scratch. fn must therefore be free of other side effects.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.baseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		tx := newTx(s)
		if err := fn(ctx, tx); err != nil {
			if errors.Is(err, ErrConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		if err := s.commit(ctx, tx); err != nil {
			if isBusy(err) {
				err = fmt.Errorf("%w: %v", ErrConflict, err)
			}
			if errors.Is(err, ErrConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

func (s *Store) commit(ctx context.Context, tx *Tx) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin document transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	for key, seen := range tx.reads {
		current, err := currentVersion(ctx, sqlTx, key)
		if err != nil {
			return err
		}
		if current != seen {
			return fmt.Errorf("%w: %s/%s", ErrConflict, key.collection, key.id)
		}
	}

	for collection, seen := range tx.lists {
		docs, err := listDocuments(ctx, sqlTx, collection)
		if err != nil {
			return err
		}
		if len(docs) != len(seen) {
			return fmt.Errorf("%w: collection %s", ErrConflict, collection)
		}
		for _, doc := range docs {
			if v, ok := seen[doc.ID]; !ok || v != doc.Version {
				return fmt.Errorf("%w: %s/%s", ErrConflict, collection, doc.ID)
			}
		}
	}

	for _, key := range tx.order {
		w := tx.writes[key]
		if w.delete {
			if _, err := sqlTx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, key.collection, key.id); err != nil {
				return fmt.Errorf("delete document %s/%s: %w", key.collection, key.id, err)
			}
			continue
		}
		if err := upsert(ctx, sqlTx, key.collection, key.id, w.data); err != nil {
			return err
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit document transaction: %w", err)
	}
	return nil
}

// isBusy reports whether err is SQLite refusing the write lock, including the extended
// BUSY_SNAPSHOT code returned when another process committed after our read snapshot.
func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_BUSY
}

func currentVersion(ctx context.Context, q queryer, key docKey) (int64, error) {
	doc, err := getDocument(ctx, q, key.collection, key.id)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.Version, nil
}
