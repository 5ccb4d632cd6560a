// Package sqlite provides the persistent docstore backend: schemaless
// JSON documents in a single SQLite table, scoped per user, with batch
// commits mapped onto SQL transactions.
//
// Watch notifications are in-process: this backend assumes the store's
// single writer lives in the same process, which is the deployment model
// for the whole application.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"fintrack/internal/docstore"

	_ "modernc.org/sqlite"
)

type Store struct {
	db     *sql.DB
	userID string

	mu       sync.Mutex
	watchers map[docstore.Collection][]chan []docstore.Document
	closed   bool
}

func NewStore(dbPath, userID string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:       db,
		userID:   userID,
		watchers: make(map[docstore.Collection][]chan []docstore.Document),
	}, nil
}

func (s *Store) Add(ctx context.Context, col docstore.Collection, record any) (string, error) {
	b := docstore.NewBatch()
	id, err := b.Add(col, record)
	if err != nil {
		return "", err
	}
	if err := s.Commit(ctx, b); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, col docstore.Collection, id string, fields map[string]any) error {
	b := docstore.NewBatch()
	b.Update(col, id, fields)
	return s.Commit(ctx, b)
}

func (s *Store) Delete(ctx context.Context, col docstore.Collection, id string) error {
	b := docstore.NewBatch()
	b.Delete(col, id)
	return s.Commit(ctx, b)
}

// Commit maps the batch onto one SQL transaction: a failing operation
// rolls everything back.
func (s *Store) Commit(ctx context.Context, b *docstore.Batch) error {
	if b == nil || b.Len() == 0 {
		return docstore.ErrEmptyBatch
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}
	defer tx.Rollback()

	changed := map[docstore.Collection]bool{}
	for _, op := range b.Ops() {
		switch {
		case op.IsAdd():
			err = s.applyAdd(ctx, tx, op)
		case op.IsUpdate():
			err = s.applyUpdate(ctx, tx, op)
		case op.IsDelete():
			err = s.applyDelete(ctx, tx, op)
		}
		if err != nil {
			return err
		}
		changed[op.Collection] = true
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	for col := range changed {
		if err := s.notify(ctx, col); err != nil {
			slog.WarnContext(ctx, "Snapshot notification failed", "collection", col, "error", err)
		}
	}
	return nil
}

func (s *Store) applyAdd(ctx context.Context, tx *sql.Tx, op docstore.Op) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO documents (user_id, collection, id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.userID, string(op.Collection), op.ID, string(op.Data), docstore.ServerTimestamp())
	if err != nil {
		return fmt.Errorf("add %s/%s: %w", op.Collection, op.ID, err)
	}
	return nil
}

func (s *Store) applyUpdate(ctx context.Context, tx *sql.Tx, op docstore.Op) error {
	var body string
	err := tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE user_id = ? AND collection = ? AND id = ?`,
		s.userID, string(op.Collection), op.ID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s/%s: %w", op.Collection, op.ID, docstore.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", op.Collection, op.ID, err)
	}

	merged, err := docstore.MergeFields(json.RawMessage(body), op.Fields)
	if err != nil {
		return fmt.Errorf("merge %s/%s: %w", op.Collection, op.ID, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET body = ? WHERE user_id = ? AND collection = ? AND id = ?`,
		string(merged), s.userID, string(op.Collection), op.ID)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", op.Collection, op.ID, err)
	}
	return nil
}

func (s *Store) applyDelete(ctx context.Context, tx *sql.Tx, op docstore.Op) error {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE user_id = ? AND collection = ? AND id = ?`,
		s.userID, string(op.Collection), op.ID)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", op.Collection, op.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete %s/%s: %w", op.Collection, op.ID, docstore.ErrNotFound)
	}
	return nil
}

func (s *Store) Watch(ctx context.Context, col docstore.Collection) (<-chan []docstore.Document, error) {
	snap, err := s.snapshot(ctx, col)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}

	ch := make(chan []docstore.Document, 1)
	ch <- snap
	s.watchers[col] = append(s.watchers[col], ch)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, w := range s.watchers[col] {
			if w == ch {
				s.watchers[col] = append(s.watchers[col][:i], s.watchers[col][i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for col, ws := range s.watchers {
			for _, ch := range ws {
				close(ch)
			}
			delete(s.watchers, col)
		}
	}
	s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) snapshot(ctx context.Context, col docstore.Collection) ([]docstore.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE user_id = ? AND collection = ? ORDER BY created_at, id`,
		s.userID, string(col))
	if err != nil {
		return nil, fmt.Errorf("query %s snapshot: %w", col, err)
	}
	defer rows.Close()

	var out []docstore.Document
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s document: %w", col, err)
		}
		out = append(out, docstore.Document{ID: id, Data: json.RawMessage(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s snapshot: %w", col, err)
	}
	return out, nil
}

func (s *Store) notify(ctx context.Context, col docstore.Collection) error {
	snap, err := s.snapshot(ctx, col)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers[col] {
		select {
		case ch <- snap:
		default:
			// Drop-and-replace keeps slow consumers at most one
			// snapshot behind.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	return nil
}
