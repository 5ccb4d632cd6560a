// Package memory provides the in-memory docstore backend used for local
// development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"fintrack/internal/docstore"
)

// Store keeps every collection in process memory. Commits validate all
// operations before applying any, so a failing batch leaves no trace.
type Store struct {
	mu       sync.Mutex
	cols     map[docstore.Collection]map[string]json.RawMessage
	order    map[docstore.Collection][]string
	watchers map[docstore.Collection][]chan []docstore.Document
	closed   bool
}

func New() *Store {
	return &Store{
		cols:     make(map[docstore.Collection]map[string]json.RawMessage),
		order:    make(map[docstore.Collection][]string),
		watchers: make(map[docstore.Collection][]chan []docstore.Document),
	}
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

// Commit applies the batch under one lock. Every operation is checked
// against current state first; only a fully valid batch mutates anything.
func (s *Store) Commit(_ context.Context, b *docstore.Batch) error {
	if b == nil || b.Len() == 0 {
		return docstore.ErrEmptyBatch
	}
	ops := b.Ops()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}

	// Validation pass. Track ids added or deleted earlier in the same
	// batch so intra-batch sequences stay consistent.
	added := map[docstore.Collection]map[string]bool{}
	removed := map[docstore.Collection]map[string]bool{}
	exists := func(col docstore.Collection, id string) bool {
		if removed[col][id] {
			return false
		}
		if added[col][id] {
			return true
		}
		_, ok := s.cols[col][id]
		return ok
	}
	for _, op := range ops {
		switch {
		case op.IsAdd():
			if exists(op.Collection, op.ID) {
				return fmt.Errorf("add %s/%s: duplicate id", op.Collection, op.ID)
			}
			if added[op.Collection] == nil {
				added[op.Collection] = map[string]bool{}
			}
			added[op.Collection][op.ID] = true
			delete(removed[op.Collection], op.ID)
		case op.IsUpdate():
			if !exists(op.Collection, op.ID) {
				return fmt.Errorf("update %s/%s: %w", op.Collection, op.ID, docstore.ErrNotFound)
			}
		case op.IsDelete():
			if !exists(op.Collection, op.ID) {
				return fmt.Errorf("delete %s/%s: %w", op.Collection, op.ID, docstore.ErrNotFound)
			}
			if removed[op.Collection] == nil {
				removed[op.Collection] = map[string]bool{}
			}
			removed[op.Collection][op.ID] = true
			delete(added[op.Collection], op.ID)
		}
	}

	// Apply pass.
	changed := map[docstore.Collection]bool{}
	for _, op := range ops {
		docs := s.cols[op.Collection]
		if docs == nil {
			docs = map[string]json.RawMessage{}
			s.cols[op.Collection] = docs
		}
		switch {
		case op.IsAdd():
			docs[op.ID] = op.Data
			s.order[op.Collection] = append(s.order[op.Collection], op.ID)
		case op.IsUpdate():
			merged, err := docstore.MergeFields(docs[op.ID], op.Fields)
			if err != nil {
				// Stored bodies are always valid JSON objects, and
				// MergeFields only re-marshals; treat this as corruption.
				return fmt.Errorf("merge %s/%s: %w", op.Collection, op.ID, err)
			}
			docs[op.ID] = merged
		case op.IsDelete():
			delete(docs, op.ID)
			s.order[op.Collection] = removeID(s.order[op.Collection], op.ID)
		}
		changed[op.Collection] = true
	}

	for col := range changed {
		s.notifyLocked(col)
	}
	return nil
}

// Watch registers a snapshot channel for col and primes it with the
// current snapshot. Slow consumers only ever lag by one snapshot: stale
// intermediate states are dropped, never queued.
func (s *Store) Watch(ctx context.Context, col docstore.Collection) (<-chan []docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}

	ch := make(chan []docstore.Document, 1)
	ch <- s.snapshotLocked(col)
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
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for col, ws := range s.watchers {
		for _, ch := range ws {
			close(ch)
		}
		delete(s.watchers, col)
	}
	return nil
}

func (s *Store) snapshotLocked(col docstore.Collection) []docstore.Document {
	ids := s.order[col]
	out := make([]docstore.Document, 0, len(ids))
	for _, id := range ids {
		data, ok := s.cols[col][id]
		if !ok {
			continue
		}
		body := make(json.RawMessage, len(data))
		copy(body, data)
		out = append(out, docstore.Document{ID: id, Data: body})
	}
	return out
}

func (s *Store) notifyLocked(col docstore.Collection) {
	snap := s.snapshotLocked(col)
	for _, ch := range s.watchers[col] {
		select {
		case ch <- snap:
		default:
			// Replace the pending stale snapshot with the fresh one.
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
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
