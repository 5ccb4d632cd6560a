// Package docstore defines the generic per-user document store the
// application runs against: schemaless JSON documents grouped into
// collections, mutated through atomic all-or-nothing batches, observed
// through live snapshot streams.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Collection names a group of documents.
type Collection string

const (
	Expenses          Collection = "expenses"
	Incomes           Collection = "incomes"
	Transfers         Collection = "transfers"
	Accounts          Collection = "accounts"
	ExpenseCategories Collection = "expenseCategories"
	IncomeCategories  Collection = "incomeCategories"
	ExpenseTemplates  Collection = "expenseTemplates"
	IncomeTemplates   Collection = "incomeTemplates"
)

// Collections lists every collection the application subscribes to.
var Collections = []Collection{
	Expenses, Incomes, Transfers, Accounts,
	ExpenseCategories, IncomeCategories,
	ExpenseTemplates, IncomeTemplates,
}

// TransactionCollection maps a transaction kind string to its collection.
func TransactionCollection(kind string) (Collection, bool) {
	switch kind {
	case "expense":
		return Expenses, true
	case "income":
		return Incomes, true
	default:
		return "", false
	}
}

// Document is one stored record: an id plus its JSON body.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

var (
	// ErrNotFound reports an update or delete against a missing document.
	ErrNotFound = errors.New("document not found")
	// ErrEmptyBatch reports a commit with no operations.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrClosed reports an operation against a closed store.
	ErrClosed = errors.New("store closed")
)

// Store is the port every backend implements. Commit is atomic: either
// every operation in the batch is applied or none is. Update semantics
// are partial-field merge with last write wins.
type Store interface {
	// Add inserts a new document and returns its generated id.
	Add(ctx context.Context, col Collection, record any) (string, error)
	// Update merges fields into an existing document.
	Update(ctx context.Context, col Collection, id string, fields map[string]any) error
	// Delete removes a document.
	Delete(ctx context.Context, col Collection, id string) error
	// Commit applies a multi-operation batch with all-or-nothing semantics.
	Commit(ctx context.Context, b *Batch) error
	// Watch streams full collection snapshots: the current one
	// immediately, then one per committed change. The channel is closed
	// when ctx ends or the store closes.
	Watch(ctx context.Context, col Collection) (<-chan []Document, error)
	Close() error
}

// ServerTimestamp is the record-creation timestamp placeholder stamped by
// the store on adds.
func ServerTimestamp() time.Time {
	return time.Now().UTC()
}

type opKind int

const (
	opAdd opKind = iota
	opUpdate
	opDelete
)

// Op is one operation inside a batch.
type Op struct {
	kind       opKind
	Collection Collection
	ID         string
	Data       json.RawMessage // add
	Fields     map[string]any  // update
}

func (o Op) IsAdd() bool    { return o.kind == opAdd }
func (o Op) IsUpdate() bool { return o.kind == opUpdate }
func (o Op) IsDelete() bool { return o.kind == opDelete }

// Batch accumulates operations for a single atomic commit. Ids for added
// documents are minted up front so callers can cross-reference them
// before the batch lands.
type Batch struct {
	ops []Op
}

func NewBatch() *Batch {
	return &Batch{}
}

// Add queues an insert and returns the id the document will get.
func (b *Batch) Add(col Collection, record any) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal record for %s: %w", col, err)
	}
	id := uuid.NewString()
	b.ops = append(b.ops, Op{kind: opAdd, Collection: col, ID: id, Data: data})
	return id, nil
}

// Update queues a partial-field merge.
func (b *Batch) Update(col Collection, id string, fields map[string]any) {
	b.ops = append(b.ops, Op{kind: opUpdate, Collection: col, ID: id, Fields: fields})
}

// Delete queues a removal.
func (b *Batch) Delete(col Collection, id string) {
	b.ops = append(b.ops, Op{kind: opDelete, Collection: col, ID: id})
}

func (b *Batch) Len() int {
	return len(b.ops)
}

// Ops returns the queued operations in submission order.
func (b *Batch) Ops() []Op {
	out := make([]Op, len(b.ops))
	copy(out, b.ops)
	return out
}

// MergeFields applies a partial update to a stored JSON body and returns
// the merged document.
func MergeFields(data json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	doc := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal existing document: %w", err)
		}
	}
	for k, v := range fields {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal merged document: %w", err)
	}
	return merged, nil
}
