// Package state maintains the typed, in-memory mirror of the document
// store: one subscription per collection, decoded on every snapshot.
// The tracker is the read side the HTTP layer queries and the source of
// the call-time snapshots handed to the ledger coordinator. It also
// owns the one-time seeding of empty account and category collections.
package state

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
	"fintrack/internal/docstore"
	"fintrack/internal/ledger"
)

type Tracker struct {
	store docstore.Store

	mu                sync.RWMutex
	expenses          []core.Transaction
	incomes           []core.Transaction
	transfers         []core.Transfer
	accounts          []core.Account
	expenseCategories []core.Category
	incomeCategories  []core.Category
	expenseTemplates  []core.Template
	incomeTemplates   []core.Template

	seedOnce map[docstore.Collection]*sync.Once

	readyOnce sync.Once
	ready     chan struct{}
	pending   map[docstore.Collection]bool
}

func New(store docstore.Store) *Tracker {
	t := &Tracker{
		store:    store,
		seedOnce: make(map[docstore.Collection]*sync.Once),
		ready:    make(chan struct{}),
		pending:  make(map[docstore.Collection]bool),
	}
	for _, col := range docstore.Collections {
		t.seedOnce[col] = &sync.Once{}
		t.pending[col] = true
	}
	return t
}

// Run subscribes to every collection and pumps snapshots until ctx ends.
func (t *Tracker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, col := range docstore.Collections {
		g.Go(func() error {
			return t.watch(ctx, col)
		})
	}
	return g.Wait()
}

// Ready is closed once every collection has delivered its first
// snapshot.
func (t *Tracker) Ready() <-chan struct{} {
	return t.ready
}

func (t *Tracker) watch(ctx context.Context, col docstore.Collection) error {
	snaps, err := t.store.Watch(ctx, col)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case docs, ok := <-snaps:
			if !ok {
				return nil
			}
			t.apply(ctx, col, docs)
		}
	}
}

func (t *Tracker) apply(ctx context.Context, col docstore.Collection, docs []docstore.Document) {
	// Seeding contract: an empty seedable collection observed on first
	// subscription gets its default records exactly once. The write
	// flows back through the subscription like any other mutation.
	if len(docs) == 0 {
		t.seedOnce[col].Do(func() {
			if err := ledger.Seed(ctx, t.store, col); err != nil {
				slog.ErrorContext(ctx, "Seeding failed", "collection", col, "error", err)
			}
		})
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	switch col {
	case docstore.Expenses:
		t.expenses = decodeTransactions(ctx, docs, core.KindExpense)
	case docstore.Incomes:
		t.incomes = decodeTransactions(ctx, docs, core.KindIncome)
	case docstore.Transfers:
		t.transfers = decodeRecords[core.Transfer](ctx, col, docs)
	case docstore.Accounts:
		t.accounts = decodeRecords[core.Account](ctx, col, docs)
	case docstore.ExpenseCategories:
		t.expenseCategories = decodeRecords[core.Category](ctx, col, docs)
	case docstore.IncomeCategories:
		t.incomeCategories = decodeRecords[core.Category](ctx, col, docs)
	case docstore.ExpenseTemplates:
		t.expenseTemplates = decodeRecords[core.Template](ctx, col, docs)
	case docstore.IncomeTemplates:
		t.incomeTemplates = decodeRecords[core.Template](ctx, col, docs)
	}

	if t.pending[col] {
		delete(t.pending, col)
		if len(t.pending) == 0 {
			t.readyOnce.Do(func() { close(t.ready) })
		}
	}
}

type identifiable interface {
	core.Transfer | core.Account | core.Category | core.Template
}

func decodeRecords[T identifiable](ctx context.Context, col docstore.Collection, docs []docstore.Document) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var rec T
		if err := doc.Decode(&rec); err != nil {
			slog.WarnContext(ctx, "Skipping undecodable document", "collection", col, "id", doc.ID, "error", err)
			continue
		}
		setID(&rec, doc.ID)
		out = append(out, rec)
	}
	return out
}

func setID[T identifiable](rec *T, id string) {
	switch r := any(rec).(type) {
	case *core.Transfer:
		r.ID = id
	case *core.Account:
		r.ID = id
	case *core.Category:
		r.ID = id
	case *core.Template:
		r.ID = id
	}
}

func decodeTransactions(ctx context.Context, docs []docstore.Document, kind core.Kind) []core.Transaction {
	out := make([]core.Transaction, 0, len(docs))
	for _, doc := range docs {
		var tx core.Transaction
		if err := doc.Decode(&tx); err != nil {
			slog.WarnContext(ctx, "Skipping undecodable document", "kind", kind, "id", doc.ID, "error", err)
			continue
		}
		tx.ID = doc.ID
		tx.Kind = kind
		out = append(out, tx)
	}
	return out
}

func (t *Tracker) Expenses() []core.Transaction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]core.Transaction(nil), t.expenses...)
}

func (t *Tracker) Incomes() []core.Transaction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]core.Transaction(nil), t.incomes...)
}

func (t *Tracker) Transfers() []core.Transfer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]core.Transfer(nil), t.transfers...)
}

func (t *Tracker) Accounts() []core.Account {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]core.Account(nil), t.accounts...)
}

func (t *Tracker) ExpenseCategories() []core.Category {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]core.Category(nil), t.expenseCategories...)
}

func (t *Tracker) IncomeCategories() []core.Category {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]core.Category(nil), t.incomeCategories...)
}

func (t *Tracker) ExpenseTemplates() []core.Template {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]core.Template(nil), t.expenseTemplates...)
}

func (t *Tracker) IncomeTemplates() []core.Template {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]core.Template(nil), t.incomeTemplates...)
}

// TransactionByID looks the id up in the expense then income mirror.
func (t *Tracker) TransactionByID(id string) (core.Transaction, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, tx := range t.expenses {
		if tx.ID == id {
			return tx, true
		}
	}
	for _, tx := range t.incomes {
		if tx.ID == id {
			return tx, true
		}
	}
	return core.Transaction{}, false
}

func (t *Tracker) TransferByID(id string) (core.Transfer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, tr := range t.transfers {
		if tr.ID == id {
			return tr, true
		}
	}
	return core.Transfer{}, false
}

func (t *Tracker) CategoryByID(col docstore.Collection, id string) (core.Category, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cats := t.expenseCategories
	if col == docstore.IncomeCategories {
		cats = t.incomeCategories
	}
	for _, c := range cats {
		if c.ID == id {
			return c, true
		}
	}
	return core.Category{}, false
}
