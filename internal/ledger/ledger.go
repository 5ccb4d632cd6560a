// Package ledger implements the consistency engine that keeps account
// balances correct while transactions and transfers are created, edited,
// deleted and reclassified.
//
// Balances are denormalized running totals stored on each account. Every
// mutation therefore touches both the record collections and the affected
// account documents, inside one atomic docstore batch. The Coordinator is
// the sole writer of balance fields: deltas are computed from the
// account snapshots the caller passes in (call-time state), applied
// exactly once per affected account per mutation, and pre-aggregated for
// bulk operations.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/docstore"
)

var (
	// ErrAccountNotFound reports a mutation referencing an account that
	// is no longer in the snapshot. The batch is never submitted.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountInUse blocks deleting an account still referenced by
	// transactions or transfers.
	ErrAccountInUse = errors.New("account is referenced by existing records")
	// ErrCategoryInUse blocks deleting a category still referenced by
	// name.
	ErrCategoryInUse = errors.New("category is referenced by existing records")
	// ErrNotExpense reports installment or paid-flag operations on a
	// non-expense record.
	ErrNotExpense = errors.New("operation applies to expenses only")
	// ErrInstallmentCount reports an installment count below two.
	ErrInstallmentCount = errors.New("installment count must be at least 2")
)

// Coordinator orchestrates multi-record, multi-account mutations as
// atomic batches against the document store. It holds no collection
// state of its own: callers pass the current snapshots with each call.
type Coordinator struct {
	store  docstore.Store
	events Publisher // optional, best effort
}

// New builds a Coordinator. events may be nil; publishing is best effort
// and never fails a mutation.
func New(store docstore.Store, events Publisher) *Coordinator {
	return &Coordinator{store: store, events: events}
}

// CreateTransaction records a new expense or income and credits or
// debits its account in the same batch.
func (c *Coordinator) CreateTransaction(ctx context.Context, tx core.Transaction, accounts []core.Account) (string, error) {
	if tx.Kind == core.KindIncome {
		// Incomes are settled the moment they exist.
		tx.Paid = true
	}
	if err := tx.Validate(); err != nil {
		return "", err
	}
	account, err := findAccount(accounts, tx.AccountID)
	if err != nil {
		return "", err
	}

	tx.CreatedAt = docstore.ServerTimestamp()
	b := docstore.NewBatch()
	id, err := b.Add(collectionFor(tx.Kind), tx)
	if err != nil {
		return "", err
	}
	b.Update(docstore.Accounts, account.ID, balanceField(account.Balance.Add(tx.Kind.Effect(tx.Amount))))

	if err := c.store.Commit(ctx, b); err != nil {
		return "", fmt.Errorf("commit transaction create: %w", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		"id", id, "kind", tx.Kind, "amount", tx.Amount, "account", account.ID)
	c.publish(ctx, Event{Op: OpCreated, Collection: collectionFor(tx.Kind), ID: id, Kind: tx.Kind,
		Description: tx.Description, Amount: tx.Amount, Date: tx.Date})
	return id, nil
}

// UpdateTransaction rewrites an existing transaction. When the account
// is unchanged the delta is sign(kind)*(new-old); when the record moves
// between accounts the original effect is reverted on the old account
// and the new effect applied on the new one, both in the same batch.
func (c *Coordinator) UpdateTransaction(ctx context.Context, prev, next core.Transaction, accounts []core.Account) error {
	next.ID = prev.ID
	next.Kind = prev.Kind
	if err := next.Validate(); err != nil {
		return err
	}

	b := docstore.NewBatch()
	kind := prev.Kind
	if prev.AccountID != next.AccountID {
		oldAccount, err := findAccount(accounts, prev.AccountID)
		if err != nil {
			return err
		}
		newAccount, err := findAccount(accounts, next.AccountID)
		if err != nil {
			return err
		}
		b.Update(docstore.Accounts, oldAccount.ID, balanceField(oldAccount.Balance.Sub(kind.Effect(prev.Amount))))
		b.Update(docstore.Accounts, newAccount.ID, balanceField(newAccount.Balance.Add(kind.Effect(next.Amount))))
	} else {
		account, err := findAccount(accounts, next.AccountID)
		if err != nil {
			return err
		}
		diff := kind.Effect(next.Amount).Sub(kind.Effect(prev.Amount))
		if !diff.IsZero() {
			b.Update(docstore.Accounts, account.ID, balanceField(account.Balance.Add(diff)))
		}
	}
	b.Update(collectionFor(kind), prev.ID, transactionFields(next))

	if err := c.store.Commit(ctx, b); err != nil {
		return fmt.Errorf("commit transaction update: %w", err)
	}

	slog.InfoContext(ctx, "Transaction updated", "id", prev.ID, "kind", kind,
		"amount", next.Amount, "account", next.AccountID)
	c.publish(ctx, Event{Op: OpUpdated, Collection: collectionFor(kind), ID: prev.ID, Kind: kind,
		Description: next.Description, Amount: next.Amount, Date: next.Date})
	return nil
}

// DeleteTransaction removes a transaction and reverses its balance
// effect.
func (c *Coordinator) DeleteTransaction(ctx context.Context, tx core.Transaction, accounts []core.Account) error {
	b := docstore.NewBatch()
	b.Delete(collectionFor(tx.Kind), tx.ID)
	if account, err := findAccount(accounts, tx.AccountID); err == nil {
		b.Update(docstore.Accounts, account.ID, balanceField(account.Balance.Sub(tx.Kind.Effect(tx.Amount))))
	}

	if err := c.store.Commit(ctx, b); err != nil {
		return fmt.Errorf("commit transaction delete: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", tx.ID, "kind", tx.Kind, "amount", tx.Amount)
	c.publish(ctx, Event{Op: OpDeleted, Collection: collectionFor(tx.Kind), ID: tx.ID, Kind: tx.Kind,
		Description: tx.Description, Amount: tx.Amount, Date: tx.Date})
	return nil
}

// CreateTransfer debits the source and credits the destination account.
// A transfer between identical accounts is rejected before anything is
// written.
func (c *Coordinator) CreateTransfer(ctx context.Context, tr core.Transfer, accounts []core.Account) (string, error) {
	if err := tr.Validate(); err != nil {
		return "", err
	}
	from, err := findAccount(accounts, tr.FromAccountID)
	if err != nil {
		return "", err
	}
	to, err := findAccount(accounts, tr.ToAccountID)
	if err != nil {
		return "", err
	}

	tr.CreatedAt = docstore.ServerTimestamp()
	b := docstore.NewBatch()
	id, err := b.Add(docstore.Transfers, tr)
	if err != nil {
		return "", err
	}
	b.Update(docstore.Accounts, from.ID, balanceField(from.Balance.Sub(tr.Amount)))
	b.Update(docstore.Accounts, to.ID, balanceField(to.Balance.Add(tr.Amount)))

	if err := c.store.Commit(ctx, b); err != nil {
		return "", fmt.Errorf("commit transfer create: %w", err)
	}

	slog.InfoContext(ctx, "Transfer created",
		"id", id, "amount", tr.Amount, "from", from.ID, "to", to.ID)
	c.publish(ctx, Event{Op: OpCreated, Collection: docstore.Transfers, ID: id,
		Description: tr.Description, Amount: tr.Amount, Date: tr.Date})
	return id, nil
}

// DeleteTransfer removes a transfer and restores both balances.
func (c *Coordinator) DeleteTransfer(ctx context.Context, tr core.Transfer, accounts []core.Account) error {
	b := docstore.NewBatch()
	b.Delete(docstore.Transfers, tr.ID)
	from, fromErr := findAccount(accounts, tr.FromAccountID)
	to, toErr := findAccount(accounts, tr.ToAccountID)
	if fromErr == nil && toErr == nil {
		b.Update(docstore.Accounts, from.ID, balanceField(from.Balance.Add(tr.Amount)))
		b.Update(docstore.Accounts, to.ID, balanceField(to.Balance.Sub(tr.Amount)))
	}

	if err := c.store.Commit(ctx, b); err != nil {
		return fmt.Errorf("commit transfer delete: %w", err)
	}

	slog.InfoContext(ctx, "Transfer deleted", "id", tr.ID, "amount", tr.Amount)
	c.publish(ctx, Event{Op: OpDeleted, Collection: docstore.Transfers, ID: tr.ID,
		Description: tr.Description, Amount: tr.Amount, Date: tr.Date})
	return nil
}

// SetExpensePaid toggles the reminder flag on an expense. Paid state
// never moves a balance: the debit happened at creation.
func (c *Coordinator) SetExpensePaid(ctx context.Context, id string, paid bool) error {
	if err := c.store.Update(ctx, docstore.Expenses, id, map[string]any{"isPaid": paid}); err != nil {
		return fmt.Errorf("set expense paid: %w", err)
	}
	return nil
}

// BulkDelete removes a mixed selection of transactions and transfers.
// Per-account deltas are aggregated across the whole selection first, so
// an account touched by several selected items receives exactly one
// consolidated balance update inside the batch.
func (c *Coordinator) BulkDelete(ctx context.Context, txs []core.Transaction, transfers []core.Transfer, accounts []core.Account) error {
	if len(txs) == 0 && len(transfers) == 0 {
		return nil
	}

	b := docstore.NewBatch()
	deltas := map[string]decimal.Decimal{}
	addDelta := func(accountID string, d decimal.Decimal) {
		deltas[accountID] = deltas[accountID].Add(d)
	}

	for _, tx := range txs {
		b.Delete(collectionFor(tx.Kind), tx.ID)
		if tx.AccountID != "" {
			// Removing a record reverses its original effect.
			addDelta(tx.AccountID, tx.Kind.Effect(tx.Amount).Neg())
		}
	}
	for _, tr := range transfers {
		b.Delete(docstore.Transfers, tr.ID)
		if tr.FromAccountID != "" {
			addDelta(tr.FromAccountID, tr.Amount)
		}
		if tr.ToAccountID != "" {
			addDelta(tr.ToAccountID, tr.Amount.Neg())
		}
	}

	for _, account := range accounts {
		delta, ok := deltas[account.ID]
		if !ok {
			continue
		}
		b.Update(docstore.Accounts, account.ID, balanceField(account.Balance.Add(delta)))
	}

	if err := c.store.Commit(ctx, b); err != nil {
		return fmt.Errorf("commit bulk delete: %w", err)
	}

	slog.InfoContext(ctx, "Bulk delete committed",
		"transactions", len(txs), "transfers", len(transfers), "accounts_touched", len(deltas))
	return nil
}

// BulkSetPaid flips the paid flag on every selected id that names an
// expense. Non-expense ids in the selection are skipped silently. The
// whole update is balance neutral.
func (c *Coordinator) BulkSetPaid(ctx context.Context, ids []string, paid bool, expenses []core.Transaction) (int, error) {
	known := make(map[string]bool, len(expenses))
	for _, e := range expenses {
		known[e.ID] = true
	}

	b := docstore.NewBatch()
	updated := 0
	for _, id := range ids {
		if !known[id] {
			continue
		}
		b.Update(docstore.Expenses, id, map[string]any{"isPaid": paid})
		updated++
	}
	if updated == 0 {
		return 0, nil
	}

	if err := c.store.Commit(ctx, b); err != nil {
		return 0, fmt.Errorf("commit bulk paid update: %w", err)
	}
	slog.InfoContext(ctx, "Bulk paid flag updated", "count", updated, "paid", paid)
	return updated, nil
}

// ExpandInstallments rewrites an expense into the parent of an
// installment group and inserts count-1 sibling expenses, one calendar
// month apart, sharing amount, category and account.
//
// No balance is adjusted here: the original expense already debited the
// account at creation, and the siblings are inserted as records only.
// The account therefore undercounts the future (count-1)*amount
// commitment until each sibling is settled through its own lifecycle.
// After expansion the siblings are independent expenses: editing or
// deleting the parent never cascades.
func (c *Coordinator) ExpandInstallments(ctx context.Context, exp core.Transaction, count int) error {
	if exp.Kind != core.KindExpense {
		return ErrNotExpense
	}
	if count < 2 {
		return ErrInstallmentCount
	}

	b := docstore.NewBatch()
	b.Update(docstore.Expenses, exp.ID, map[string]any{
		"description":         fmt.Sprintf("%s (1/%d)", exp.Description, count),
		"originalDescription": exp.Description,
		"isParent":            true,
	})

	for i := 1; i < count; i++ {
		sibling := core.Transaction{
			Kind:                core.KindExpense,
			Description:         fmt.Sprintf("%s (%d/%d)", exp.Description, i+1, count),
			OriginalDescription: exp.Description,
			Amount:              exp.Amount,
			Date:                exp.Date.AddDate(0, i, 0),
			Category:            exp.Category,
			AccountID:           exp.AccountID,
			Paid:                false,
			ParentID:            exp.ID,
			CreatedAt:           docstore.ServerTimestamp(),
		}
		if _, err := b.Add(docstore.Expenses, sibling); err != nil {
			return err
		}
	}

	if err := c.store.Commit(ctx, b); err != nil {
		return fmt.Errorf("commit installment expansion: %w", err)
	}

	slog.InfoContext(ctx, "Installments created",
		"parent", exp.ID, "count", count, "amount", exp.Amount)
	return nil
}

func findAccount(accounts []core.Account, id string) (core.Account, error) {
	for _, a := range accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return core.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
}

func collectionFor(kind core.Kind) docstore.Collection {
	if kind == core.KindIncome {
		return docstore.Incomes
	}
	return docstore.Expenses
}

func balanceField(balance decimal.Decimal) map[string]any {
	return map[string]any{"balance": balance}
}

// transactionFields is the full rewrite payload for an edited record,
// mirroring what a create would have stored.
func transactionFields(tx core.Transaction) map[string]any {
	fields := map[string]any{
		"description": tx.Description,
		"amount":      tx.Amount,
		"date":        tx.Date,
		"category":    tx.Category,
		"accountId":   tx.AccountID,
		"isPaid":      tx.Paid,
	}
	if tx.OriginalDescription != "" {
		fields["originalDescription"] = tx.OriginalDescription
	}
	return fields
}

func (c *Coordinator) publish(ctx context.Context, ev Event) {
	if c.events == nil {
		return
	}
	ev.Timestamp = docstore.ServerTimestamp()
	if err := c.events.PublishLedgerEvent(ctx, ev); err != nil {
		// Best effort only: the mutation is already committed.
		slog.WarnContext(ctx, "Ledger event publish failed",
			"op", ev.Op, "collection", ev.Collection, "id", ev.ID, "error", err)
	}
}

// normalizeName trims the user-supplied name for the management
// operations below.
func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", core.ErrEmptyName
	}
	return name, nil
}
