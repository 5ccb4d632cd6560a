package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/docstore"
)

// AddAccount creates a new account with a zero balance.
func (c *Coordinator) AddAccount(ctx context.Context, name string) (string, error) {
	name, err := normalizeName(name)
	if err != nil {
		return "", err
	}
	account := core.Account{
		Name:      name,
		Balance:   decimal.Zero,
		CreatedAt: docstore.ServerTimestamp(),
	}
	id, err := c.store.Add(ctx, docstore.Accounts, account)
	if err != nil {
		return "", fmt.Errorf("add account: %w", err)
	}
	return id, nil
}

// RenameAccount changes an account's display name. The balance is left
// alone.
func (c *Coordinator) RenameAccount(ctx context.Context, id, name string) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	if err := c.store.Update(ctx, docstore.Accounts, id, map[string]any{"name": name}); err != nil {
		return fmt.Errorf("rename account: %w", err)
	}
	return nil
}

// DeleteAccount removes an account, refusing while any transaction or
// transfer still references it. The check is a linear scan over the
// caller's snapshots, not a store constraint.
func (c *Coordinator) DeleteAccount(ctx context.Context, id string, expenses, incomes []core.Transaction, transfers []core.Transfer) error {
	for _, tx := range expenses {
		if tx.AccountID == id {
			return fmt.Errorf("%w: account %s", ErrAccountInUse, id)
		}
	}
	for _, tx := range incomes {
		if tx.AccountID == id {
			return fmt.Errorf("%w: account %s", ErrAccountInUse, id)
		}
	}
	for _, tr := range transfers {
		if tr.FromAccountID == id || tr.ToAccountID == id {
			return fmt.Errorf("%w: account %s", ErrAccountInUse, id)
		}
	}
	if err := c.store.Delete(ctx, docstore.Accounts, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// AddCategory creates a category in the given category collection.
func (c *Coordinator) AddCategory(ctx context.Context, col docstore.Collection, cat core.Category) (string, error) {
	if err := cat.Validate(); err != nil {
		return "", err
	}
	cat.CreatedAt = docstore.ServerTimestamp()
	id, err := c.store.Add(ctx, col, cat)
	if err != nil {
		return "", fmt.Errorf("add category: %w", err)
	}
	return id, nil
}

// UpdateCategory rewrites a category's name and icon. Renaming does NOT
// cascade: transactions keep the category name they were recorded with.
func (c *Coordinator) UpdateCategory(ctx context.Context, col docstore.Collection, id string, cat core.Category) error {
	if err := cat.Validate(); err != nil {
		return err
	}
	fields := map[string]any{"name": cat.Name, "icon": cat.Icon}
	if err := c.store.Update(ctx, col, id, fields); err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

// DeleteCategory removes a category, refusing while any transaction in
// the snapshot still references it by name.
func (c *Coordinator) DeleteCategory(ctx context.Context, col docstore.Collection, id, name string, txs []core.Transaction) error {
	for _, tx := range txs {
		if tx.Category == name {
			return fmt.Errorf("%w: category %q", ErrCategoryInUse, name)
		}
	}
	if err := c.store.Delete(ctx, col, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// AddTemplate stores a transaction template.
func (c *Coordinator) AddTemplate(ctx context.Context, col docstore.Collection, t core.Template) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	id, err := c.store.Add(ctx, col, t)
	if err != nil {
		return "", fmt.Errorf("add template: %w", err)
	}
	return id, nil
}

// DeleteTemplate removes a transaction template.
func (c *Coordinator) DeleteTemplate(ctx context.Context, col docstore.Collection, id string) error {
	if err := c.store.Delete(ctx, col, id); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}
