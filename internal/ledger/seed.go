package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/docstore"
)

// Default sets written once when a collection is observed empty on first
// subscription. Icon names follow the UI's icon catalog.
var (
	DefaultAccounts = []core.Account{
		{Name: "Wallet", Balance: decimal.Zero},
		{Name: "Checking", Balance: decimal.Zero},
	}

	DefaultExpenseCategories = []core.Category{
		{Name: "Household", Icon: "Home"},
		{Name: "Food", Icon: "Utensils"},
		{Name: "Transport", Icon: "Car"},
		{Name: "Leisure", Icon: "Gamepad2"},
		{Name: "Health", Icon: "HeartPulse"},
		{Name: "Education", Icon: "GraduationCap"},
		{Name: "Shopping", Icon: "ShoppingBag"},
		{Name: "Other", Icon: "Tag"},
	}

	DefaultIncomeCategories = []core.Category{
		{Name: "Salary", Icon: "CircleDollarSign"},
		{Name: "Sales", Icon: "Tag"},
		{Name: "Freelance", Icon: "Laptop"},
		{Name: "Investments", Icon: "TrendingUp"},
		{Name: "Other", Icon: "Gift"},
	}
)

// Seed writes the default record set for col in a single batch.
// Collections without defaults are left untouched.
func Seed(ctx context.Context, store docstore.Store, col docstore.Collection) error {
	b := docstore.NewBatch()

	switch col {
	case docstore.Accounts:
		for _, a := range DefaultAccounts {
			a.CreatedAt = docstore.ServerTimestamp()
			if _, err := b.Add(col, a); err != nil {
				return err
			}
		}
	case docstore.ExpenseCategories:
		for _, c := range DefaultExpenseCategories {
			c.CreatedAt = docstore.ServerTimestamp()
			if _, err := b.Add(col, c); err != nil {
				return err
			}
		}
	case docstore.IncomeCategories:
		for _, c := range DefaultIncomeCategories {
			c.CreatedAt = docstore.ServerTimestamp()
			if _, err := b.Add(col, c); err != nil {
				return err
			}
		}
	default:
		return nil
	}

	if err := store.Commit(ctx, b); err != nil {
		return fmt.Errorf("seed %s: %w", col, err)
	}
	slog.InfoContext(ctx, "Seeded default records", "collection", col)
	return nil
}
