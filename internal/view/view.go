// Package view derives read-only projections from the live collections:
// the unified transaction list, monthly totals, the annual per-month
// summary and payment reminders. Nothing here mutates anything.
package view

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

const (
	ItemExpense  ItemKind = "expense"
	ItemIncome   ItemKind = "income"
	ItemTransfer ItemKind = "transfer"
)

type (
	ItemKind string

	// Item is one row of the unified transaction list.
	Item struct {
		ID            string          `json:"id"`
		Kind          ItemKind        `json:"kind"`
		Description   string          `json:"description"`
		Amount        decimal.Decimal `json:"amount"`
		Date          time.Time       `json:"date"`
		Category      string          `json:"category,omitempty"`
		AccountID     string          `json:"accountId,omitempty"`
		FromAccountID string          `json:"fromAccountId,omitempty"`
		ToAccountID   string          `json:"toAccountId,omitempty"`
		Paid          bool            `json:"isPaid"`
		Parent        bool            `json:"isParent,omitempty"`
		ParentID      string          `json:"parentId,omitempty"`
	}

	// Filter selects the date window, account and search term for the
	// unified list. A zero AccountID means all accounts; Annual widens
	// the window from one month to the whole year.
	Filter struct {
		Year      int
		Month     time.Month
		Annual    bool
		AccountID string
		Search    string
	}

	// Totals is the monthly income/expense/balance header.
	Totals struct {
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
		Balance decimal.Decimal `json:"balance"`
	}

	// MonthSummary is one row of the annual summary table.
	MonthSummary struct {
		Month   time.Month      `json:"month"`
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
		Balance decimal.Decimal `json:"balance"`
	}
)

func (f Filter) matchDate(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	if f.Annual {
		return t.Year() == f.Year
	}
	return t.Year() == f.Year && t.Month() == f.Month
}

func (f Filter) matchAccount(ids ...string) bool {
	if f.AccountID == "" {
		return true
	}
	for _, id := range ids {
		if id == f.AccountID {
			return true
		}
	}
	return false
}

func (f Filter) matchSearch(description string) bool {
	if f.Search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(description), strings.ToLower(f.Search))
}

// Unified merges expenses, incomes and transfers into one filtered list
// sorted by date descending. Transfers match the account filter on
// either endpoint and are exempt from the text search; their description
// is synthesized from the endpoint account names. Items with equal dates
// keep collection iteration order.
func Unified(expenses, incomes []core.Transaction, transfers []core.Transfer, accounts []core.Account, f Filter) []Item {
	names := make(map[string]string, len(accounts))
	for _, a := range accounts {
		names[a.ID] = a.Name
	}
	accountName := func(id string) string {
		if name, ok := names[id]; ok {
			return name
		}
		return "N/A"
	}

	var items []Item
	for _, tx := range expenses {
		if !f.matchDate(tx.Date) || !f.matchAccount(tx.AccountID) || !f.matchSearch(tx.Description) {
			continue
		}
		items = append(items, transactionItem(tx, ItemExpense))
	}
	for _, tx := range incomes {
		if !f.matchDate(tx.Date) || !f.matchAccount(tx.AccountID) || !f.matchSearch(tx.Description) {
			continue
		}
		items = append(items, transactionItem(tx, ItemIncome))
	}
	for _, tr := range transfers {
		if !f.matchDate(tr.Date) || !f.matchAccount(tr.FromAccountID, tr.ToAccountID) {
			continue
		}
		items = append(items, Item{
			ID:   tr.ID,
			Kind: ItemTransfer,
			Description: fmt.Sprintf("Transfer from %s to %s",
				accountName(tr.FromAccountID), accountName(tr.ToAccountID)),
			Amount:        tr.Amount,
			Date:          tr.Date,
			FromAccountID: tr.FromAccountID,
			ToAccountID:   tr.ToAccountID,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.After(items[j].Date)
	})
	return items
}

func transactionItem(tx core.Transaction, kind ItemKind) Item {
	return Item{
		ID:          tx.ID,
		Kind:        kind,
		Description: tx.Description,
		Amount:      tx.Amount,
		Date:        tx.Date,
		Category:    tx.Category,
		AccountID:   tx.AccountID,
		Paid:        tx.Paid,
		Parent:      tx.Parent,
		ParentID:    tx.ParentID,
	}
}

// MonthTotals sums incomes and expenses for the filter's month and
// account. The text search does not apply to the header totals.
func MonthTotals(expenses, incomes []core.Transaction, f Filter) Totals {
	t := Totals{Income: decimal.Zero, Expense: decimal.Zero, Balance: decimal.Zero}
	for _, tx := range incomes {
		if f.matchDate(tx.Date) && f.matchAccount(tx.AccountID) {
			t.Income = t.Income.Add(tx.Amount)
		}
	}
	for _, tx := range expenses {
		if f.matchDate(tx.Date) && f.matchAccount(tx.AccountID) {
			t.Expense = t.Expense.Add(tx.Amount)
		}
	}
	t.Balance = t.Income.Sub(t.Expense)
	return t
}

// AnnualSummary aggregates incomes and expenses per calendar month of
// year. The result always holds twelve entries, January first.
func AnnualSummary(expenses, incomes []core.Transaction, year int) []MonthSummary {
	out := make([]MonthSummary, 12)
	for i := range out {
		out[i] = MonthSummary{
			Month:   time.Month(i + 1),
			Income:  decimal.Zero,
			Expense: decimal.Zero,
			Balance: decimal.Zero,
		}
	}
	for _, tx := range incomes {
		if tx.Date.Year() == year {
			m := int(tx.Date.Month()) - 1
			out[m].Income = out[m].Income.Add(tx.Amount)
		}
	}
	for _, tx := range expenses {
		if tx.Date.Year() == year {
			m := int(tx.Date.Month()) - 1
			out[m].Expense = out[m].Expense.Add(tx.Amount)
		}
	}
	for i := range out {
		out[i].Balance = out[i].Income.Sub(out[i].Expense)
	}
	return out
}

// Reminders returns unpaid expenses due within the next seven days of
// now (overdue ones included), soonest first.
func Reminders(expenses []core.Transaction, now time.Time) []core.Transaction {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	limit := today.AddDate(0, 0, 7)

	var due []core.Transaction
	for _, tx := range expenses {
		if tx.Paid || tx.Date.IsZero() {
			continue
		}
		if !tx.Date.After(limit) {
			due = append(due, tx)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].Date.Before(due[j].Date)
	})
	return due
}
