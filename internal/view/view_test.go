package view

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testData() ([]core.Transaction, []core.Transaction, []core.Transfer, []core.Account) {
	expenses := []core.Transaction{
		{ID: "e1", Kind: core.KindExpense, Description: "Groceries", Amount: amount("40"), Date: day(2026, 3, 5), Category: "Food", AccountID: "acc-1", Paid: true},
		{ID: "e2", Kind: core.KindExpense, Description: "Cinema", Amount: amount("12"), Date: day(2026, 3, 20), Category: "Leisure", AccountID: "acc-2"},
		{ID: "e3", Kind: core.KindExpense, Description: "Insurance", Amount: amount("80"), Date: day(2026, 4, 1), Category: "Other", AccountID: "acc-1"},
	}
	incomes := []core.Transaction{
		{ID: "i1", Kind: core.KindIncome, Description: "Salary", Amount: amount("2000"), Date: day(2026, 3, 1), Category: "Salary", AccountID: "acc-1", Paid: true},
	}
	transfers := []core.Transfer{
		{ID: "t1", Amount: amount("100"), Date: day(2026, 3, 10), FromAccountID: "acc-1", ToAccountID: "acc-2"},
	}
	accounts := []core.Account{
		{ID: "acc-1", Name: "Wallet"},
		{ID: "acc-2", Name: "Checking"},
	}
	return expenses, incomes, transfers, accounts
}

func TestUnifiedMonthFilterAndOrder(t *testing.T) {
	expenses, incomes, transfers, accounts := testData()

	items := Unified(expenses, incomes, transfers, accounts, Filter{Year: 2026, Month: time.March})

	if len(items) != 4 {
		t.Fatalf("items = %d, want 4 (April expense excluded)", len(items))
	}
	// Date descending: Mar 20, Mar 10, Mar 5, Mar 1.
	wantIDs := []string{"e2", "t1", "e1", "i1"}
	for i, want := range wantIDs {
		if items[i].ID != want {
			t.Errorf("items[%d].ID = %s, want %s", i, items[i].ID, want)
		}
	}

	if items[1].Description != "Transfer from Wallet to Checking" {
		t.Errorf("transfer description = %q", items[1].Description)
	}
}

func TestUnifiedAnnualView(t *testing.T) {
	expenses, incomes, transfers, accounts := testData()

	items := Unified(expenses, incomes, transfers, accounts, Filter{Year: 2026, Month: time.March, Annual: true})
	if len(items) != 5 {
		t.Errorf("annual items = %d, want 5", len(items))
	}
}

func TestUnifiedAccountFilterMatchesTransferEndpoints(t *testing.T) {
	expenses, incomes, transfers, accounts := testData()

	items := Unified(expenses, incomes, transfers, accounts, Filter{Year: 2026, Month: time.March, AccountID: "acc-2"})

	// acc-2 holds the cinema expense and receives the transfer.
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	for _, item := range items {
		if item.ID != "e2" && item.ID != "t1" {
			t.Errorf("unexpected item %s", item.ID)
		}
	}
}

func TestUnifiedSearchExemptsTransfers(t *testing.T) {
	expenses, incomes, transfers, accounts := testData()

	items := Unified(expenses, incomes, transfers, accounts, Filter{Year: 2026, Month: time.March, Search: "groc"})

	// Case-insensitive match on the expense plus the transfer, which is
	// never filtered by text.
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].ID != "t1" || items[1].ID != "e1" {
		t.Errorf("items = %s, %s", items[0].ID, items[1].ID)
	}
}

func TestUnifiedUnknownTransferAccount(t *testing.T) {
	transfers := []core.Transfer{
		{ID: "t1", Amount: amount("5"), Date: day(2026, 3, 1), FromAccountID: "gone", ToAccountID: "acc-1"},
	}
	accounts := []core.Account{{ID: "acc-1", Name: "Wallet"}}

	items := Unified(nil, nil, transfers, accounts, Filter{Year: 2026, Month: time.March})
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Description != "Transfer from N/A to Wallet" {
		t.Errorf("description = %q", items[0].Description)
	}
}

func TestMonthTotals(t *testing.T) {
	expenses, incomes, _, _ := testData()

	totals := MonthTotals(expenses, incomes, Filter{Year: 2026, Month: time.March})

	if !totals.Income.Equal(amount("2000")) {
		t.Errorf("income = %v, want 2000", totals.Income)
	}
	if !totals.Expense.Equal(amount("52")) {
		t.Errorf("expense = %v, want 52", totals.Expense)
	}
	if !totals.Balance.Equal(amount("1948")) {
		t.Errorf("balance = %v, want 1948", totals.Balance)
	}
}

func TestAnnualSummaryAlwaysTwelveMonths(t *testing.T) {
	expenses, incomes, _, _ := testData()

	months := AnnualSummary(expenses, incomes, 2026)
	if len(months) != 12 {
		t.Fatalf("months = %d, want 12", len(months))
	}

	march := months[2]
	if march.Month != time.March {
		t.Fatalf("months[2] = %v, want March", march.Month)
	}
	if !march.Income.Equal(amount("2000")) || !march.Expense.Equal(amount("52")) {
		t.Errorf("march = %+v", march)
	}

	april := months[3]
	if !april.Expense.Equal(amount("80")) || !april.Income.IsZero() {
		t.Errorf("april = %+v", april)
	}

	january := months[0]
	if !january.Income.IsZero() || !january.Expense.IsZero() || !january.Balance.IsZero() {
		t.Errorf("empty month not zeroed: %+v", january)
	}
}

func TestReminders(t *testing.T) {
	now := day(2026, 3, 10)
	expenses := []core.Transaction{
		{ID: "overdue", Description: "Rent", Amount: amount("700"), Date: day(2026, 3, 1)},
		{ID: "due-soon", Description: "Internet", Amount: amount("30"), Date: day(2026, 3, 15)},
		{ID: "edge", Description: "Gym", Amount: amount("25"), Date: day(2026, 3, 17)},
		{ID: "far", Description: "Car tax", Amount: amount("150"), Date: day(2026, 3, 18)},
		{ID: "paid", Description: "Phone", Amount: amount("20"), Date: day(2026, 3, 12), Paid: true},
	}

	due := Reminders(expenses, now)

	wantIDs := []string{"overdue", "due-soon", "edge"}
	if len(due) != len(wantIDs) {
		t.Fatalf("reminders = %d, want %d", len(due), len(wantIDs))
	}
	for i, want := range wantIDs {
		if due[i].ID != want {
			t.Errorf("due[%d] = %s, want %s", i, due[i].ID, want)
		}
	}
}
