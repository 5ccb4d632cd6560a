package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/docstore"
	"fintrack/internal/docstore/memory"
)

var testDate = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*Coordinator, *memory.Store) {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { store.Close() })
	return New(store, nil), store
}

func seedAccounts(t *testing.T, store *memory.Store, names ...string) []core.Account {
	t.Helper()
	ctx := context.Background()
	accounts := make([]core.Account, 0, len(names))
	for _, name := range names {
		a := core.Account{Name: name, Balance: decimal.Zero}
		id, err := store.Add(ctx, docstore.Accounts, a)
		if err != nil {
			t.Fatalf("seed account %s: %v", name, err)
		}
		a.ID = id
		accounts = append(accounts, a)
	}
	return accounts
}

func fetchAccounts(t *testing.T, store *memory.Store) []core.Account {
	t.Helper()
	docs := fetchDocuments(t, store, docstore.Accounts)
	out := make([]core.Account, 0, len(docs))
	for _, doc := range docs {
		var a core.Account
		if err := doc.Decode(&a); err != nil {
			t.Fatalf("decode account %s: %v", doc.ID, err)
		}
		a.ID = doc.ID
		out = append(out, a)
	}
	return out
}

func fetchTransactions(t *testing.T, store *memory.Store, col docstore.Collection) []core.Transaction {
	t.Helper()
	kind := core.KindExpense
	if col == docstore.Incomes {
		kind = core.KindIncome
	}
	docs := fetchDocuments(t, store, col)
	out := make([]core.Transaction, 0, len(docs))
	for _, doc := range docs {
		var tx core.Transaction
		if err := doc.Decode(&tx); err != nil {
			t.Fatalf("decode transaction %s: %v", doc.ID, err)
		}
		tx.ID = doc.ID
		tx.Kind = kind
		out = append(out, tx)
	}
	return out
}

func fetchDocuments(t *testing.T, store *memory.Store, col docstore.Collection) []docstore.Document {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snaps, err := store.Watch(ctx, col)
	if err != nil {
		t.Fatalf("watch %s: %v", col, err)
	}
	select {
	case docs := <-snaps:
		return docs
	case <-time.After(time.Second):
		t.Fatalf("timed out reading %s snapshot", col)
		return nil
	}
}

func balanceOf(t *testing.T, store *memory.Store, id string) decimal.Decimal {
	t.Helper()
	for _, a := range fetchAccounts(t, store) {
		if a.ID == id {
			return a.Balance
		}
	}
	t.Fatalf("account %s not found", id)
	return decimal.Zero
}

func expectBalance(t *testing.T, store *memory.Store, id, want string) {
	t.Helper()
	got := balanceOf(t, store, id)
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("account %s balance = %v, want %v", id, got, want)
	}
}

func expense(account string, amount string) core.Transaction {
	return core.Transaction{
		Kind:        core.KindExpense,
		Description: "test expense",
		Amount:      decimal.RequireFromString(amount),
		Date:        testDate,
		Category:    "Other",
		AccountID:   account,
		Paid:        true,
	}
}

func income(account string, amount string) core.Transaction {
	return core.Transaction{
		Kind:        core.KindIncome,
		Description: "test income",
		Amount:      decimal.RequireFromString(amount),
		Date:        testDate,
		Category:    "Salary",
		AccountID:   account,
	}
}

func TestCreateTransactionMovesBalance(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "Wallet")

	if _, err := coord.CreateTransaction(ctx, expense(accounts[0].ID, "25.50"), accounts); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	expectBalance(t, store, accounts[0].ID, "-25.50")

	accounts = fetchAccounts(t, store)
	if _, err := coord.CreateTransaction(ctx, income(accounts[0].ID, "100"), accounts); err != nil {
		t.Fatalf("create income: %v", err)
	}
	expectBalance(t, store, accounts[0].ID, "74.50")
}

func TestCreateTransactionUnknownAccount(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "Wallet")

	_, err := coord.CreateTransaction(ctx, expense("ghost", "10"), accounts)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("create = %v, want ErrAccountNotFound", err)
	}
	if docs := fetchDocuments(t, store, docstore.Expenses); len(docs) != 0 {
		t.Errorf("rejected create still wrote %d expenses", len(docs))
	}
	expectBalance(t, store, accounts[0].ID, "0")
}

func TestIncomeForcedPaid(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "Wallet")

	in := income(accounts[0].ID, "10")
	in.Paid = false
	if _, err := coord.CreateTransaction(ctx, in, accounts); err != nil {
		t.Fatalf("create income: %v", err)
	}

	stored := fetchTransactions(t, store, docstore.Incomes)
	if len(stored) != 1 || !stored[0].Paid {
		t.Errorf("income stored as unpaid: %+v", stored)
	}
}

func TestUpdateTransactionSameAccountDelta(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "Wallet")

	if _, err := coord.CreateTransaction(ctx, expense(accounts[0].ID, "100"), accounts); err != nil {
		t.Fatalf("create: %v", err)
	}

	prev := fetchTransactions(t, store, docstore.Expenses)[0]
	next := prev
	next.Amount = decimal.RequireFromString("150")

	if err := coord.UpdateTransaction(ctx, prev, next, fetchAccounts(t, store)); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Expense grown by 50: balance moves by sign * (new - old) = -50.
	expectBalance(t, store, accounts[0].ID, "-150")

	stored := fetchTransactions(t, store, docstore.Expenses)[0]
	if !stored.Amount.Equal(next.Amount) {
		t.Errorf("stored amount = %v, want 150", stored.Amount)
	}
}

func TestUpdateTransactionMovedAccount(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "X", "Y")
	x, y := accounts[0], accounts[1]

	if _, err := coord.CreateTransaction(ctx, expense(x.ID, "100"), accounts); err != nil {
		t.Fatalf("create: %v", err)
	}

	prev := fetchTransactions(t, store, docstore.Expenses)[0]
	next := prev
	next.Amount = decimal.RequireFromString("150")
	next.AccountID = y.ID

	if err := coord.UpdateTransaction(ctx, prev, next, fetchAccounts(t, store)); err != nil {
		t.Fatalf("update: %v", err)
	}

	// The $100 debit is reverted on X and a $150 debit applied on Y.
	expectBalance(t, store, x.ID, "0")
	expectBalance(t, store, y.ID, "-150")
}

func TestDeleteTransactionReversesEffect(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "Wallet")

	if _, err := coord.CreateTransaction(ctx, income(accounts[0].ID, "80"), accounts); err != nil {
		t.Fatalf("create: %v", err)
	}
	tx := fetchTransactions(t, store, docstore.Incomes)[0]

	if err := coord.DeleteTransaction(ctx, tx, fetchAccounts(t, store)); err != nil {
		t.Fatalf("delete: %v", err)
	}

	expectBalance(t, store, accounts[0].ID, "0")
	if docs := fetchDocuments(t, store, docstore.Incomes); len(docs) != 0 {
		t.Errorf("income still present after delete")
	}
}

func TestDeleteRecreateRoundTrip(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "Wallet")

	if _, err := coord.CreateTransaction(ctx, expense(accounts[0].ID, "33.33"), accounts); err != nil {
		t.Fatalf("create: %v", err)
	}
	tx := fetchTransactions(t, store, docstore.Expenses)[0]

	if err := coord.DeleteTransaction(ctx, tx, fetchAccounts(t, store)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := coord.CreateTransaction(ctx, expense(accounts[0].ID, "33.33"), fetchAccounts(t, store)); err != nil {
		t.Fatalf("recreate: %v", err)
	}

	expectBalance(t, store, accounts[0].ID, "-33.33")
}

func TestTransferRoundTrip(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "From", "To")
	from, to := accounts[0], accounts[1]

	tr := core.Transfer{
		Amount:        decimal.RequireFromString("50"),
		Date:          testDate,
		FromAccountID: from.ID,
		ToAccountID:   to.ID,
	}
	id, err := coord.CreateTransfer(ctx, tr, accounts)
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}
	expectBalance(t, store, from.ID, "-50")
	expectBalance(t, store, to.ID, "50")

	tr.ID = id
	if err := coord.DeleteTransfer(ctx, tr, fetchAccounts(t, store)); err != nil {
		t.Fatalf("delete transfer: %v", err)
	}
	expectBalance(t, store, from.ID, "0")
	expectBalance(t, store, to.ID, "0")
}

func TestTransferSameAccountRejectedWithoutWrites(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "Wallet")

	tr := core.Transfer{
		Amount:        decimal.RequireFromString("10"),
		Date:          testDate,
		FromAccountID: accounts[0].ID,
		ToAccountID:   accounts[0].ID,
	}
	if _, err := coord.CreateTransfer(ctx, tr, accounts); !errors.Is(err, core.ErrSameAccount) {
		t.Fatalf("create = %v, want ErrSameAccount", err)
	}

	if docs := fetchDocuments(t, store, docstore.Transfers); len(docs) != 0 {
		t.Errorf("rejected transfer still wrote %d records", len(docs))
	}
	expectBalance(t, store, accounts[0].ID, "0")
}

func TestSetExpensePaidIsBalanceNeutral(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "Wallet")

	unpaid := expense(accounts[0].ID, "40")
	unpaid.Paid = false
	if _, err := coord.CreateTransaction(ctx, unpaid, accounts); err != nil {
		t.Fatalf("create: %v", err)
	}
	tx := fetchTransactions(t, store, docstore.Expenses)[0]

	if err := coord.SetExpensePaid(ctx, tx.ID, true); err != nil {
		t.Fatalf("set paid: %v", err)
	}

	stored := fetchTransactions(t, store, docstore.Expenses)[0]
	if !stored.Paid {
		t.Error("expense still unpaid after SetExpensePaid")
	}
	expectBalance(t, store, accounts[0].ID, "-40")
}

func TestBulkDeleteConsolidatesAccountUpdates(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "X", "Y")
	x, y := accounts[0], accounts[1]

	if _, err := coord.CreateTransaction(ctx, expense(x.ID, "20"), fetchAccounts(t, store)); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if _, err := coord.CreateTransaction(ctx, income(x.ID, "30"), fetchAccounts(t, store)); err != nil {
		t.Fatalf("create income: %v", err)
	}
	trID, err := coord.CreateTransfer(ctx, core.Transfer{
		Amount:        decimal.RequireFromString("10"),
		Date:          testDate,
		FromAccountID: x.ID,
		ToAccountID:   y.ID,
	}, fetchAccounts(t, store))
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	// X holds -20 +30 -10 = 0, Y holds +10.
	expectBalance(t, store, x.ID, "0")
	expectBalance(t, store, y.ID, "10")

	txs := append(fetchTransactions(t, store, docstore.Expenses),
		fetchTransactions(t, store, docstore.Incomes)...)
	transfers := []core.Transfer{{
		ID:            trID,
		Amount:        decimal.RequireFromString("10"),
		FromAccountID: x.ID,
		ToAccountID:   y.ID,
	}}

	if err := coord.BulkDelete(ctx, txs, transfers, fetchAccounts(t, store)); err != nil {
		t.Fatalf("bulk delete: %v", err)
	}

	// Deleting everything reverses every effect: X gets +20 -30 +10 in
	// one consolidated update, Y gets -10.
	expectBalance(t, store, x.ID, "0")
	expectBalance(t, store, y.ID, "0")

	for _, col := range []docstore.Collection{docstore.Expenses, docstore.Incomes, docstore.Transfers} {
		if docs := fetchDocuments(t, store, col); len(docs) != 0 {
			t.Errorf("%s still holds %d records after bulk delete", col, len(docs))
		}
	}
}

func TestBulkSetPaidSkipsUnknownIDs(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "Wallet")

	unpaid := expense(accounts[0].ID, "10")
	unpaid.Paid = false
	if _, err := coord.CreateTransaction(ctx, unpaid, accounts); err != nil {
		t.Fatalf("create: %v", err)
	}
	expenses := fetchTransactions(t, store, docstore.Expenses)

	updated, err := coord.BulkSetPaid(ctx, []string{expenses[0].ID, "ghost"}, true, expenses)
	if err != nil {
		t.Fatalf("bulk set paid: %v", err)
	}
	if updated != 1 {
		t.Errorf("updated = %d, want 1", updated)
	}

	if stored := fetchTransactions(t, store, docstore.Expenses)[0]; !stored.Paid {
		t.Error("expense still unpaid after bulk update")
	}
}

func TestBulkSetPaidNoKnownIDs(t *testing.T) {
	ctx := context.Background()
	coord, _ := newTestLedger(t)

	updated, err := coord.BulkSetPaid(ctx, []string{"ghost"}, true, nil)
	if err != nil {
		t.Fatalf("bulk set paid: %v", err)
	}
	if updated != 0 {
		t.Errorf("updated = %d, want 0", updated)
	}
}

func TestExpandInstallments(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "Wallet")

	parent := expense(accounts[0].ID, "90")
	parent.Description = "Fridge"
	if _, err := coord.CreateTransaction(ctx, parent, accounts); err != nil {
		t.Fatalf("create: %v", err)
	}
	created := fetchTransactions(t, store, docstore.Expenses)[0]

	if err := coord.ExpandInstallments(ctx, created, 3); err != nil {
		t.Fatalf("expand: %v", err)
	}

	expenses := fetchTransactions(t, store, docstore.Expenses)
	if len(expenses) != 3 {
		t.Fatalf("expenses = %d, want 3", len(expenses))
	}

	byDescription := map[string]core.Transaction{}
	for _, e := range expenses {
		byDescription[e.Description] = e
	}

	first, ok := byDescription["Fridge (1/3)"]
	if !ok {
		t.Fatalf("parent not renamed: %v", keys(byDescription))
	}
	if !first.Parent || first.OriginalDescription != "Fridge" {
		t.Errorf("parent flags = %+v", first)
	}

	for i := 2; i <= 3; i++ {
		name := fmt.Sprintf("Fridge (%d/3)", i)
		sibling, ok := byDescription[name]
		if !ok {
			t.Fatalf("missing installment %q", name)
		}
		if sibling.Paid {
			t.Errorf("%s stored as paid", name)
		}
		if sibling.ParentID != created.ID {
			t.Errorf("%s parentId = %q, want %q", name, sibling.ParentID, created.ID)
		}
		wantDate := testDate.AddDate(0, i-1, 0)
		if !sibling.Date.Equal(wantDate) {
			t.Errorf("%s date = %v, want %v", name, sibling.Date, wantDate)
		}
		if !sibling.Amount.Equal(created.Amount) {
			t.Errorf("%s amount = %v, want %v", name, sibling.Amount, created.Amount)
		}
	}

	// Expansion never touches the balance: only the original debit counts.
	expectBalance(t, store, accounts[0].ID, "-90")
}

func TestExpandInstallmentsGuards(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "Wallet")

	if _, err := coord.CreateTransaction(ctx, income(accounts[0].ID, "10"), accounts); err != nil {
		t.Fatalf("create income: %v", err)
	}
	in := fetchTransactions(t, store, docstore.Incomes)[0]
	if err := coord.ExpandInstallments(ctx, in, 3); !errors.Is(err, ErrNotExpense) {
		t.Errorf("expand income = %v, want ErrNotExpense", err)
	}

	if _, err := coord.CreateTransaction(ctx, expense(accounts[0].ID, "10"), fetchAccounts(t, store)); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	exp := fetchTransactions(t, store, docstore.Expenses)[0]
	if err := coord.ExpandInstallments(ctx, exp, 1); !errors.Is(err, ErrInstallmentCount) {
		t.Errorf("expand count=1 = %v, want ErrInstallmentCount", err)
	}
}

// Replay check: after a random-ish mutation sequence the stored balance
// must equal the sum of effects of the surviving records.
func TestBalanceMatchesReplayedEffects(t *testing.T) {
	ctx := context.Background()
	coord, store := newTestLedger(t)
	accounts := seedAccounts(t, store, "A", "B")
	a, b := accounts[0], accounts[1]

	amounts := []string{"12.34", "5", "99.99", "0.01", "47.50"}
	for i, amt := range amounts {
		var tx core.Transaction
		if i%2 == 0 {
			tx = expense(a.ID, amt)
		} else {
			tx = income(b.ID, amt)
		}
		if _, err := coord.CreateTransaction(ctx, tx, fetchAccounts(t, store)); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := coord.CreateTransfer(ctx, core.Transfer{
		Amount: decimal.RequireFromString("20"), Date: testDate,
		FromAccountID: b.ID, ToAccountID: a.ID,
	}, fetchAccounts(t, store)); err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	// Delete one expense, edit one income.
	expenses := fetchTransactions(t, store, docstore.Expenses)
	if err := coord.DeleteTransaction(ctx, expenses[0], fetchAccounts(t, store)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	incomes := fetchTransactions(t, store, docstore.Incomes)
	edited := incomes[0]
	edited.Amount = edited.Amount.Add(decimal.RequireFromString("3"))
	if err := coord.UpdateTransaction(ctx, incomes[0], edited, fetchAccounts(t, store)); err != nil {
		t.Fatalf("update: %v", err)
	}

	replayed := map[string]decimal.Decimal{a.ID: decimal.Zero, b.ID: decimal.Zero}
	for _, tx := range fetchTransactions(t, store, docstore.Expenses) {
		replayed[tx.AccountID] = replayed[tx.AccountID].Add(tx.Kind.Effect(tx.Amount))
	}
	for _, tx := range fetchTransactions(t, store, docstore.Incomes) {
		replayed[tx.AccountID] = replayed[tx.AccountID].Add(tx.Kind.Effect(tx.Amount))
	}
	for _, doc := range fetchDocuments(t, store, docstore.Transfers) {
		var tr core.Transfer
		if err := doc.Decode(&tr); err != nil {
			t.Fatalf("decode transfer: %v", err)
		}
		replayed[tr.FromAccountID] = replayed[tr.FromAccountID].Sub(tr.Amount)
		replayed[tr.ToAccountID] = replayed[tr.ToAccountID].Add(tr.Amount)
	}

	for _, account := range fetchAccounts(t, store) {
		if !account.Balance.Equal(replayed[account.ID]) {
			t.Errorf("account %s balance = %v, replay says %v", account.Name, account.Balance, replayed[account.ID])
		}
	}
}

func keys(m map[string]core.Transaction) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
