package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

type (
	// Kind distinguishes the two transaction directions. The sign of a
	// transaction's balance effect is implied by its kind; Amount is
	// always a positive magnitude.
	Kind string

	// Account carries a denormalized running balance. The balance is a
	// cache maintained by the ledger coordinator, never recomputed on
	// read and never written by anything else.
	Account struct {
		ID        string          `json:"-"`
		Name      string          `json:"name"`
		Balance   decimal.Decimal `json:"balance"`
		CreatedAt time.Time       `json:"createdAt,omitempty"`
	}

	// Transaction is either an expense or an income, depending on the
	// collection it lives in. Incomes are settled at creation; the paid
	// flag on expenses is a reminder, not a debit trigger.
	Transaction struct {
		ID                  string          `json:"-"`
		Kind                Kind            `json:"-"`
		Description         string          `json:"description"`
		OriginalDescription string          `json:"originalDescription,omitempty"`
		Amount              decimal.Decimal `json:"amount"`
		Date                time.Time       `json:"date"`
		Category            string          `json:"category"`
		AccountID           string          `json:"accountId"`
		Paid                bool            `json:"isPaid"`
		Parent              bool            `json:"isParent,omitempty"`
		ParentID            string          `json:"parentId,omitempty"`
		CreatedAt           time.Time       `json:"createdAt,omitempty"`
	}

	// Transfer moves an amount between two distinct accounts.
	Transfer struct {
		ID            string          `json:"-"`
		Description   string          `json:"description,omitempty"`
		Amount        decimal.Decimal `json:"amount"`
		Date          time.Time       `json:"date"`
		FromAccountID string          `json:"fromAccountId"`
		ToAccountID   string          `json:"toAccountId"`
		CreatedAt     time.Time       `json:"createdAt,omitempty"`
	}

	// Category names a grouping for expenses or incomes. Transactions
	// reference categories by name, not by id.
	Category struct {
		ID        string    `json:"-"`
		Name      string    `json:"name"`
		Icon      string    `json:"icon,omitempty"`
		CreatedAt time.Time `json:"createdAt,omitempty"`
	}

	// Template is a prefilled transaction users can instantiate later.
	// Templates have no balance effect of their own.
	Template struct {
		ID          string          `json:"-"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		AccountID   string          `json:"accountId"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidKind      = errors.New("invalid transaction kind")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyName        = errors.New("empty name")
	ErrMissingAccount   = errors.New("missing account")
	ErrSameAccount      = errors.New("transfer source and destination accounts must differ")
)

func (k Kind) Valid() bool {
	switch k {
	case KindExpense, KindIncome:
		return true
	default:
		return false
	}
}

// Effect returns the signed balance delta of amount under kind: positive
// for incomes, negative for expenses.
func (k Kind) Effect(amount decimal.Decimal) decimal.Decimal {
	if k == KindIncome {
		return amount
	}
	return amount.Neg()
}

func (t Transaction) Validate() error {
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return ErrMissingAccount
	}
	return nil
}

func (t Transfer) Validate() error {
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(t.FromAccountID) == "" || strings.TrimSpace(t.ToAccountID) == "" {
		return ErrMissingAccount
	}
	if t.FromAccountID == t.ToAccountID {
		return ErrSameAccount
	}
	return nil
}

func (a Account) Validate() error {
	if len(strings.TrimSpace(a.Name)) == 0 {
		return ErrEmptyName
	}
	return nil
}

func (c Category) Validate() error {
	if len(strings.TrimSpace(c.Name)) == 0 {
		return ErrEmptyName
	}
	return nil
}

func (t Template) Validate() error {
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return ErrMissingAccount
	}
	return nil
}
