package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/docstore"
)

const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
)

// Event describes one committed record mutation. Events are emitted
// after the batch lands and carry enough data for downstream consumers
// (the spreadsheet exporter) to act without a read back.
type Event struct {
	Op          string               `json:"op"`
	Collection  docstore.Collection  `json:"collection"`
	ID          string               `json:"id"`
	Kind        core.Kind            `json:"kind,omitempty"`
	Description string               `json:"description,omitempty"`
	Amount      decimal.Decimal      `json:"amount"`
	Date        time.Time            `json:"date"`
	Timestamp   time.Time            `json:"timestamp"`
}

// Publisher delivers ledger events to interested consumers. Delivery is
// best effort: a failed publish never rolls back the mutation.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, ev Event) error
}
