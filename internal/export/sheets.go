// Package export mirrors ledger mutations into a Google Sheet, one row
// per event. The sheet is an audit trail, not a source of truth, so
// deletes and edits are appended as rows rather than applied in place.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/ledger"
)

type SheetAppender struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// NewSheetAppender builds the appender from service account
// credentials, either inline JSON or a file path.
func NewSheetAppender(ctx context.Context, spreadsheetID, sheetName, credentialsFile, credentialsJSON string) (*SheetAppender, error) {
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if sheetName == "" {
		return nil, errors.New("missing sheet name")
	}

	credentials := []byte(strings.TrimSpace(credentialsJSON))
	if len(credentials) == 0 {
		if credentialsFile == "" {
			return nil, errors.New("missing service account credentials")
		}
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentials = data
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &SheetAppender{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// AppendEvent adds one row for the event:
// timestamp, op, collection, id, kind, date, description, amount.
func (a *SheetAppender) AppendEvent(ctx context.Context, event *ledger.Event) error {
	if a.svc == nil {
		return errors.New("sheets service not initialized")
	}

	row := []any{
		event.Timestamp.Format("2006-01-02 15:04:05"),
		event.Op,
		event.Collection,
		event.ID,
		event.Kind,
		event.Date.Format("2006-01-02"),
		event.Description,
		event.Amount.String(),
	}

	rng := fmt.Sprintf("%s!A:H", a.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{row}}

	_, err := a.svc.Spreadsheets.Values.Append(a.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to sheet %s: %w", a.sheetName, err)
	}

	return nil
}
