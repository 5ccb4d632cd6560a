package amqp

import (
	"encoding/json"
	"fmt"

	"fintrack/internal/ledger"
)

// EncodeEvent converts a ledger event into a message body.
func EncodeEvent(event ledger.Event) ([]byte, error) {
	return json.Marshal(event)
}

// DecodeEvent parses a message body back into a ledger event.
func DecodeEvent(data []byte) (*ledger.Event, error) {
	var event ledger.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	if event.Op == "" {
		return nil, fmt.Errorf("missing op in ledger event")
	}
	return &event, nil
}
