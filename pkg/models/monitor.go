package models

import (
	"encoding/json"
	"fmt"
)

// Monitor is one configured camera/source on the server. Identity is
// ID; Raw keeps the full server record for callers that need fields we
// do not model.
type Monitor struct {
	ID       int
	Name     string
	Function string
	Enabled  bool
	Raw      map[string]any
}

// monitorRecord carries the typed subset of the server's Monitor
// object.
type monitorRecord struct {
	ID       FlexInt `json:"Id"`
	Name     string  `json:"Name"`
	Function string  `json:"Function"`
	Enabled  FlexInt `json:"Enabled"`
}

// UnmarshalJSON accepts both the envelope shape the list endpoint
// returns ({"Monitor": {...}}) and a flat monitor object.
func (m *Monitor) UnmarshalJSON(b []byte) error {
	var envelope struct {
		Monitor json.RawMessage `json:"Monitor"`
	}
	body := b
	if err := json.Unmarshal(b, &envelope); err == nil && envelope.Monitor != nil {
		body = envelope.Monitor
	}

	var rec monitorRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return fmt.Errorf("monitor record: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("monitor record: %w", err)
	}

	m.ID = rec.ID.Int()
	m.Name = rec.Name
	m.Function = rec.Function
	m.Enabled = rec.Enabled != 0
	m.Raw = raw
	return nil
}
