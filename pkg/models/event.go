package models

import (
	"encoding/json"
	"fmt"
)

// Event is one recorded incident. Timestamps are kept in the server's
// own format ("2006-01-02 15:04:05"); EndTime is empty while the event
// is still in progress.
type Event struct {
	ID          int64
	MonitorID   int
	StartTime   string
	EndTime     string
	Cause       string
	Notes       string
	Frames      int64
	AlarmFrames int64
	Raw         map[string]any
}

type eventRecord struct {
	ID          FlexInt `json:"Id"`
	MonitorID   FlexInt `json:"MonitorId"`
	StartTime   string  `json:"StartTime"`
	EndTime     string  `json:"EndTime"`
	Cause       string  `json:"Cause"`
	Notes       string  `json:"Notes"`
	Frames      FlexInt `json:"Frames"`
	AlarmFrames FlexInt `json:"AlarmFrames"`
}

// UnmarshalJSON normalizes the two shapes the server is known to emit:
// the list endpoint nests each record under an "Event" key, other
// responses return the record flat.
func (e *Event) UnmarshalJSON(b []byte) error {
	var envelope struct {
		Event json.RawMessage `json:"Event"`
	}
	body := b
	if err := json.Unmarshal(b, &envelope); err == nil && envelope.Event != nil {
		body = envelope.Event
	}

	var rec eventRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return fmt.Errorf("event record: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("event record: %w", err)
	}

	e.ID = rec.ID.Int64()
	e.MonitorID = rec.MonitorID.Int()
	e.StartTime = rec.StartTime
	e.EndTime = rec.EndTime
	e.Cause = rec.Cause
	e.Notes = rec.Notes
	e.Frames = rec.Frames.Int64()
	e.AlarmFrames = rec.AlarmFrames.Int64()
	e.Raw = raw
	return nil
}

// Pagination is the cursor block the events endpoint returns.
type Pagination struct {
	Count     FlexInt `json:"count"`
	PageCount FlexInt `json:"pageCount"`
}
