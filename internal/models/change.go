package models

import (
	"encoding/json"
	"fmt"
)

// ChangeOp is the kind of row change carried by a notification
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
	ChangeDelete ChangeOp = "DELETE"
)

// ChangeEvent is one decoded change notification from the store. Row holds
// the new row payload (old row for deletes) and is decoded into a typed
// struct by the consumer that knows the table.
type ChangeEvent struct {
	Schema string          `json:"schema"`
	Table  string          `json:"table"`
	Op     ChangeOp        `json:"op"`
	Row    json.RawMessage `json:"row"`
}

// DecodeChangeEvent parses a raw notification payload. Payloads with an
// unknown op or missing table are rejected rather than silently propagated.
func DecodeChangeEvent(payload []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("failed to decode change event: %w", err)
	}

	if ev.Table == "" {
		return ChangeEvent{}, fmt.Errorf("change event missing table")
	}
	switch ev.Op {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
	default:
		return ChangeEvent{}, fmt.Errorf("unknown change op %q", ev.Op)
	}
	if ev.Schema == "" {
		ev.Schema = "public"
	}

	return ev, nil
}

// GrantRow decodes the payload row as a share grant
func (ev ChangeEvent) GrantRow() (ShareGrant, error) {
	var row struct {
		ID       string `json:"id"`
		OwnerID  string `json:"owner_id"`
		ViewerID string `json:"viewer_id"`
		IsActive bool   `json:"is_active"`
	}
	if err := json.Unmarshal(ev.Row, &row); err != nil {
		return ShareGrant{}, fmt.Errorf("failed to decode grant row: %w", err)
	}
	return ShareGrant{
		ID:       row.ID,
		OwnerID:  row.OwnerID,
		ViewerID: row.ViewerID,
		IsActive: row.IsActive,
	}, nil
}

// WindowOwnerID decodes just the owner id from an availability window row
func (ev ChangeEvent) WindowOwnerID() (string, error) {
	var row struct {
		OwnerID string `json:"owner_id"`
	}
	if err := json.Unmarshal(ev.Row, &row); err != nil {
		return "", fmt.Errorf("failed to decode window row: %w", err)
	}
	if row.OwnerID == "" {
		return "", fmt.Errorf("window row missing owner id")
	}
	return row.OwnerID, nil
}
