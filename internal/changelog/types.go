package changelog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Operation string

const (
	OpCreated Operation = "created"
	OpUpdated Operation = "updated"
	OpDeleted Operation = "deleted"
)

// Entry is one audited mutation. Before is set for updates and deletes,
// After for creates and updates. Before is absent when the prior record
// could not be decoded.
type Entry struct {
	Sequence   int             `json:"sequence"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	Operation  Operation       `json:"operation"`
	Actor      string          `json:"actor,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	PrevHash   string          `json:"prev_hash"`
	Hash       string          `json:"hash"`
}

type VerifyResult struct {
	Valid      bool
	EntryCount int
	ChainTip   string
	Error      string
}
