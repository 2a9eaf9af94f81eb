package changelog

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Log is an append-only, hash-chained trail of mutations for one session.
// Entries are never modified after Append; Clear drops all of them and
// restarts the chain.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	chainTip string
	now      func() time.Time
}

type Option func(*Log)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

func New(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append fills in sequence, timestamp and hashes and returns the stored
// entry. Sensitive fields are stripped from Before and After.
func (l *Log) Append(entry Entry) (Entry, error) {
	if strings.TrimSpace(entry.EntityType) == "" {
		return Entry{}, fmt.Errorf("append change: entity type is required")
	}
	switch entry.Operation {
	case OpCreated, OpUpdated, OpDeleted:
	default:
		return Entry{}, fmt.Errorf("append change: unknown operation %q", entry.Operation)
	}

	var err error
	if entry.Before, err = sanitizePayload(entry.Before); err != nil {
		return Entry{}, fmt.Errorf("append change: before: %w", err)
	}
	if entry.After, err = sanitizePayload(entry.After); err != nil {
		return Entry{}, fmt.Errorf("append change: after: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	entry.Timestamp = entry.Timestamp.UTC()
	entry.Sequence = len(l.entries) + 1
	entry.PrevHash = l.chainTip

	payload, err := chainPayload(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("append change: %w", err)
	}
	entry.Hash = chainHashHex(l.chainTip, payload)

	l.entries = append(l.entries, entry)
	l.chainTip = entry.Hash
	return entry, nil
}

// Entries returns a copy of the log in append order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	for i, entry := range l.entries {
		entry.Before = slices.Clone(entry.Before)
		entry.After = slices.Clone(entry.After)
		out[i] = entry
	}
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.chainTip = ""
}

func (l *Log) Verify() VerifyResult {
	return VerifyEntries(l.Entries())
}

// VerifyEntries recomputes the hash chain over entries, for example after
// they were exported and read back.
func VerifyEntries(entries []Entry) VerifyResult {
	prev := ""
	for _, entry := range entries {
		payload, err := chainPayload(entry)
		if err != nil {
			return VerifyResult{EntryCount: len(entries), ChainTip: prev, Error: fmt.Sprintf("entry %d: %v", entry.Sequence, err)}
		}
		expected := chainHashHex(prev, payload)
		if subtle.ConstantTimeCompare([]byte(entry.PrevHash), []byte(prev)) != 1 ||
			subtle.ConstantTimeCompare([]byte(entry.Hash), []byte(expected)) != 1 {
			return VerifyResult{
				EntryCount: len(entries),
				ChainTip:   prev,
				Error:      fmt.Sprintf("hash mismatch at entry %d", entry.Sequence),
			}
		}
		prev = entry.Hash
	}
	return VerifyResult{Valid: true, EntryCount: len(entries), ChainTip: prev}
}

type chainEntry struct {
	Sequence   int             `json:"sequence"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Operation  string          `json:"operation"`
	Actor      string          `json:"actor,omitempty"`
	Timestamp  string          `json:"timestamp"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

func chainPayload(entry Entry) ([]byte, error) {
	return canonicalJSON(chainEntry{
		Sequence:   entry.Sequence,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID.String(),
		Operation:  string(entry.Operation),
		Actor:      entry.Actor,
		Timestamp:  entry.Timestamp.UTC().Format(time.RFC3339Nano),
		Before:     entry.Before,
		After:      entry.After,
	})
}

func chainHashHex(prevHash string, canonicalPayload []byte) string {
	input := append([]byte(prevHash), canonicalPayload...)
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}
