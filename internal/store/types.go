package store

import (
	"context"
	"errors"
	"time"
)

// ErrStorageUnavailable is returned when the underlying database cannot be
// read or written.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Fact is a long-term assertion about the user extracted from conversation.
type Fact struct {
	ID          int64     `json:"id"`
	Category    string    `json:"category"`
	Content     string    `json:"content"`
	Confidence  float64   `json:"confidence_score"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Order selects how ListFacts sorts its results.
type Order int

const (
	// OrderMostRecentFirst sorts by id descending.
	OrderMostRecentFirst Order = iota
	// OrderInsertion sorts by id ascending.
	OrderInsertion
)

// ListOptions controls ListFacts. A Limit of zero or less returns every row.
type ListOptions struct {
	Order Order
	Limit int
}

// FactStore is the durable structured fact store.
type FactStore interface {
	AddFact(ctx context.Context, category, content string, confidence float64) (Fact, error)
	ListFacts(ctx context.Context, opts ListOptions) ([]Fact, error)
}

// ConfigStore persists key/value settings such as provider credentials.
type ConfigStore interface {
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)
}

// MemoryRow is a raw episodic memory record as persisted by the SQLite
// vector table. Ranking happens in the memory package.
type MemoryRow struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}
