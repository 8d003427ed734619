// Package persona holds the three prompt-driven behaviors that sit on top of
// the memory gateway: the archivist, the interviewer and the dreamer.
package persona

import (
	"context"

	"github.com/felixgeelhaar/dreamer/internal/gateway"
	"github.com/felixgeelhaar/dreamer/internal/memory"
	"github.com/felixgeelhaar/dreamer/internal/store"
)

// Memory is the slice of the gateway the personas read from.
type Memory interface {
	Recall(ctx context.Context, query string, n int) []memory.Result
	RecentFacts(ctx context.Context, n int) ([]store.Fact, error)
	AllFacts(ctx context.Context) ([]store.Fact, error)
}

var _ Memory = (*gateway.Gateway)(nil)
