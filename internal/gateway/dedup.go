package gateway

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/dreamer/internal/store"
)

// Deduplicator decides which extracted facts are new enough to insert.
type Deduplicator interface {
	Filter(ctx context.Context, facts store.FactStore, candidates []store.Fact) ([]store.Fact, error)
}

// Accumulate inserts every candidate.
type Accumulate struct{}

func (Accumulate) Filter(_ context.Context, _ store.FactStore, candidates []store.Fact) ([]store.Fact, error) {
	return candidates, nil
}

// ExactMatch drops candidates whose category and content already exist,
// ignoring case and surrounding whitespace. Duplicates within the same
// batch are dropped too.
type ExactMatch struct{}

func (ExactMatch) Filter(ctx context.Context, facts store.FactStore, candidates []store.Fact) ([]store.Fact, error) {
	existing, err := facts.ListFacts(ctx, store.ListOptions{Order: store.OrderInsertion})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(existing)+len(candidates))
	for _, f := range existing {
		seen[factKey(f)] = true
	}

	var out []store.Fact
	for _, c := range candidates {
		k := factKey(c)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out, nil
}

func factKey(f store.Fact) string {
	return strings.ToLower(strings.TrimSpace(f.Category)) + "\x00" + strings.ToLower(strings.TrimSpace(f.Content))
}

// NewDeduplicator maps a config name ("none", "exact") to a policy.
func NewDeduplicator(name string) Deduplicator {
	if strings.EqualFold(name, "exact") {
		return ExactMatch{}
	}
	return Accumulate{}
}
