// Package gateway is the single point through which personas read and write
// both the fact store and the episodic memory index.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/dreamer/internal/memory"
	"github.com/felixgeelhaar/dreamer/internal/observe"
	"github.com/felixgeelhaar/dreamer/internal/store"
)

const (
	RoleUser = "user"
	RoleAI   = "ai"
)

// NoFacts is the summary handed downstream when the store is empty.
const NoFacts = "No facts known yet."

// Style selects how FormatFacts renders a fact.
type Style int

const (
	// StyleBracketed renders "- [Category] content".
	StyleBracketed Style = iota
	// StyleColon renders "- Category: content".
	StyleColon
)

// Gateway unifies access to the fact store and the memory index.
type Gateway struct {
	facts store.FactStore
	index memory.Index
	dedup Deduplicator
	obs   *observe.Observer
	now   func() time.Time
}

type Option func(*Gateway)

// WithDeduplicator sets the policy SaveFacts applies to candidates.
func WithDeduplicator(d Deduplicator) Option {
	return func(g *Gateway) {
		if d != nil {
			g.dedup = d
		}
	}
}

func WithObserver(o *observe.Observer) Option {
	return func(g *Gateway) {
		if o != nil {
			g.obs = o
		}
	}
}

func New(facts store.FactStore, index memory.Index, opts ...Option) *Gateway {
	g := &Gateway{
		facts: facts,
		index: index,
		dedup: Accumulate{},
		obs:   observe.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RecordTurn stores one chat turn tagged with its role and a UTC timestamp.
func (g *Gateway) RecordTurn(ctx context.Context, text, role string) (string, error) {
	meta := map[string]string{
		"role":      role,
		"timestamp": g.now().UTC().Format(time.RFC3339),
	}
	id, err := g.index.AddMemory(ctx, text, meta)
	if err != nil {
		return "", fmt.Errorf("failed to record %s turn: %w", role, err)
	}
	return id, nil
}

// Recall returns up to n snippets similar to query. Search failures are
// logged and reported as an empty result so conversation never stalls on
// missing context.
func (g *Gateway) Recall(ctx context.Context, query string, n int) []memory.Result {
	res, err := g.index.SearchMemories(ctx, query, n)
	if err != nil {
		g.obs.Log().Warn().Err(err).Str("query", query).Msg("memory search failed, continuing without context")
		return []memory.Result{}
	}
	if res == nil {
		return []memory.Result{}
	}
	return res
}

// RecentFacts returns the n most recently added facts, newest first.
func (g *Gateway) RecentFacts(ctx context.Context, n int) ([]store.Fact, error) {
	return g.facts.ListFacts(ctx, store.ListOptions{Order: store.OrderMostRecentFirst, Limit: n})
}

// AllFacts returns every fact in insertion order.
func (g *Gateway) AllFacts(ctx context.Context) ([]store.Fact, error) {
	return g.facts.ListFacts(ctx, store.ListOptions{Order: store.OrderInsertion})
}

// SaveFacts inserts the candidates the deduplicator lets through and
// returns how many were written. It stops at the first storage error.
func (g *Gateway) SaveFacts(ctx context.Context, candidates []store.Fact) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	keep, err := g.dedup.Filter(ctx, g.facts, candidates)
	if err != nil {
		return 0, fmt.Errorf("failed to deduplicate facts: %w", err)
	}

	saved := 0
	for _, f := range keep {
		if _, err := g.facts.AddFact(ctx, f.Category, f.Content, f.Confidence); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// FormatFacts renders one line per fact, or NoFacts when there are none.
func FormatFacts(facts []store.Fact, style Style) string {
	if len(facts) == 0 {
		return NoFacts
	}
	lines := make([]string, 0, len(facts))
	for _, f := range facts {
		if style == StyleColon {
			lines = append(lines, fmt.Sprintf("- %s: %s", f.Category, f.Content))
		} else {
			lines = append(lines, fmt.Sprintf("- [%s] %s", f.Category, f.Content))
		}
	}
	return strings.Join(lines, "\n")
}

// FormatSnippets renders each recalled document as a "- " line.
func FormatSnippets(results []memory.Result) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, "- "+r.Document)
	}
	return strings.Join(lines, "\n")
}
