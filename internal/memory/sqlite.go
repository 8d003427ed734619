package memory

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/felixgeelhaar/dreamer/internal/store"
)

// RowStore is the persistence SQLiteIndex needs; *store.SQLiteStore
// implements it.
type RowStore interface {
	PutMemory(ctx context.Context, row store.MemoryRow) error
	ListMemories(ctx context.Context) ([]store.MemoryRow, error)
	CountMemories(ctx context.Context) (int, error)
}

// SQLiteIndex keeps memories in the SQLite database alongside facts and
// ranks them by brute-force cosine similarity. Suitable for small
// single-user corpora.
type SQLiteIndex struct {
	rows     RowStore
	embedder Embedder
	ids      *idAssigner
}

func NewSQLiteIndex(rows RowStore, embedder Embedder, opts Options) *SQLiteIndex {
	return &SQLiteIndex{
		rows:     rows,
		embedder: embedder,
		ids:      &idAssigner{mode: opts.IDMode},
	}
}

func (s *SQLiteIndex) AddMemory(ctx context.Context, content string, metadata map[string]string) (string, error) {
	count := func() (int, error) { return s.rows.CountMemories(ctx) }
	return s.ids.assign(metadata, count, func(id string) error {
		vec, err := s.embedder.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
		}
		return s.rows.PutMemory(ctx, store.MemoryRow{
			ID:        id,
			Content:   content,
			Metadata:  copyMetadata(metadata),
			Embedding: vec,
		})
	})
}

func (s *SQLiteIndex) SearchMemories(ctx context.Context, query string, n int) ([]Result, error) {
	if n <= 0 {
		return []Result{}, nil
	}

	all, err := s.rows.ListMemories(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(all) == 0 {
		return []Result{}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	results := make([]Result, 0, len(all))
	for _, r := range all {
		results = append(results, Result{
			ID:       r.ID,
			Document: r.Content,
			Metadata: r.Metadata,
			Distance: 1 - cosineSimilarity(vec, r.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	return results[:clampResults(n, len(results))], nil
}

// Count reports zero when the store cannot be read.
func (s *SQLiteIndex) Count() int {
	n, err := s.rows.CountMemories(context.Background())
	if err != nil {
		return 0
	}
	return n
}

// Close does not close the shared store.
func (s *SQLiteIndex) Close() error {
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot, magA, magB float32
	for i := 0; i < len(a); i++ {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0.0
	}
	return dot / (float32(math.Sqrt(float64(magA))) * float32(math.Sqrt(float64(magB))))
}
