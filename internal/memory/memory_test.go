package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/felixgeelhaar/dreamer/internal/memory/mock"
	"github.com/felixgeelhaar/dreamer/internal/store"
)

type indexFactory func(t *testing.T, e Embedder, opts Options) Index

func backends() map[string]indexFactory {
	return map[string]indexFactory{
		"chromem": func(t *testing.T, e Embedder, opts Options) Index {
			idx, err := NewChromemIndex("", e, opts)
			if err != nil {
				t.Fatalf("NewChromemIndex failed: %v", err)
			}
			return idx
		},
		"sqlite": func(t *testing.T, e Embedder, opts Options) Index {
			s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "facts.db"))
			if err != nil {
				t.Fatalf("NewSQLiteStore failed: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return NewSQLiteIndex(s, e, opts)
		},
	}
}

func TestIndex(t *testing.T) {
	ctx := context.Background()

	for name, newIndex := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("EmptySearch", func(t *testing.T) {
				idx := newIndex(t, mock.New(), Options{})
				res, err := idx.SearchMemories(ctx, "anything", 5)
				if err != nil {
					t.Fatalf("SearchMemories failed: %v", err)
				}
				if res == nil || len(res) != 0 {
					t.Errorf("expected empty result, got %v", res)
				}
			})

			t.Run("SingleMatch", func(t *testing.T) {
				idx := newIndex(t, mock.New(), Options{})
				if _, err := idx.AddMemory(ctx, "I love hiking", map[string]string{"role": "user"}); err != nil {
					t.Fatalf("AddMemory failed: %v", err)
				}
				res, err := idx.SearchMemories(ctx, "outdoor activities", 1)
				if err != nil {
					t.Fatalf("SearchMemories failed: %v", err)
				}
				if len(res) != 1 {
					t.Fatalf("expected 1 result, got %d", len(res))
				}
				if res[0].Document != "I love hiking" {
					t.Errorf("expected 'I love hiking', got %q", res[0].Document)
				}
				if res[0].Metadata["role"] != "user" {
					t.Errorf("expected role 'user', got %q", res[0].Metadata["role"])
				}
			})

			t.Run("SelfSearch", func(t *testing.T) {
				idx := newIndex(t, mock.New(), Options{})
				docs := []string{"my sister lives in Lisbon", "I work as a nurse", "I want to learn piano"}
				for _, d := range docs {
					if _, err := idx.AddMemory(ctx, d, nil); err != nil {
						t.Fatalf("AddMemory failed: %v", err)
					}
				}
				for _, d := range docs {
					res, err := idx.SearchMemories(ctx, d, 1)
					if err != nil {
						t.Fatalf("SearchMemories failed: %v", err)
					}
					if len(res) != 1 || res[0].Document != d {
						t.Errorf("expected %q on top, got %v", d, res)
					}
				}

				res, _ := idx.SearchMemories(ctx, docs[0], 10)
				if len(res) != len(docs) {
					t.Fatalf("expected results clamped to %d, got %d", len(docs), len(res))
				}
				for i := 1; i < len(res); i++ {
					if res[i].Distance < res[i-1].Distance {
						t.Errorf("results not ordered by distance: %v", res)
					}
				}
			})

			t.Run("OverwriteByID", func(t *testing.T) {
				idx := newIndex(t, mock.New(), Options{})
				for _, content := range []string{"first", "second"} {
					id, err := idx.AddMemory(ctx, content, map[string]string{"id": "fixed"})
					if err != nil {
						t.Fatalf("AddMemory failed: %v", err)
					}
					if id != "fixed" {
						t.Errorf("expected id 'fixed', got %q", id)
					}
				}
				if idx.Count() != 1 {
					t.Errorf("expected 1 document, got %d", idx.Count())
				}
				res, _ := idx.SearchMemories(ctx, "second", 1)
				if len(res) != 1 || res[0].Document != "second" {
					t.Errorf("expected overwritten document, got %v", res)
				}
			})

			t.Run("GeneratedIDs", func(t *testing.T) {
				idx := newIndex(t, mock.New(), Options{})
				a, _ := idx.AddMemory(ctx, "same", nil)
				b, _ := idx.AddMemory(ctx, "same", nil)
				if a == "" || a == b {
					t.Errorf("expected distinct ids, got %q and %q", a, b)
				}
				if idx.Count() != 2 {
					t.Errorf("expected 2 documents, got %d", idx.Count())
				}
			})

			t.Run("CountMode", func(t *testing.T) {
				idx := newIndex(t, mock.New(), Options{IDMode: IDModeCount})
				const writers = 20
				var wg sync.WaitGroup
				ids := make(chan string, writers)
				for i := 0; i < writers; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						id, err := idx.AddMemory(ctx, fmt.Sprintf("turn %d", i), nil)
						if err != nil {
							t.Errorf("AddMemory failed: %v", err)
							return
						}
						ids <- id
					}(i)
				}
				wg.Wait()
				close(ids)

				seen := map[string]bool{}
				for id := range ids {
					if seen[id] {
						t.Errorf("duplicate id %q", id)
					}
					seen[id] = true
				}
				if idx.Count() != writers {
					t.Errorf("expected %d documents, got %d", writers, idx.Count())
				}
				if !seen["1"] || !seen[fmt.Sprint(writers)] {
					t.Errorf("expected ids 1..%d, got %v", writers, seen)
				}
			})

			t.Run("EmbeddingFailure", func(t *testing.T) {
				bad := newIndex(t, mock.Failing(errors.New("model offline")), Options{})
				if _, err := bad.AddMemory(ctx, "x", nil); !errors.Is(err, ErrEmbeddingUnavailable) {
					t.Errorf("expected ErrEmbeddingUnavailable on add, got %v", err)
				}
			})
		})
	}
}

func TestChromemIndex_SearchEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	var fail bool
	e := EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		if fail {
			return nil, errors.New("quota exceeded")
		}
		return mock.New().Embed(ctx, text)
	})

	idx, err := NewChromemIndex("", e, Options{})
	if err != nil {
		t.Fatalf("NewChromemIndex failed: %v", err)
	}
	idx.AddMemory(ctx, "hello", nil)

	fail = true
	if _, err := idx.SearchMemories(ctx, "hello", 1); !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestChromemIndex_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "chroma")

	idx, err := NewChromemIndex(dir, mock.New(), Options{})
	if err != nil {
		t.Fatalf("NewChromemIndex failed: %v", err)
	}
	if _, err := idx.AddMemory(ctx, "persist me", map[string]string{"role": "user"}); err != nil {
		t.Fatalf("AddMemory failed: %v", err)
	}
	idx.Close()

	reopened, err := NewChromemIndex(dir, mock.New(), Options{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if reopened.Count() != 1 {
		t.Fatalf("expected 1 persisted document, got %d", reopened.Count())
	}
	res, _ := reopened.SearchMemories(ctx, "persist me", 1)
	if len(res) != 1 || res[0].Document != "persist me" {
		t.Errorf("expected persisted document, got %v", res)
	}
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	calls := 0
	inner := EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		calls++
		return []float32{1, 0, 0}, nil
	})

	c, err := NewCachedEmbedder(inner, 16)
	if err != nil {
		t.Fatalf("NewCachedEmbedder failed: %v", err)
	}
	defer c.Close()

	first, _ := c.Embed(ctx, "hello")
	c.cache.Wait()
	second, _ := c.Embed(ctx, "hello")

	if calls != 1 {
		t.Errorf("expected 1 inner call, got %d", calls)
	}
	if len(first) != 3 || len(second) != 3 || second[0] != 1 {
		t.Errorf("unexpected vectors %v %v", first, second)
	}

	second[0] = 42
	third, _ := c.Embed(ctx, "hello")
	if third[0] != 1 {
		t.Errorf("cached vector was mutated through a returned slice")
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := mock.New()
	a, _ := e.Embed(ctx, "same text")
	b, _ := e.Embed(ctx, "same text")
	if len(a) != mock.DefaultDimensions {
		t.Fatalf("expected %d dimensions, got %d", mock.DefaultDimensions, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding differs at %d", i)
		}
	}
	if sim := cosineSimilarity(a, b); sim < 0.999 {
		t.Errorf("expected self-similarity near 1, got %f", sim)
	}
}

// flakyRows fails CountMemories and records every write.
type flakyRows struct {
	mu   sync.Mutex
	puts []store.MemoryRow
}

func (f *flakyRows) PutMemory(ctx context.Context, row store.MemoryRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, row)
	return nil
}

func (f *flakyRows) ListMemories(ctx context.Context) ([]store.MemoryRow, error) {
	return nil, nil
}

func (f *flakyRows) CountMemories(ctx context.Context) (int, error) {
	return 0, store.ErrStorageUnavailable
}

func TestSQLiteIndex_CountModeFailedCount(t *testing.T) {
	rows := &flakyRows{}
	idx := NewSQLiteIndex(rows, mock.New(), Options{IDMode: IDModeCount})

	id, err := idx.AddMemory(context.Background(), "My sister lives in Lisbon", nil)
	if !errors.Is(err, store.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if id != "" {
		t.Errorf("expected no id, got %q", id)
	}
	if len(rows.puts) != 0 {
		t.Errorf("expected no write over an existing id, got %+v", rows.puts)
	}

	// Explicit and uuid ids never consult the count.
	if _, err := idx.AddMemory(context.Background(), "hello", map[string]string{"id": "m1"}); err != nil {
		t.Errorf("AddMemory with explicit id failed: %v", err)
	}
}
