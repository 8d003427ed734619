package memory

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemIndex is an Index backed by a chromem-go collection.
type ChromemIndex struct {
	db       *chromem.DB
	col      *chromem.Collection
	embedder Embedder
	ids      *idAssigner
}

// NewChromemIndex opens the "memories" collection. An empty path keeps the
// database in memory; otherwise documents are persisted under path.
func NewChromemIndex(path string, embedder Embedder, opts Options) (*ChromemIndex, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(CollectionName, nil, chromem.EmbeddingFunc(embedder.Embed))
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", CollectionName, err)
	}

	return &ChromemIndex{
		db:       db,
		col:      col,
		embedder: embedder,
		ids:      &idAssigner{mode: opts.IDMode},
	}, nil
}

func (c *ChromemIndex) AddMemory(ctx context.Context, content string, metadata map[string]string) (string, error) {
	count := func() (int, error) { return c.col.Count(), nil }
	return c.ids.assign(metadata, count, func(id string) error {
		vec, err := c.embedder.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
		}

		doc := chromem.Document{
			ID:        id,
			Content:   content,
			Embedding: vec,
			Metadata:  copyMetadata(metadata),
		}
		if err := c.col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("%w: failed to add document: %v", ErrEmbeddingUnavailable, err)
		}
		return nil
	})
}

func (c *ChromemIndex) SearchMemories(ctx context.Context, query string, n int) ([]Result, error) {
	n = clampResults(n, c.col.Count())
	if n <= 0 {
		return []Result{}, nil
	}

	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	hits, err := c.col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query failed: %v", ErrEmbeddingUnavailable, err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			ID:       h.ID,
			Document: h.Content,
			Metadata: h.Metadata,
			Distance: 1 - h.Similarity,
		})
	}
	return results, nil
}

func (c *ChromemIndex) Count() int {
	return c.col.Count()
}

// Close is a no-op; chromem persists each document as it is written.
func (c *ChromemIndex) Close() error {
	return nil
}
