// Package memory implements the episodic memory index: free-text snippets
// stored with an embedding and retrieved by semantic similarity.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// CollectionName is the vector collection every index writes to.
const CollectionName = "memories"

// ErrEmbeddingUnavailable is returned when the embedding function or the
// vector engine behind it fails.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// Embedder turns a string into a fixed-length vector. Implementations are
// expected to be deterministic for a given string. Every provider.Provider
// satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a plain function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Index stores episodic memories and searches them by similarity.
type Index interface {
	// AddMemory stores content under metadata["id"] when present, otherwise
	// under a generated id, and returns the id used.
	AddMemory(ctx context.Context, content string, metadata map[string]string) (string, error)

	// SearchMemories returns up to n entries ordered by ascending distance.
	// An empty index yields an empty slice.
	SearchMemories(ctx context.Context, query string, n int) ([]Result, error)

	Count() int
	Close() error
}

// Result is one ranked match returned by SearchMemories.
type Result struct {
	ID       string            `json:"id"`
	Document string            `json:"document"`
	Metadata map[string]string `json:"metadata"`
	Distance float32           `json:"distance"`
}

// IDMode controls how ids are assigned when metadata carries none.
type IDMode string

const (
	// IDModeUUID assigns a random UUID.
	IDModeUUID IDMode = "uuid"
	// IDModeCount assigns the current document count plus one, matching the
	// legacy scheme. Assignment is serialized within the process.
	IDModeCount IDMode = "count"
)

// Options configures an index.
type Options struct {
	IDMode IDMode
}

// idAssigner resolves the id of a new memory and serializes count-based
// assignment together with the write that consumes the id.
type idAssigner struct {
	mode IDMode
	mu   sync.Mutex
}

// assign calls write with the resolved id. In count mode the lock is held
// across count and write so concurrent writers cannot collide, and a failed
// count aborts the write rather than reusing an existing id.
func (a *idAssigner) assign(metadata map[string]string, count func() (int, error), write func(id string) error) (string, error) {
	if id, ok := metadata["id"]; ok && id != "" {
		return id, write(id)
	}

	if a.mode != IDModeCount {
		id := uuid.NewString()
		return id, write(id)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	n, err := count()
	if err != nil {
		return "", fmt.Errorf("failed to count memories: %w", err)
	}
	id := strconv.Itoa(n + 1)
	return id, write(id)
}

func clampResults(n, count int) int {
	if n > count {
		return count
	}
	return n
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
