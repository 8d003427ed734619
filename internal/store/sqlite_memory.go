package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// PutMemory inserts or replaces the memory row with the given id.
func (s *SQLiteStore) PutMemory(ctx context.Context, row MemoryRow) error {
	vecBuf := new(bytes.Buffer)
	if err := binary.Write(vecBuf, binary.LittleEndian, row.Embedding); err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}

	metaJSON, err := json.Marshal(row.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `INSERT INTO memories (id, content, embedding, metadata) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, embedding = excluded.embedding, metadata = excluded.metadata`
	if _, err := s.db.ExecContext(ctx, query, row.ID, row.Content, vecBuf.Bytes(), string(metaJSON)); err != nil {
		return fmt.Errorf("%w: failed to write memory: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// ListMemories loads every memory row. A row that fails to decode fails the
// whole listing.
func (s *SQLiteStore) ListMemories(ctx context.Context) ([]MemoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, embedding, metadata FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query memories: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []MemoryRow
	for rows.Next() {
		var r MemoryRow
		var vecBlob []byte
		var metaJSON string

		if err := rows.Scan(&r.ID, &r.Content, &vecBlob, &metaJSON); err != nil {
			return nil, fmt.Errorf("%w: failed to scan memory: %v", ErrStorageUnavailable, err)
		}

		if len(vecBlob)%4 != 0 {
			return nil, fmt.Errorf("%w: memory %s has a truncated vector", ErrStorageUnavailable, r.ID)
		}
		r.Embedding = make([]float32, len(vecBlob)/4)
		if err := binary.Read(bytes.NewReader(vecBlob), binary.LittleEndian, &r.Embedding); err != nil {
			return nil, fmt.Errorf("%w: failed to decode vector of memory %s: %v", ErrStorageUnavailable, r.ID, err)
		}

		if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
			return nil, fmt.Errorf("%w: failed to decode metadata of memory %s: %v", ErrStorageUnavailable, r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read memories: %v", ErrStorageUnavailable, err)
	}
	return out, nil
}

// CountMemories returns the number of stored memory rows.
func (s *SQLiteStore) CountMemories(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count memories: %v", ErrStorageUnavailable, err)
	}
	return n, nil
}
