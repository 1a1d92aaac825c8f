package vectorstore

import (
	"context"
	"fmt"

	"medichat/embeddings"
)

// Index couples an embedder with a store. It is immutable once built:
// reprocessing a session builds a fresh one from scratch.
type Index struct {
	embedder embeddings.Embedder
	store    Store
	size     int
}

// Build embeds every chunk and stores the vectors. It fails when the
// chunk sequence is empty or the embedding provider is unreachable.
// The store is reset before inserting, so a failed build leaves it
// empty rather than holding a stale mix of old and new chunks.
func Build(ctx context.Context, embedder embeddings.Embedder, store Store, chunks []Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to index")
	}

	if err := store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset store: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: have %d chunks, %d vectors", len(chunks), len(vectors))
	}

	if err := store.Add(ctx, chunks, vectors); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	return &Index{embedder: embedder, store: store, size: len(chunks)}, nil
}

// Search embeds the query and returns up to k matches ranked by
// descending similarity. Fewer than k entries is not an error.
func (i *Index) Search(ctx context.Context, query string, k int) ([]Match, error) {
	vector, err := embeddings.EmbedOne(ctx, i.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := i.store.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("search store: %w", err)
	}
	return matches, nil
}

// Size reports the number of indexed chunks.
func (i *Index) Size() int {
	return i.size
}
