// Package vectorstore provides nearest-neighbour search over embedded
// text chunks, with an in-memory default and a pgvector-backed option.
package vectorstore

import "context"

// Chunk is the text payload stored alongside its vector.
type Chunk struct {
	Source  string
	Content string
}

// Match is a retrieved chunk with its similarity score.
type Match struct {
	Source  string
	Content string
	Score   float64
}

// Store holds chunk vectors and answers nearest-neighbour queries.
// Matches come back in descending similarity order; ties keep insertion
// order.
type Store interface {
	Add(ctx context.Context, chunks []Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)
	Reset(ctx context.Context) error
}
