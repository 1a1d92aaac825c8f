package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore keeps one session's chunk vectors in a shared pgvector
// table, scoped by session key. Reprocessing resets the scope and
// rebuilds it wholesale.
type PostgresStore struct {
	pool       *pgxpool.Pool
	sessionKey string
}

func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	return pool, nil
}

func NewPostgresStore(pool *pgxpool.Pool, sessionKey string) *PostgresStore {
	return &PostgresStore{pool: pool, sessionKey: sessionKey}
}

// EnsureSchema creates the pgvector extension and the chunk table.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS session_chunks (
			id UUID PRIMARY KEY,
			session_key TEXT NOT NULL,
			chunk_index INT NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(session_key, chunk_index)
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_session_chunks_session ON session_chunks(session_key)",
		"CREATE INDEX IF NOT EXISTS idx_session_chunks_embedding ON session_chunks USING ivfflat (embedding vector_l2_ops)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *PostgresStore) Add(ctx context.Context, chunks []Chunk, vectors [][]float32) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var next int
	if err := tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(chunk_index) + 1, 0) FROM session_chunks WHERE session_key = $1",
		s.sessionKey,
	).Scan(&next); err != nil {
		return fmt.Errorf("query next chunk index: %w", err)
	}

	for i := range chunks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO session_chunks (id, session_key, chunk_index, source, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New(), s.sessionKey, next+i, chunks[i].Source, chunks[i].Content, pgvector.NewVector(vectors[i])); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if k <= 0 {
		return nil, nil
	}

	// chunk_index as secondary order keeps ties stable by insertion.
	rows, err := s.pool.Query(ctx, `
		SELECT source, content, (embedding <-> $1::vector) AS distance
		FROM session_chunks
		WHERE session_key = $2
		ORDER BY embedding <-> $1::vector, chunk_index
		LIMIT $3
	`, pgvector.NewVector(vector), s.sessionKey, k)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	matches := make([]Match, 0, k)
	for rows.Next() {
		var m Match
		var distance float64
		if err := rows.Scan(&m.Source, &m.Content, &distance); err != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", err)
		}
		m.Score = 1 / (1 + distance)
		matches = append(matches, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return matches, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM session_chunks WHERE session_key = $1", s.sessionKey); err != nil {
		return fmt.Errorf("clear session chunks: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
