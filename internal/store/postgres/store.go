// Package postgres implements the store contracts on PostgreSQL + pgvector.
//
// Chunks live in the chunks table with a vector(768) column; searches rank
// by cosine distance with the <=> operator and report 1 - distance as the
// similarity score. Sessions and turns are plain relational rows; appending
// a turn is a single INSERT, so the append is atomic at the storage layer.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/koopa0/gitquery/internal/store"
)

// Store implements store.VectorIndex and store.SessionStore.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

// New creates a Store backed by the given connection pool.
// dim is the embedding dimension enforced on every stored vector; it must
// match the vector(N) column in the migrations.
func New(pool *pgxpool.Pool, dim int, logger *slog.Logger) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dim)
	}
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, dim: dim, logger: logger}, nil
}

// Ping reports whether the database is reachable. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Replace removes all chunks for scope, then inserts the given chunks in
// order. The two steps are separate statements on purpose: re-indexing is
// rare and a search landing between them sees an empty scope, which the ask
// path handles gracefully. A failed insert therefore leaves the scope empty,
// not half-populated.
func (s *Store) Replace(ctx context.Context, scope string, chunks []store.Chunk) error {
	// Validate every vector before any mutation.
	for _, c := range chunks {
		if err := store.ValidateVector(c.Vector, s.dim); err != nil {
			return fmt.Errorf("chunk %s#%d: %w", c.FilePath, c.Seq, err)
		}
	}

	start := time.Now()
	if _, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE scope = $1`, scope); err != nil {
		return fmt.Errorf("deleting chunks for scope %q: %w", scope, err)
	}

	if len(chunks) > 0 {
		batch := &pgx.Batch{}
		for _, c := range chunks {
			vec := pgvector.NewVector(c.Vector)
			batch.Queue(
				`INSERT INTO chunks (scope, file_path, seq, content, embedding)
				 VALUES ($1, $2, $3, $4, $5)`,
				scope, c.FilePath, c.Seq, c.Text, vec,
			)
		}
		results := s.pool.SendBatch(ctx, batch)
		defer func() {
			if err := results.Close(); err != nil {
				s.logger.Debug("closing insert batch", "error", err)
			}
		}()
		for range chunks {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("inserting chunks for scope %q: %w", scope, err)
			}
		}
	}

	s.logger.Debug("replaced chunks",
		"scope", scope,
		"count", len(chunks),
		"duration", time.Since(start))
	return nil
}

// Search returns up to k chunks nearest to vector within scope, most similar
// first. pgvector's <=> operator is cosine distance, so ORDER BY gives the
// exact ranking directly and no candidate over-fetch stage is needed.
func (s *Store) Search(ctx context.Context, scope string, vector []float32, k int) ([]store.ScoredChunk, error) {
	if err := store.ValidateVector(vector, s.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []store.ScoredChunk{}, nil
	}

	vec := pgvector.NewVector(vector)
	rows, err := s.pool.Query(ctx,
		`SELECT file_path, content, 1 - (embedding <=> $2) AS score
		 FROM chunks
		 WHERE scope = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		scope, vec, k,
	)
	if err != nil {
		return nil, fmt.Errorf("searching chunks for scope %q: %w", scope, err)
	}
	defer rows.Close()

	results := make([]store.ScoredChunk, 0, k)
	for rows.Next() {
		var sc store.ScoredChunk
		if err := rows.Scan(&sc.FilePath, &sc.Text, &sc.Score); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search results: %w", err)
	}
	return results, nil
}

// Create starts a new session bound to scope.
func (s *Store) Create(ctx context.Context, scope string) (*store.Session, error) {
	sess := &store.Session{ID: uuid.New(), Scope: scope}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, scope)
		 VALUES ($1, $2)
		 RETURNING created_at, updated_at`,
		sess.ID, scope,
	).Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "scope", scope)
	return sess, nil
}

// Get retrieves a session by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*store.Session, error) {
	sess := &store.Session{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT scope, created_at, updated_at FROM sessions WHERE id = $1`,
		id,
	).Scan(&sess.Scope, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return sess, nil
}

// History returns the session's turns in append order.
func (s *Store) History(ctx context.Context, id uuid.UUID) ([]store.Turn, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT role, content FROM turns WHERE session_id = $1 ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("loading history for session %s: %w", id, err)
	}
	defer rows.Close()

	turns := make([]store.Turn, 0)
	for rows.Next() {
		var t store.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return turns, nil
}

// AppendTurns appends turns to the session history. The turns are inserted
// inside one transaction with sequence numbers continuing from the current
// maximum, so the append is atomic and ordered without a read-modify-write
// over the whole history.
func (s *Store) AppendTurns(ctx context.Context, id uuid.UUID, turns []store.Turn) error {
	if err := store.ValidateTurns(turns); err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	// Row lock on the session serializes concurrent appends and doubles as
	// the existence check.
	var sessionID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, id,
	).Scan(&sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("locking session %s: %w", id, err)
	}

	var next int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = $1`, id,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("reading turn sequence: %w", err)
	}

	for i, turn := range turns {
		if _, err := tx.Exec(ctx,
			`INSERT INTO turns (session_id, seq, role, content) VALUES ($1, $2, $3, $4)`,
			id, next+i, turn.Role, turn.Content,
		); err != nil {
			return fmt.Errorf("appending turn %d: %w", next+i, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("touching session %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing turns: %w", err)
	}

	s.logger.Debug("appended turns", "session", id, "count", len(turns))
	return nil
}
