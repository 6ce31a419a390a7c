// Package store defines the storage contracts for gitquery: a vector index
// for repository chunks and a session store for conversation transcripts.
//
// Two interchangeable backends implement both contracts:
//   - store/postgres: PostgreSQL + pgvector
//   - store/sqlitevec: SQLite + sqlite-vec
//
// The orchestration layer (internal/rag) depends only on the interfaces in
// this package, so replace-all semantics, search ranking, and session append
// behave identically regardless of backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Role constants define the two valid turn roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Sentinel errors for storage operations.
// Check with errors.Is().
var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidVector indicates a vector with the wrong dimension or a
	// non-finite component. Returned before any storage mutation.
	ErrInvalidVector = errors.New("invalid vector")

	// ErrInvalidRole indicates a turn role outside {user, model}.
	ErrInvalidRole = errors.New("invalid turn role")
)

// Chunk is the atomic unit of embedding and retrieval: one bounded slice of
// a source file's text together with its embedding vector.
//
// Chunks are created in bulk by an index operation, are immutable, and are
// destroyed only by a later index operation on the same scope.
type Chunk struct {
	Scope    string    // repository identity partitioning the index
	FilePath string    // path relative to the repository root
	Seq      int       // intra-file chunk offset index
	Text     string    // chunk content
	Vector   []float32 // embedding, fixed dimension
}

// ScoredChunk is a search result: a chunk with its similarity score.
// Score is 1 - cosine distance, so 1.0 means identical direction.
type ScoredChunk struct {
	FilePath string  `json:"filePath"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// Session is one conversation thread bound to exactly one repository scope.
// The scope is immutable after creation.
type Session struct {
	ID        uuid.UUID `json:"sessionId"`
	Scope     string    `json:"repoUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Turn is one message in a session's history.
type Turn struct {
	Role    string `json:"role"` // RoleUser or RoleModel
	Content string `json:"content"`
}

// VectorIndex persists chunks and answers nearest-neighbor queries scoped to
// one repository.
type VectorIndex interface {
	// Replace removes every chunk stored for scope and inserts the given
	// chunks in order. Delete-then-insert: a concurrent Search between the
	// two steps may observe a transiently empty scope, and a failed insert
	// leaves the scope empty (callers re-index, never assume old data
	// survived). All vectors are validated before the delete happens.
	Replace(ctx context.Context, scope string, chunks []Chunk) error

	// Search returns up to k chunks nearest to vector within scope, ordered
	// by descending similarity score. An empty or unknown scope yields an
	// empty slice, not an error. A malformed query vector yields
	// ErrInvalidVector.
	Search(ctx context.Context, scope string, vector []float32, k int) ([]ScoredChunk, error)
}

// SessionStore persists ordered conversation transcripts.
type SessionStore interface {
	// Create starts a new session bound to scope with a fresh unique ID.
	Create(ctx context.Context, scope string) (*Session, error)

	// Get retrieves a session by ID. Returns ErrSessionNotFound if absent.
	Get(ctx context.Context, id uuid.UUID) (*Session, error)

	// History returns the session's turns in append order.
	// Returns ErrSessionNotFound if the session does not exist.
	History(ctx context.Context, id uuid.UUID) ([]Turn, error)

	// AppendTurns appends turns to the session history in order, as a
	// single atomic append. Returns ErrSessionNotFound if the session does
	// not exist, ErrInvalidRole for a role outside {user, model}.
	AppendTurns(ctx context.Context, id uuid.UUID, turns []Turn) error
}

// ValidateVector checks that vec has exactly dim finite components.
// Wraps ErrInvalidVector on failure so callers can errors.Is it.
func ValidateVector(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: dimension %d, want %d", ErrInvalidVector, len(vec), dim)
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite component at index %d", ErrInvalidVector, i)
		}
	}
	return nil
}

// ValidateTurns checks that every turn uses a permitted role.
func ValidateTurns(turns []Turn) error {
	for _, turn := range turns {
		if turn.Role != RoleUser && turn.Role != RoleModel {
			return fmt.Errorf("%w: role %q", ErrInvalidRole, turn.Role)
		}
	}
	return nil
}
