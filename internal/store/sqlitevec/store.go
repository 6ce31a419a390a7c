// Package sqlitevec implements the store contracts on SQLite with the
// sqlite-vec extension.
//
// Chunk vectors live in a vec0 virtual table keyed by rowid with scope as
// a partition key, so a KNN query only ever considers vectors belonging to
// the requested scope. A companion chunks table maps each rowid to its
// file path and text.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/koopa0/gitquery/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
    rowid      INTEGER PRIMARY KEY AUTOINCREMENT,
    scope      TEXT NOT NULL,
    file_path  TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    content    TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chunks_scope ON chunks(scope);

CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    scope      TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    role       TEXT NOT NULL CHECK(role IN ('user', 'model')),
    content    TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE,
    UNIQUE (session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);
`

// Store implements store.VectorIndex and store.SessionStore.
type Store struct {
	db     *sql.DB
	dim    int
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database at dbPath and initializes the
// schema, including the vec0 virtual table. Use ":memory:" for tests.
func Open(dbPath string, dim int, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Register the sqlite-vec extension for every new connection.
	sqlite_vec.Auto()

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(scope TEXT partition key, embedding float[%d] distance_metric=cosine)`,
		dim,
	)
	if _, err := db.Exec(createVec); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Debug("sqlite-vec store initialized",
		"path", dbPath, "dimensions", dim, "vec_version", vecVersion)

	return &Store{db: db, dim: dim, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// serializeFloat32 converts a float32 slice to the little-endian BLOB
// format sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Replace removes all chunks for scope, then inserts the given chunks in
// order. Vector rows and mapping rows are kept consistent inside one
// transaction; SQLite has a single writer, so readers never observe the
// transient-empty window of the delete-then-insert sequence.
func (s *Store) Replace(ctx context.Context, scope string, chunks []store.Chunk) error {
	for _, c := range chunks {
		if err := store.ValidateVector(c.Vector, s.dim); err != nil {
			return fmt.Errorf("chunk %s#%d: %w", c.FilePath, c.Seq, err)
		}
	}

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunk_vectors WHERE rowid IN (SELECT rowid FROM chunks WHERE scope = ?)`,
		scope,
	); err != nil {
		return fmt.Errorf("deleting vectors for scope %q: %w", scope, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("deleting chunks for scope %q: %w", scope, err)
	}

	insertChunk, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (scope, file_path, seq, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer insertChunk.Close()

	insertVec, err := tx.PrepareContext(ctx,
		`INSERT INTO chunk_vectors (rowid, scope, embedding) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing vector insert: %w", err)
	}
	defer insertVec.Close()

	for _, c := range chunks {
		res, err := insertChunk.ExecContext(ctx, scope, c.FilePath, c.Seq, c.Text)
		if err != nil {
			return fmt.Errorf("inserting chunk %s#%d: %w", c.FilePath, c.Seq, err)
		}
		rowid, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading chunk rowid: %w", err)
		}
		if _, err := insertVec.ExecContext(ctx, rowid, scope, serializeFloat32(c.Vector)); err != nil {
			return fmt.Errorf("inserting vector for chunk %s#%d: %w", c.FilePath, c.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing replace: %w", err)
	}

	s.logger.Debug("replaced chunks",
		"scope", scope,
		"count", len(chunks),
		"duration", time.Since(start))
	return nil
}

// Search returns up to k chunks nearest to vector within scope, most
// similar first. The scope partition key constrains the KNN itself, so
// vectors in other scopes never compete for candidate slots. vec0 reports
// cosine distance; score is 1 - distance.
func (s *Store) Search(ctx context.Context, scope string, vector []float32, k int) ([]store.ScoredChunk, error) {
	if err := store.ValidateVector(vector, s.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []store.ScoredChunk{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.file_path, c.content, 1 - e.distance AS score
		 FROM (
		     SELECT rowid, distance FROM chunk_vectors
		     WHERE scope = ? AND embedding MATCH ? AND k = ?
		 ) e
		 JOIN chunks c ON c.rowid = e.rowid
		 ORDER BY e.distance`,
		scope, serializeFloat32(vector), k,
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
	now := time.Now().UTC()
	sess := &store.Session{ID: uuid.New(), Scope: scope, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, scope, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		sess.ID.String(), scope, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "scope", scope)
	return sess, nil
}

// Get retrieves a session by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*store.Session, error) {
	sess := &store.Session{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT scope, created_at, updated_at FROM sessions WHERE id = ?`,
		id.String(),
	).Scan(&sess.Scope, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
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

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM turns WHERE session_id = ? ORDER BY seq`,
		id.String(),
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

// AppendTurns appends turns to the session history atomically and in order.
func (s *Store) AppendTurns(ctx context.Context, id uuid.UUID, turns []store.Turn) error {
	if err := store.ValidateTurns(turns); err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE id = ?`, id.String(),
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("checking session %s: %w", id, err)
	}

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?`, id.String(),
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("reading turn sequence: %w", err)
	}

	for i, turn := range turns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, seq, role, content) VALUES (?, ?, ?, ?)`,
			id.String(), next+i, turn.Role, turn.Content,
		); err != nil {
			return fmt.Errorf("appending turn %d: %w", next+i, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id.String(),
	); err != nil {
		return fmt.Errorf("touching session %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing turns: %w", err)
	}

	s.logger.Debug("appended turns", "session", id, "count", len(turns))
	return nil
}
