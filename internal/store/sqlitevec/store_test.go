package sqlitevec

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/koopa0/gitquery/internal/log"
	"github.com/koopa0/gitquery/internal/store"
)

const testDim = 3

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", testDim, log.NewNop())
	if err != nil {
		t.Fatalf("Open(:memory:) error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func chunk(scope, path string, seq int, vec []float32) store.Chunk {
	return store.Chunk{
		Scope:    scope,
		FilePath: path,
		Seq:      seq,
		Text:     fmt.Sprintf("content of %s #%d", path, seq),
		Vector:   vec,
	}
}

func TestReplace_ThenSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunks := []store.Chunk{
		chunk("github.com/acme/widget", "main.py", 0, []float32{1, 0, 0}),
		chunk("github.com/acme/widget", "main.py", 1, []float32{0, 1, 0}),
		chunk("github.com/acme/widget", "README.md", 0, []float32{0, 0, 1}),
	}
	if err := s.Replace(ctx, "github.com/acme/widget", chunks); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	results, err := s.Search(ctx, "github.com/acme/widget", []float32{1, 0, 0}, 8)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Search() returned %d results, want 3", len(results))
	}
	if results[0].FilePath != "main.py" {
		t.Errorf("top result file = %q, want main.py", results[0].FilePath)
	}
	// A query identical to a stored vector scores at or near 1.0.
	if results[0].Score < 0.999 {
		t.Errorf("top result score = %v, want ~1.0", results[0].Score)
	}
	// Scores are non-increasing by position.
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not descending: results[%d]=%v > results[%d]=%v",
				i, results[i].Score, i-1, results[i-1].Score)
		}
	}
}

func TestReplace_ReindexLeavesNoResiduals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := "github.com/acme/widget"

	first := []store.Chunk{
		chunk(scope, "a.go", 0, []float32{1, 0, 0}),
		chunk(scope, "b.go", 0, []float32{0, 1, 0}),
	}
	if err := s.Replace(ctx, scope, first); err != nil {
		t.Fatalf("first Replace() error = %v", err)
	}
	if err := s.Replace(ctx, scope, first); err != nil {
		t.Fatalf("second Replace() error = %v", err)
	}

	results, err := s.Search(ctx, scope, []float32{1, 0, 0}, 100)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != len(first) {
		t.Errorf("after re-index got %d chunks, want %d (no residuals)", len(results), len(first))
	}
}

func TestReplace_EmptyChunksClearsScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := "github.com/acme/widget"

	if err := s.Replace(ctx, scope, []store.Chunk{chunk(scope, "a.go", 0, []float32{1, 0, 0})}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if err := s.Replace(ctx, scope, nil); err != nil {
		t.Fatalf("Replace(nil) error = %v", err)
	}

	results, err := s.Search(ctx, scope, []float32{1, 0, 0}, 8)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search() after clearing = %d results, want 0", len(results))
	}
}

func TestSearch_NeverCrossesScopes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Replace(ctx, "github.com/acme/widget", []store.Chunk{
		chunk("github.com/acme/widget", "widget.go", 0, []float32{1, 0, 0}),
	}); err != nil {
		t.Fatalf("Replace(widget) error = %v", err)
	}
	if err := s.Replace(ctx, "github.com/acme/gadget", []store.Chunk{
		chunk("github.com/acme/gadget", "gadget.go", 0, []float32{1, 0, 0}),
	}); err != nil {
		t.Fatalf("Replace(gadget) error = %v", err)
	}

	results, err := s.Search(ctx, "github.com/acme/widget", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, r := range results {
		if r.FilePath == "gadget.go" {
			t.Errorf("search leaked a chunk from another scope: %+v", r)
		}
	}
	if len(results) != 1 {
		t.Errorf("Search() = %d results, want 1", len(results))
	}
}

func TestSearch_SmallScopeNotStarvedByLargeScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	query := []float32{1, 0, 0}

	// A large neighboring scope packed with vectors identical to the query
	// must not crowd a smaller scope's chunks out of its own results.
	big := make([]store.Chunk, 200)
	for i := range big {
		big[i] = chunk("github.com/acme/big", "big.go", i, []float32{1, 0, 0})
	}
	if err := s.Replace(ctx, "github.com/acme/big", big); err != nil {
		t.Fatalf("Replace(big) error = %v", err)
	}
	if err := s.Replace(ctx, "github.com/acme/small", []store.Chunk{
		chunk("github.com/acme/small", "small.go", 0, []float32{0, 1, 0}),
	}); err != nil {
		t.Fatalf("Replace(small) error = %v", err)
	}

	results, err := s.Search(ctx, "github.com/acme/small", query, 8)
	if err != nil {
		t.Fatalf("Search(small) error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search(small) = %d results, want 1", len(results))
	}
	if results[0].FilePath != "small.go" {
		t.Errorf("Search(small) top result file = %q, want small.go", results[0].FilePath)
	}
}

func TestSearch_EmptyScopeReturnsEmpty(t *testing.T) {
	s := newTestStore(t)

	results, err := s.Search(context.Background(), "github.com/acme/nothing", []float32{1, 0, 0}, 8)
	if err != nil {
		t.Fatalf("Search() on empty scope error = %v, want nil", err)
	}
	if len(results) != 0 {
		t.Errorf("Search() on empty scope = %d results, want 0", len(results))
	}
}

func TestSearch_RespectsK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := "github.com/acme/widget"

	chunks := make([]store.Chunk, 10)
	for i := range chunks {
		chunks[i] = chunk(scope, "big.go", i, []float32{float32(i + 1), 1, 0})
	}
	if err := s.Replace(ctx, scope, chunks); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	results, err := s.Search(ctx, scope, []float32{1, 1, 0}, 4)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) > 4 {
		t.Errorf("Search(k=4) = %d results, want at most 4", len(results))
	}
}

func TestSearch_InvalidQueryVector(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name string
		vec  []float32
	}{
		{name: "wrong dimension", vec: []float32{1, 0}},
		{name: "NaN component", vec: []float32{float32(math.NaN()), 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Search(context.Background(), "scope", tt.vec, 8)
			if !errors.Is(err, store.ErrInvalidVector) {
				t.Errorf("Search() error = %v, want ErrInvalidVector", err)
			}
		})
	}
}

func TestReplace_InvalidVectorRejectedBeforeMutation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := "github.com/acme/widget"

	if err := s.Replace(ctx, scope, []store.Chunk{chunk(scope, "keep.go", 0, []float32{1, 0, 0})}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	bad := []store.Chunk{chunk(scope, "bad.go", 0, []float32{1, 0})}
	if err := s.Replace(ctx, scope, bad); !errors.Is(err, store.ErrInvalidVector) {
		t.Fatalf("Replace(bad) error = %v, want ErrInvalidVector", err)
	}

	// The existing data must be untouched: validation happens before delete.
	results, err := s.Search(ctx, scope, []float32{1, 0, 0}, 8)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].FilePath != "keep.go" {
		t.Errorf("prior chunks should survive a rejected replace, got %+v", results)
	}
}

func TestSessions_CreateGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.Create(ctx, "github.com/acme/widget")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess.ID.String() == "" {
		t.Fatal("Create() returned empty session ID")
	}

	got, err := s.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Scope != "github.com/acme/widget" {
		t.Errorf("Get() scope = %q, want github.com/acme/widget", got.Scope)
	}
}

func TestSessions_DistinctIDsAndIndependentHistories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, "github.com/acme/widget")
	if err != nil {
		t.Fatalf("Create(a) error = %v", err)
	}
	b, err := s.Create(ctx, "github.com/acme/widget")
	if err != nil {
		t.Fatalf("Create(b) error = %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("two sessions share ID %s", a.ID)
	}

	err = s.AppendTurns(ctx, a.ID, []store.Turn{
		{Role: store.RoleUser, Content: "what is this repo?"},
		{Role: store.RoleModel, Content: "a widget"},
	})
	if err != nil {
		t.Fatalf("AppendTurns(a) error = %v", err)
	}

	historyB, err := s.History(ctx, b.ID)
	if err != nil {
		t.Fatalf("History(b) error = %v", err)
	}
	if len(historyB) != 0 {
		t.Errorf("appending to session a mutated session b: %+v", historyB)
	}
}

func TestAppendTurns_SequentialOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.Create(ctx, "github.com/acme/widget")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	const n = 4
	for i := 0; i < n; i++ {
		err := s.AppendTurns(ctx, sess.ID, []store.Turn{
			{Role: store.RoleUser, Content: fmt.Sprintf("question %d", i)},
			{Role: store.RoleModel, Content: fmt.Sprintf("answer %d", i)},
		})
		if err != nil {
			t.Fatalf("AppendTurns(%d) error = %v", i, err)
		}
	}

	history, err := s.History(ctx, sess.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2*n {
		t.Fatalf("History() = %d turns, want %d", len(history), 2*n)
	}
	for i, turn := range history {
		wantRole := store.RoleUser
		if i%2 == 1 {
			wantRole = store.RoleModel
		}
		if turn.Role != wantRole {
			t.Errorf("turn %d role = %q, want %q", i, turn.Role, wantRole)
		}
	}
	if history[0].Content != "question 0" || history[2*n-1].Content != fmt.Sprintf("answer %d", n-1) {
		t.Errorf("history out of order: first=%q last=%q", history[0].Content, history[2*n-1].Content)
	}
}

func TestAppendTurns_UnknownSession(t *testing.T) {
	s := newTestStore(t)

	err := s.AppendTurns(context.Background(), uuidMustNew(t), []store.Turn{
		{Role: store.RoleUser, Content: "hello"},
	})
	if !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("AppendTurns(unknown) error = %v, want ErrSessionNotFound", err)
	}
}

func TestAppendTurns_InvalidRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.Create(ctx, "github.com/acme/widget")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err = s.AppendTurns(ctx, sess.ID, []store.Turn{{Role: "system", Content: "nope"}})
	if !errors.Is(err, store.ErrInvalidRole) {
		t.Errorf("AppendTurns(system role) error = %v, want ErrInvalidRole", err)
	}
}

func TestGet_UnknownSession(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), uuidMustNew(t))
	if !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrSessionNotFound", err)
	}
}

func uuidMustNew(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewRandom()
	if err != nil {
		t.Fatalf("uuid.NewRandom() error = %v", err)
	}
	return id
}
