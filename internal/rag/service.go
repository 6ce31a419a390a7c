// Package rag orchestrates the indexing and question-answering pipeline:
// fetch, chunk, embed, store, retrieve, and generate.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/koopa0/gitquery/internal/github"
	"github.com/koopa0/gitquery/internal/ingest"
	"github.com/koopa0/gitquery/internal/store"
)

// ErrNoIndexableContent reports a repository whose relevant files all
// turned out to be empty or unembeddable.
var ErrNoIndexableContent = errors.New("rag: repository has no indexable content")

// DefaultTopK is how many chunks are retrieved per question.
const DefaultTopK = 8

// Fetcher lists and downloads a repository's relevant files.
type Fetcher interface {
	Fetch(ctx context.Context, loc github.Locator) ([]github.File, error)
}

// Embedder produces vectors for documents and queries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces a model answer from conversation history and a
// composed prompt.
type Generator interface {
	Generate(ctx context.Context, history []store.Turn, prompt string) (string, error)
}

// Service wires the pipeline together.
type Service struct {
	fetcher   Fetcher
	chunker   *ingest.Chunker
	embedder  Embedder
	generator Generator
	index     store.VectorIndex
	sessions  store.SessionStore
	topK      int
	logger    *slog.Logger
}

// Config holds the service's tunables.
type Config struct {
	// TopK is the retrieval depth per question. Non-positive values
	// fall back to DefaultTopK.
	TopK int
}

// New builds a Service. All collaborators are required.
func New(cfg Config, fetcher Fetcher, chunker *ingest.Chunker, embedder Embedder,
	generator Generator, index store.VectorIndex, sessions store.SessionStore,
	logger *slog.Logger) (*Service, error) {
	switch {
	case fetcher == nil:
		return nil, errors.New("rag: fetcher is required")
	case chunker == nil:
		return nil, errors.New("rag: chunker is required")
	case embedder == nil:
		return nil, errors.New("rag: embedder is required")
	case generator == nil:
		return nil, errors.New("rag: generator is required")
	case index == nil:
		return nil, errors.New("rag: vector index is required")
	case sessions == nil:
		return nil, errors.New("rag: session store is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Service{
		fetcher:   fetcher,
		chunker:   chunker,
		embedder:  embedder,
		generator: generator,
		index:     index,
		sessions:  sessions,
		topK:      cfg.TopK,
		logger:    logger,
	}, nil
}

// IndexResult summarizes a completed indexing run.
type IndexResult struct {
	Scope          string `json:"repoUrl"`
	ChunkCount     int    `json:"chunkCount"`
	ValidFileCount int    `json:"validFileCount"`
}

// IndexRepository fetches repoURL, chunks its relevant files, embeds
// the chunks, and replaces the repository's slice of the vector index.
// Chunks whose embedding fails are dropped rather than failing the run;
// an entirely unembeddable repository returns ErrNoIndexableContent.
func (s *Service) IndexRepository(ctx context.Context, repoURL string) (*IndexResult, error) {
	loc, err := github.ParseLocator(repoURL)
	if err != nil {
		return nil, err
	}
	scope := loc.String()

	files, err := s.fetcher.Fetch(ctx, loc)
	if err != nil {
		return nil, err
	}

	candidates := s.chunker.Split(files)
	texts := make([]string, 0, len(candidates))
	kept := make([]ingest.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		texts = append(texts, c.Text)
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoIndexableContent, scope)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(kept) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(kept))
	}

	chunks := make([]store.Chunk, 0, len(kept))
	for i, c := range kept {
		if len(vectors[i]) == 0 {
			s.logger.Warn("dropping chunk without embedding",
				slog.String("scope", scope),
				slog.String("file", c.FilePath),
				slog.Int("seq", c.Seq))
			continue
		}
		chunks = append(chunks, store.Chunk{
			Scope:    scope,
			FilePath: c.FilePath,
			Seq:      c.Seq,
			Text:     c.Text,
			Vector:   vectors[i],
		})
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoIndexableContent, scope)
	}

	if err := s.index.Replace(ctx, scope, chunks); err != nil {
		return nil, fmt.Errorf("replace index for %s: %w", scope, err)
	}

	s.logger.Info("repository indexed",
		slog.String("scope", scope),
		slog.Int("files", len(files)),
		slog.Int("chunks", len(chunks)))

	return &IndexResult{
		Scope:          scope,
		ChunkCount:     len(chunks),
		ValidFileCount: len(files),
	}, nil
}

// StartSession opens a conversation scoped to repoURL. The repository
// does not have to be indexed yet; questions asked before indexing
// simply retrieve nothing.
func (s *Service) StartSession(ctx context.Context, repoURL string) (*store.Session, error) {
	loc, err := github.ParseLocator(repoURL)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.Create(ctx, loc.String())
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Answer is a generated reply plus the chunks it was grounded on.
type Answer struct {
	Text    string              `json:"answer"`
	Sources []store.ScoredChunk `json:"sources"`
}

// Ask answers question within the session's conversation, retrieving
// the most relevant chunks from the session's repository scope. The
// user question and the model reply are appended to the transcript
// after a successful generation.
func (s *Service) Ask(ctx context.Context, sessionID uuid.UUID, question string) (*Answer, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	sources, err := s.index.Search(ctx, session.Scope, queryVector, s.topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	prompt := ComposePrompt(FormatContext(sources), question)
	answer, err := s.generator.Generate(ctx, history, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	turns := []store.Turn{
		{Role: store.RoleUser, Content: question},
		{Role: store.RoleModel, Content: answer},
	}
	if err := s.sessions.AppendTurns(ctx, sessionID, turns); err != nil {
		return nil, fmt.Errorf("append turns: %w", err)
	}

	s.logger.Info("question answered",
		slog.String("session", sessionID.String()),
		slog.String("scope", session.Scope),
		slog.Int("sources", len(sources)))

	return &Answer{Text: answer, Sources: sources}, nil
}
