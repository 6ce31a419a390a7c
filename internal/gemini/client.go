// Package gemini wraps the Google Gemini API behind the two collaborator
// surfaces the RAG pipeline needs: task-typed embeddings and chat-style
// generation with conversational history.
//
// The client is created once at startup from an injected API key and passed
// explicitly into the components that need it, so the pipeline stays
// testable with fake embedders and generators.
package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/koopa0/gitquery/internal/store"
)

// Embedding task types. Retrieval-quality embeddings are asymmetric:
// documents and queries are framed differently even on the same model.
const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// Config holds the Gemini client configuration.
type Config struct {
	// APIKey authenticates against the Gemini API. Required.
	APIKey string

	// Model is the generation model, e.g. "gemini-2.5-flash".
	Model string

	// EmbedderModel is the embedding model, e.g. "gemini-embedding-001".
	EmbedderModel string

	// Dimension is the embedding output dimensionality. The embedder model
	// truncates to this size (Matryoshka representation), and it must match
	// the vector column width in storage.
	Dimension int
}

// Client talks to the Gemini API for embeddings and generation.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	genai  *genai.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a Gemini client from the given configuration.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" || cfg.EmbedderModel == "" {
		return nil, fmt.Errorf("gemini model names are required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Client{genai: c, cfg: cfg, logger: logger}, nil
}

// EmbedDocuments embeds a batch of chunk texts with the document retrieval
// task type. One call per index operation amortizes request overhead; the
// returned vectors correspond positionally to texts.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, taskRetrievalDocument)
}

// EmbedQuery embeds a single user question with the query retrieval task
// type.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("empty embedding response for query")
	}
	return vecs[0], nil
}

func (c *Client) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	dim := int32(c.cfg.Dimension) // #nosec G115 -- validated positive and small in New
	resp, err := c.genai.Models.EmbedContent(ctx, c.cfg.EmbedderModel, contents, &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil {
			continue // caller drops the missing vector
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

// Generate sends the prompt to the generation model with the prior
// conversation supplied as model-visible turns, and returns the model text
// verbatim. Empty output is success with empty content, not an error.
func (c *Client) Generate(ctx context.Context, history []store.Turn, prompt string) (string, error) {
	hist := HistoryContents(history)

	chat, err := c.genai.Chats.Create(ctx, c.cfg.Model, nil, hist)
	if err != nil {
		return "", fmt.Errorf("creating chat: %w", err)
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: prompt})
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}
	return resp.Text(), nil
}

// HistoryContents converts stored turns to genai chat history. Turns keep
// their order; the user/model roles map directly onto the API roles.
func HistoryContents(history []store.Turn) []*genai.Content {
	if len(history) == 0 {
		return nil
	}
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		var role genai.Role = genai.RoleUser
		if turn.Role == store.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	return contents
}
