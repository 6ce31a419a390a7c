package gemini

import (
	"context"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/koopa0/gitquery/internal/log"
	"github.com/koopa0/gitquery/internal/store"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing api key",
			cfg:     Config{Model: "gemini-2.5-flash", EmbedderModel: "gemini-embedding-001", Dimension: 768},
			wantErr: "API key",
		},
		{
			name:    "missing model",
			cfg:     Config{APIKey: "k", EmbedderModel: "gemini-embedding-001", Dimension: 768},
			wantErr: "model names",
		},
		{
			name:    "missing embedder model",
			cfg:     Config{APIKey: "k", Model: "gemini-2.5-flash", Dimension: 768},
			wantErr: "model names",
		},
		{
			name:    "zero dimension",
			cfg:     Config{APIKey: "k", Model: "gemini-2.5-flash", EmbedderModel: "gemini-embedding-001"},
			wantErr: "dimension",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.cfg, log.NewNop())
			if err == nil {
				t.Fatal("New() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %q, want contains %q", err, tt.wantErr)
			}
		})
	}
}

func TestHistoryContents(t *testing.T) {
	history := []store.Turn{
		{Role: store.RoleUser, Content: "what does main.py do?"},
		{Role: store.RoleModel, Content: "Based on the repository files..."},
		{Role: store.RoleUser, Content: "and the tests?"},
	}

	contents := HistoryContents(history)
	if len(contents) != 3 {
		t.Fatalf("HistoryContents() = %d contents, want 3", len(contents))
	}

	wantRoles := []genai.Role{genai.RoleUser, genai.RoleModel, genai.RoleUser}
	for i, c := range contents {
		if c.Role != string(wantRoles[i]) {
			t.Errorf("content %d role = %q, want %q", i, c.Role, wantRoles[i])
		}
		if len(c.Parts) == 0 || c.Parts[0].Text != history[i].Content {
			t.Errorf("content %d text does not match turn content", i)
		}
	}
}

func TestHistoryContents_Empty(t *testing.T) {
	if got := HistoryContents(nil); got != nil {
		t.Errorf("HistoryContents(nil) = %v, want nil", got)
	}
}
