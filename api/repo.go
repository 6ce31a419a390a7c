package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/koopa0/gitquery/internal/github"
	"github.com/koopa0/gitquery/internal/rag"
)

const maxRequestBody = 1 << 20 // 1 MiB

type repoHandler struct {
	service RAGService
	logger  *slog.Logger
}

type indexRequest struct {
	RepoURL string `json:"repoUrl"`
}

type indexResponse struct {
	Message        string `json:"message"`
	ChunkCount     int    `json:"chunkCount"`
	ValidFileCount int    `json:"validFileCount"`
}

// index handles POST /api/repo/index.
func (h *repoHandler) index(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), h.logger)
		return
	}
	if req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, "repoUrl is required", h.logger)
		return
	}

	res, err := h.service.IndexRepository(r.Context(), req.RepoURL)
	if err != nil {
		status, msg := indexErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("indexing failed", "repoUrl", req.RepoURL, "error", err)
		}
		writeError(w, status, msg, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, indexResponse{
		Message:        fmt.Sprintf("Repository %s indexed successfully", res.Scope),
		ChunkCount:     res.ChunkCount,
		ValidFileCount: res.ValidFileCount,
	}, h.logger)
}

func indexErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, github.ErrInvalidLocator):
		return http.StatusBadRequest, "invalid GitHub repository URL"
	case errors.Is(err, github.ErrNoRelevantFiles):
		return http.StatusBadRequest, "repository contains no relevant files"
	case errors.Is(err, rag.ErrNoIndexableContent):
		return http.StatusBadRequest, "repository contains no indexable content"
	default:
		return http.StatusInternalServerError, "failed to index repository"
	}
}

// decodeJSON reads a size-limited JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
