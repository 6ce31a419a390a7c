package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/koopa0/gitquery/internal/github"
	"github.com/koopa0/gitquery/internal/store"
)

type chatHandler struct {
	service RAGService
	logger  *slog.Logger
}

type createSessionRequest struct {
	RepoURL string `json:"repoUrl"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// createSession handles POST /api/chat/session.
func (h *chatHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), h.logger)
		return
	}
	if req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, "repoUrl is required", h.logger)
		return
	}

	session, err := h.service.StartSession(r.Context(), req.RepoURL)
	if err != nil {
		if errors.Is(err, github.ErrInvalidLocator) {
			writeError(w, http.StatusBadRequest, "invalid GitHub repository URL", h.logger)
			return
		}
		h.logger.Error("session creation failed", "repoUrl", req.RepoURL, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: session.ID.String()}, h.logger)
}

type askRequest struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
}

// ask handles POST /api/chat/ask.
func (h *chatHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), h.logger)
		return
	}
	if req.SessionID == "" || req.Question == "" {
		writeError(w, http.StatusBadRequest, "sessionId and question are required", h.logger)
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id", h.logger)
		return
	}

	answer, err := h.service.Ask(r.Context(), sessionID, req.Question)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found", h.logger)
			return
		}
		h.logger.Error("ask failed", "sessionId", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to answer question", h.logger)
		return
	}

	// Sources never serializes to null; an empty retrieval is an
	// empty list on the wire.
	if answer.Sources == nil {
		answer.Sources = []store.ScoredChunk{}
	}
	writeJSON(w, http.StatusOK, answer, h.logger)
}
