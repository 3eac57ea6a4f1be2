// Package server exposes the chat API over HTTP: an authenticated tenant
// endpoint and a public endpoint gated by a bearer API key resolved to an
// agent.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/docuchat/docuchat/internal/docstore"
	"github.com/docuchat/docuchat/internal/session"
)

// genericFailure is the only error text end users ever see from chat-time
// failures. Provider-specific details stay in the logs.
const genericFailure = "failed to process your request"

// ChatRequest is the chat API request payload.
type ChatRequest struct {
	Question  string `json:"question"`
	AgentID   string `json:"agentId"`
	SessionID string `json:"sessionId,omitempty"`
}

// Handler serves the chat endpoints.
type Handler struct {
	chat   *ChatService
	agents AgentResolver
	logger *slog.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(chat *ChatService, agents AgentResolver) *Handler {
	return &Handler{
		chat:   chat,
		agents: agents,
		logger: slog.Default().With("component", "http"),
	}
}

// Chat handles POST /api/chat for authenticated dashboard traffic.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Question == "" || req.AgentID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "question and agentId are required")
		return
	}
	h.answer(w, r, req)
}

// PublicChat handles POST /public/chat. The bearer API key resolves to the
// agent; the payload only carries the question and optional session.
func (h *Handler) PublicChat(w http.ResponseWriter, r *http.Request) {
	key := bearerToken(r)
	if key == "" {
		writeError(w, h.logger, http.StatusUnauthorized, "missing api key")
		return
	}
	agentID, err := h.agents.ResolveAPIKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, docstore.ErrInvalidAPIKey) {
			writeError(w, h.logger, http.StatusUnauthorized, "invalid api key")
			return
		}
		h.logger.Error("api key resolution failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, genericFailure)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Question == "" {
		writeError(w, h.logger, http.StatusBadRequest, "question is required")
		return
	}
	req.AgentID = agentID
	h.answer(w, r, req)
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request, req ChatRequest) {
	resp, err := h.chat.Answer(r.Context(), req.AgentID, req.Question, req.SessionID)
	if err != nil {
		if errors.Is(err, docstore.ErrAgentNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "agent not found")
			return
		}
		h.logger.Error("chat request failed", "agent_id", req.AgentID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, genericFailure)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// SessionHistory handles GET /api/sessions/{id}.
func (h *Handler) SessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "session id is required")
		return
	}
	turns, err := h.chat.History(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("session history lookup failed", "session_id", sessionID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, genericFailure)
		return
	}
	if turns == nil {
		turns = []session.Turn{}
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"sessionId": sessionID, "turns": turns})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	writeJSON(w, logger, status, map[string]string{"error": message})
}
