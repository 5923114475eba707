// Package handler exposes the chat engine over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"engram/internal/httputil"
	"engram/internal/service/chat"
)

// ChatHandler serves the chat and session endpoints.
type ChatHandler struct {
	chatService *chat.Service
	logger      *slog.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(chatService *chat.Service, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// HealthCheck responds to liveness probes.
func (h *ChatHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ChatTurn handles POST /api/chat
func (h *ChatHandler) ChatTurn(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	var req chat.ChatRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.chatService.ChatTurn(r.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client went away; nothing useful to write.
			return
		}
		h.logger.Error("chat turn failed", "user_id", userID, "session_id", req.SessionID, "error", err)
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, resp)
}

// ListSessions handles GET /api/sessions
func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	sessions, err := h.chatService.ListSessions(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetHistory handles GET /api/sessions/{id}/history
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	sessionID := r.PathValue("id")

	history, err := h.chatService.GetHistory(r.Context(), userID, sessionID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"turns":      history,
	})
}

// DeleteSession handles DELETE /api/sessions/{id}
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	sessionID := r.PathValue("id")

	if err := h.chatService.DeleteSession(r.Context(), userID, sessionID); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
