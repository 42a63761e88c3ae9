package handlers

import (
	"net/http"
	"time"

	"cardex-server/models"
	"cardex-server/services"
)

type SessionHandler struct {
	sessions *services.SessionManager
}

type SessionResponse struct {
	UserID   string    `json:"user_id"`
	OpenedAt time.Time `json:"opened_at"`
}

func NewSessionHandler(sessions *services.SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	s := h.sessions.Open(userID)
	writeJSON(w, http.StatusOK, SessionResponse{UserID: s.UserID, OpenedAt: s.OpenedAt})
}

// CloseSession drops the caller's catalog view and in-flight exchanges.
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	h.sessions.Close(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) Categories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]models.CategoryDescriptor{"categories": services.Descriptors()})
}

func (h *SessionHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": h.sessions.Len()})
}
