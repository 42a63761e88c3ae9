package handlers

import (
	"net/http"

	"cardex-server/middleware"
	"cardex-server/models"
	"cardex-server/services"
	"cardex-server/utils/errors"

	"github.com/gorilla/mux"
)

type ExchangeHandler struct {
	sessions *services.SessionManager
}

type StartExchangeResponse struct {
	Exchange     models.ExchangeSnapshot `json:"exchange"`
	Presentation models.Presentation     `json:"presentation"`
}

func NewExchangeHandler(sessions *services.SessionManager) *ExchangeHandler {
	return &ExchangeHandler{sessions: sessions}
}

// session returns the caller's open session. Exchanges live in a session,
// so without one the exchange is not found.
func (h *ExchangeHandler) session(w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	userID, ok := callerID(w, r)
	if !ok {
		return nil, false
	}
	s, ok := h.sessions.Get(userID)
	if !ok {
		middleware.WriteError(w, errors.Withf(errors.ErrNotFound, "exchange %s", mux.Vars(r)["id"]))
		return nil, false
	}
	return s, true
}

func (h *ExchangeHandler) exchange(w http.ResponseWriter, r *http.Request) (*services.Exchange, bool) {
	s, ok := h.session(w, r)
	if !ok {
		return nil, false
	}
	ex, err := s.Exchange(mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, err)
		return nil, false
	}
	return ex, true
}

// StartExchange opens an exchange and returns what to present.
func (h *ExchangeHandler) StartExchange(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var input struct {
		Transport models.Transport `json:"transport"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}
	ex, p, err := h.sessions.Open(userID).StartExchange(input.Transport)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, StartExchangeResponse{Exchange: ex.Snapshot(), Presentation: p})
}

func (h *ExchangeHandler) GetExchange(w http.ResponseWriter, r *http.Request) {
	ex, ok := h.exchange(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ex.Snapshot())
}

func (h *ExchangeHandler) Detect(w http.ResponseWriter, r *http.Request) {
	ex, ok := h.exchange(w, r)
	if !ok {
		return
	}
	var payload services.DetectPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		middleware.WriteError(w, err)
		return
	}
	snap, err := ex.Detect(payload)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *ExchangeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ex, ok := h.exchange(w, r)
	if !ok {
		return
	}
	snap, err := ex.Resolve(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Fail records a client side transport error.
func (h *ExchangeHandler) Fail(w http.ResponseWriter, r *http.Request) {
	ex, ok := h.exchange(w, r)
	if !ok {
		return
	}
	var input struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}
	snap, err := ex.Fail(input.Reason)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *ExchangeHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ex, ok := h.exchange(w, r)
	if !ok {
		return
	}
	snap, err := ex.Reset()
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Abandon returns the exchange to idle and forgets it.
func (h *ExchangeHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := s.RemoveExchange(mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Scan runs a whole receive-side exchange in one call: the client already
// holds the scanned payload.
func (h *ExchangeHandler) Scan(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var input struct {
		Transport models.Transport       `json:"transport"`
		Payload   services.DetectPayload `json:"payload"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}
	ex, _, err := h.sessions.Open(userID).StartExchange(input.Transport)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	snap, err := ex.Detect(input.Payload)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if snap.State == models.StateDetected {
		if snap, err = ex.Resolve(r.Context()); err != nil {
			middleware.WriteError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, snap)
}
