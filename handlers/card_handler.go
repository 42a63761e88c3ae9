package handlers

import (
	"net/http"
	"strconv"
	"time"

	"cardex-server/middleware"
	"cardex-server/models"
	"cardex-server/services"
	"cardex-server/utils/errors"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

type CardHandler struct {
	cardService *services.CardService
	ledger      *services.SavedContactsLedger
	sessions    *services.SessionManager
}

type CatalogResponse struct {
	Cards    []models.Card   `json:"cards"`
	Count    int             `json:"count"`
	Total    int             `json:"total"`
	Skipped  int             `json:"skipped"`
	Query    string          `json:"query,omitempty"`
	Category models.Category `json:"category"`
	LoadedAt time.Time       `json:"loaded_at"`
}

func NewCardHandler(cardService *services.CardService, ledger *services.SavedContactsLedger, sessions *services.SessionManager) *CardHandler {
	return &CardHandler{cardService: cardService, ledger: ledger, sessions: sessions}
}

// ListCards serves the session catalog filtered by ?q= and ?category=.
func (h *CardHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	category, ok := services.ParseCategory(r.URL.Query().Get("category"))
	if !ok {
		middleware.WriteError(w, errors.Withf(errors.ErrInvalidInput, "unknown category %q", r.URL.Query().Get("category")))
		return
	}
	query := r.URL.Query().Get("q")

	view, err := h.sessions.Open(userID).Catalog.Cards(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	cards := services.Filter(view.Cards, query, category)
	writeJSON(w, http.StatusOK, CatalogResponse{
		Cards:    cards,
		Count:    len(cards),
		Total:    len(view.Cards),
		Skipped:  view.Skipped,
		Query:    query,
		Category: category,
		LoadedAt: view.LoadedAt,
	})
}

// ReloadCards forces a fresh catalog load for the caller's session.
func (h *CardHandler) ReloadCards(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	view, err := h.sessions.Open(userID).Catalog.Load(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     len(view.Cards),
		"skipped":   view.Skipped,
		"loaded_at": view.LoadedAt,
	})
}

func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.cardService.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	card.Category = services.Classify(card.Role)
	card.Color = card.DisplayColor()
	writeJSON(w, http.StatusOK, card)
}

// GetCardQR renders the card id as a QR code PNG.
func (h *CardHandler) GetCardQR(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.cardService.Get(r.Context(), id); err != nil {
		middleware.WriteError(w, err)
		return
	}
	size := defaultQRSize
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 64 || n > maxQRSize {
			middleware.WriteError(w, errors.Withf(errors.ErrInvalidInput, "size must be between 64 and %d", maxQRSize))
			return
		}
		size = n
	}
	png, err := qrcode.Encode(id, qrcode.Medium, size)
	if err != nil {
		middleware.WriteError(w, errors.WithDetails(errors.ErrInternal, err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(png)
}

// PutMyCard replaces the caller's card.
func (h *CardHandler) PutMyCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var input models.Card
	if err := decodeJSON(w, r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}
	card, err := h.cardService.Put(r.Context(), userID, input)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	h.sessions.InvalidateCatalogs()

	card.Category = services.Classify(card.Role)
	card.Color = card.DisplayColor()
	writeJSON(w, http.StatusOK, card)
}

// DeleteMyCard removes the caller's card and saved contacts, then ends
// their session.
func (h *CardHandler) DeleteMyCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	if err := h.cardService.Delete(r.Context(), userID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.ledger.Drop(r.Context(), userID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	h.sessions.Close(userID)
	h.sessions.InvalidateCatalogs()
	log.Infof("Deleted account data for user %s", userID)
	w.WriteHeader(http.StatusNoContent)
}
