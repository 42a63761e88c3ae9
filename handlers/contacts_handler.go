package handlers

import (
	"net/http"

	"cardex-server/middleware"
	"cardex-server/models"
	"cardex-server/services"
	"cardex-server/utils/errors"

	"github.com/gorilla/mux"
)

type ContactsHandler struct {
	ledger      *services.SavedContactsLedger
	cardService *services.CardService
}

type SavedContactsResponse struct {
	CardIDs []string `json:"card_ids"`
	Count   int      `json:"count"`
}

type SavedCardsResponse struct {
	Cards   []models.Card `json:"cards"`
	Count   int           `json:"count"`
	Missing []string      `json:"missing,omitempty"`
}

func NewContactsHandler(ledger *services.SavedContactsLedger, cardService *services.CardService) *ContactsHandler {
	return &ContactsHandler{ledger: ledger, cardService: cardService}
}

func (h *ContactsHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	ids, err := h.ledger.List(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SavedContactsResponse{CardIDs: ids, Count: len(ids)})
}

func (h *ContactsHandler) ListContactCards(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	saved, err := h.ledger.Cards(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SavedCardsResponse{Cards: saved.Cards, Count: len(saved.Cards), Missing: saved.Missing})
}

// AddContact saves a card by id without going through an exchange.
func (h *ContactsHandler) AddContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var input struct {
		CardID string `json:"card_id"`
	}
	if err := decodeJSON(w, r, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if input.CardID == userID {
		middleware.WriteError(w, errors.ErrSelfExchange)
		return
	}
	if _, err := h.cardService.Get(r.Context(), input.CardID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	result, err := h.ledger.Add(r.Context(), userID, input.CardID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	status := http.StatusCreated
	if result == models.AlreadyPresent {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]string{"card_id": input.CardID, "result": string(result)})
}

func (h *ContactsHandler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	if err := h.ledger.Remove(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
