package handlers

import (
	"net/http"
	"time"

	"cardex-server/middleware"
	"cardex-server/services"
	"cardex-server/utils/errors"

	chimw "github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"
)

type RouterOptions struct {
	JWTSecret      string
	AllowedOrigins []string
	// RateLimit is requests per minute per client IP. Zero disables it.
	RateLimit      int
	RequestTimeout time.Duration
}

// NewRouter wires every HTTP route onto a gorilla/mux router.
func NewRouter(cardService *services.CardService, ledger *services.SavedContactsLedger, sessions *services.SessionManager, opts RouterOptions) *mux.Router {
	cardHandler := NewCardHandler(cardService, ledger, sessions)
	contactsHandler := NewContactsHandler(ledger, cardService)
	exchangeHandler := NewExchangeHandler(sessions)
	mapHandler := NewMapHandler(cardService, sessions)
	sessionHandler := NewSessionHandler(sessions)

	r := mux.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP)
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorMiddleware())
	if opts.RequestTimeout > 0 {
		r.Use(chimw.Timeout(opts.RequestTimeout))
	}
	r.Use(middleware.CORSMiddleware(opts.AllowedOrigins))
	if opts.RateLimit > 0 {
		r.Use(httprate.LimitByIP(opts.RateLimit, time.Minute))
	}

	r.HandleFunc("/health", sessionHandler.Health).Methods("GET", "OPTIONS")
	r.HandleFunc("/categories", sessionHandler.Categories).Methods("GET", "OPTIONS")

	api := r.NewRoute().Subrouter()
	api.Use(middleware.JWTMiddleware(opts.JWTSecret))

	api.HandleFunc("/session", sessionHandler.OpenSession).Methods("POST", "OPTIONS")
	api.HandleFunc("/session", sessionHandler.CloseSession).Methods("DELETE", "OPTIONS")

	// Card routes
	api.HandleFunc("/cards", cardHandler.ListCards).Methods("GET", "OPTIONS")
	api.HandleFunc("/cards/reload", cardHandler.ReloadCards).Methods("POST", "OPTIONS")
	api.HandleFunc("/cards/me", cardHandler.PutMyCard).Methods("PUT", "OPTIONS")
	api.HandleFunc("/cards/me", cardHandler.DeleteMyCard).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/cards/{id}", cardHandler.GetCard).Methods("GET", "OPTIONS")
	api.HandleFunc("/cards/{id}/qr", cardHandler.GetCardQR).Methods("GET", "OPTIONS")

	// Saved contacts
	api.HandleFunc("/contacts", contactsHandler.ListContacts).Methods("GET", "OPTIONS")
	api.HandleFunc("/contacts", contactsHandler.AddContact).Methods("POST", "OPTIONS")
	api.HandleFunc("/contacts/cards", contactsHandler.ListContactCards).Methods("GET", "OPTIONS")
	api.HandleFunc("/contacts/{id}", contactsHandler.RemoveContact).Methods("DELETE", "OPTIONS")

	// Exchanges
	api.HandleFunc("/exchanges", exchangeHandler.StartExchange).Methods("POST", "OPTIONS")
	api.HandleFunc("/exchanges/scan", exchangeHandler.Scan).Methods("POST", "OPTIONS")
	api.HandleFunc("/exchanges/{id}", exchangeHandler.GetExchange).Methods("GET", "OPTIONS")
	api.HandleFunc("/exchanges/{id}", exchangeHandler.Abandon).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/exchanges/{id}/detect", exchangeHandler.Detect).Methods("POST", "OPTIONS")
	api.HandleFunc("/exchanges/{id}/resolve", exchangeHandler.Resolve).Methods("POST", "OPTIONS")
	api.HandleFunc("/exchanges/{id}/fail", exchangeHandler.Fail).Methods("POST", "OPTIONS")
	api.HandleFunc("/exchanges/{id}/reset", exchangeHandler.Reset).Methods("POST", "OPTIONS")

	// Map
	api.HandleFunc("/map/annotations", mapHandler.GetAnnotations).Methods("GET", "OPTIONS")
	api.HandleFunc("/map/nearby", mapHandler.GetNearbyCards).Methods("GET", "OPTIONS")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, errors.ErrNotFound)
	})
	return r
}
