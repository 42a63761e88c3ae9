package handlers

import (
	"net/http"
	"strconv"

	"cardex-server/middleware"
	"cardex-server/models"
	"cardex-server/services"
	"cardex-server/utils/errors"
)

const defaultNearbyRadiusKm = 3.0

type MapHandler struct {
	cardService *services.CardService
	sessions    *services.SessionManager
}

type AnnotationsResponse struct {
	Annotations []models.RankedAnnotation `json:"annotations"`
	Count       int                       `json:"count"`
	Lat         *float64                  `json:"lat,omitempty"`
	Lon         *float64                  `json:"lon,omitempty"`
}

type NearbyCardsResponse struct {
	NearbyCards []models.RankedAnnotation `json:"nearby_cards"`
	Count       int                       `json:"count"`
	Lat         float64                   `json:"lat"`
	Lon         float64                   `json:"lon"`
	Radius      float64                   `json:"radius"`
}

func NewMapHandler(cardService *services.CardService, sessions *services.SessionManager) *MapHandler {
	return &MapHandler{cardService: cardService, sessions: sessions}
}

// GetAnnotations projects the caller's filtered catalog onto the map.
// With ?lat=&lon= the annotations are ranked by distance from that point.
func (h *MapHandler) GetAnnotations(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	lat, lon, ranked, err := parseLatLon(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	category, ok := services.ParseCategory(r.URL.Query().Get("category"))
	if !ok {
		middleware.WriteError(w, errors.Withf(errors.ErrInvalidInput, "unknown category %q", r.URL.Query().Get("category")))
		return
	}

	view, err := h.sessions.Open(userID).Catalog.Cards(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	annotations := services.Project(services.Filter(view.Cards, r.URL.Query().Get("q"), category))

	response := AnnotationsResponse{}
	if ranked {
		response.Annotations = services.Rank(annotations, lat, lon)
		response.Lat, response.Lon = &lat, &lon
	} else {
		response.Annotations = make([]models.RankedAnnotation, 0, len(annotations))
		for _, a := range annotations {
			response.Annotations = append(response.Annotations, models.RankedAnnotation{MapAnnotation: a})
		}
	}
	response.Count = len(response.Annotations)
	writeJSON(w, http.StatusOK, response)
}

// GetNearbyCards queries the geo index around ?lat=&lon= within ?radius= km.
func (h *MapHandler) GetNearbyCards(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	lat, lon, present, err := parseLatLon(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if !present {
		middleware.WriteError(w, errors.Withf(errors.ErrInvalidInput, "lat and lon are required"))
		return
	}
	radius := defaultNearbyRadiusKm
	if s := r.URL.Query().Get("radius"); s != "" {
		radius, err = strconv.ParseFloat(s, 64)
		if err != nil || radius <= 0 {
			middleware.WriteError(w, errors.Withf(errors.ErrInvalidInput, "invalid radius"))
			return
		}
	}

	cards, err := h.cardService.Nearby(r.Context(), lat, lon, radius, userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NearbyCardsResponse{
		NearbyCards: cards,
		Count:       len(cards),
		Lat:         lat,
		Lon:         lon,
		Radius:      radius,
	})
}
