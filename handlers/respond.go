package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"cardex-server/middleware"
	"cardex-server/utils/errors"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.WithDetails(errors.ErrInvalidInput, err)
	}
	return nil
}

func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}

// parseLatLon reads lat and lon query parameters. present is false when
// both are absent.
func parseLatLon(r *http.Request) (lat, lon float64, present bool, err error) {
	q := r.URL.Query()
	if q.Get("lat") == "" && q.Get("lon") == "" {
		return 0, 0, false, nil
	}
	lat, err = strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return 0, 0, true, errors.Withf(errors.ErrInvalidInput, "invalid lat")
	}
	lon, err = strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return 0, 0, true, errors.Withf(errors.ErrInvalidInput, "invalid lon")
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, true, errors.Withf(errors.ErrInvalidInput, "coordinates out of range")
	}
	return lat, lon, true, nil
}
