package www

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"deliverydash/backend"
	"deliverydash/engine"
)

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// engineError maps engine and backend failures onto HTTP statuses.
func (h *Handlers) engineError(w http.ResponseWriter, err error) {
	var he *backend.HTTPError
	switch {
	case errors.Is(err, engine.ErrNotLoggedIn), errors.Is(err, backend.ErrUnauthorized):
		h.jsonError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, engine.ErrInvalidTarget):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrNoRobot), errors.Is(err, engine.ErrNoRequest), errors.Is(err, engine.ErrNoMap):
		h.jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, engine.ErrNoTrajectory), errors.Is(err, backend.ErrNotFound):
		h.jsonError(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &he):
		h.jsonError(w, err.Error(), http.StatusBadGateway)
	default:
		log.Printf("www: %v", err)
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func parseFloatQuery(r *http.Request, name string) (float64, error) {
	return strconv.ParseFloat(r.URL.Query().Get(name), 64)
}
