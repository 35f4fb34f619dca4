package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/pelino250/safeboda/internal/auth"
	"github.com/pelino250/safeboda/internal/rider/domain"
	"github.com/pelino250/safeboda/internal/rider/service"
)

// HTTP exposes the rider directory endpoints.
type HTTP struct {
	directory *service.Directory
}

// NewHTTP constructs the handler.
func NewHTTP(directory *service.Directory) *HTTP {
	return &HTTP{directory: directory}
}

// Router builds the chi router with all rider endpoints. Verification review
// changes listing membership, so it is restricted to staff tokens.
func (h *HTTP) Router(jwtSecret string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Get("/v1/riders/available", h.listAvailable)
	r.Post("/v1/riders", h.register)
	r.Get("/v1/riders/{id}", h.getRider)
	r.Patch("/v1/riders/{id}/location", h.updateLocation)
	r.Patch("/v1/riders/{id}/availability", h.setAvailability)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(jwtSecret, auth.RoleStaff))
		r.Patch("/v1/riders/{id}/verification", h.setVerification)
	})
	return r
}

func (h *HTTP) listAvailable(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snapshot, err := h.directory.ListAvailable(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type registerRequest struct {
	FirstName     string           `json:"first_name"`
	LastName      string           `json:"last_name"`
	PhoneNumber   string           `json:"phone_number"`
	LicenseNumber string           `json:"license_number"`
	Location      *domain.GeoPoint `json:"location,omitempty"`
}

func (h *HTTP) register(w http.ResponseWriter, r *http.Request) {
	var payload registerRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rider, err := h.directory.Register(r.Context(), domain.Rider{
		FirstName:     payload.FirstName,
		LastName:      payload.LastName,
		PhoneNumber:   payload.PhoneNumber,
		LicenseNumber: payload.LicenseNumber,
		Location:      payload.Location,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, riderResponse(rider))
}

func (h *HTTP) getRider(w http.ResponseWriter, r *http.Request) {
	id, ok := riderID(w, r)
	if !ok {
		return
	}
	rider, err := h.directory.GetRider(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, riderResponse(rider))
}

type locationRequest struct {
	Latitude  float64 `json:"current_latitude"`
	Longitude float64 `json:"current_longitude"`
}

func (h *HTTP) updateLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := riderID(w, r)
	if !ok {
		return
	}
	var payload locationRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rider, err := h.directory.UpdateLocation(r.Context(), id, domain.GeoPoint{Lat: payload.Latitude, Lng: payload.Longitude})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, riderResponse(rider))
}

func (h *HTTP) setAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := riderID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Available bool `json:"is_available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rider, err := h.directory.SetAvailability(r.Context(), id, payload.Available)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, riderResponse(rider))
}

func (h *HTTP) setVerification(w http.ResponseWriter, r *http.Request) {
	id, ok := riderID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Status domain.VerificationStatus `json:"verification_status"`
		Notes  string                    `json:"verification_notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !payload.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown verification status")
		return
	}
	rider, err := h.directory.SetVerification(r.Context(), id, payload.Status, payload.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, riderResponse(rider))
}

type riderView struct {
	ID                 uuid.UUID                 `json:"id"`
	FirstName          string                    `json:"first_name"`
	LastName           string                    `json:"last_name"`
	PhoneNumber        string                    `json:"phone_number"`
	LicenseNumber      string                    `json:"license_number"`
	VerificationStatus domain.VerificationStatus `json:"verification_status"`
	VerificationNotes  string                    `json:"verification_notes,omitempty"`
	Available          bool                      `json:"is_available"`
	Latitude           *float64                  `json:"current_latitude"`
	Longitude          *float64                  `json:"current_longitude"`
	AverageRating      float64                   `json:"average_rating"`
	TotalRides         int64                     `json:"total_rides"`
}

func riderResponse(rider domain.Rider) riderView {
	view := riderView{
		ID:                 rider.ID,
		FirstName:          rider.FirstName,
		LastName:           rider.LastName,
		PhoneNumber:        rider.PhoneNumber,
		LicenseNumber:      rider.LicenseNumber,
		VerificationStatus: rider.VerificationStatus,
		VerificationNotes:  rider.VerificationNotes,
		Available:          rider.Available,
		AverageRating:      rider.AverageRating,
		TotalRides:         rider.TotalRides,
	}
	if rider.Location != nil {
		lat, lng := rider.Location.Lat, rider.Location.Lng
		view.Latitude = &lat
		view.Longitude = &lng
	}
	return view
}

func riderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rider id")
		return uuid.Nil, false
	}
	return id, true
}

func filterFromQuery(r *http.Request) (domain.ListFilter, error) {
	q := r.URL.Query()
	radius := q.Get("radius_km")
	if radius == "" {
		return domain.ListFilter{}, nil
	}
	radiusKM, err := strconv.ParseFloat(radius, 64)
	if err != nil || radiusKM <= 0 {
		return domain.ListFilter{}, errors.New("invalid radius_km")
	}
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		return domain.ListFilter{}, errors.New("radius_km requires lat and lng")
	}
	origin := domain.GeoPoint{Lat: lat, Lng: lng}
	if err := origin.Validate(); err != nil {
		return domain.ListFilter{}, err
	}
	return domain.ListFilter{Origin: &origin, RadiusKM: radiusKM}, nil
}

// writeDomainError maps directory errors onto HTTP status codes. Cache-store
// failures never reach this point; only durable-store and validation errors
// are caller-visible.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCoordinates):
		writeError(w, http.StatusBadRequest, "coordinates out of range")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "rider not found")
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "rider store unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
