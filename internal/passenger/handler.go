package passenger

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pelino250/safeboda/internal/auth"
)

// HTTP exposes passenger profile endpoints. All routes require an
// authenticated passenger; identity comes from the JWT claims.
type HTTP struct {
	repo *MemoryRepository
}

// NewHTTP constructs the handler.
func NewHTTP(repo *MemoryRepository) *HTTP {
	return &HTTP{repo: repo}
}

// Router builds the chi router for the passenger surface.
func (h *HTTP) Router(jwtSecret string) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.Middleware(jwtSecret, auth.RolePassenger, auth.RoleStaff))
	r.Post("/", h.create)
	r.Get("/me", h.myProfile)
	r.Put("/me", h.update)
	return r
}

type profilePayload struct {
	PreferredPaymentMethod string `json:"preferred_payment_method"`
	HomeAddress            string `json:"home_address"`
	PreferredLanguage      string `json:"preferred_language"`
	EmergencyContact       string `json:"emergency_contact"`
}

func (h *HTTP) create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	var payload profilePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	profile, err := h.repo.Create(r.Context(), Passenger{
		AccountID:              accountID,
		PreferredPaymentMethod: payload.PreferredPaymentMethod,
		HomeAddress:            payload.HomeAddress,
		PreferredLanguage:      payload.PreferredLanguage,
		EmergencyContact:       payload.EmergencyContact,
	})
	if errors.Is(err, ErrExists) {
		writeError(w, http.StatusConflict, "passenger profile already exists")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (h *HTTP) myProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	profile, err := h.repo.GetByAccount(r.Context(), accountID)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "passenger profile not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *HTTP) update(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	existing, err := h.repo.GetByAccount(r.Context(), accountID)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "passenger profile not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var payload profilePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	existing.PreferredPaymentMethod = payload.PreferredPaymentMethod
	existing.HomeAddress = payload.HomeAddress
	existing.PreferredLanguage = payload.PreferredLanguage
	existing.EmergencyContact = payload.EmergencyContact
	updated, err := h.repo.Update(r.Context(), existing)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing claims")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid subject")
		return uuid.Nil, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
