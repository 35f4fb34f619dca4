package account

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// HTTP exposes registration, verification and login endpoints.
type HTTP struct {
	svc *Service
}

// NewHTTP constructs the handler.
func NewHTTP(svc *Service) *HTTP {
	return &HTTP{svc: svc}
}

// Router builds the chi router for the auth surface.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Post("/register", h.register)
	r.Post("/verify-phone", h.verifyPhone)
	r.Post("/verify-email", h.verifyEmail)
	r.Post("/login", h.login)
	return r
}

type registerPayload struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	UserType    string `json:"user_type"`
	Password    string `json:"password"`
}

func (h *HTTP) register(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := h.svc.Register(r.Context(), RegisterRequest{
		Email:       payload.Email,
		PhoneNumber: payload.PhoneNumber,
		FirstName:   payload.FirstName,
		LastName:    payload.LastName,
		UserType:    UserType(payload.UserType),
		Password:    payload.Password,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrPhoneTaken) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      "registration successful, verification codes sent",
		"user_id":      acct.ID,
		"email":        acct.Email,
		"phone_number": acct.PhoneNumber,
	})
}

type verifyPayload struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Code        string `json:"code"`
}

func (h *HTTP) verifyPhone(w http.ResponseWriter, r *http.Request) {
	var payload verifyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := h.svc.VerifyPhone(r.Context(), payload.PhoneNumber, payload.Code)
	h.writeVerifyResult(w, acct, err)
}

func (h *HTTP) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var payload verifyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := h.svc.VerifyEmail(r.Context(), payload.Email, payload.Code)
	h.writeVerifyResult(w, acct, err)
}

func (h *HTTP) writeVerifyResult(w http.ResponseWriter, acct Account, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"phone_verified": acct.PhoneVerified,
			"email_verified": acct.EmailVerified,
			"is_active":      acct.Active,
		})
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (h *HTTP) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, acct, err := h.svc.Login(r.Context(), payload.Email, payload.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	case errors.Is(err, ErrNotActive):
		writeError(w, http.StatusForbidden, "account not active")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, UserID: acct.ID, UserType: acct.UserType})
}

type loginResponse struct {
	Token    string    `json:"token"`
	UserID   uuid.UUID `json:"user_id"`
	UserType UserType  `json:"user_type"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
