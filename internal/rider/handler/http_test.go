package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pelino250/safeboda/internal/auth"
	"github.com/pelino250/safeboda/internal/rider/cache"
	"github.com/pelino250/safeboda/internal/rider/domain"
	"github.com/pelino250/safeboda/internal/rider/handler"
	"github.com/pelino250/safeboda/internal/rider/repository"
	"github.com/pelino250/safeboda/internal/rider/service"
)

const jwtSecret = "test-secret"

func newServer(t *testing.T) (*httptest.Server, domain.Repository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	snapshots := cache.New(cache.NewMemoryStore(), time.Minute, zap.NewNop())
	directory := service.NewDirectory(repo, snapshots, nil, nil, zap.NewNop())
	srv := httptest.NewServer(handler.NewHTTP(directory).Router(jwtSecret))
	t.Cleanup(srv.Close)
	return srv, repo
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	return doJSONAs(t, method, url, body, "")
}

// doJSONAs attaches a token for the given role; an empty role sends the
// request anonymously.
func doJSONAs(t *testing.T, method, url, body, role string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := auth.IssueToken(jwtSecret, uuid.NewString(), role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func TestRegisterAndFetchRider(t *testing.T) {
	srv, _ := newServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/riders",
		`{"first_name":"Eric","last_name":"Mugisha","phone_number":"+250788800001","license_number":"RW-LIC-001"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "pending", body["verification_status"])
	require.Nil(t, body["current_latitude"])

	id := body["id"].(string)
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/riders/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "+250788800001", body["phone_number"])
}

func TestGetRiderErrors(t *testing.T) {
	srv, _ := newServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/riders/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/riders/"+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLocationUpdateRoundTrip(t *testing.T) {
	srv, repo := newServer(t)
	rider, err := repo.CreateRider(context.Background(), domain.Rider{
		PhoneNumber:        "+250788800001",
		Available:          true,
		VerificationStatus: domain.VerificationApproved,
	})
	require.NoError(t, err)

	resp, body := doJSON(t, http.MethodPatch, srv.URL+"/v1/riders/"+rider.ID.String()+"/location",
		`{"current_latitude":-1.9441,"current_longitude":30.0619}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.InDelta(t, -1.9441, body["current_latitude"].(float64), 1e-9)

	resp, _ = doJSON(t, http.MethodPatch, srv.URL+"/v1/riders/"+rider.ID.String()+"/location",
		`{"current_latitude":95,"current_longitude":0}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAvailableListingReflectsWrites(t *testing.T) {
	srv, repo := newServer(t)
	rider, err := repo.CreateRider(context.Background(), domain.Rider{
		PhoneNumber:        "+250788800001",
		Available:          true,
		VerificationStatus: domain.VerificationApproved,
	})
	require.NoError(t, err)

	listing := fetchListing(t, srv.URL+"/v1/riders/available")
	require.Len(t, listing, 1)

	resp, _ := doJSON(t, http.MethodPatch, srv.URL+"/v1/riders/"+rider.ID.String()+"/availability",
		`{"is_available":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Empty(t, fetchListing(t, srv.URL+"/v1/riders/available"))
}

func TestVerificationEndpoint(t *testing.T) {
	srv, repo := newServer(t)
	rider, err := repo.CreateRider(context.Background(), domain.Rider{
		PhoneNumber:        "+250788800001",
		Available:          true,
		VerificationStatus: domain.VerificationPending,
	})
	require.NoError(t, err)

	url := srv.URL + "/v1/riders/" + rider.ID.String() + "/verification"
	resp, _ := doJSONAs(t, http.MethodPatch, url, `{"verification_status":"banana"}`, auth.RoleStaff)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSONAs(t, http.MethodPatch, url,
		`{"verification_status":"approved","verification_notes":"documents ok"}`, auth.RoleStaff)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "approved", body["verification_status"])

	require.Len(t, fetchListing(t, srv.URL+"/v1/riders/available"), 1)
}

func TestVerificationRequiresStaff(t *testing.T) {
	srv, repo := newServer(t)
	rider, err := repo.CreateRider(context.Background(), domain.Rider{
		PhoneNumber:        "+250788800001",
		Available:          true,
		VerificationStatus: domain.VerificationPending,
	})
	require.NoError(t, err)

	url := srv.URL + "/v1/riders/" + rider.ID.String() + "/verification"
	payload := `{"verification_status":"approved"}`

	resp, _ := doJSON(t, http.MethodPatch, url, payload)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSONAs(t, http.MethodPatch, url, payload, auth.RoleRider)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The pending rider must not have been approved by either attempt.
	fetched, err := repo.GetRiderByID(context.Background(), rider.ID)
	require.NoError(t, err)
	require.Equal(t, domain.VerificationPending, fetched.VerificationStatus)
}

func TestRadiusQueryValidation(t *testing.T) {
	srv, _ := newServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/riders/available?radius_km=-2", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/riders/available?radius_km=5", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/riders/available?radius_km=5&lat=-1.95&lng=30.06", nil)
	require.NoError(t, err)
	ok, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer ok.Body.Close()
	require.Equal(t, http.StatusOK, ok.StatusCode)
}

// failingRepo reports an unclassified infrastructure failure on reads.
type failingRepo struct {
	domain.Repository
}

func (failingRepo) ListAvailable(context.Context) ([]domain.Rider, error) {
	return nil, errors.New("pool exhausted: connection refused 10.1.2.3:5432")
}

func TestUnexpectedErrorIsOpaque500(t *testing.T) {
	repo := failingRepo{Repository: repository.NewMemoryRepository()}
	snapshots := cache.New(cache.NewMemoryStore(), time.Minute, zap.NewNop())
	directory := service.NewDirectory(repo, snapshots, nil, nil, zap.NewNop())
	srv := httptest.NewServer(handler.NewHTTP(directory).Router(jwtSecret))
	t.Cleanup(srv.Close)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/riders/available", "")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "internal error", body["error"])
	require.NotContains(t, body["error"], "10.1.2.3")
}

func fetchListing(t *testing.T, url string) []map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	return listing
}
