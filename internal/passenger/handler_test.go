package passenger_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pelino250/safeboda/internal/auth"
	"github.com/pelino250/safeboda/internal/passenger"
)

const secret = "test-secret"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(passenger.NewHTTP(passenger.NewMemoryRepository()).Router(secret))
	t.Cleanup(srv.Close)
	return srv
}

func authedRequest(t *testing.T, method, url, role, accountID, body string) *http.Request {
	t.Helper()
	token, err := auth.IssueToken(secret, accountID, role, time.Hour)
	require.NoError(t, err)
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestProfileLifecycle(t *testing.T) {
	srv := newServer(t)
	accountID := uuid.NewString()

	req := authedRequest(t, http.MethodGet, srv.URL+"/me", auth.RolePassenger, accountID, "")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	req = authedRequest(t, http.MethodPost, srv.URL+"/", auth.RolePassenger, accountID,
		`{"preferred_payment_method":"mobile_money","home_address":"KG 11 Ave","preferred_language":"rw"}`)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created passenger.Passenger
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Equal(t, accountID, created.AccountID.String())

	// A second profile for the same account conflicts.
	req = authedRequest(t, http.MethodPost, srv.URL+"/", auth.RolePassenger, accountID, `{}`)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	req = authedRequest(t, http.MethodPut, srv.URL+"/me", auth.RolePassenger, accountID,
		`{"preferred_payment_method":"cash","preferred_language":"en"}`)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated passenger.Passenger
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	require.Equal(t, "cash", updated.PreferredPaymentMethod)
	require.Equal(t, created.ID, updated.ID)
}

func TestRequiresPassengerRole(t *testing.T) {
	srv := newServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/me", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = authedRequest(t, http.MethodGet, srv.URL+"/me", auth.RoleRider, uuid.NewString(), "")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
