package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/booking-engine/api"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/engine"
	"github.com/warp/booking-engine/events"
	"github.com/warp/booking-engine/ledger"
	"github.com/warp/booking-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	store := memory.New()
	led := ledger.New(store, 5*time.Second, zerolog.Nop())
	eng := engine.New(store, led, events.NopPublisher{}, engine.Config{
		Policy: booking.StandardCancellationPolicy(),
		Logger: zerolog.Nop(),
	})

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(eng, led, store)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func createSession(t *testing.T, srv *httptest.Server, kind string, capacity int) string {
	t.Helper()
	start := time.Now().Add(72 * time.Hour).UTC()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/sessions", api.CreateSessionRequest{
		Kind:           kind,
		StartAt:        start.Format(time.RFC3339),
		EndAt:          start.Add(time.Hour).Format(time.RFC3339),
		Capacity:       capacity,
		InstructorID:   "inst-1",
		InstructorTier: 2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string)
}

func createPackage(t *testing.T, srv *httptest.Server, customerID, kind string, tier, credits int) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/packages", api.CreatePackageRequest{
		CustomerID: customerID,
		Allowances: []api.AllowanceDTO{
			{ID: "a-1", Kind: kind, Tier: tier, UnitMinutes: 60, Granted: credits},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string)
}

// =============================================================================
// SESSIONS AND PACKAGES
// =============================================================================

func TestAPI_CreateAndGetSession(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv, "GROUP", 5)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "GROUP", body["kind"])
	assert.Equal(t, "SCHEDULED", body["status"])
	assert.Equal(t, true, body["open_seat"])
}

func TestAPI_GetSession_Unknown_404(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CreatePackage_WritesGrantEntry(t *testing.T) {
	srv := newTestServer(t)
	id := createPackage(t, srv, "cust-1", "GROUP", 2, 10)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/packages/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/packages/"+id+"/entries", nil)
	require.NoError(t, err)
	entriesResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer entriesResp.Body.Close()

	var entries []api.LedgerEntryDTO
	require.NoError(t, json.NewDecoder(entriesResp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "grant", entries[0].Kind)
	assert.Equal(t, 10, entries[0].Delta)
}

func TestAPI_CreatePackage_LegacyAllowances_Resolved(t *testing.T) {
	// GIVEN: A storefront export in the historical allowance format
	// WHEN: Registering the package
	// THEN: Allowances come back in the current typed shape

	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/packages", map[string]any{
		"customer_id": "cust-1",
		"legacy_allowances": []map[string]any{
			{"type": "one_on_one", "level": 3, "duration": 60, "credits": 5},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	allowances := body["allowances"].([]any)
	require.Len(t, allowances, 1)
	first := allowances[0].(map[string]any)
	assert.Equal(t, "PRIVATE", first["kind"])
	assert.Equal(t, "legacy-00", first["id"])
}

func TestAPI_CreatePackage_BothFormats_400(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/packages", map[string]any{
		"customer_id":       "cust-1",
		"allowances":        []map[string]any{{"id": "a", "kind": "GROUP", "tier": 1, "unit_minutes": 60, "granted": 1}},
		"legacy_allowances": []map[string]any{{"type": "group", "duration": 60, "credits": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// BOOKINGS
// =============================================================================

func TestAPI_CreateBooking_HappyPath(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createSession(t, srv, "GROUP", 5)
	pkgID := createPackage(t, srv, "cust-1", "GROUP", 2, 10)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/bookings", api.CreateBookingRequest{
		CustomerID: "cust-1",
		SessionID:  sessionID,
		PackageID:  pkgID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "CONFIRMED", body["status"])
	assert.Equal(t, float64(1), body["credits_debited"])
}

func TestAPI_CreateBooking_CrossTier_409UntilConfirmed(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createSession(t, srv, "GROUP", 5)
	pkgID := createPackage(t, srv, "cust-1", "PRIVATE", 3, 10)

	req := api.CreateBookingRequest{
		CustomerID: "cust-1",
		SessionID:  sessionID,
		PackageID:  pkgID,
	}
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/bookings", req)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "confirmation")

	req.CrossTierConfirmed = true
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/bookings", req)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestAPI_CreateBooking_InsufficientCredits_402(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createSession(t, srv, "GROUP", 5)
	pkgID := createPackage(t, srv, "cust-1", "GROUP", 2, 1)

	// Drain the package first.
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/bookings", api.CreateBookingRequest{
		CustomerID: "cust-1", SessionID: sessionID, PackageID: pkgID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	other := createSession(t, srv, "GROUP", 5)
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/bookings", api.CreateBookingRequest{
		CustomerID: "cust-1", SessionID: other, PackageID: pkgID,
	})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
}

func TestAPI_CancelBooking_RefundReported(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createSession(t, srv, "GROUP", 5)
	pkgID := createPackage(t, srv, "cust-1", "GROUP", 2, 10)

	_, created := doJSON(t, http.MethodPost, srv.URL+"/api/bookings", api.CreateBookingRequest{
		CustomerID: "cust-1", SessionID: sessionID, PackageID: pkgID,
	})
	bookingID := created["id"].(string)

	resp, body := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/bookings/%s/cancel", srv.URL, bookingID),
		api.CancelBookingRequest{ActorID: "cust-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["refunded"])
	assert.Equal(t, float64(10), body["new_balance"])
}

func TestAPI_CancelBooking_NotOwner_403(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createSession(t, srv, "GROUP", 5)

	_, created := doJSON(t, http.MethodPost, srv.URL+"/api/bookings", api.CreateBookingRequest{
		CustomerID: "cust-1", SessionID: sessionID,
	})
	bookingID := created["id"].(string)

	resp, _ := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/bookings/%s/cancel", srv.URL, bookingID),
		api.CancelBookingRequest{ActorID: "cust-2"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// =============================================================================
// WAITLIST
// =============================================================================

func TestAPI_Waitlist_JoinPromoteFlow(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createSession(t, srv, "GROUP", 1)

	// Fill the single seat.
	resp, occupant := doJSON(t, http.MethodPost, srv.URL+"/api/bookings", api.CreateBookingRequest{
		CustomerID: "occupant", SessionID: sessionID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Open seat gone; joining is allowed now.
	resp, entry := doJSON(t, http.MethodPost,
		srv.URL+"/api/sessions/"+sessionID+"/waitlist",
		api.JoinWaitlistRequest{CustomerID: "cust-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(1), entry["position"])

	// Occupant leaves; the freed seat lets the operator promote.
	resp, _ = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/bookings/%s/cancel", srv.URL, occupant["id"].(string)),
		api.CancelBookingRequest{ActorID: "occupant"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, promoted := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/waitlist/%s/promote", srv.URL, entry["id"].(string)),
		api.PromoteWaitlistRequest{OperatorID: "op-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "cust-1", promoted["customer_id"])
	assert.Equal(t, "CONFIRMED", promoted["status"])
}

func TestAPI_JoinWaitlist_OpenSeat_409(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createSession(t, srv, "GROUP", 5)

	resp, _ := doJSON(t, http.MethodPost,
		srv.URL+"/api/sessions/"+sessionID+"/waitlist",
		api.JoinWaitlistRequest{CustomerID: "cust-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_MalformedBody_400(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/bookings", "application/json",
		bytes.NewBufferString(`{"customer_id": `))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
