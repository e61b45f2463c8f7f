//go:build api

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// End-to-end flow against a running service. Start one first, e.g.:
//
//	JWT_SECRET=dev-secret go run . &
//	go test -tags api ./tests/api/
//
// The test mints its own tokens, so API_JWT_SECRET must match the
// server's JWT_SECRET.

func baseURL() string {
	if v := os.Getenv("API_BASE_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func jwtSecret() string {
	if v := os.Getenv("API_JWT_SECRET"); v != "" {
		return v
	}
	return "dev-secret"
}

func TestAPI_FullFlow(t *testing.T) {
	waitForService(t)

	start := time.Now().Add(24 * time.Hour).UTC()
	end := start.Add(2 * time.Hour)
	var eventID float64

	// Step 1: organizer creates a 2-spot event
	t.Run("Step1_CreateEvent", func(t *testing.T) {
		t.Log("STEP 1: Create Event")
		t.Log("    Request:  POST /api/v1/events (capacity=2)")

		eventReq := map[string]interface{}{
			"title":    "API Flow: Platform Guild Meetup",
			"capacity": 2,
			"start_at": start.Format(time.RFC3339),
			"end_at":   end.Format(time.RFC3339),
		}

		resp := post(t, "organizer-1", "/api/v1/events", eventReq)
		require.Equal(t, 201, resp.StatusCode, "should create event")

		var eventResp map[string]interface{}
		decodeJSON(t, resp, &eventResp)

		eventID = eventResp["id"].(float64)
		assert.Equal(t, "API Flow: Platform Guild Meetup", eventResp["title"])
		assert.Equal(t, float64(2), eventResp["capacity"])
		assert.Equal(t, "active", eventResp["status"])

		t.Logf("    Result:   HTTP 201, event id=%v", eventID)
	})

	// Step 2: capacity snapshot before anyone joins
	t.Run("Step2_InitialCapacity", func(t *testing.T) {
		t.Logf("STEP 2: GET /api/v1/events/%v/capacity", eventID)

		resp := get(t, "user-001", fmt.Sprintf("/api/v1/events/%v/capacity", eventID))
		require.Equal(t, 200, resp.StatusCode)

		var snap map[string]interface{}
		decodeJSON(t, resp, &snap)

		assert.Equal(t, float64(0), snap["confirmed_count"])
		assert.Equal(t, float64(0), snap["waitlisted_count"])
		assert.Equal(t, float64(2), snap["spots_left"])

		t.Logf("    Result:   confirmed=%v waitlisted=%v spots_left=%v",
			snap["confirmed_count"], snap["waitlisted_count"], snap["spots_left"])
	})

	// Step 3: first member joins and is confirmed
	t.Run("Step3_FirstJoin", func(t *testing.T) {
		t.Logf("STEP 3: POST /api/v1/events/%v/rsvp as user-001", eventID)

		resp := post(t, "user-001", fmt.Sprintf("/api/v1/events/%v/rsvp", eventID), nil)
		require.Equal(t, 200, resp.StatusCode)

		var join map[string]interface{}
		decodeJSON(t, resp, &join)

		assert.Equal(t, "yes", join["status"])
		assert.Equal(t, "RSVP confirmed", join["message"])

		t.Logf("    Result:   status=%v message=%q", join["status"], join["message"])
	})

	// Step 4: joining again changes nothing
	t.Run("Step4_JoinIsIdempotent", func(t *testing.T) {
		t.Logf("STEP 4: POST /api/v1/events/%v/rsvp as user-001 again", eventID)

		resp := post(t, "user-001", fmt.Sprintf("/api/v1/events/%v/rsvp", eventID), nil)
		require.Equal(t, 200, resp.StatusCode, "repeat join is a no-op, not an error")

		var join map[string]interface{}
		decodeJSON(t, resp, &join)
		assert.Equal(t, "yes", join["status"])

		t.Log("    Result:   still confirmed, no duplicate")
	})

	// Step 5: fill the event, then overflow onto the waitlist
	t.Run("Step5_OverflowToWaitlist", func(t *testing.T) {
		t.Log("STEP 5: user-002 takes the last spot, user-003 overflows")

		resp := post(t, "user-002", fmt.Sprintf("/api/v1/events/%v/rsvp", eventID), nil)
		require.Equal(t, 200, resp.StatusCode)
		var join map[string]interface{}
		decodeJSON(t, resp, &join)
		assert.Equal(t, "yes", join["status"])

		resp = post(t, "user-003", fmt.Sprintf("/api/v1/events/%v/rsvp", eventID), nil)
		require.Equal(t, 200, resp.StatusCode)
		decodeJSON(t, resp, &join)
		assert.Equal(t, "waitlist", join["status"])
		assert.Equal(t, "Added to waitlist", join["message"])
		assert.Equal(t, float64(1), join["waitlist_position"])

		t.Logf("    Result:   user-003 waitlisted at position %v", join["waitlist_position"])
	})

	// Step 6: the ledger shows a full event
	t.Run("Step6_FullCapacity", func(t *testing.T) {
		t.Logf("STEP 6: GET /api/v1/events/%v/capacity", eventID)

		resp := get(t, "user-001", fmt.Sprintf("/api/v1/events/%v/capacity", eventID))
		require.Equal(t, 200, resp.StatusCode)

		var snap map[string]interface{}
		decodeJSON(t, resp, &snap)

		assert.Equal(t, float64(2), snap["confirmed_count"])
		assert.Equal(t, float64(1), snap["waitlisted_count"])
		assert.Equal(t, float64(0), snap["spots_left"])

		t.Logf("    Result:   confirmed=%v waitlisted=%v spots_left=%v",
			snap["confirmed_count"], snap["waitlisted_count"], snap["spots_left"])
	})

	// Step 7: a confirmed member leaves
	t.Run("Step7_Leave", func(t *testing.T) {
		t.Logf("STEP 7: DELETE /api/v1/events/%v/rsvp as user-001", eventID)

		resp := del(t, "user-001", fmt.Sprintf("/api/v1/events/%v/rsvp", eventID))
		require.Equal(t, 200, resp.StatusCode)

		var rsvp map[string]interface{}
		decodeJSON(t, resp, &rsvp)
		assert.Equal(t, "cancelled", rsvp["status"])

		t.Log("    Result:   RSVP cancelled")
	})

	// Step 8: the freed spot went to the waitlisted member
	t.Run("Step8_WaitlistPromotion", func(t *testing.T) {
		t.Log("STEP 8: GET /api/v1/rsvps as user-003 (was waitlist #1)")

		resp := get(t, "user-003", "/api/v1/rsvps")
		require.Equal(t, 200, resp.StatusCode)

		var mine []map[string]interface{}
		decodeJSON(t, resp, &mine)

		found := false
		for _, r := range mine {
			if r["event_id"].(float64) == eventID {
				found = true
				assert.Equal(t, "yes", r["status"], "waitlist #1 should be promoted")
			}
		}
		assert.True(t, found, "user-003 should have an RSVP for the event")

		t.Log("    Result:   user-003 promoted to confirmed")
	})

	// Step 9: leaving with nothing to cancel answers 204
	t.Run("Step9_LeaveNoop", func(t *testing.T) {
		t.Logf("STEP 9: DELETE /api/v1/events/%v/rsvp as user-099 (never joined)", eventID)

		resp := del(t, "user-099", fmt.Sprintf("/api/v1/events/%v/rsvp", eventID))
		assert.Equal(t, 204, resp.StatusCode)

		t.Log("    Result:   HTTP 204, nothing to cancel")
	})

	// Step 10: requests without a token never get in
	t.Run("Step10_AuthRequired", func(t *testing.T) {
		t.Log("STEP 10: GET /api/v1/events without Authorization")

		resp, err := http.Get(baseURL() + "/api/v1/events")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, 401, resp.StatusCode)

		t.Log("    Result:   HTTP 401")
	})

	// Final: the event is exactly full again
	t.Run("FinalSummary", func(t *testing.T) {
		resp := get(t, "user-002", fmt.Sprintf("/api/v1/events/%v/capacity", eventID))
		require.Equal(t, 200, resp.StatusCode)

		var snap map[string]interface{}
		decodeJSON(t, resp, &snap)

		assert.Equal(t, float64(2), snap["confirmed_count"], "cancel+promote keeps the event full")
		assert.Equal(t, float64(0), snap["waitlisted_count"])

		t.Logf("FINAL: confirmed=%v waitlisted=%v spots_left=%v",
			snap["confirmed_count"], snap["waitlisted_count"], snap["spots_left"])
	})
}

// Helper functions

func mintToken(t *testing.T, userID string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": userID + "@corp.example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret()))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, userID, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewBuffer(jsonBody)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, baseURL()+path, buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+mintToken(t, userID))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func get(t *testing.T, userID, path string) *http.Response {
	return doRequest(t, userID, http.MethodGet, path, nil)
}

func post(t *testing.T, userID, path string, body interface{}) *http.Response {
	return doRequest(t, userID, http.MethodPost, path, body)
}

func del(t *testing.T, userID, path string) *http.Response {
	return doRequest(t, userID, http.MethodDelete, path, nil)
}

func decodeJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	err := json.NewDecoder(resp.Body).Decode(target)
	if err != nil && resp.StatusCode >= 400 {
		// Error bodies are not always JSON
		return
	}
	require.NoError(t, err)
}

func waitForService(t *testing.T) {
	t.Log("Waiting for service to be ready...")

	maxRetries := 30
	for i := 0; i < maxRetries; i++ {
		resp, err := http.Get(baseURL() + "/health")
		if err == nil && resp.StatusCode == 200 {
			resp.Body.Close()
			t.Log("Service is ready")
			return
		}
		time.Sleep(1 * time.Second)
	}

	t.Fatal("service did not become ready in time")
}

func TestMain(m *testing.M) {
	fmt.Println("Starting API tests, expecting a running service at", baseURL())

	code := m.Run()

	fmt.Println("API tests complete")
	os.Exit(code)
}
