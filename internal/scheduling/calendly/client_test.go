package calendly

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/realty-ai-platform/pkg/logging"
)

func newFakeCalendly(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"resource": map[string]string{
				"uri":                  "https://api.calendly.com/users/u1",
				"name":                 "Agent Smith",
				"current_organization": "https://api.calendly.com/organizations/o1",
				"scheduling_url":       "https://calendly.com/xyz-realty",
			},
		})
	})
	mux.HandleFunc("/event_types", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"collection": []map[string]any{
				{"uri": "et-1", "name": "Property Consultation", "slug": "property-consultation", "duration": 30},
				{"uri": "et-2", "name": "Quick Call", "slug": "quick-call", "duration": 15},
			},
		})
	})
	mux.HandleFunc("/scheduled_events", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["event_type"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"resource": map[string]string{"uri": "https://api.calendly.com/scheduled_events/ev-1"},
		})
	})
	mux.HandleFunc("/user_availability_schedules", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"collection": []map[string]any{{"schedule": "default"}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClientAuthFailureIsFatal(t *testing.T) {
	srv := newFakeCalendly(t)

	_, err := NewClient(context.Background(), "bad-key", "xyz-realty", srv.URL, logging.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to authenticate")

	_, err = NewClient(context.Background(), "", "xyz-realty", srv.URL, logging.Default())
	require.Error(t, err)
}

func TestCreateSchedulingLink(t *testing.T) {
	srv := newFakeCalendly(t)
	client, err := NewClient(context.Background(), "good-key", "xyz-realty", srv.URL, logging.Default())
	require.NoError(t, err)

	res := client.CreateSchedulingLink(context.Background(), "Alice", "alice@x.com", "")
	assert.Equal(t, "success", res.Status)
	assert.Contains(t, res.BookingLink, "https://calendly.com/xyz-realty/property-consultation?")
	assert.Contains(t, res.BookingLink, "email=alice%40x.com")
	assert.Equal(t, "Property Consultation", res.EventType)
}

func TestCreateSchedulingLinkPicksRequestedEventType(t *testing.T) {
	srv := newFakeCalendly(t)
	client, err := NewClient(context.Background(), "good-key", "xyz-realty", srv.URL, logging.Default())
	require.NoError(t, err)

	res := client.CreateSchedulingLink(context.Background(), "Bob", "bob@x.com", "et-2")
	assert.Equal(t, "Quick Call", res.EventType)
	assert.Contains(t, res.BookingLink, "/quick-call?")
}

func TestScheduleMeeting(t *testing.T) {
	srv := newFakeCalendly(t)
	client, err := NewClient(context.Background(), "good-key", "xyz-realty", srv.URL, logging.Default())
	require.NoError(t, err)

	res := client.ScheduleMeeting(context.Background(), "Alice", "alice@x.com", "2026-09-02T10:00:00Z", "")
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "https://api.calendly.com/scheduled_events/ev-1", res.EventURI)
	assert.Equal(t, "2026-09-02T10:00:00Z", res.StartTime)
}

func TestMethodFailuresDegradeToErrorResult(t *testing.T) {
	srv := newFakeCalendly(t)
	client, err := NewClient(context.Background(), "good-key", "xyz-realty", srv.URL, logging.Default())
	require.NoError(t, err)
	srv.Close() // every later call hits a dead server

	res := client.ScheduleMeeting(context.Background(), "Alice", "alice@x.com", "2026-09-02T10:00:00Z", "et-1")
	assert.Equal(t, "error", res.Status)
	assert.NotEmpty(t, res.Message)

	link := client.CreateSchedulingLink(context.Background(), "Alice", "alice@x.com", "")
	assert.Equal(t, "error", link.Status)

	avail := client.AvailableTimes(context.Background(), "2026-09-02T00:00:00Z", "2026-09-03T00:00:00Z")
	assert.Equal(t, "error", avail.Status)
}

func TestAvailableTimesPassthrough(t *testing.T) {
	srv := newFakeCalendly(t)
	client, err := NewClient(context.Background(), "good-key", "xyz-realty", srv.URL, logging.Default())
	require.NoError(t, err)

	res := client.AvailableTimes(context.Background(), "2026-09-02T00:00:00Z", "2026-09-03T00:00:00Z")
	assert.Equal(t, "success", res.Status)
	require.NotNil(t, res.Raw)
	assert.Contains(t, res.Raw, "collection")
}
