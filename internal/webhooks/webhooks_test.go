package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transflow/riskd/internal/alerts"
	"github.com/transflow/riskd/internal/logging"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatchDeliversSignedEvent(t *testing.T) {
	var got atomic.Pointer[http.Header]
	var body atomic.Pointer[[]byte]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Clone()
		got.Store(&h)
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		b := buf.Bytes()
		body.Store(&b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), &Subscription{
		ID: "whk_1", URL: srv.URL, Secret: "topsecret",
		Events: []EventType{EventAlertCreated}, Active: true,
	}))

	d := NewDispatcher(store)
	event := &Event{ID: "evt_1", Type: EventAlertCreated, Timestamp: time.Now(), Data: map[string]interface{}{"alertId": "alert_1"}}
	require.NoError(t, d.Dispatch(context.Background(), event))

	waitFor(t, func() bool { return got.Load() != nil })
	headers := *got.Load()
	assert.Equal(t, "alert.created", headers.Get("X-Riskd-Event"))
	assert.Equal(t, Sign(*body.Load(), "topsecret"), headers.Get("X-Riskd-Signature"))
}

func TestDispatchSkipsInactiveAndUnsubscribed(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), &Subscription{
		ID: "whk_inactive", URL: srv.URL, Events: []EventType{EventAlertCreated}, Active: false,
	}))
	require.NoError(t, store.Create(context.Background(), &Subscription{
		ID: "whk_other", URL: srv.URL, Events: []EventType{EventDecisionHighRisk}, Active: true,
	}))

	d := NewDispatcher(store)
	require.NoError(t, d.Dispatch(context.Background(), &Event{ID: "evt_1", Type: EventAlertCreated, Timestamp: time.Now()}))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), hits.Load())
}

func TestDispatchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	sub := &Subscription{ID: "whk_1", URL: srv.URL, Events: []EventType{EventAlertCreated}, Active: true}
	require.NoError(t, store.Create(context.Background(), sub))

	d := NewDispatcher(store)
	d.baseDelay = time.Millisecond
	require.NoError(t, d.Dispatch(context.Background(), &Event{ID: "evt_1", Type: EventAlertCreated, Timestamp: time.Now()}))

	waitFor(t, func() bool { return hits.Load() >= 3 })
	waitFor(t, func() bool {
		got, _ := store.Get(context.Background(), "whk_1")
		return got.LastSuccess != nil
	})
}

func TestEmitterImplementsNotifier(t *testing.T) {
	var _ alerts.Notifier = (*Emitter)(nil)

	var received atomic.Pointer[Event]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e Event
		_ = json.NewDecoder(r.Body).Decode(&e)
		received.Store(&e)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), &Subscription{
		ID: "whk_1", URL: srv.URL, Events: []EventType{EventAlertCreated}, Active: true,
	}))

	e := NewEmitter(NewDispatcher(store), logging.Nop())
	e.AlertCreated(&alerts.Alert{ID: "alert_9", TransactionID: "txn_9", CustomerID: "CUST_9", RiskLevel: "High"})

	waitFor(t, func() bool { return received.Load() != nil })
	event := received.Load()
	assert.Equal(t, EventAlertCreated, event.Type)
	assert.Equal(t, "alert_9", event.Data["alertId"])
}

func TestCreateSubscriptionEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewMemoryStore()
	r := gin.New()
	NewHandler(store).RegisterRoutes(r.Group("/v1"))

	body := `{"url":"https://203.0.113.10/fraud-hook","secret":"s","events":["alert.created"]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	// Unknown event types are rejected.
	body = `{"url":"https://203.0.113.10/fraud-hook","events":["alert.snoozed"]}`
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/webhooks", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Private addresses are rejected.
	body = `{"url":"http://169.254.169.254/latest","events":["alert.created"]}`
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/webhooks", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
