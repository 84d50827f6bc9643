package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := newService()
	r := gin.New()
	NewHandler(s).RegisterRoutes(r.Group("/v1"))
	return r, s
}

func do(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestListAlertsEndpoint(t *testing.T) {
	r, s := newTestRouter(t)
	for _, txn := range []string{"txn_1", "txn_2"} {
		_, err := s.DecisionMade(context.Background(), highRiskDecision(txn))
		require.NoError(t, err)
	}

	w := do(r, http.MethodGet, "/v1/alerts?status=pending")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Alerts  []Alert `json:"alerts"`
		HasMore bool    `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Alerts, 2)
	assert.False(t, body.HasMore)
}

func TestListAlertsSearchParam(t *testing.T) {
	r, s := newTestRouter(t)
	for _, txn := range []string{"txn_abc", "txn_xyz"} {
		_, err := s.DecisionMade(context.Background(), highRiskDecision(txn))
		require.NoError(t, err)
	}

	w := do(r, http.MethodGet, "/v1/alerts?q=xyz")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Alerts []Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Alerts, 1)
	assert.Equal(t, "txn_xyz", body.Alerts[0].TransactionID)
}

func TestListAlertsRejectsUnknownStatus(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(r, http.MethodGet, "/v1/alerts?status=snoozed")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAlertsPagination(t *testing.T) {
	r, s := newTestRouter(t)
	for _, txn := range []string{"txn_1", "txn_2", "txn_3"} {
		_, err := s.DecisionMade(context.Background(), highRiskDecision(txn))
		require.NoError(t, err)
	}

	w := do(r, http.MethodGet, "/v1/alerts?limit=2")
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Alerts     []Alert `json:"alerts"`
		NextCursor string  `json:"next_cursor"`
		HasMore    bool    `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Alerts, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextCursor)

	w = do(r, http.MethodGet, "/v1/alerts?limit=2&cursor="+page.NextCursor)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Alerts, 1)
	assert.False(t, page.HasMore)
}

func TestTransitionEndpoints(t *testing.T) {
	r, s := newTestRouter(t)
	ids, err := s.DecisionMade(context.Background(), highRiskDecision("txn_1"))
	require.NoError(t, err)
	id := ids[0]

	w := do(r, http.MethodPost, "/v1/alerts/"+id+"/acknowledge")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/v1/alerts/"+id+"/resolve")
	assert.Equal(t, http.StatusOK, w.Code)

	// Resolved is terminal.
	w = do(r, http.MethodPost, "/v1/alerts/"+id+"/acknowledge")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(r, http.MethodPost, "/v1/alerts/alert_missing/resolve")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSummaryEndpoint(t *testing.T) {
	r, s := newTestRouter(t)
	_, err := s.DecisionMade(context.Background(), highRiskDecision("txn_1"))
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/v1/alerts/summary")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Total    int64            `json:"total"`
		ByStatus map[Status]int64 `json:"by_status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.Total)
	assert.Equal(t, int64(1), body.ByStatus[StatusPending])
}
