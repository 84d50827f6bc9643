package transactions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transflow/riskd/internal/engine"
	"github.com/transflow/riskd/internal/logging"
)

func seedService(t *testing.T) *Service {
	t.Helper()
	s := NewService(NewMemoryStore(), logging.Nop())

	seed := []struct {
		txn, customer, channel, prediction, level string
		amount                                    float64
		hour                                      int
		prob                                      float64
		degraded                                  bool
	}{
		{"txn_1", "CUST_A", "Mobile", "Legitimate", "Low", 100, 14, 0.1, false},
		{"txn_2", "CUST_A", "ATM", "Fraud", "High", 25000, 3, 0.85, false},
		{"txn_3", "CUST_B", "Web", "Legitimate", "Medium", 5000, 10, 0.5, true},
		{"txn_4", "CUST_B", "ATM", "Fraud", "Critical", 60000, 2, 0.95, false},
	}
	for i, row := range seed {
		req := &engine.TransactionRequest{
			CustomerID: row.customer, Amount: row.amount, Channel: row.channel,
			Hour: row.hour, AccountAgeDays: 100, KYCVerified: true,
		}
		d := &engine.Decision{
			TransactionID: row.txn, CustomerID: row.customer,
			Prediction: row.prediction, RiskLevel: engine.RiskLevel(row.level),
			FraudProbability: row.prob, CompositeScore: row.prob, MLDegraded: row.degraded,
			AllFlags: []string{},
		}
		s.clock = func() time.Time {
			return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Second)
		}
		require.NoError(t, s.RecordDecision(context.Background(), req, d))
	}
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := seedService(t)

	r, err := s.Get(context.Background(), "txn_2")
	require.NoError(t, err)
	assert.Equal(t, "CUST_A", r.CustomerID)
	assert.Equal(t, "ATM", r.Channel)
	assert.True(t, r.IsFraud())

	_, err = s.Get(context.Background(), "txn_missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestListFilters(t *testing.T) {
	s := seedService(t)

	atm, err := s.List(context.Background(), Filter{Channel: "ATM"})
	require.NoError(t, err)
	assert.Len(t, atm, 2)

	fraud := true
	fraudOnly, err := s.List(context.Background(), Filter{OnlyFraud: &fraud})
	require.NoError(t, err)
	assert.Len(t, fraudOnly, 2)

	byCustomer, err := s.List(context.Background(), Filter{CustomerID: "CUST_B"})
	require.NoError(t, err)
	assert.Len(t, byCustomer, 2)

	critical, err := s.List(context.Background(), Filter{RiskLevel: "Critical"})
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, "txn_4", critical[0].TransactionID)

	// Newest first.
	all, err := s.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "txn_4", all[0].TransactionID)
}

func TestFraudStats(t *testing.T) {
	s := seedService(t)

	stats, err := s.FraudStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(2), stats.FraudCount)
	assert.InDelta(t, 0.5, stats.FraudRate, 1e-9)
	assert.InDelta(t, (0.1+0.85+0.5+0.95)/4, stats.AvgProbability, 1e-9)
	assert.Equal(t, int64(1), stats.DegradedCount)
}

func TestChannelStats(t *testing.T) {
	s := seedService(t)

	stats, err := s.ChannelStats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 3)

	// Sorted by channel name: ATM, Mobile, Web.
	assert.Equal(t, "ATM", stats[0].Channel)
	assert.Equal(t, int64(2), stats[0].Count)
	assert.Equal(t, int64(2), stats[0].FraudCount)
	assert.InDelta(t, 42500, stats[0].AvgAmount, 1e-9)
	assert.Equal(t, "Mobile", stats[1].Channel)
	assert.Equal(t, int64(0), stats[1].FraudCount)
}

func TestHourlyStats(t *testing.T) {
	s := seedService(t)

	stats, err := s.HourlyStats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 24)

	assert.Equal(t, int64(1), stats[3].Count)
	assert.Equal(t, int64(1), stats[3].FraudCount)
	assert.Equal(t, int64(1), stats[14].Count)
	assert.Equal(t, int64(0), stats[14].FraudCount)
	assert.Equal(t, int64(0), stats[5].Count)
}

func TestTransactionsEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := seedService(t)
	r := gin.New()
	NewHandler(s).RegisterRoutes(r.Group("/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/transactions?channel=ATM&is_fraud=true", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Transactions []Record `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Transactions, 2)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/transactions/txn_1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/transactions/txn_nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/statistics/fraud", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fraud_rate":0.5`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/statistics/hourly", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/transactions?is_fraud=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
