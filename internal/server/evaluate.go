package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/transflow/riskd/internal/engine"
	"github.com/transflow/riskd/internal/logging"
	"github.com/transflow/riskd/internal/profile"
)

// evaluateRequest is the submission body. Hour is a pointer so an
// omitted hour can be derived from the timestamp instead of defaulting
// to midnight.
type evaluateRequest struct {
	TransactionID  string            `json:"transaction_id"`
	CustomerID     string            `json:"customer_id"`
	Amount         float64           `json:"amount"`
	Channel        string            `json:"channel"`
	Hour           *int              `json:"hour"`
	AccountAgeDays int               `json:"account_age_days"`
	KYCVerified    bool              `json:"kyc_verified"`
	Location       string            `json:"location"`
	Device         engine.DeviceInfo `json:"device_info"`
	Timestamp      time.Time         `json:"timestamp"`
}

func (r *evaluateRequest) toEngine(now time.Time) *engine.TransactionRequest {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = now
	}
	hour := ts.Hour()
	if r.Hour != nil {
		hour = *r.Hour
	}
	return &engine.TransactionRequest{
		TransactionID:  r.TransactionID,
		CustomerID:     r.CustomerID,
		Amount:         r.Amount,
		Channel:        r.Channel,
		Hour:           hour,
		AccountAgeDays: r.AccountAgeDays,
		KYCVerified:    r.KYCVerified,
		Location:       r.Location,
		Device:         r.Device,
		Timestamp:      ts,
	}
}

// decisionResponse is the wire shape for one decision.
type decisionResponse struct {
	TransactionID    string    `json:"transaction_id"`
	Prediction       string    `json:"prediction"`
	FraudProbability float64   `json:"fraud_probability"`
	RiskScore        float64   `json:"risk_score"`
	RiskLevel        string    `json:"risk_level"`
	Confidence       float64   `json:"confidence"`
	MLDegraded       bool      `json:"ml_degraded"`
	RuleFlags        []string  `json:"rule_flags"`
	BehavioralFlags  []string  `json:"behavioral_flags"`
	SignatureFlags   []string  `json:"signature_flags"`
	VelocityFlags    []string  `json:"velocity_flags"`
	AllFlags         []string  `json:"all_flags"`
	RiskFactors      []string  `json:"risk_factors"`
	AlertsGenerated  int       `json:"alerts_generated"`
	AlertIDs         []string  `json:"alert_ids"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
}

func toDecisionResponse(d *engine.Decision) decisionResponse {
	return decisionResponse{
		TransactionID:    d.TransactionID,
		Prediction:       d.Prediction,
		FraudProbability: d.FraudProbability,
		RiskScore:        d.CompositeScore,
		RiskLevel:        string(d.RiskLevel),
		Confidence:       d.Confidence,
		MLDegraded:       d.MLDegraded,
		RuleFlags:        emptyIfNil(d.RuleFlags),
		BehavioralFlags:  emptyIfNil(d.BehavioralFlags),
		SignatureFlags:   emptyIfNil(d.SignatureFlags),
		VelocityFlags:    emptyIfNil(d.VelocityFlags),
		AllFlags:         emptyIfNil(d.AllFlags),
		RiskFactors:      emptyIfNil(d.AllFlags),
		AlertsGenerated:  len(d.AlertIDs),
		AlertIDs:         emptyIfNil(d.AlertIDs),
		EvaluatedAt:      d.EvaluatedAt,
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// evaluateHandler handles POST /v1/evaluate
func (s *Server) evaluateHandler(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}

	decision, err := s.evaluate(c.Request.Context(), &req)
	if err != nil {
		s.renderEvaluateError(c, err)
		return
	}

	c.JSON(http.StatusOK, toDecisionResponse(decision))
}

// evaluate runs one transaction through the engine and fans the decision
// out to the record store, webhooks and WebSocket clients.
func (s *Server) evaluate(ctx context.Context, req *evaluateRequest) (*engine.Decision, error) {
	txReq := req.toEngine(time.Now())
	decision, err := s.engine.Evaluate(ctx, txReq)
	if err != nil {
		return nil, err
	}

	if err := s.transactions.RecordDecision(ctx, txReq, decision); err != nil {
		logging.L(ctx).Warn("failed to record decision",
			"transaction_id", decision.TransactionID,
			"error", err,
		)
	}

	s.realtimeHub.BroadcastDecision(txReq, decision)
	s.emitter.DecisionEvaluated(decision)

	return decision, nil
}

func (s *Server) renderEvaluateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	case errors.Is(err, profile.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "store_unavailable",
			"message": "Customer profile store is unavailable",
		})
	default:
		logging.L(c.Request.Context()).Error("evaluation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Evaluation failed",
		})
	}
}

// batchConcurrency bounds parallel evaluations inside one batch call.
const batchConcurrency = 8

// maxBatchSize caps how many rows one batch call may carry.
const maxBatchSize = 500

type batchRowResult struct {
	Index    int               `json:"index"`
	Decision *decisionResponse `json:"decision,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// evaluateBatchHandler handles POST /v1/evaluate/batch. Rows are
// independent: one bad row fails alone, the rest still evaluate.
func (s *Server) evaluateBatchHandler(c *gin.Context) {
	var req struct {
		Transactions []evaluateRequest `json:"transactions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body: " + err.Error(),
		})
		return
	}
	if len(req.Transactions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "transactions must not be empty",
		})
		return
	}
	if len(req.Transactions) > maxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "batch_too_large",
			"message": "A batch may contain at most 500 transactions",
		})
		return
	}

	results := make([]batchRowResult, len(req.Transactions))
	sem := make(chan struct{}, batchConcurrency)
	var wg sync.WaitGroup

	// Workers get the request context only; gin contexts are not safe
	// to share across goroutines.
	ctx := c.Request.Context()

	for i := range req.Transactions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			decision, err := s.evaluate(ctx, &req.Transactions[i])
			if err != nil {
				results[i] = batchRowResult{Index: i, Error: err.Error()}
				return
			}
			resp := toDecisionResponse(decision)
			results[i] = batchRowResult{Index: i, Decision: &resp}
		}(i)
	}
	wg.Wait()

	var (
		fraudulent int
		evaluated  int
		probSum    float64
	)
	for _, r := range results {
		if r.Decision == nil {
			continue
		}
		evaluated++
		probSum += r.Decision.FraudProbability
		if r.Decision.Prediction == engine.PredictionFraud {
			fraudulent++
		}
	}
	avgProbability := 0.0
	if evaluated > 0 {
		avgProbability = probSum / float64(evaluated)
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"summary": gin.H{
			"total":               len(results),
			"evaluated":           evaluated,
			"failed":              len(results) - evaluated,
			"fraudulent":          fraudulent,
			"average_probability": avgProbability,
		},
	})
}

// modelHandler handles GET /v1/model
func (s *Server) modelHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"mode":    s.scorerMode,
		"version": s.scorer.Version(),
	})
}
