package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/transflow/riskd/internal/alerts"
	"github.com/transflow/riskd/internal/engine"
	"github.com/transflow/riskd/internal/idgen"
)

var (
	webhookEmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskd",
		Subsystem: "webhook",
		Name:      "emit_total",
		Help:      "Total webhook emit attempts by event type.",
	}, []string{"event_type"})

	webhookEmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskd",
		Subsystem: "webhook",
		Name:      "emit_errors_total",
		Help:      "Total webhook emit failures by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(webhookEmitTotal, webhookEmitErrors)
}

// Emitter wraps a Dispatcher to emit lifecycle events. All methods are
// fire-and-forget: errors are logged but never returned.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a new webhook emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

func (e *Emitter) emit(eventType EventType, data map[string]interface{}) {
	if e == nil || e.d == nil {
		return
	}
	webhookEmitTotal.WithLabelValues(string(eventType)).Inc()
	event := &Event{
		ID:        idgen.Event(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.d.Dispatch(ctx, event); err != nil {
		webhookEmitErrors.WithLabelValues(string(eventType)).Inc()
		e.logger.Warn("webhook emit failed", "event", eventType, "error", err)
	}
}

// AlertCreated emits an alert.created event. Implements alerts.Notifier.
func (e *Emitter) AlertCreated(a *alerts.Alert) {
	e.emit(EventAlertCreated, map[string]interface{}{
		"alertId":          a.ID,
		"transactionId":    a.TransactionID,
		"customerId":       a.CustomerID,
		"riskLevel":        a.RiskLevel,
		"fraudProbability": a.FraudProbability,
		"riskFactors":      a.RiskFactors,
	})
}

// DecisionEvaluated emits a decision event; high-risk decisions also get
// their own event type so consumers can subscribe narrowly.
func (e *Emitter) DecisionEvaluated(d *engine.Decision) {
	data := map[string]interface{}{
		"transactionId":  d.TransactionID,
		"customerId":     d.CustomerID,
		"riskLevel":      string(d.RiskLevel),
		"prediction":     d.Prediction,
		"compositeScore": d.CompositeScore,
		"mlDegraded":     d.MLDegraded,
	}
	e.emit(EventDecisionEvaluated, data)
	if d.RiskLevel.Rank() >= engine.RiskHigh.Rank() {
		e.emit(EventDecisionHighRisk, data)
	}
}
