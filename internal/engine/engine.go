package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/transflow/riskd/internal/idgen"
	"github.com/transflow/riskd/internal/logging"
	"github.com/transflow/riskd/internal/metrics"
	"github.com/transflow/riskd/internal/ml"
	"github.com/transflow/riskd/internal/profile"
	"github.com/transflow/riskd/internal/traces"
)

// Config bundles all engine tuning.
type Config struct {
	Rule        RuleConfig
	Behavioral  BehavioralConfig
	Velocity    VelocityConfig
	Aggregation AggregationConfig

	// MLTimeout bounds how long a decision waits on the scorer.
	MLTimeout time.Duration
}

// DefaultConfig returns the production engine tuning.
func DefaultConfig() Config {
	return Config{
		Rule:        DefaultRuleConfig(),
		Behavioral:  DefaultBehavioralConfig(),
		Velocity:    DefaultVelocityConfig(),
		Aggregation: DefaultAggregationConfig(),
		MLTimeout:   400 * time.Millisecond,
	}
}

// AlertSink receives completed decisions and may open alerts for them.
// It returns the IDs of any alerts associated with the decision.
type AlertSink interface {
	DecisionMade(ctx context.Context, d *Decision) ([]string, error)
}

// Engine runs the evaluation pipeline for transactions.
type Engine struct {
	profiles   *profile.Registry
	scorer     ml.Scorer
	evaluators []Evaluator
	agg        *Aggregator
	sink       AlertSink
	mlTimeout  time.Duration
	logger     *slog.Logger
	clock      func() time.Time
}

// New creates an engine with the standard evaluator set.
func New(profiles *profile.Registry, scorer ml.Scorer, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		profiles: profiles,
		scorer:   scorer,
		evaluators: []Evaluator{
			NewRuleEvaluator(cfg.Rule),
			NewBehavioralEvaluator(cfg.Behavioral),
			NewSignatureEvaluator(),
			NewVelocityEvaluator(cfg.Velocity),
		},
		agg:       NewAggregator(cfg.Aggregation),
		mlTimeout: cfg.MLTimeout,
		logger:    logger,
		clock:     time.Now,
	}
}

// WithAlertSink attaches the alert pipeline. Without a sink, decisions
// are still made but no alerts open.
func (e *Engine) WithAlertSink(sink AlertSink) *Engine {
	e.sink = sink
	return e
}

// WithClock overrides the time source. Test hook.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Evaluate runs the full pipeline for one transaction: snapshot, fan-out
// to evaluators and the scorer, aggregation, alerting, then the profile
// update. The transaction is folded into the profile exactly once, after
// the decision, so the snapshot the evaluators saw never includes it.
func (e *Engine) Evaluate(ctx context.Context, req *TransactionRequest) (*Decision, error) {
	start := e.clock()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.TransactionID == "" {
		req.TransactionID = idgen.Transaction()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = start
	}

	ctx, span := traces.Start(ctx, "engine.Evaluate",
		traces.TransactionID(req.TransactionID),
		traces.CustomerID(req.CustomerID),
	)
	defer span.End()

	snap, err := e.profiles.Snapshot(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("snapshot profile: %w", err)
	}

	evals := make([]Evaluation, len(e.evaluators))
	var wg sync.WaitGroup
	wg.Add(len(e.evaluators))
	for i, ev := range e.evaluators {
		go func(i int, ev Evaluator) {
			defer wg.Done()
			evals[i] = e.runEvaluator(ctx, ev, req, snap)
		}(i, ev)
	}

	mlCh := make(chan MLOutcome, 1)
	go func() {
		mlCh <- e.score(ctx, req)
	}()

	wg.Wait()
	mlOut := <-mlCh

	decision := e.agg.Aggregate(req, evals, mlOut, e.clock())

	if e.sink != nil {
		alertIDs, err := e.sink.DecisionMade(ctx, decision)
		if err != nil {
			return nil, fmt.Errorf("open alerts: %w", err)
		}
		decision.AlertIDs = alertIDs
	}

	update := profile.Update{
		CustomerID:  req.CustomerID,
		Amount:      req.Amount,
		Channel:     req.Channel,
		Hour:        req.Hour,
		At:          req.Timestamp,
		Fingerprint: req.Device.Fingerprint(),
		Origin:      req.Device.NetworkOrigin(),
	}
	if err := e.profiles.Apply(ctx, update); err != nil {
		return nil, fmt.Errorf("apply profile update: %w", err)
	}

	elapsed := e.clock().Sub(start)
	metrics.ObserveDecision(string(decision.RiskLevel), decision.Prediction, elapsed)
	span.SetAttributes(
		traces.RiskLevel(string(decision.RiskLevel)),
		traces.FlagCount(decision.FlagCount()),
		traces.Degraded(decision.MLDegraded),
	)
	logging.L(ctx).Info("transaction evaluated",
		"transaction_id", decision.TransactionID,
		"customer_id", decision.CustomerID,
		"risk_level", decision.RiskLevel,
		"composite_score", decision.CompositeScore,
		"flags", decision.FlagCount(),
		"ml_degraded", decision.MLDegraded,
		"duration_ms", elapsed.Milliseconds(),
	)

	return decision, nil
}

// runEvaluator executes one evaluator, recovering panics so a broken
// evaluator costs its own flags and nothing else.
func (e *Engine) runEvaluator(ctx context.Context, ev Evaluator, req *TransactionRequest, snap *profile.Profile) (out Evaluation) {
	started := time.Now()
	out = Evaluation{Evaluator: ev.Name()}

	defer func() {
		if r := recover(); r != nil {
			metrics.EvaluatorPanicked(ev.Name())
			logging.L(ctx).Error("evaluator panicked",
				"evaluator", ev.Name(),
				"transaction_id", req.TransactionID,
				"panic", r)
			out = Evaluation{Evaluator: ev.Name(), Failed: true}
		}
		metrics.ObserveEvaluator(ev.Name(), time.Since(started), len(out.Flags))
	}()

	out.Flags = ev.Evaluate(req, snap)
	return out
}

// score calls the ML provider under the scoring deadline.
func (e *Engine) score(ctx context.Context, req *TransactionRequest) MLOutcome {
	started := time.Now()
	scoreCtx, cancel := context.WithTimeout(ctx, e.mlTimeout)
	defer cancel()

	features := ml.BuildFeatures(req.Amount, req.AccountAgeDays, req.Hour, req.Channel, req.KYCVerified, req.Timestamp)
	prob, err := e.scorer.Score(scoreCtx, features)
	if err != nil {
		metrics.ObserveMLScore("degraded", time.Since(started))
		logging.L(ctx).Warn("ml scoring degraded",
			"transaction_id", req.TransactionID,
			"error", err)
		return MLOutcome{Degraded: true}
	}

	metrics.ObserveMLScore("scored", time.Since(started))
	return MLOutcome{Probability: prob}
}
