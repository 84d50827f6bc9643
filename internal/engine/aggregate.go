package engine

import (
	"math"
	"time"
)

// AggregationConfig tunes how evaluator outputs combine into a decision.
type AggregationConfig struct {
	// WeightML and WeightFlags blend the fraud probability with the
	// normalized flag count. They should sum to 1.
	WeightML    float64
	WeightFlags float64

	// FlagNormalizer is the flag count at which the flag component
	// saturates to 1.
	FlagNormalizer float64

	// Score thresholds. Low < Medium <= score < High <= score < Critical.
	MediumThreshold   float64
	HighThreshold     float64
	CriticalThreshold float64

	// Fallback probability parameters used when scoring degrades:
	// p = min(cap, base + perFlag * flags).
	FallbackBase    float64
	FallbackPerFlag float64
	FallbackCap     float64
}

// DefaultAggregationConfig returns the production aggregation tuning.
func DefaultAggregationConfig() AggregationConfig {
	return AggregationConfig{
		WeightML:          0.6,
		WeightFlags:       0.4,
		FlagNormalizer:    6,
		MediumThreshold:   0.4,
		HighThreshold:     0.7,
		CriticalThreshold: 0.9,
		FallbackBase:      0.1,
		FallbackPerFlag:   0.15,
		FallbackCap:       0.9,
	}
}

// MLOutcome is what the scoring stage handed the aggregator.
type MLOutcome struct {
	Probability float64
	Degraded    bool
}

// Aggregator folds evaluator flags and the scoring outcome into a
// decision.
type Aggregator struct {
	cfg AggregationConfig
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg AggregationConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// FallbackProbability derives a stand-in probability from the flag count
// when the model could not answer.
func (a *Aggregator) FallbackProbability(flagCount int) float64 {
	p := a.cfg.FallbackBase + a.cfg.FallbackPerFlag*float64(flagCount)
	return math.Min(a.cfg.FallbackCap, p)
}

// Aggregate builds the decision for one evaluated transaction. The
// evaluations slice preserves evaluator order.
func (a *Aggregator) Aggregate(req *TransactionRequest, evals []Evaluation, mlOut MLOutcome, at time.Time) *Decision {
	d := &Decision{
		TransactionID: req.TransactionID,
		CustomerID:    req.CustomerID,
		MLDegraded:    mlOut.Degraded,
		EvaluatedAt:   at,
	}

	for _, ev := range evals {
		switch ev.Evaluator {
		case EvaluatorRule:
			d.RuleFlags = ev.Flags
		case EvaluatorBehavioral:
			d.BehavioralFlags = ev.Flags
		case EvaluatorSignature:
			d.SignatureFlags = ev.Flags
		case EvaluatorVelocity:
			d.VelocityFlags = ev.Flags
		}
		d.AllFlags = append(d.AllFlags, ev.Flags...)
	}
	if d.AllFlags == nil {
		d.AllFlags = []string{}
	}

	prob := mlOut.Probability
	if mlOut.Degraded {
		prob = a.FallbackProbability(len(d.AllFlags))
	}
	d.FraudProbability = prob
	d.Confidence = math.Round(prob*10000) / 100

	flagScore := 0.0
	if a.cfg.FlagNormalizer > 0 {
		flagScore = math.Min(1, float64(len(d.AllFlags))/a.cfg.FlagNormalizer)
	}
	d.CompositeScore = clamp01(a.cfg.WeightML*prob + a.cfg.WeightFlags*flagScore)

	d.RiskLevel = a.level(d)
	if d.RiskLevel == RiskHigh || d.RiskLevel == RiskCritical {
		d.Prediction = PredictionFraud
	} else {
		d.Prediction = PredictionLegitimate
	}

	return d
}

// level maps the composite score to a risk level, with a hard override:
// an unverified customer moving a large amount is Critical no matter what
// the model said.
func (a *Aggregator) level(d *Decision) RiskLevel {
	if contains(d.RuleFlags, FlagKYCNotVerified) && contains(d.RuleFlags, FlagHighAmount) {
		return RiskCritical
	}

	switch {
	case d.CompositeScore >= a.cfg.CriticalThreshold:
		return RiskCritical
	case d.CompositeScore >= a.cfg.HighThreshold:
		return RiskHigh
	case d.CompositeScore >= a.cfg.MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func contains(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}
