package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func aggregate(evals []Evaluation, mlOut MLOutcome) *Decision {
	a := NewAggregator(DefaultAggregationConfig())
	req := &TransactionRequest{TransactionID: "txn_1", CustomerID: "CUST_1"}
	return a.Aggregate(req, evals, mlOut, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestAggregateCompositeScore(t *testing.T) {
	evals := []Evaluation{
		{Evaluator: EvaluatorRule, Flags: []string{FlagHighAmount, FlagNewAccount, FlagUnusualTime}},
		{Evaluator: EvaluatorBehavioral},
		{Evaluator: EvaluatorSignature},
		{Evaluator: EvaluatorVelocity},
	}
	d := aggregate(evals, MLOutcome{Probability: 0.5})

	// 0.6*0.5 + 0.4*(3/6) = 0.5
	assert.InDelta(t, 0.5, d.CompositeScore, 1e-9)
	assert.Equal(t, RiskMedium, d.RiskLevel)
	assert.Equal(t, PredictionLegitimate, d.Prediction)
	assert.Equal(t, 50.0, d.Confidence)
	assert.False(t, d.MLDegraded)
}

func TestAggregateRiskLevels(t *testing.T) {
	tests := []struct {
		prob  float64
		flags int
		want  RiskLevel
	}{
		{0.1, 0, RiskLow},
		{0.6, 1, RiskMedium},
		{0.9, 4, RiskHigh},
		{0.99, 6, RiskCritical},
	}
	for _, tt := range tests {
		flags := make([]string, tt.flags)
		for i := range flags {
			flags[i] = FlagUnusualTime
		}
		d := aggregate([]Evaluation{{Evaluator: EvaluatorRule, Flags: flags}}, MLOutcome{Probability: tt.prob})
		assert.Equal(t, tt.want, d.RiskLevel, "prob=%v flags=%d score=%v", tt.prob, tt.flags, d.CompositeScore)
	}
}

func TestAggregateMonotonicInProbability(t *testing.T) {
	evals := []Evaluation{{Evaluator: EvaluatorRule, Flags: []string{FlagHighAmount}}}
	prev := -1.0
	for _, p := range []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0} {
		d := aggregate(evals, MLOutcome{Probability: p})
		assert.Greater(t, d.CompositeScore, prev)
		prev = d.CompositeScore
	}
}

func TestAggregateHardOverride(t *testing.T) {
	// Missing KYC plus a large amount is Critical even with a tiny
	// model probability.
	evals := []Evaluation{
		{Evaluator: EvaluatorRule, Flags: []string{FlagHighAmount, FlagKYCNotVerified}},
	}
	d := aggregate(evals, MLOutcome{Probability: 0.01})
	assert.Equal(t, RiskCritical, d.RiskLevel)
	assert.Equal(t, PredictionFraud, d.Prediction)

	// Either flag alone does not trigger the override.
	d = aggregate([]Evaluation{{Evaluator: EvaluatorRule, Flags: []string{FlagKYCNotVerified}}}, MLOutcome{Probability: 0.01})
	assert.NotEqual(t, RiskCritical, d.RiskLevel)
}

func TestAggregateDegradedFallback(t *testing.T) {
	evals := []Evaluation{
		{Evaluator: EvaluatorRule, Flags: []string{FlagUnusualTime, FlagNewAccount}},
		{Evaluator: EvaluatorVelocity, Flags: []string{FlagRapidSuccession}},
	}
	d := aggregate(evals, MLOutcome{Degraded: true})

	assert.True(t, d.MLDegraded)
	// Fallback: 0.1 + 0.15*3 = 0.55.
	assert.InDelta(t, 0.55, d.FraudProbability, 1e-9)
	// Composite: 0.6*0.55 + 0.4*(3/6) = 0.53.
	assert.InDelta(t, 0.53, d.CompositeScore, 1e-9)

	// Fallback saturates at the cap.
	many := make([]string, 10)
	for i := range many {
		many[i] = FlagUnusualTime
	}
	d = aggregate([]Evaluation{{Evaluator: EvaluatorRule, Flags: many}}, MLOutcome{Degraded: true})
	assert.InDelta(t, 0.9, d.FraudProbability, 1e-9)
}

func TestAggregateFlagOrderAndGrouping(t *testing.T) {
	evals := []Evaluation{
		{Evaluator: EvaluatorRule, Flags: []string{FlagHighAmount}},
		{Evaluator: EvaluatorBehavioral, Flags: []string{FlagAbnormalAmount}},
		{Evaluator: EvaluatorSignature, Flags: []string{FlagUnknownDevice}},
		{Evaluator: EvaluatorVelocity, Flags: []string{FlagRapidSuccession}},
	}
	d := aggregate(evals, MLOutcome{Probability: 0.2})

	assert.Equal(t, []string{FlagHighAmount, FlagAbnormalAmount, FlagUnknownDevice, FlagRapidSuccession}, d.AllFlags)
	assert.Equal(t, []string{FlagHighAmount}, d.RuleFlags)
	assert.Equal(t, []string{FlagAbnormalAmount}, d.BehavioralFlags)
	assert.Equal(t, []string{FlagUnknownDevice}, d.SignatureFlags)
	assert.Equal(t, []string{FlagRapidSuccession}, d.VelocityFlags)
}

func TestAggregateFlagScoreSaturates(t *testing.T) {
	many := make([]string, 12)
	for i := range many {
		many[i] = FlagUnusualTime
	}
	d := aggregate([]Evaluation{{Evaluator: EvaluatorRule, Flags: many}}, MLOutcome{Probability: 0})
	// Flag component caps at 1: 0.6*0 + 0.4*1.
	assert.InDelta(t, 0.4, d.CompositeScore, 1e-9)
}
