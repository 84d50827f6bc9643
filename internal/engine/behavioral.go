package engine

import (
	"math"

	"github.com/transflow/riskd/internal/profile"
)

// BehavioralConfig tunes the per-customer anomaly checks.
type BehavioralConfig struct {
	// MinSamples is how many observations a statistic needs before it
	// is trusted. Below it the evaluator stays silent.
	MinSamples int64

	// ZThreshold is the absolute z-score beyond which an amount is
	// considered abnormal for the customer.
	ZThreshold float64

	// HourMargin widens the customer's observed hour range on both
	// sides before an hour is called atypical.
	HourMargin int
}

// DefaultBehavioralConfig returns the production behavioral tuning.
func DefaultBehavioralConfig() BehavioralConfig {
	return BehavioralConfig{
		MinSamples: 5,
		ZThreshold: 3.0,
		HourMargin: 2,
	}
}

// BehavioralEvaluator compares a transaction to the customer's own
// history. New customers produce no behavioral flags at all: with no
// baseline there is nothing to deviate from.
type BehavioralEvaluator struct {
	cfg BehavioralConfig
}

// NewBehavioralEvaluator creates a behavioral evaluator.
func NewBehavioralEvaluator(cfg BehavioralConfig) *BehavioralEvaluator {
	return &BehavioralEvaluator{cfg: cfg}
}

func (e *BehavioralEvaluator) Name() string { return EvaluatorBehavioral }

func (e *BehavioralEvaluator) Evaluate(req *TransactionRequest, snap *profile.Profile) []string {
	var flags []string

	if stats := snap.ChannelStats(req.Channel); stats != nil && stats.Count >= e.cfg.MinSamples {
		if math.Abs(stats.Z(req.Amount)) > e.cfg.ZThreshold {
			flags = append(flags, FlagAbnormalAmount)
		}
	}

	if snap.TotalCount >= e.cfg.MinSamples {
		if lo, hi, ok := snap.ObservedHourRange(); ok {
			if req.Hour < lo-e.cfg.HourMargin || req.Hour > hi+e.cfg.HourMargin {
				flags = append(flags, FlagAtypicalHour)
			}
		}
	}

	return flags
}
