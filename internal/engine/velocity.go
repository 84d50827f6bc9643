package engine

import (
	"time"

	"github.com/transflow/riskd/internal/profile"
)

// VelocityConfig tunes the windowed rate checks.
type VelocityConfig struct {
	// BurstWindow and BurstCap flag rapid succession: a transaction
	// flags when the customer already has BurstCap or more transactions
	// inside the window.
	BurstWindow time.Duration
	BurstCap    int

	// HourlyCap bounds the count in the trailing hour.
	HourlyCap int

	// DailyAmountCap bounds the summed amount in the trailing 24 hours.
	DailyAmountCap float64
}

// DefaultVelocityConfig returns the production velocity tuning.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		BurstWindow:    10 * time.Minute,
		BurstCap:       3,
		HourlyCap:      10,
		DailyAmountCap: 100000,
	}
}

// VelocityEvaluator counts recent activity in the profile snapshot. The
// snapshot never contains the transaction under evaluation, so the caps
// apply to prior activity: with a cap of 3, the fourth transaction inside
// the window is the first to flag.
type VelocityEvaluator struct {
	cfg VelocityConfig
}

// NewVelocityEvaluator creates a velocity evaluator.
func NewVelocityEvaluator(cfg VelocityConfig) *VelocityEvaluator {
	return &VelocityEvaluator{cfg: cfg}
}

func (e *VelocityEvaluator) Name() string { return EvaluatorVelocity }

func (e *VelocityEvaluator) Evaluate(req *TransactionRequest, snap *profile.Profile) []string {
	var flags []string
	now := req.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	if snap.CountSince(now.Add(-e.cfg.BurstWindow)) >= e.cfg.BurstCap {
		flags = append(flags, FlagRapidSuccession)
	}
	if snap.CountSince(now.Add(-time.Hour)) >= e.cfg.HourlyCap {
		flags = append(flags, FlagHourlyCount)
	}
	if snap.AmountSince(now.Add(-24*time.Hour))+req.Amount > e.cfg.DailyAmountCap {
		flags = append(flags, FlagDailyVolume)
	}

	return flags
}
