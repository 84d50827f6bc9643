package engine

import (
	"github.com/transflow/riskd/internal/profile"
)

// Evaluator inspects a transaction against the customer's profile
// snapshot and returns zero or more risk flags. Evaluators must be pure:
// no I/O, no mutation of the snapshot.
type Evaluator interface {
	Name() string
	Evaluate(req *TransactionRequest, snap *profile.Profile) []string
}

// RuleConfig holds the static rule thresholds.
type RuleConfig struct {
	HighAmount     float64
	NewAccountDays int
	NightHourStart int
	NightHourEnd   int
	ATMAmount      float64
}

// DefaultRuleConfig returns the production rule thresholds.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		HighAmount:     10000,
		NewAccountDays: 30,
		NightHourStart: 22,
		NightHourEnd:   6,
		ATMAmount:      20000,
	}
}

// RuleEvaluator applies fixed threshold rules. These rules fire on the
// transaction alone and never consult customer history.
type RuleEvaluator struct {
	cfg RuleConfig
}

// NewRuleEvaluator creates a rule evaluator with the given thresholds.
func NewRuleEvaluator(cfg RuleConfig) *RuleEvaluator {
	return &RuleEvaluator{cfg: cfg}
}

func (e *RuleEvaluator) Name() string { return EvaluatorRule }

func (e *RuleEvaluator) Evaluate(req *TransactionRequest, _ *profile.Profile) []string {
	var flags []string

	if req.Amount > e.cfg.HighAmount {
		flags = append(flags, FlagHighAmount)
	}
	if req.AccountAgeDays < e.cfg.NewAccountDays {
		flags = append(flags, FlagNewAccount)
	}
	if req.Hour < e.cfg.NightHourEnd || req.Hour > e.cfg.NightHourStart {
		flags = append(flags, FlagUnusualTime)
	}
	if !req.KYCVerified {
		flags = append(flags, FlagKYCNotVerified)
	}
	if req.Channel == "ATM" && req.Amount > e.cfg.ATMAmount {
		flags = append(flags, FlagHighValueATM)
	}

	return flags
}
