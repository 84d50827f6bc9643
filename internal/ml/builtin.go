package ml

import "context"

// BuiltinScorer is a deterministic logistic model used when no external
// scoring service is configured. Its coefficients approximate the hosted
// model: probability rises with amount, new accounts, night hours,
// missing KYC and cash channels.
type BuiltinScorer struct{}

// NewBuiltinScorer creates the in-process scorer.
func NewBuiltinScorer() *BuiltinScorer {
	return &BuiltinScorer{}
}

const builtinVersion = "builtin-logistic-1"

func (s *BuiltinScorer) Version() string { return builtinVersion }

// Score applies a fixed logistic regression to the feature vector.
func (s *BuiltinScorer) Score(ctx context.Context, f Features) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	z := -4.0
	z += 0.28 * f.AmountLog
	z += 0.9 * float64(f.IsHighValue)
	z += 1.2 * float64(f.KYCVerifiedNo)
	z += 0.4 * float64(f.ChannelATM)

	if f.Hour < 6 || f.Hour > 22 {
		z += 0.8
	}
	if f.AccountAgeDays < 30 {
		z += 0.9
	} else if f.AccountAgeDays < 90 {
		z += 0.3
	}

	return sigmoid(z), nil
}
