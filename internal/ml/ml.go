// Package ml provides fraud probability scoring.
//
// Scoring happens concurrently with the deterministic evaluators and is
// bounded by a deadline. When the provider cannot answer in time the
// engine degrades to a flag-derived fallback instead of blocking.
package ml

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrUnavailable indicates the scoring provider cannot be used right now,
// either because transport failed or the circuit breaker is open.
var ErrUnavailable = errors.New("ml provider unavailable")

// Features is the model input vector derived from a transaction.
type Features struct {
	AccountAgeDays int     `json:"account_age_days"`
	Amount         float64 `json:"transaction_amount"`
	AmountLog      float64 `json:"transaction_amount_log"`
	Hour           int     `json:"hour"`
	Day            int     `json:"day"`
	Month          int     `json:"month"`
	IsHighValue    int     `json:"is_high_value"`

	ChannelATM    int `json:"channel_ATM"`
	ChannelMobile int `json:"channel_Mobile"`
	ChannelPOS    int `json:"channel_POS"`
	ChannelWeb    int `json:"channel_Web"`

	KYCVerifiedYes int `json:"kyc_verified_Yes"`
	KYCVerifiedNo  int `json:"kyc_verified_No"`
}

// BuildFeatures derives the model input from raw transaction fields.
func BuildFeatures(amount float64, accountAgeDays, hour int, channel string, kycVerified bool, at time.Time) Features {
	f := Features{
		AccountAgeDays: accountAgeDays,
		Amount:         amount,
		AmountLog:      math.Log1p(amount),
		Hour:           hour,
		Day:            at.Day(),
		Month:          int(at.Month()),
	}
	if amount > 5000 {
		f.IsHighValue = 1
	}
	switch channel {
	case "ATM":
		f.ChannelATM = 1
	case "Mobile":
		f.ChannelMobile = 1
	case "POS":
		f.ChannelPOS = 1
	case "Web":
		f.ChannelWeb = 1
	}
	if kycVerified {
		f.KYCVerifiedYes = 1
	} else {
		f.KYCVerifiedNo = 1
	}
	return f
}

// Scorer produces a fraud probability in [0, 1] for a feature vector.
type Scorer interface {
	Score(ctx context.Context, f Features) (float64, error)
	Version() string
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
