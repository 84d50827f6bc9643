// Package transactions keeps the record of every evaluated transaction
// and serves the statistics built on top of it.
package transactions

import (
	"context"
	"errors"
	"time"

	"github.com/transflow/riskd/internal/pagination"
)

// ErrTransactionNotFound is returned when a record does not exist.
var ErrTransactionNotFound = errors.New("transaction not found")

// Record is the stored outcome of one evaluation.
type Record struct {
	TransactionID    string    `json:"transaction_id"`
	CustomerID       string    `json:"customer_id"`
	Amount           float64   `json:"amount"`
	Channel          string    `json:"channel"`
	Location         string    `json:"location,omitempty"`
	Hour             int       `json:"hour"`
	AccountAgeDays   int       `json:"account_age_days"`
	KYCVerified      bool      `json:"kyc_verified"`
	Prediction       string    `json:"prediction"`
	FraudProbability float64   `json:"fraud_probability"`
	CompositeScore   float64   `json:"composite_score"`
	RiskLevel        string    `json:"risk_level"`
	RiskFactors      []string  `json:"risk_factors"`
	MLDegraded       bool      `json:"ml_degraded"`
	CreatedAt        time.Time `json:"created_at"`
}

// IsFraud reports whether the record was predicted fraudulent.
func (r *Record) IsFraud() bool {
	return r.Prediction == "Fraud"
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	CustomerID string
	Channel    string
	RiskLevel  string
	OnlyFraud  *bool
	Cursor     *pagination.Cursor
	Limit      int
}

// FraudStats summarizes the fraud split over all records.
type FraudStats struct {
	Total          int64   `json:"total"`
	FraudCount     int64   `json:"fraud_count"`
	FraudRate      float64 `json:"fraud_rate"`
	AvgProbability float64 `json:"avg_fraud_probability"`
	DegradedCount  int64   `json:"ml_degraded_count"`
}

// ChannelBucket is the per-channel statistics row.
type ChannelBucket struct {
	Channel    string  `json:"channel"`
	Count      int64   `json:"count"`
	FraudCount int64   `json:"fraud_count"`
	AvgAmount  float64 `json:"avg_amount"`
}

// HourBucket is the per-hour statistics row.
type HourBucket struct {
	Hour       int   `json:"hour"`
	Count      int64 `json:"count"`
	FraudCount int64 `json:"fraud_count"`
}

// Store persists transaction records.
type Store interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, transactionID string) (*Record, error)

	// List returns records newest first, up to limit+1 entries.
	List(ctx context.Context, f Filter) ([]*Record, error)

	FraudStats(ctx context.Context) (*FraudStats, error)
	ChannelStats(ctx context.Context) ([]ChannelBucket, error)
	HourlyStats(ctx context.Context) ([]HourBucket, error)
}
