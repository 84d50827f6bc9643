package transactions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/transflow/riskd/internal/engine"
)

// Service records decisions and serves statistics.
type Service struct {
	store  Store
	logger *slog.Logger
	clock  func() time.Time
}

// NewService creates a transactions service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, clock: time.Now}
}

// RecordDecision persists the outcome of one evaluation.
func (s *Service) RecordDecision(ctx context.Context, req *engine.TransactionRequest, d *engine.Decision) error {
	rec := &Record{
		TransactionID:    d.TransactionID,
		CustomerID:       d.CustomerID,
		Amount:           req.Amount,
		Channel:          req.Channel,
		Location:         req.Location,
		Hour:             req.Hour,
		AccountAgeDays:   req.AccountAgeDays,
		KYCVerified:      req.KYCVerified,
		Prediction:       d.Prediction,
		FraudProbability: d.FraudProbability,
		CompositeScore:   d.CompositeScore,
		RiskLevel:        string(d.RiskLevel),
		RiskFactors:      append([]string(nil), d.AllFlags...),
		MLDegraded:       d.MLDegraded,
		CreatedAt:        s.clock(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, transactionID string) (*Record, error) {
	return s.store.Get(ctx, transactionID)
}

// List returns records matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]*Record, error) {
	return s.store.List(ctx, f)
}

// FraudStats returns the overall fraud summary.
func (s *Service) FraudStats(ctx context.Context) (*FraudStats, error) {
	return s.store.FraudStats(ctx)
}

// ChannelStats returns per-channel statistics.
func (s *Service) ChannelStats(ctx context.Context) ([]ChannelBucket, error) {
	return s.store.ChannelStats(ctx)
}

// HourlyStats returns the 24-bucket hourly distribution.
func (s *Service) HourlyStats(ctx context.Context) ([]HourBucket, error) {
	return s.store.HourlyStats(ctx)
}
