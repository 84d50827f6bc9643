package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/transflow/riskd/internal/engine"
	"github.com/transflow/riskd/internal/idgen"
	"github.com/transflow/riskd/internal/logging"
	"github.com/transflow/riskd/internal/metrics"
)

// Policy decides which decisions open alerts.
type Policy struct {
	// MinLevel is the lowest risk level that opens an alert.
	MinLevel engine.RiskLevel

	// AlwaysAlertFlags open an alert regardless of level.
	AlwaysAlertFlags []string
}

// DefaultPolicy alerts on High and Critical decisions, and on any
// high-value ATM withdrawal whatever the level.
func DefaultPolicy() Policy {
	return Policy{
		MinLevel:         engine.RiskHigh,
		AlwaysAlertFlags: []string{engine.FlagHighValueATM},
	}
}

// ShouldAlert applies the policy to a decision.
func (p Policy) ShouldAlert(d *engine.Decision) bool {
	if d.RiskLevel.Rank() >= p.MinLevel.Rank() {
		return true
	}
	for _, always := range p.AlwaysAlertFlags {
		for _, f := range d.AllFlags {
			if f == always {
				return true
			}
		}
	}
	return false
}

// Notifier is told about newly opened alerts. Implementations must not
// block; delivery failures are their own concern.
type Notifier interface {
	AlertCreated(a *Alert)
}

// Service implements alert lifecycle operations on top of a Store.
type Service struct {
	store     Store
	policy    Policy
	notifiers []Notifier
	logger    *slog.Logger
	clock     func() time.Time
}

// NewService creates an alert service.
func NewService(store Store, policy Policy, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		policy: policy,
		logger: logger,
		clock:  time.Now,
	}
}

// AddNotifier registers a notifier for new alerts.
func (s *Service) AddNotifier(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// DecisionMade opens an alert for the decision when policy demands one.
// Opening is idempotent per transaction: re-evaluating a transaction
// that already has an alert returns the existing alert's ID.
func (s *Service) DecisionMade(ctx context.Context, d *engine.Decision) ([]string, error) {
	if !s.policy.ShouldAlert(d) {
		return nil, nil
	}

	now := s.clock()
	a := &Alert{
		ID:               idgen.Alert(),
		TransactionID:    d.TransactionID,
		CustomerID:       d.CustomerID,
		RiskLevel:        string(d.RiskLevel),
		FraudProbability: d.FraudProbability,
		CompositeScore:   d.CompositeScore,
		RiskFactors:      append([]string(nil), d.AllFlags...),
		Message:          fmt.Sprintf("%s risk transaction for customer %s", d.RiskLevel, d.CustomerID),
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.store.Create(ctx, a)
	if errors.Is(err, ErrDuplicateAlert) {
		existing, getErr := s.store.GetByTransaction(ctx, d.TransactionID)
		if getErr != nil {
			return nil, fmt.Errorf("load existing alert: %w", getErr)
		}
		return []string{existing.ID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}

	metrics.AlertCreated(a.RiskLevel)
	logging.L(ctx).Info("alert opened",
		"alert_id", a.ID,
		"transaction_id", a.TransactionID,
		"customer_id", a.CustomerID,
		"risk_level", a.RiskLevel)

	for _, n := range s.notifiers {
		n.AlertCreated(a)
	}

	return []string{a.ID}, nil
}

// Get returns one alert by ID.
func (s *Service) Get(ctx context.Context, id string) (*Alert, error) {
	return s.store.Get(ctx, id)
}

// GetByTransaction returns the alert for a transaction, if any.
func (s *Service) GetByTransaction(ctx context.Context, transactionID string) (*Alert, error) {
	return s.store.GetByTransaction(ctx, transactionID)
}

// List returns alerts matching the filter, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]*Alert, error) {
	return s.store.List(ctx, f)
}

// CountByStatus returns alert counts per status.
func (s *Service) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	return s.store.CountByStatus(ctx)
}

// Acknowledge moves a pending alert to acknowledged.
func (s *Service) Acknowledge(ctx context.Context, id string) (*Alert, error) {
	return s.transition(ctx, id, StatusAcknowledged)
}

// Resolve closes an alert as a confirmed, handled case.
func (s *Service) Resolve(ctx context.Context, id string) (*Alert, error) {
	return s.transition(ctx, id, StatusResolved)
}

// MarkFalsePositive closes an alert as a false positive.
func (s *Service) MarkFalsePositive(ctx context.Context, id string) (*Alert, error) {
	return s.transition(ctx, id, StatusFalsePositive)
}

// transition performs a validated compare-and-set status change. When two
// callers race, the store's CAS guarantees exactly one wins; the loser
// gets ErrTransitionConflict.
func (s *Service) transition(ctx context.Context, id string, to Status) (*Alert, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(a.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}

	if err := s.store.TransitionStatus(ctx, id, a.Status, to, s.clock()); err != nil {
		return nil, err
	}

	metrics.AlertTransitioned(string(a.Status), string(to))
	logging.L(ctx).Info("alert transitioned",
		"alert_id", id,
		"from", a.Status,
		"to", to)

	return s.store.Get(ctx, id)
}
