// Package alerts manages the lifecycle of fraud alerts.
//
// An alert is opened at most once per transaction and then moves through
// a fixed state machine: pending is the only non-terminal state with
// outgoing edges to acknowledged, resolved and false_positive;
// acknowledged can close as resolved or false_positive; resolved and
// false_positive are terminal.
package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/transflow/riskd/internal/pagination"
)

// Status is an alert lifecycle state.
type Status string

const (
	StatusPending       Status = "pending"
	StatusAcknowledged  Status = "acknowledged"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusResolved, StatusFalsePositive:
		return true
	}
	return false
}

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusFalsePositive
}

// transitions is the single source of truth for allowed status edges.
var transitions = map[Status][]Status{
	StatusPending:       {StatusAcknowledged, StatusResolved, StatusFalsePositive},
	StatusAcknowledged:  {StatusResolved, StatusFalsePositive},
	StatusResolved:      {},
	StatusFalsePositive: {},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	// ErrAlertNotFound is returned when an alert ID does not exist.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrDuplicateAlert is returned by stores when an alert already
	// exists for the transaction.
	ErrDuplicateAlert = errors.New("alert already exists for transaction")

	// ErrInvalidTransition is returned for edges outside the state
	// machine, including any transition out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTransitionConflict is returned when the alert changed state
	// between read and update. Exactly one of several concurrent
	// conflicting transitions succeeds.
	ErrTransitionConflict = errors.New("alert status changed concurrently")
)

// Alert is one actionable fraud case.
type Alert struct {
	ID               string    `json:"id"`
	TransactionID    string    `json:"transaction_id"`
	CustomerID       string    `json:"customer_id"`
	RiskLevel        string    `json:"risk_level"`
	FraudProbability float64   `json:"fraud_probability"`
	CompositeScore   float64   `json:"composite_score"`
	RiskFactors      []string  `json:"risk_factors"`
	Message          string    `json:"message"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status     Status
	RiskLevel  string
	CustomerID string

	// Query matches as a case-insensitive substring against both the
	// transaction ID and the customer ID.
	Query string

	Cursor *pagination.Cursor
	Limit  int
}

// Store persists alerts.
type Store interface {
	// Create inserts a new alert, returning ErrDuplicateAlert if one
	// already exists for the same transaction.
	Create(ctx context.Context, a *Alert) error

	Get(ctx context.Context, id string) (*Alert, error)
	GetByTransaction(ctx context.Context, transactionID string) (*Alert, error)

	// TransitionStatus updates the status only if the current status
	// still equals from. Returns ErrTransitionConflict otherwise.
	TransitionStatus(ctx context.Context, id string, from, to Status, at time.Time) error

	// List returns alerts newest first, up to limit+1 entries so the
	// caller can compute pagination.
	List(ctx context.Context, f Filter) ([]*Alert, error)

	// CountByStatus returns alert counts grouped by status.
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}
