// Package engine evaluates transactions and produces risk decisions.
//
// Each transaction fans out to four deterministic evaluators (rule,
// behavioral, signature, velocity) plus the ML scorer, then an aggregator
// combines their outputs into a composite score and risk level.
package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/transflow/riskd/internal/validation"
)

// Evaluator names, also used as metric labels and flag grouping keys.
const (
	EvaluatorRule       = "rule"
	EvaluatorBehavioral = "behavioral"
	EvaluatorSignature  = "signature"
	EvaluatorVelocity   = "velocity"
)

// Risk flags raised by the rule evaluator.
const (
	FlagHighAmount     = "high transaction amount"
	FlagNewAccount     = "new account"
	FlagUnusualTime    = "unusual transaction time"
	FlagKYCNotVerified = "KYC not verified"
	FlagHighValueATM   = "high-value ATM transaction"
)

// Risk flags raised by the behavioral evaluator.
const (
	FlagAbnormalAmount = "abnormal amount for customer"
	FlagAtypicalHour   = "atypical hour for customer"
)

// Risk flags raised by the signature evaluator.
const (
	FlagUnknownDevice  = "unrecognized device"
	FlagOriginMismatch = "device/location mismatch"
)

// Risk flags raised by the velocity evaluator.
const (
	FlagRapidSuccession = "rapid succession of transactions"
	FlagHourlyCount     = "high hourly transaction count"
	FlagDailyVolume     = "daily transaction volume exceeded"
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid transaction request")

// DeviceInfo describes the device and network a transaction came from.
type DeviceInfo struct {
	OS      string `json:"os,omitempty"`
	Browser string `json:"browser,omitempty"`
	IP      string `json:"ip,omitempty"`
}

// Fingerprint returns the normalized device identity, or "" when no
// device information was submitted.
func (d DeviceInfo) Fingerprint() string {
	os := strings.ToLower(strings.TrimSpace(d.OS))
	browser := strings.ToLower(strings.TrimSpace(d.Browser))
	if os == "" && browser == "" {
		return ""
	}
	return os + "|" + browser
}

// NetworkOrigin returns a coarse network identity derived from the IP
// (the first two IPv4 octets), or "" when absent or unparseable.
func (d DeviceInfo) NetworkOrigin() string {
	ip := strings.TrimSpace(d.IP)
	if ip == "" {
		return ""
	}
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// TransactionRequest is a transaction submitted for risk evaluation.
type TransactionRequest struct {
	TransactionID  string     `json:"transaction_id,omitempty"`
	CustomerID     string     `json:"customer_id"`
	Amount         float64    `json:"amount"`
	Channel        string     `json:"channel"`
	Hour           int        `json:"hour"`
	AccountAgeDays int        `json:"account_age_days"`
	KYCVerified    bool       `json:"kyc_verified"`
	Location       string     `json:"location,omitempty"`
	Device         DeviceInfo `json:"device,omitempty"`
	Timestamp      time.Time  `json:"timestamp,omitempty"`
}

// Validate checks all request fields.
func (r *TransactionRequest) Validate() error {
	if err := validation.ValidateCustomerID(r.CustomerID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validation.ValidateTransactionID(r.TransactionID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validation.ValidateAmount(r.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validation.ValidateChannel(r.Channel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validation.ValidateHour(r.Hour); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validation.ValidateAccountAge(r.AccountAgeDays); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validation.ValidateLocation(r.Location); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Evaluation is the output of a single evaluator for one transaction.
type Evaluation struct {
	Evaluator string   `json:"evaluator"`
	Flags     []string `json:"flags"`

	// Failed marks an evaluator that panicked or errored. Its flags are
	// empty and the rest of the pipeline proceeds without it.
	Failed bool `json:"failed,omitempty"`
}

// RiskLevel buckets the composite score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// Rank orders risk levels for comparisons and filters.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return -1
	}
}

// Prediction labels.
const (
	PredictionFraud      = "Fraud"
	PredictionLegitimate = "Legitimate"
)

// Decision is the full outcome of evaluating one transaction.
type Decision struct {
	TransactionID    string    `json:"transaction_id"`
	CustomerID       string    `json:"customer_id"`
	Prediction       string    `json:"prediction"`
	FraudProbability float64   `json:"fraud_probability"`
	CompositeScore   float64   `json:"composite_score"`
	RiskLevel        RiskLevel `json:"risk_level"`
	Confidence       float64   `json:"confidence"`
	MLDegraded       bool      `json:"ml_degraded"`

	RuleFlags       []string `json:"rule_flags"`
	BehavioralFlags []string `json:"behavioral_flags"`
	SignatureFlags  []string `json:"signature_flags"`
	VelocityFlags   []string `json:"velocity_flags"`

	// AllFlags preserves evaluator order: rule, behavioral, signature,
	// velocity.
	AllFlags []string `json:"all_flags"`

	AlertIDs    []string  `json:"alert_ids,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// FlagCount returns the total number of flags across evaluators.
func (d *Decision) FlagCount() int {
	return len(d.AllFlags)
}
