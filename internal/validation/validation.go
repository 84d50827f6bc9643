// Package validation holds input validation shared by handlers and the engine.
package validation

import (
	"fmt"
	"math"
	"strings"
)

// Channels accepted on transaction submissions.
var Channels = []string{"Mobile", "Web", "ATM", "POS"}

const (
	maxIDLength      = 128
	maxAmount        = 1_000_000_000 // sanity cap, not a business rule
	maxLocationChars = 256
)

// ValidateCustomerID ensures a customer identifier is present and sane.
func ValidateCustomerID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("customer_id is required")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("customer_id exceeds %d characters", maxIDLength)
	}
	return nil
}

// ValidateTransactionID checks a caller-supplied transaction identifier.
// Empty is allowed; the service assigns one.
func ValidateTransactionID(id string) error {
	if id == "" {
		return nil
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("transaction_id exceeds %d characters", maxIDLength)
	}
	return nil
}

// ValidateAmount rejects non-positive, non-finite or absurd amounts.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("amount must be a finite number")
	}
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if amount > maxAmount {
		return fmt.Errorf("amount exceeds maximum of %d", maxAmount)
	}
	return nil
}

// ValidateChannel checks the transaction channel against the known set.
func ValidateChannel(channel string) error {
	for _, c := range Channels {
		if channel == c {
			return nil
		}
	}
	return fmt.Errorf("channel must be one of %s", strings.Join(Channels, ", "))
}

// ValidateHour checks an hour-of-day value.
func ValidateHour(hour int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("hour must be between 0 and 23")
	}
	return nil
}

// ValidateAccountAge checks the account age in days.
func ValidateAccountAge(days int) error {
	if days < 0 {
		return fmt.Errorf("account_age_days must not be negative")
	}
	return nil
}

// ValidateLocation bounds free-form location strings. Empty is allowed.
func ValidateLocation(loc string) error {
	if len(loc) > maxLocationChars {
		return fmt.Errorf("location exceeds %d characters", maxLocationChars)
	}
	return nil
}
