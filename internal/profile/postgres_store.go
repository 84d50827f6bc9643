package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL. The profile state
// is nested (per-channel stats, histograms, device lists), so it is stored
// as a single JSONB document per customer.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed profile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the customer_profiles table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS customer_profiles (
			customer_id  VARCHAR(128) PRIMARY KEY,
			data         JSONB NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, customerID string) (*Profile, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT data FROM customer_profiles WHERE customer_id = $1
	`, customerID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	prof := NewProfile(customerID)
	if err := json.Unmarshal(raw, prof); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if prof.Channels == nil {
		prof.Channels = make(map[string]*AmountStats)
	}
	if prof.Origins == nil {
		prof.Origins = make(map[string]int64)
	}
	return prof, nil
}

func (p *PostgresStore) Put(ctx context.Context, prof *Profile) error {
	raw, err := json.Marshal(prof)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO customer_profiles (customer_id, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, prof.CustomerID, raw, time.Now())
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}
