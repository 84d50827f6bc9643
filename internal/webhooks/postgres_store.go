package webhooks

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed subscription store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the webhook_subscriptions table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS webhook_subscriptions (
			id            VARCHAR(64) PRIMARY KEY,
			url           TEXT NOT NULL,
			secret        TEXT NOT NULL DEFAULT '',
			events        TEXT[] NOT NULL DEFAULT '{}',
			active        BOOLEAN NOT NULL DEFAULT TRUE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_success  TIMESTAMPTZ,
			last_error    TEXT NOT NULL DEFAULT ''
		);
	`)
	return err
}

const subColumns = `id, url, secret, events, active, created_at, last_success, last_error`

func (p *PostgresStore) scan(row interface{ Scan(...interface{}) error }) (*Subscription, error) {
	var s Subscription
	var events pq.StringArray
	var lastSuccess sql.NullTime
	err := row.Scan(&s.ID, &s.URL, &s.Secret, &events, &s.Active, &s.CreatedAt, &lastSuccess, &s.LastError)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		s.Events = append(s.Events, EventType(e))
	}
	if lastSuccess.Valid {
		s.LastSuccess = &lastSuccess.Time
	}
	return &s, nil
}

func eventStrings(events []EventType) pq.StringArray {
	out := make(pq.StringArray, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

func (p *PostgresStore) Create(ctx context.Context, sub *Subscription) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_subscriptions (id, url, secret, events, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sub.ID, sub.URL, sub.Secret, eventStrings(sub.Events), sub.Active, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Subscription, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+subColumns+` FROM webhook_subscriptions WHERE id = $1`, id)
	s, err := p.scan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("subscription not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) List(ctx context.Context) ([]*Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+subColumns+` FROM webhook_subscriptions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Subscription
	for rows.Next() {
		s, err := p.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetByEvent(ctx context.Context, eventType EventType) ([]*Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+subColumns+` FROM webhook_subscriptions WHERE $1 = ANY(events)
	`, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("get subscriptions by event: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Subscription
	for rows.Next() {
		s, err := p.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, sub *Subscription) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_subscriptions
		SET url = $1, secret = $2, events = $3, active = $4, last_success = $5, last_error = $6
		WHERE id = $7
	`, sub.URL, sub.Secret, eventStrings(sub.Events), sub.Active, sub.LastSuccess, sub.LastError, sub.ID)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}
