package alerts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed alert store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the alerts table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS alerts (
			id                 VARCHAR(64) PRIMARY KEY,
			transaction_id     VARCHAR(128) NOT NULL,
			customer_id        VARCHAR(128) NOT NULL,
			risk_level         VARCHAR(16) NOT NULL,
			fraud_probability  DOUBLE PRECISION NOT NULL,
			composite_score    DOUBLE PRECISION NOT NULL,
			risk_factors       TEXT[] NOT NULL DEFAULT '{}',
			message            TEXT NOT NULL DEFAULT '',
			status             VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_transaction ON alerts(transaction_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
		CREATE INDEX IF NOT EXISTS idx_alerts_customer ON alerts(customer_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at DESC);
	`)
	return err
}

const uniqueViolation = "23505"

func (p *PostgresStore) Create(ctx context.Context, a *Alert) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO alerts (
			id, transaction_id, customer_id, risk_level,
			fraud_probability, composite_score, risk_factors, message,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.TransactionID, a.CustomerID, a.RiskLevel,
		a.FraudProbability, a.CompositeScore, pq.Array(a.RiskFactors), a.Message,
		a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicateAlert
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

const alertColumns = `id, transaction_id, customer_id, risk_level,
	fraud_probability, composite_score, risk_factors, message,
	status, created_at, updated_at`

func (p *PostgresStore) scan(row interface{ Scan(...interface{}) error }) (*Alert, error) {
	var a Alert
	var factors pq.StringArray
	err := row.Scan(&a.ID, &a.TransactionID, &a.CustomerID, &a.RiskLevel,
		&a.FraudProbability, &a.CompositeScore, &factors, &a.Message,
		&a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.RiskFactors = []string(factors)
	return &a, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Alert, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	a, err := p.scan(row)
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (p *PostgresStore) GetByTransaction(ctx context.Context, transactionID string) (*Alert, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE transaction_id = $1`, transactionID)
	a, err := p.scan(row)
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert by transaction: %w", err)
	}
	return a, nil
}

func (p *PostgresStore) TransitionStatus(ctx context.Context, id string, from, to Status, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE alerts SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, to, at, id, from)
	if err != nil {
		return fmt.Errorf("transition alert: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition alert: %w", err)
	}
	if rows == 1 {
		return nil
	}

	// No row matched: either the alert is gone or someone else moved it.
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM alerts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("transition alert: %w", err)
	}
	if !exists {
		return ErrAlertNotFound
	}
	return ErrTransitionConflict
}

func (p *PostgresStore) List(ctx context.Context, f Filter) ([]*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	args := []interface{}{}
	idx := 1

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.RiskLevel != "" {
		query += fmt.Sprintf(" AND risk_level = $%d", idx)
		args = append(args, f.RiskLevel)
		idx++
	}
	if f.CustomerID != "" {
		query += fmt.Sprintf(" AND customer_id = $%d", idx)
		args = append(args, f.CustomerID)
		idx++
	}
	if f.Query != "" {
		query += fmt.Sprintf(" AND (transaction_id ILIKE $%d OR customer_id ILIKE $%d)", idx, idx)
		args = append(args, "%"+escapeLike(f.Query)+"%")
		idx++
	}
	if f.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", idx, idx+1)
		args = append(args, f.Cursor.CreatedAt, f.Cursor.ID)
		idx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, f.Limit+1)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Alert
	for rows.Next() {
		a, err := p.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// escapeLike neutralizes LIKE metacharacters in user-supplied search text.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (p *PostgresStore) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM alerts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[Status]int64)
	for rows.Next() {
		var s Status
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[s] = n
	}
	return counts, rows.Err()
}
