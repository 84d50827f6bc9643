package transactions

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

// NewPostgresStore creates a new PostgreSQL-backed record store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the transactions table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			transaction_id     VARCHAR(128) PRIMARY KEY,
			customer_id        VARCHAR(128) NOT NULL,
			amount             DOUBLE PRECISION NOT NULL,
			channel            VARCHAR(16) NOT NULL,
			location           TEXT NOT NULL DEFAULT '',
			hour               SMALLINT NOT NULL,
			account_age_days   INTEGER NOT NULL,
			kyc_verified       BOOLEAN NOT NULL,
			prediction         VARCHAR(16) NOT NULL,
			fraud_probability  DOUBLE PRECISION NOT NULL,
			composite_score    DOUBLE PRECISION NOT NULL,
			risk_level         VARCHAR(16) NOT NULL,
			risk_factors       TEXT[] NOT NULL DEFAULT '{}',
			ml_degraded        BOOLEAN NOT NULL DEFAULT FALSE,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id);
		CREATE INDEX IF NOT EXISTS idx_transactions_channel ON transactions(channel);
		CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at DESC);
	`)
	return err
}

const recordColumns = `transaction_id, customer_id, amount, channel, location, hour,
	account_age_days, kyc_verified, prediction, fraud_probability,
	composite_score, risk_level, risk_factors, ml_degraded, created_at`

func (p *PostgresStore) Create(ctx context.Context, r *Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transactions (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (transaction_id) DO NOTHING
	`, r.TransactionID, r.CustomerID, r.Amount, r.Channel, r.Location, r.Hour,
		r.AccountAgeDays, r.KYCVerified, r.Prediction, r.FraudProbability,
		r.CompositeScore, r.RiskLevel, pq.Array(r.RiskFactors), r.MLDegraded, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) scan(row interface{ Scan(...interface{}) error }) (*Record, error) {
	var r Record
	var factors pq.StringArray
	err := row.Scan(&r.TransactionID, &r.CustomerID, &r.Amount, &r.Channel, &r.Location, &r.Hour,
		&r.AccountAgeDays, &r.KYCVerified, &r.Prediction, &r.FraudProbability,
		&r.CompositeScore, &r.RiskLevel, &factors, &r.MLDegraded, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.RiskFactors = []string(factors)
	return &r, nil
}

func (p *PostgresStore) Get(ctx context.Context, transactionID string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM transactions WHERE transaction_id = $1`, transactionID)
	r, err := p.scan(row)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return r, nil
}

func (p *PostgresStore) List(ctx context.Context, f Filter) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM transactions WHERE 1=1`
	args := []interface{}{}
	idx := 1

	if f.CustomerID != "" {
		query += fmt.Sprintf(" AND customer_id = $%d", idx)
		args = append(args, f.CustomerID)
		idx++
	}
	if f.Channel != "" {
		query += fmt.Sprintf(" AND channel = $%d", idx)
		args = append(args, f.Channel)
		idx++
	}
	if f.RiskLevel != "" {
		query += fmt.Sprintf(" AND risk_level = $%d", idx)
		args = append(args, f.RiskLevel)
		idx++
	}
	if f.OnlyFraud != nil {
		if *f.OnlyFraud {
			query += " AND prediction = 'Fraud'"
		} else {
			query += " AND prediction <> 'Fraud'"
		}
	}
	if f.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, transaction_id) < ($%d, $%d)", idx, idx+1)
		args = append(args, f.Cursor.CreatedAt, f.Cursor.ID)
		idx += 2
	}

	query += " ORDER BY created_at DESC, transaction_id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, f.Limit+1)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		r, err := p.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) FraudStats(ctx context.Context) (*FraudStats, error) {
	stats := &FraudStats{}
	var avg sql.NullFloat64
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE prediction = 'Fraud'),
		       COUNT(*) FILTER (WHERE ml_degraded),
		       AVG(fraud_probability)
		FROM transactions
	`).Scan(&stats.Total, &stats.FraudCount, &stats.DegradedCount, &avg)
	if err != nil {
		return nil, fmt.Errorf("fraud stats: %w", err)
	}
	if stats.Total > 0 {
		stats.FraudRate = float64(stats.FraudCount) / float64(stats.Total)
		stats.AvgProbability = avg.Float64
	}
	return stats, nil
}

func (p *PostgresStore) ChannelStats(ctx context.Context) ([]ChannelBucket, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT channel, COUNT(*),
		       COUNT(*) FILTER (WHERE prediction = 'Fraud'),
		       AVG(amount)
		FROM transactions
		GROUP BY channel
		ORDER BY channel
	`)
	if err != nil {
		return nil, fmt.Errorf("channel stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ChannelBucket
	for rows.Next() {
		var b ChannelBucket
		if err := rows.Scan(&b.Channel, &b.Count, &b.FraudCount, &b.AvgAmount); err != nil {
			return nil, fmt.Errorf("scan channel stats: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *PostgresStore) HourlyStats(ctx context.Context) ([]HourBucket, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT hour, COUNT(*),
		       COUNT(*) FILTER (WHERE prediction = 'Fraud')
		FROM transactions
		GROUP BY hour
	`)
	if err != nil {
		return nil, fmt.Errorf("hourly stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var buckets [24]HourBucket
	for h := range buckets {
		buckets[h].Hour = h
	}
	for rows.Next() {
		var hour int
		var count, fraud int64
		if err := rows.Scan(&hour, &count, &fraud); err != nil {
			return nil, fmt.Errorf("scan hourly stats: %w", err)
		}
		if hour >= 0 && hour < 24 {
			buckets[hour].Count = count
			buckets[hour].FraudCount = fraud
		}
	}
	return buckets[:], rows.Err()
}
