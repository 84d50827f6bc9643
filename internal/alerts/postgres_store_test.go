package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transflow/riskd/internal/testutil"
)

func pgAlert(id, txn string) *Alert {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Alert{
		ID:               id,
		TransactionID:    txn,
		CustomerID:       "CUST_PG",
		RiskLevel:        "High",
		FraudProbability: 0.8,
		CompositeScore:   0.75,
		RiskFactors:      []string{"high transaction amount"},
		Message:          "High risk transaction for customer CUST_PG",
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestPostgresStoreCreateAndGet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(context.Background()))

	a := pgAlert("alert_pg1", "txn_pg1")
	require.NoError(t, store.Create(context.Background(), a))

	got, err := store.Get(context.Background(), "alert_pg1")
	require.NoError(t, err)
	assert.Equal(t, a.TransactionID, got.TransactionID)
	assert.Equal(t, a.RiskFactors, got.RiskFactors)
	assert.Equal(t, StatusPending, got.Status)

	byTxn, err := store.GetByTransaction(context.Background(), "txn_pg1")
	require.NoError(t, err)
	assert.Equal(t, "alert_pg1", byTxn.ID)

	// A second alert for the same transaction violates the unique index.
	dup := pgAlert("alert_pg2", "txn_pg1")
	assert.ErrorIs(t, store.Create(context.Background(), dup), ErrDuplicateAlert)
}

func TestPostgresStoreTransitionCAS(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Create(context.Background(), pgAlert("alert_cas", "txn_cas")))

	now := time.Now()
	require.NoError(t, store.TransitionStatus(context.Background(), "alert_cas", StatusPending, StatusAcknowledged, now))

	// Stale CAS loses.
	err := store.TransitionStatus(context.Background(), "alert_cas", StatusPending, StatusResolved, now)
	assert.ErrorIs(t, err, ErrTransitionConflict)

	err = store.TransitionStatus(context.Background(), "alert_gone", StatusPending, StatusResolved, now)
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestPostgresStoreListAndCounts(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(context.Background()))

	for _, id := range []string{"a1", "a2", "a3"} {
		a := pgAlert("alert_"+id, "txn_"+id)
		if id == "a3" {
			a.RiskLevel = "Critical"
		}
		require.NoError(t, store.Create(context.Background(), a))
	}
	require.NoError(t, store.TransitionStatus(context.Background(), "alert_a1", StatusPending, StatusResolved, time.Now()))

	pending, err := store.List(context.Background(), Filter{Status: StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	critical, err := store.List(context.Background(), Filter{RiskLevel: "Critical"})
	require.NoError(t, err)
	assert.Len(t, critical, 1)

	// Free-text search hits transaction and customer IDs, any case.
	byTxn, err := store.List(context.Background(), Filter{Query: "TXN_A2"})
	require.NoError(t, err)
	require.Len(t, byTxn, 1)
	assert.Equal(t, "txn_a2", byTxn[0].TransactionID)

	byCust, err := store.List(context.Background(), Filter{Query: "cust_pg"})
	require.NoError(t, err)
	assert.Len(t, byCust, 3)

	counts, err := store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[StatusPending])
	assert.Equal(t, int64(1), counts[StatusResolved])
}
