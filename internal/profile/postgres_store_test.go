package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transflow/riskd/internal/testutil"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(context.Background()))

	_, err := store.Get(context.Background(), "CUST_PG")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	p := NewProfile("CUST_PG")
	p.apply(Update{
		CustomerID: "CUST_PG", Amount: 500, Channel: "ATM", Hour: 3,
		At: time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC), Fingerprint: "android|chrome", Origin: "198.51",
	})
	require.NoError(t, store.Put(context.Background(), p))

	got, err := store.Get(context.Background(), "CUST_PG")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.TotalCount)
	assert.Equal(t, int64(1), got.Hours[3])
	require.NotNil(t, got.ChannelStats("ATM"))
	assert.Equal(t, 500.0, got.ChannelStats("ATM").Mean)
	assert.True(t, got.KnownDevice("android|chrome"))

	// Upsert replaces the document.
	p.apply(Update{CustomerID: "CUST_PG", Amount: 700, Channel: "ATM", Hour: 4, At: time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)})
	require.NoError(t, store.Put(context.Background(), p))

	got, err = store.Get(context.Background(), "CUST_PG")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalCount)
	assert.Equal(t, 600.0, got.ChannelStats("ATM").Mean)
}
