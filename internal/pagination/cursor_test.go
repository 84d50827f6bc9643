package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	cur, err := Decode(Encode(at, "alrt_42"))
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.True(t, cur.CreatedAt.Equal(at))
	assert.Equal(t, "alrt_42", cur.ID)
}

func TestDecodeEmpty(t *testing.T) {
	cur, err := Decode("")
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, s := range []string{
		"not base64 %%%",
		"bm8gc2VwYXJhdG9y",     // "no separator"
		"bm90YW51bWJlcnx4eXo=", // "notanumber|xyz"
	} {
		_, err := Decode(s)
		assert.ErrorIs(t, err, ErrInvalidCursor, "input %q", s)
	}
}

func TestDecodeIDMayContainSeparator(t *testing.T) {
	at := time.Unix(0, 1700000000000000000).UTC()
	cur, err := Decode(Encode(at, "txn|odd|id"))
	require.NoError(t, err)
	assert.Equal(t, "txn|odd|id", cur.ID)
}

type row struct {
	created time.Time
	id      string
}

func key(r row) (time.Time, string) { return r.created, r.id }

func TestComputePageNoMore(t *testing.T) {
	base := time.Now().UTC()
	items := []row{{base, "a"}, {base.Add(time.Second), "b"}}

	page, next, hasMore := ComputePage(items, 5, key)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
	assert.False(t, hasMore)
}

func TestComputePageTrimsAndPointsAtLast(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Microsecond)
	items := []row{
		{base, "a"},
		{base.Add(time.Second), "b"},
		{base.Add(2 * time.Second), "c"}, // the limit+1 probe row
	}

	page, next, hasMore := ComputePage(items, 2, key)
	require.Len(t, page, 2)
	assert.True(t, hasMore)

	cur, err := Decode(next)
	require.NoError(t, err)
	assert.Equal(t, "b", cur.ID)
	assert.True(t, cur.CreatedAt.Equal(base.Add(time.Second)))
}

func TestComputePageExactLimit(t *testing.T) {
	base := time.Now().UTC()
	items := []row{{base, "a"}, {base, "b"}}

	page, next, hasMore := ComputePage(items, 2, key)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
	assert.False(t, hasMore)
}
