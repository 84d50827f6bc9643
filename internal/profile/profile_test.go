package profile

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountStatsWelford(t *testing.T) {
	var s AmountStats
	for _, x := range []float64{100, 110, 90, 105, 95} {
		s.Add(x)
	}

	assert.Equal(t, int64(5), s.Count)
	assert.InDelta(t, 100, s.Mean, 1e-9)
	// Sample variance of the series is 62.5.
	assert.InDelta(t, 62.5, s.Variance(), 1e-9)
	assert.InDelta(t, math.Sqrt(62.5), s.StdDev(), 1e-9)
}

func TestAmountStatsZ(t *testing.T) {
	var s AmountStats
	for _, x := range []float64{100, 110, 90, 105, 95} {
		s.Add(x)
	}
	assert.InDelta(t, (200-100)/math.Sqrt(62.5), s.Z(200), 1e-9)

	// A constant history has zero variance; the floored deviation makes
	// any departure from it score enormously instead of scoring zero.
	var flat AmountStats
	flat.Add(50)
	flat.Add(50)
	flat.Add(50)
	assert.Greater(t, flat.Z(1e6), 100.0)
	assert.Less(t, flat.Z(-1e6), -100.0)
	assert.Equal(t, 0.0, flat.Z(50))
}

func TestProfileApplyAccumulates(t *testing.T) {
	p := NewProfile("CUST_1")
	base := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		p.apply(Update{
			CustomerID:  "CUST_1",
			Amount:      100,
			Channel:     "Mobile",
			Hour:        14,
			At:          base.Add(time.Duration(i) * time.Minute),
			Fingerprint: "ios|safari",
			Origin:      "203.0",
		})
	}

	require.NotNil(t, p.ChannelStats("Mobile"))
	assert.Equal(t, int64(3), p.ChannelStats("Mobile").Count)
	assert.Equal(t, int64(3), p.Hours[14])
	assert.Equal(t, int64(3), p.TotalCount)
	assert.Len(t, p.Velocity, 3)
	assert.True(t, p.KnownDevice("ios|safari"))
	assert.False(t, p.KnownDevice("android|chrome"))

	origin, n := p.PredominantOrigin()
	assert.Equal(t, "203.0", origin)
	assert.Equal(t, int64(3), n)
}

func TestProfilePruneEvictsOldEntries(t *testing.T) {
	p := NewProfile("CUST_2")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	p.apply(Update{CustomerID: "CUST_2", Amount: 10, Channel: "Web", Hour: 12, At: base})
	p.apply(Update{CustomerID: "CUST_2", Amount: 20, Channel: "Web", Hour: 12, At: base.Add(25 * time.Hour)})

	// The first entry fell outside the retention horizon.
	require.Len(t, p.Velocity, 1)
	assert.Equal(t, 20.0, p.Velocity[0].Amount)
	// Stats are lifetime and unaffected by pruning.
	assert.Equal(t, int64(2), p.ChannelStats("Web").Count)
}

func TestCountSinceAndAmountSince(t *testing.T) {
	p := NewProfile("CUST_3")
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, amt := range []float64{100, 200, 300, 400} {
		p.apply(Update{CustomerID: "CUST_3", Amount: amt, Channel: "POS", Hour: 9, At: base.Add(time.Duration(i) * 5 * time.Minute)})
	}

	// Entries at +10m and +15m are inside the window starting at +10m.
	since := base.Add(10 * time.Minute)
	assert.Equal(t, 2, p.CountSince(since))
	assert.Equal(t, 700.0, p.AmountSince(since))
	assert.Equal(t, 4, p.CountSince(base))
	assert.Equal(t, 0, p.CountSince(base.Add(time.Hour)))
}

func TestApplyKeepsVelocityOrderedWithStaleTimestamp(t *testing.T) {
	p := NewProfile("CUST_6")
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		p.apply(Update{CustomerID: "CUST_6", Amount: 100, Channel: "Web", Hour: 15, At: now.Add(time.Duration(i) * time.Minute)})
	}
	// A transaction submitted with an old timestamp lands in order, not
	// at the tail where it would end the reverse window scans early.
	p.apply(Update{CustomerID: "CUST_6", Amount: 50, Channel: "Web", Hour: 13, At: now.Add(-2 * time.Hour)})

	require.Len(t, p.Velocity, 4)
	for i := 1; i < len(p.Velocity); i++ {
		assert.False(t, p.Velocity[i].At.Before(p.Velocity[i-1].At), "log out of order at %d", i)
	}
	assert.Equal(t, 3, p.CountSince(now.Add(-10*time.Minute)))
	assert.Equal(t, 300.0, p.AmountSince(now.Add(-10*time.Minute)))
	assert.Equal(t, 4, p.CountSince(now.Add(-3*time.Hour)))
}

func TestObservedHourRange(t *testing.T) {
	p := NewProfile("CUST_4")
	_, _, ok := p.ObservedHourRange()
	assert.False(t, ok)

	p.Hours[9] = 3
	p.Hours[17] = 1
	lo, hi, ok := p.ObservedHourRange()
	require.True(t, ok)
	assert.Equal(t, 9, lo)
	assert.Equal(t, 17, hi)
}

func TestCloneIsDeep(t *testing.T) {
	p := NewProfile("CUST_5")
	p.apply(Update{CustomerID: "CUST_5", Amount: 100, Channel: "ATM", Hour: 10, At: time.Now(), Origin: "198.51"})

	c := p.Clone()
	c.Channels["ATM"].Add(99999)
	c.Origins["198.51"] = 42
	c.Velocity[0].Amount = -1

	assert.Equal(t, int64(1), p.Channels["ATM"].Count)
	assert.Equal(t, int64(1), p.Origins["198.51"])
	assert.Equal(t, 100.0, p.Velocity[0].Amount)
}
