// Package profile maintains per-customer behavioral baselines.
//
// A profile accumulates running amount statistics per channel, an
// hour-of-day histogram, a short transaction log for velocity windows,
// and the devices a customer has been seen on. Profiles are read as
// immutable snapshots during evaluation and updated exactly once after
// a decision is recorded.
package profile

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"
)

var (
	// ErrProfileNotFound is returned by stores when no profile exists yet.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrStoreUnavailable wraps store failures. Evaluation fails closed
	// when the profile store cannot be reached.
	ErrStoreUnavailable = errors.New("profile store unavailable")
)

// VelocityRetention bounds the transaction log kept per profile. Entries
// older than the largest velocity window are evicted lazily.
const VelocityRetention = 24 * time.Hour

// AmountStats tracks a running mean and variance using Welford's method.
type AmountStats struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"`
}

// Add folds one observation into the running statistics.
func (s *AmountStats) Add(x float64) {
	s.Count++
	delta := x - s.Mean
	s.Mean += delta / float64(s.Count)
	s.M2 += delta * (x - s.Mean)
}

// Variance returns the sample variance, or 0 with fewer than two samples.
func (s AmountStats) Variance() float64 {
	if s.Count < 2 {
		return 0
	}
	return s.M2 / float64(s.Count-1)
}

// StdDev returns the sample standard deviation.
func (s AmountStats) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// sigmaFloor keeps the z-score finite for constant histories. A
// customer who always pays the same amount has σ=0, and a deviation
// from that history is the strongest possible signal, not a silent one.
const sigmaFloor = 1e-9

// Z returns the z-score of x against the running distribution, with the
// standard deviation floored at sigmaFloor.
func (s AmountStats) Z(x float64) float64 {
	return (x - s.Mean) / math.Max(s.StdDev(), sigmaFloor)
}

// Device is a fingerprinted device a customer has transacted from.
type Device struct {
	Fingerprint string    `json:"fingerprint"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	UseCount    int64     `json:"use_count"`
}

// VelocityEntry is one past transaction kept for windowed counting.
type VelocityEntry struct {
	At     time.Time `json:"at"`
	Amount float64   `json:"amount"`
}

// Profile is the accumulated state for one customer.
type Profile struct {
	CustomerID string `json:"customer_id"`

	// Channels maps channel name to running amount statistics.
	Channels map[string]*AmountStats `json:"channels"`

	// Hours counts observed transactions per hour of day.
	Hours [24]int64 `json:"hours"`

	// TotalCount is the number of transactions folded into the profile.
	TotalCount int64 `json:"total_count"`

	// Velocity holds recent transactions in ascending time order.
	Velocity []VelocityEntry `json:"velocity"`

	// Devices lists known devices by fingerprint.
	Devices []Device `json:"devices"`

	// Origins counts transactions per network origin prefix.
	Origins map[string]int64 `json:"origins"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewProfile returns an empty profile for a customer.
func NewProfile(customerID string) *Profile {
	return &Profile{
		CustomerID: customerID,
		Channels:   make(map[string]*AmountStats),
		Origins:    make(map[string]int64),
	}
}

// Clone returns a deep copy safe to hand out as a snapshot.
func (p *Profile) Clone() *Profile {
	c := &Profile{
		CustomerID: p.CustomerID,
		Hours:      p.Hours,
		TotalCount: p.TotalCount,
		Channels:   make(map[string]*AmountStats, len(p.Channels)),
		Origins:    make(map[string]int64, len(p.Origins)),
		Velocity:   append([]VelocityEntry(nil), p.Velocity...),
		Devices:    append([]Device(nil), p.Devices...),
		UpdatedAt:  p.UpdatedAt,
	}
	for ch, s := range p.Channels {
		cp := *s
		c.Channels[ch] = &cp
	}
	for o, n := range p.Origins {
		c.Origins[o] = n
	}
	return c
}

// ChannelStats returns the amount statistics for a channel, or nil.
func (p *Profile) ChannelStats(channel string) *AmountStats {
	return p.Channels[channel]
}

// ObservedHourRange returns the earliest and latest hours with activity.
// ok is false when no hours have been observed.
func (p *Profile) ObservedHourRange() (minHour, maxHour int, ok bool) {
	minHour, maxHour = -1, -1
	for h, n := range p.Hours {
		if n == 0 {
			continue
		}
		if minHour == -1 {
			minHour = h
		}
		maxHour = h
	}
	return minHour, maxHour, minHour != -1
}

// CountSince returns how many logged transactions happened at or after t.
func (p *Profile) CountSince(t time.Time) int {
	n := 0
	for i := len(p.Velocity) - 1; i >= 0; i-- {
		if p.Velocity[i].At.Before(t) {
			break
		}
		n++
	}
	return n
}

// AmountSince sums logged transaction amounts at or after t.
func (p *Profile) AmountSince(t time.Time) float64 {
	var sum float64
	for i := len(p.Velocity) - 1; i >= 0; i-- {
		if p.Velocity[i].At.Before(t) {
			break
		}
		sum += p.Velocity[i].Amount
	}
	return sum
}

// KnownDevice reports whether the fingerprint has been seen before.
func (p *Profile) KnownDevice(fingerprint string) bool {
	for _, d := range p.Devices {
		if d.Fingerprint == fingerprint {
			return true
		}
	}
	return false
}

// PredominantOrigin returns the network origin with the most activity.
func (p *Profile) PredominantOrigin() (string, int64) {
	var best string
	var bestN int64
	origins := make([]string, 0, len(p.Origins))
	for o := range p.Origins {
		origins = append(origins, o)
	}
	// Deterministic tie-break.
	sort.Strings(origins)
	for _, o := range origins {
		if p.Origins[o] > bestN {
			best, bestN = o, p.Origins[o]
		}
	}
	return best, bestN
}

// insertVelocity places an entry at its timestamp position so the log
// stays ascending even when a request carries a stale timestamp. The
// windowed scans in CountSince/AmountSince rely on that ordering.
func (p *Profile) insertVelocity(e VelocityEntry) {
	i := len(p.Velocity)
	for i > 0 && p.Velocity[i-1].At.After(e.At) {
		i--
	}
	p.Velocity = append(p.Velocity, VelocityEntry{})
	copy(p.Velocity[i+1:], p.Velocity[i:])
	p.Velocity[i] = e
}

// prune drops velocity entries older than the retention horizon.
func (p *Profile) prune(now time.Time) {
	cutoff := now.Add(-VelocityRetention)
	i := 0
	for i < len(p.Velocity) && p.Velocity[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		p.Velocity = append(p.Velocity[:0], p.Velocity[i:]...)
	}
}

// Update carries the facts folded into a profile after a decision.
type Update struct {
	CustomerID  string
	Amount      float64
	Channel     string
	Hour        int
	At          time.Time
	Fingerprint string
	Origin      string
}

// apply folds one update into the profile.
func (p *Profile) apply(u Update) {
	stats := p.Channels[u.Channel]
	if stats == nil {
		stats = &AmountStats{}
		p.Channels[u.Channel] = stats
	}
	stats.Add(u.Amount)

	if u.Hour >= 0 && u.Hour < 24 {
		p.Hours[u.Hour]++
	}
	p.TotalCount++

	p.insertVelocity(VelocityEntry{At: u.At, Amount: u.Amount})
	p.prune(u.At)

	if fp := strings.TrimSpace(u.Fingerprint); fp != "" {
		found := false
		for i := range p.Devices {
			if p.Devices[i].Fingerprint == fp {
				p.Devices[i].LastSeen = u.At
				p.Devices[i].UseCount++
				found = true
				break
			}
		}
		if !found {
			p.Devices = append(p.Devices, Device{
				Fingerprint: fp,
				FirstSeen:   u.At,
				LastSeen:    u.At,
				UseCount:    1,
			})
		}
	}
	if u.Origin != "" {
		p.Origins[u.Origin]++
	}

	p.UpdatedAt = u.At
}

// Store persists customer profiles.
type Store interface {
	Get(ctx context.Context, customerID string) (*Profile, error)
	Put(ctx context.Context, p *Profile) error
}
