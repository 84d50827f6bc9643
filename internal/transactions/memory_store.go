package transactions

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory record store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Create(ctx context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.records[r.TransactionID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, transactionID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[transactionID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) List(ctx context.Context, f Filter) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, r := range m.records {
		if f.CustomerID != "" && r.CustomerID != f.CustomerID {
			continue
		}
		if f.Channel != "" && r.Channel != f.Channel {
			continue
		}
		if f.RiskLevel != "" && r.RiskLevel != f.RiskLevel {
			continue
		}
		if f.OnlyFraud != nil && r.IsFraud() != *f.OnlyFraud {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].TransactionID > out[j].TransactionID
	})

	if f.Cursor != nil {
		trimmed := out[:0]
		for _, r := range out {
			if r.CreatedAt.Before(f.Cursor.CreatedAt) ||
				(r.CreatedAt.Equal(f.Cursor.CreatedAt) && r.TransactionID < f.Cursor.ID) {
				trimmed = append(trimmed, r)
			}
		}
		out = trimmed
	}

	if f.Limit > 0 && len(out) > f.Limit+1 {
		out = out[:f.Limit+1]
	}
	return out, nil
}

func (m *MemoryStore) FraudStats(ctx context.Context) (*FraudStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &FraudStats{}
	var probSum float64
	for _, r := range m.records {
		stats.Total++
		probSum += r.FraudProbability
		if r.IsFraud() {
			stats.FraudCount++
		}
		if r.MLDegraded {
			stats.DegradedCount++
		}
	}
	if stats.Total > 0 {
		stats.FraudRate = float64(stats.FraudCount) / float64(stats.Total)
		stats.AvgProbability = probSum / float64(stats.Total)
	}
	return stats, nil
}

func (m *MemoryStore) ChannelStats(ctx context.Context) ([]ChannelBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type agg struct {
		count, fraud int64
		amountSum    float64
	}
	byChannel := make(map[string]*agg)
	for _, r := range m.records {
		a := byChannel[r.Channel]
		if a == nil {
			a = &agg{}
			byChannel[r.Channel] = a
		}
		a.count++
		a.amountSum += r.Amount
		if r.IsFraud() {
			a.fraud++
		}
	}

	channels := make([]string, 0, len(byChannel))
	for ch := range byChannel {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	out := make([]ChannelBucket, 0, len(channels))
	for _, ch := range channels {
		a := byChannel[ch]
		out = append(out, ChannelBucket{
			Channel:    ch,
			Count:      a.count,
			FraudCount: a.fraud,
			AvgAmount:  a.amountSum / float64(a.count),
		})
	}
	return out, nil
}

func (m *MemoryStore) HourlyStats(ctx context.Context) ([]HourBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var buckets [24]HourBucket
	for h := range buckets {
		buckets[h].Hour = h
	}
	for _, r := range m.records {
		if r.Hour < 0 || r.Hour > 23 {
			continue
		}
		buckets[r.Hour].Count++
		if r.IsFraud() {
			buckets[r.Hour].FraudCount++
		}
	}
	return buckets[:], nil
}
