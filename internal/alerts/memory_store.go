package alerts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory alert store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[string]*Alert
	byTxn  map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts: make(map[string]*Alert),
		byTxn:  make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byTxn[a.TransactionID]; exists {
		return ErrDuplicateAlert
	}

	cp := *a
	m.alerts[a.ID] = &cp
	m.byTxn[a.TransactionID] = a.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) GetByTransaction(ctx context.Context, transactionID string) (*Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byTxn[transactionID]
	if !ok {
		return nil, ErrAlertNotFound
	}
	cp := *m.alerts[id]
	return &cp, nil
}

func (m *MemoryStore) TransitionStatus(ctx context.Context, id string, from, to Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	if a.Status != from {
		return ErrTransitionConflict
	}
	a.Status = to
	a.UpdatedAt = at
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f Filter) ([]*Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Alert
	for _, a := range m.alerts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.RiskLevel != "" && a.RiskLevel != f.RiskLevel {
			continue
		}
		if f.CustomerID != "" && a.CustomerID != f.CustomerID {
			continue
		}
		if f.Query != "" {
			q := strings.ToLower(f.Query)
			if !strings.Contains(strings.ToLower(a.TransactionID), q) &&
				!strings.Contains(strings.ToLower(a.CustomerID), q) {
				continue
			}
		}
		cp := *a
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if f.Cursor != nil {
		trimmed := out[:0]
		for _, a := range out {
			if a.CreatedAt.Before(f.Cursor.CreatedAt) ||
				(a.CreatedAt.Equal(f.Cursor.CreatedAt) && a.ID < f.Cursor.ID) {
				trimmed = append(trimmed, a)
			}
		}
		out = trimmed
	}

	if f.Limit > 0 && len(out) > f.Limit+1 {
		out = out[:f.Limit+1]
	}
	return out, nil
}

func (m *MemoryStore) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[Status]int64)
	for _, a := range m.alerts {
		counts[a.Status]++
	}
	return counts, nil
}
