package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/transflow/riskd/internal/logging"
	"github.com/transflow/riskd/internal/syncutil"
)

// Registry mediates all profile access. Reads produce detached snapshots;
// writes are serialized per customer so concurrent evaluations for the
// same customer cannot interleave read-modify-write cycles.
type Registry struct {
	store Store
	locks *syncutil.ContextShardedMutex
	clock func() time.Time
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store: store,
		locks: syncutil.NewContextShardedMutex(),
		clock: time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// Snapshot returns a detached copy of the customer's profile. A customer
// never seen before gets an empty profile. Store failures are surfaced as
// ErrStoreUnavailable so callers fail closed.
func (r *Registry) Snapshot(ctx context.Context, customerID string) (*Profile, error) {
	p, err := r.store.Get(ctx, customerID)
	if errors.Is(err, ErrProfileNotFound) {
		return NewProfile(customerID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	snap := p.Clone()
	snap.prune(r.clock())
	return snap, nil
}

// Apply folds a transaction into the customer's profile under the
// per-customer lock. Each decided transaction is applied exactly once.
func (r *Registry) Apply(ctx context.Context, u Update) error {
	if u.At.IsZero() {
		u.At = r.clock()
	}

	unlock, err := r.locks.LockContext(ctx, u.CustomerID)
	if err != nil {
		return err
	}
	defer unlock()

	p, err := r.store.Get(ctx, u.CustomerID)
	if errors.Is(err, ErrProfileNotFound) {
		p = NewProfile(u.CustomerID)
	} else if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	p.apply(u)

	if err := r.store.Put(ctx, p); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	logging.L(ctx).Debug("profile updated",
		"customer_id", u.CustomerID,
		"total_count", p.TotalCount,
		"channel", u.Channel)
	return nil
}
