package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotObtained = errors.New("lock_not_obtained")
	ErrEmptyKey    = errors.New("lock_key_empty")
)

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker serializes work per key. Obtain blocks until the key is free or ctx is done;
// ttl bounds how long a crashed holder can keep a distributed lock.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// BalanceKey is the lock key guarding the balance of one (client, site) pair.
func BalanceKey(clientCode, siteCode string) string {
	return fmt.Sprintf("balance:%s:%s", strings.TrimSpace(clientCode), strings.TrimSpace(siteCode))
}

// Chain obtains every locker in order and releases them in reverse.
type Chain []Locker

func (c Chain) Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	held := make(chainLease, 0, len(c))
	for _, locker := range c {
		if locker == nil {
			continue
		}
		lease, err := locker.Obtain(ctx, key, ttl)
		if err != nil {
			_ = held.Release(context.WithoutCancel(ctx))
			return nil, err
		}
		held = append(held, lease)
	}
	return held, nil
}

type chainLease []Lease

func (l chainLease) Release(ctx context.Context) error {
	var errs []error
	for i := len(l) - 1; i >= 0; i-- {
		if err := l[i].Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
