package executor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
)

// UnitKeys returns the guard keys of a unit operation: one per account and
// asset, sorted so that every caller acquires them in the same order.
func UnitKeys(accounts []domain.AccountConfig, asset string) []string {
	keys := make([]string, 0, len(accounts))
	for _, a := range accounts {
		keys = append(keys, fmt.Sprintf("unit:%s:%s", strings.ToLower(a.Label()), asset))
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// LocalGuard is an in-process UnitGuard. It is safe for concurrent use.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]time.Time // key -> acquired at
}

// NewLocalGuard creates an empty LocalGuard.
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]time.Time)}
}

// Acquire takes all keys or none. It never blocks.
func (g *LocalGuard) Acquire(_ context.Context, keys []string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, k := range keys {
		if _, ok := g.held[k]; ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnitBusy, k)
		}
	}
	now := time.Now()
	for _, k := range keys {
		g.held[k] = now
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			for _, k := range keys {
				delete(g.held, k)
			}
		})
	}, nil
}

// Held returns the number of keys currently held.
func (g *LocalGuard) Held() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}

// LockGuard adapts a distributed LockManager to a UnitGuard so that several
// processes sharing the same accounts serialise on them.
type LockGuard struct {
	locks domain.LockManager
	ttl   time.Duration
}

// NewLockGuard creates a LockGuard whose locks expire after ttl.
func NewLockGuard(locks domain.LockManager, ttl time.Duration) *LockGuard {
	return &LockGuard{locks: locks, ttl: ttl}
}

// Acquire takes the keys in order and releases the taken ones if any key is
// held elsewhere.
func (g *LockGuard) Acquire(ctx context.Context, keys []string) (func(), error) {
	unlocks := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, k := range keys {
		unlock, err := g.locks.Acquire(ctx, k, g.ttl)
		if err != nil {
			releaseAll()
			if errors.Is(err, domain.ErrLockHeld) {
				return nil, fmt.Errorf("%w: %s", domain.ErrUnitBusy, k)
			}
			return nil, fmt.Errorf("executor: acquire %s: %w", k, err)
		}
		unlocks = append(unlocks, unlock)
	}

	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}
