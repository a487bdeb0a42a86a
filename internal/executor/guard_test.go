package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
)

func TestUnitKeys(t *testing.T) {
	accs := []domain.AccountConfig{
		{Name: "Zed"},
		{Name: "other", Address: "0xAB"},
		{Address: "0xab"},
	}
	assert.Equal(t, []string{"unit:0xab:ETH", "unit:zed:ETH"}, UnitKeys(accs, "ETH"))
}

func TestLocalGuard(t *testing.T) {
	g := NewLocalGuard()
	ctx := context.Background()

	release, err := g.Acquire(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, g.Held())

	_, err = g.Acquire(ctx, []string{"b", "c"})
	assert.ErrorIs(t, err, domain.ErrUnitBusy)
	assert.Equal(t, 2, g.Held(), "failed acquire takes nothing")

	release()
	release()
	assert.Zero(t, g.Held())

	release2, err := g.Acquire(ctx, []string{"b", "c"})
	require.NoError(t, err)
	release2()
}

type fakeLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	failWith error
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.held[key] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}, nil
}

func (f *fakeLocks) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.held)
}

func TestLockGuard(t *testing.T) {
	locks := &fakeLocks{held: map[string]bool{"c": true}}
	g := NewLockGuard(locks, time.Minute)
	ctx := context.Background()

	_, err := g.Acquire(ctx, []string{"a", "b", "c"})
	assert.ErrorIs(t, err, domain.ErrUnitBusy)
	assert.Equal(t, 1, locks.count(), "partially taken keys released")

	release, err := g.Acquire(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 3, locks.count())
	release()
	assert.Equal(t, 1, locks.count())

	locks.failWith = errors.New("redis down")
	_, err = g.Acquire(ctx, []string{"a"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrUnitBusy)
}
