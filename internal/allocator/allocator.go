// Package allocator splits a unit's notional across the accounts of a group.
//
// A group always has "fat" legs on one side and "thin" legs on the other so
// that the two sides carry equal total weight (100% each). For 4 accounts one
// fat leg takes the whole side; for 6 accounts two fat legs share it. Thin
// legs split their side randomly with a configurable floor.
package allocator

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
)

// Config bounds the random draws.
type Config struct {
	MinWeight4 int // thin floor for 4-account groups
	MinWeight6 int // thin floor for 6-account groups
	FatMin     int
	FatMax     int
}

// DefaultConfig returns the standard floors and fat band.
func DefaultConfig() Config {
	return Config{MinWeight4: 20, MinWeight6: 10, FatMin: 40, FatMax: 60}
}

// Allocator draws allocation plans. It is safe for concurrent use.
type Allocator struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns an Allocator drawing from rng. A nil rng is replaced with a
// randomly seeded PCG source.
func New(cfg Config, rng *rand.Rand) *Allocator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Allocator{cfg: cfg, rng: rng}
}

// NewSeeded returns an Allocator with a deterministic source.
func NewSeeded(cfg Config, seed uint64) *Allocator {
	return New(cfg, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Allocate draws a plan for groupSize accounts. When smartBalance is set the
// largest weights go to the accounts with the largest balances; balances must
// then hold one entry per account. Otherwise the weights are shuffled.
// The returned plan's slots are indexed by account position.
func (a *Allocator) Allocate(groupSize int, smartBalance bool, balances []decimal.Decimal) (domain.AllocationPlan, error) {
	if groupSize == 2 {
		return domain.AllocationPlan{
			Slots: []domain.AllocationSlot{
				{WeightPercent: 100, IsFat: true},
				{WeightPercent: 100, IsFat: false},
			},
			FatIsBuy: true,
		}, nil
	}
	if groupSize != 4 && groupSize != 6 {
		return domain.AllocationPlan{}, fmt.Errorf("allocator: %d accounts: %w", groupSize, domain.ErrInvalidGroupSize)
	}
	if smartBalance && len(balances) != groupSize {
		return domain.AllocationPlan{}, fmt.Errorf("allocator: smart balance needs %d balances, got %d", groupSize, len(balances))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var fat, thin []int
	if groupSize == 4 {
		fat = []int{100}
		thin = a.thinWeights(3, a.cfg.MinWeight4)
	} else {
		k1 := a.between(a.cfg.FatMin, a.cfg.FatMax+1)
		fat = []int{k1, 100 - k1}
		thin = a.thinWeights(4, a.cfg.MinWeight6)
	}
	fatIsBuy := a.rng.IntN(2) == 0

	slots := make([]domain.AllocationSlot, 0, groupSize)
	if smartBalance {
		slices.SortFunc(fat, descending)
		slices.SortFunc(thin, descending)
	}
	for _, w := range fat {
		slots = append(slots, domain.AllocationSlot{WeightPercent: w, IsFat: true})
	}
	for _, w := range thin {
		slots = append(slots, domain.AllocationSlot{WeightPercent: w, IsFat: false})
	}

	plan := domain.AllocationPlan{Slots: make([]domain.AllocationSlot, groupSize), FatIsBuy: fatIsBuy}
	if smartBalance {
		for rank, idx := range RankByBalance(balances) {
			plan.Slots[idx] = slots[rank]
		}
		return plan, nil
	}

	a.rng.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })
	copy(plan.Slots, slots)
	return plan, nil
}

// thinWeights draws n weights summing to 100, each at least floor. Every
// draw but the last leaves room for the remaining legs' floors.
func (a *Allocator) thinWeights(n, floor int) []int {
	out := make([]int, 0, n)
	acc := 100
	for i := 0; i < n-1; i++ {
		remaining := n - 1 - i
		hi := acc - remaining*floor
		if remaining == 1 && n == 3 {
			// The last draw of a three-way split may leave exactly floor.
			hi++
		}
		k := a.between(floor, hi)
		out = append(out, k)
		acc -= k
	}
	return append(out, acc)
}

// between returns a uniform integer in [lo, hi).
func (a *Allocator) between(lo, hi int) int {
	return lo + a.rng.IntN(hi-lo)
}

// RankByBalance returns account indices ordered by balance, largest first.
// Ties keep their original order.
func RankByBalance(balances []decimal.Decimal) []int {
	idx := make([]int, len(balances))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(x, y int) int {
		return balances[y].Cmp(balances[x])
	})
	return idx
}

func descending(x, y int) int { return cmp.Compare(y, x) }
