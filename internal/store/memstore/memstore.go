// Package memstore is an in-memory store.Repository. Every call is
// serialized and InTx restores the previous state when fn fails, so it keeps
// the transactional guarantees the processors rely on.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"commission-engine/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Hook runs before every mutating call. A non-nil error fails that call.
type Hook func(op string) error

type state struct {
	affiliates    map[uuid.UUID]store.Affiliate
	referrals     map[uuid.UUID]store.Referral
	discountCodes map[uuid.UUID]store.DiscountCode
	commissions   map[uuid.UUID]store.Commission
	rewardPoints  []store.RewardPointsEntry
	dailyStats    map[uuid.UUID]store.DailyStat
	rankedRuns    map[time.Time]store.RankedPoolRun
	snapshots     []store.HourlyRankingSnapshot
	annualPots    map[int]store.AnnualPot
	contributions []store.PotContribution
	payouts       map[uuid.UUID]store.PayoutRequest
	payoutLinks   map[uuid.UUID][]uuid.UUID
	halts         []store.LedgerHalt
	seq           int64
}

func newState() *state {
	return &state{
		affiliates:    map[uuid.UUID]store.Affiliate{},
		referrals:     map[uuid.UUID]store.Referral{},
		discountCodes: map[uuid.UUID]store.DiscountCode{},
		commissions:   map[uuid.UUID]store.Commission{},
		dailyStats:    map[uuid.UUID]store.DailyStat{},
		rankedRuns:    map[time.Time]store.RankedPoolRun{},
		annualPots:    map[int]store.AnnualPot{},
		payouts:       map[uuid.UUID]store.PayoutRequest{},
		payoutLinks:   map[uuid.UUID][]uuid.UUID{},
	}
}

func (s *state) clone() *state {
	c := &state{
		affiliates:    make(map[uuid.UUID]store.Affiliate, len(s.affiliates)),
		referrals:     make(map[uuid.UUID]store.Referral, len(s.referrals)),
		discountCodes: make(map[uuid.UUID]store.DiscountCode, len(s.discountCodes)),
		commissions:   make(map[uuid.UUID]store.Commission, len(s.commissions)),
		rewardPoints:  append([]store.RewardPointsEntry(nil), s.rewardPoints...),
		dailyStats:    make(map[uuid.UUID]store.DailyStat, len(s.dailyStats)),
		rankedRuns:    make(map[time.Time]store.RankedPoolRun, len(s.rankedRuns)),
		snapshots:     append([]store.HourlyRankingSnapshot(nil), s.snapshots...),
		annualPots:    make(map[int]store.AnnualPot, len(s.annualPots)),
		contributions: append([]store.PotContribution(nil), s.contributions...),
		payouts:       make(map[uuid.UUID]store.PayoutRequest, len(s.payouts)),
		payoutLinks:   make(map[uuid.UUID][]uuid.UUID, len(s.payoutLinks)),
		halts:         append([]store.LedgerHalt(nil), s.halts...),
		seq:           s.seq,
	}
	for k, v := range s.affiliates {
		c.affiliates[k] = v
	}
	for k, v := range s.referrals {
		c.referrals[k] = v
	}
	for k, v := range s.discountCodes {
		c.discountCodes[k] = v
	}
	for k, v := range s.commissions {
		c.commissions[k] = v
	}
	for k, v := range s.dailyStats {
		c.dailyStats[k] = v
	}
	for k, v := range s.rankedRuns {
		c.rankedRuns[k] = v
	}
	for k, v := range s.annualPots {
		c.annualPots[k] = v
	}
	for k, v := range s.payouts {
		c.payouts[k] = v
	}
	for k, v := range s.payoutLinks {
		c.payoutLinks[k] = append([]uuid.UUID(nil), v...)
	}
	return c
}

type Store struct {
	mu    *sync.Mutex
	st    **state
	hook  *Hook
	clock func() time.Time
	inTx  bool
}

// New returns an empty store.
func New() *Store {
	st := newState()
	var hook Hook
	return &Store{
		mu:    &sync.Mutex{},
		st:    &st,
		hook:  &hook,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// SetHook installs a fault injection hook. Pass nil to clear it.
func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.hook = h
}

// SetClock overrides the clock used for created_at stamps.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// lock serializes top level calls. Calls made inside InTx already hold it.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) data() *state {
	return *s.st
}

func (s *Store) fault(op string) error {
	if h := *s.hook; h != nil {
		return h(op)
	}
	return nil
}

// now returns a strictly increasing timestamp so ordering by created_at is
// stable within a test.
func (s *Store) now() time.Time {
	st := s.data()
	st.seq++
	return s.clock().Add(time.Duration(st.seq) * time.Microsecond)
}

// InTx runs fn with exclusive access and restores the prior state on error.
func (s *Store) InTx(ctx context.Context, fn func(store.Repository) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data().clone()
	tx := &Store{mu: s.mu, st: s.st, hook: s.hook, clock: s.clock, inTx: true}
	if err := fn(tx); err != nil {
		*s.st = snapshot
		return err
	}
	return nil
}

// AcquireDistributionLock is satisfied by the InTx mutex.
func (s *Store) AcquireDistributionLock(ctx context.Context, key string) error {
	return s.fault("AcquireDistributionLock")
}

func cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func sortCommissionsAsc(list []store.Commission) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}

var _ store.Repository = (*Store)(nil)
