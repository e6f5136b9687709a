package processor

import (
	"commission-engine/internal/leaderboard"
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"commission-engine/internal/store/memstore"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	args := m.Called(ctx, key, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func(context.Context) error), args.Error(1)
}

type MockLiveRanking struct {
	mock.Mock
}

func (m *MockLiveRanking) IsEnabled() bool {
	return m.Called().Bool(0)
}

func (m *MockLiveRanking) GetTopN(ctx context.Context, date time.Time, limit int) ([]leaderboard.Entry, error) {
	args := m.Called(ctx, date, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]leaderboard.Entry), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishRankedPoolDistributed(ctx context.Context, result RankedResult) error {
	return m.Called(ctx, result).Error(0)
}

func (m *MockEventPublisher) PublishLotteryPoolDistributed(ctx context.Context, result LotteryResult) error {
	return m.Called(ctx, result).Error(0)
}

var (
	poolDate = time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC)
	runAt    = time.Date(2026, time.May, 11, 0, 5, 0, 0, time.UTC)
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newPools(t *testing.T, s *memstore.Store, locker Locker, live LiveRanking, events EventPublisher) PoolProcessor {
	t.Helper()
	p := New(s, locker, live, events, Config{}, observability.NewLogger())
	p.now = func() time.Time { return runAt }
	return p
}

func createAffiliate(t *testing.T, s *memstore.Store, code string) store.Affiliate {
	t.Helper()
	a, err := s.CreateAffiliate(context.Background(), store.CreateAffiliateParams{
		UserID:         uuid.New(),
		Code:           code,
		CommissionRate: decimal.NewFromInt(42),
	})
	require.NoError(t, err)
	return a
}

func earnings(t *testing.T, s *memstore.Store, id uuid.UUID) string {
	t.Helper()
	a, err := s.GetAffiliateByID(context.Background(), id)
	require.NoError(t, err)
	return a.TotalEarnings.StringFixed(2)
}

// seedDay gives each profit to a new affiliate, one second apart
func seedDay(t *testing.T, s *memstore.Store, date time.Time, profits ...string) []store.Affiliate {
	t.Helper()
	affiliates := make([]store.Affiliate, len(profits))
	for i, profit := range profits {
		at := date.Add(time.Duration(i) * time.Second)
		s.SetClock(func() time.Time { return at })
		affiliates[i] = createAffiliate(t, s, "RANK0"+string(rune('A'+i)))
		require.NoError(t, s.AddDailyProfit(context.Background(), affiliates[i].ID, date, money(profit)))
	}
	s.SetClock(func() time.Time { return time.Now().UTC() })
	return affiliates
}

func TestAllocateRanked_Tiers(t *testing.T) {
	stats := []store.DailyStat{
		{ID: uuid.New(), AffiliateID: uuid.New(), ProfitGenerated: money("400")},
		{ID: uuid.New(), AffiliateID: uuid.New(), ProfitGenerated: money("1000")},
		{ID: uuid.New(), AffiliateID: uuid.New(), ProfitGenerated: money("600")},
	}

	total, pool, shares := AllocateRanked(stats)
	assert.Equal(t, "2000.00", total.StringFixed(2))
	assert.Equal(t, "160.00", pool.StringFixed(2))
	require.Len(t, shares, 3)
	assert.Equal(t, stats[1].AffiliateID, shares[0].AffiliateID)
	assert.Equal(t, "80.00", shares[0].Share.StringFixed(2))
	assert.Equal(t, "48.00", shares[1].Share.StringFixed(2))
	assert.Equal(t, "32.00", shares[2].Share.StringFixed(2))
}

func TestAllocateRanked_SharesUseUnroundedPool(t *testing.T) {
	stats := []store.DailyStat{
		{ID: uuid.New(), AffiliateID: uuid.New(), ProfitGenerated: money("1000.07")},
	}

	_, pool, shares := AllocateRanked(stats)
	// 1000.07 * 0.08 = 80.0056, half of it is 40.0028
	assert.Equal(t, "80.01", pool.StringFixed(2))
	require.Len(t, shares, 1)
	assert.Equal(t, "40.00", shares[0].Share.StringFixed(2))
}

func TestAllocateRanked_TieBreak(t *testing.T) {
	early := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")
	stats := []store.DailyStat{
		{AffiliateID: high, ProfitGenerated: money("50"), CreatedAt: early},
		{AffiliateID: uuid.New(), ProfitGenerated: money("50"), CreatedAt: early.Add(time.Minute)},
		{AffiliateID: low, ProfitGenerated: money("50"), CreatedAt: early},
	}

	for i := 0; i < 3; i++ {
		_, _, shares := AllocateRanked(stats)
		assert.Equal(t, low, shares[0].AffiliateID, "same created_at falls back to affiliate id")
		assert.Equal(t, high, shares[1].AffiliateID)
		assert.Equal(t, stats[1].AffiliateID, shares[2].AffiliateID, "later row ranks last")
	}
}

func TestRunRanked_DistributesTopThree(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	affiliates := seedDay(t, s, poolDate, "1000", "600", "400", "100")
	events := new(MockEventPublisher)
	events.On("PublishRankedPoolDistributed", mock.Anything, mock.Anything).Return(nil).Once()
	p := newPools(t, s, nil, nil, events)

	result, err := p.RunRanked(ctx, poolDate)
	require.NoError(t, err)
	assert.False(t, result.AlreadyDistributed)
	assert.Equal(t, "2100.00", result.TotalProfit.StringFixed(2))
	assert.Equal(t, "168.00", result.PoolAmount.StringFixed(2))
	assert.Equal(t, "168.00", result.DistributedAmount.StringFixed(2))
	require.Len(t, result.Rankings, 4)
	assert.Equal(t, "0.00", result.Rankings[3].Share.StringFixed(2))
	assert.Nil(t, result.Rankings[3].CommissionID)

	assert.Equal(t, "84.00", earnings(t, s, affiliates[0].ID))
	assert.Equal(t, "50.40", earnings(t, s, affiliates[1].ID))
	assert.Equal(t, "33.60", earnings(t, s, affiliates[2].ID))
	assert.Equal(t, "0.00", earnings(t, s, affiliates[3].ID))

	commissions, err := s.ListCommissionsByOrderRef(ctx, "RANKED-POOL-2026-05-10")
	require.NoError(t, err)
	require.Len(t, commissions, 3)
	for _, c := range commissions {
		assert.Equal(t, store.CommissionKindRankedPool, c.Kind)
		assert.Equal(t, store.CommissionStatusConfirmed, c.Status)
	}

	stats, err := s.ListDailyStats(ctx, poolDate)
	require.NoError(t, err)
	for _, stat := range stats {
		require.NotNil(t, stat.Rank)
	}

	day, err := p.Day(ctx, poolDate)
	require.NoError(t, err)
	require.NotNil(t, day.Run)
	assert.Len(t, day.Commissions, 3)
	assert.Equal(t, 1, *day.Stats[0].Rank)
	events.AssertExpectations(t)
}

func TestRunRanked_SecondRunIsNoop(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	affiliates := seedDay(t, s, poolDate, "1000", "600", "400")
	p := newPools(t, s, nil, nil, nil)

	_, err := p.RunRanked(ctx, poolDate)
	require.NoError(t, err)

	again, err := p.RunRanked(ctx, poolDate)
	require.NoError(t, err)
	assert.True(t, again.AlreadyDistributed)

	commissions, err := s.ListCommissionsByOrderRef(ctx, RankedOrderRef(poolDate))
	require.NoError(t, err)
	assert.Len(t, commissions, 3)
	assert.Equal(t, "80.00", earnings(t, s, affiliates[0].ID))
	assert.Equal(t, "48.00", earnings(t, s, affiliates[1].ID))
	assert.Equal(t, "32.00", earnings(t, s, affiliates[2].ID))
}

func TestRunRanked_NoStats(t *testing.T) {
	p := newPools(t, memstore.New(), nil, nil, nil)

	result, err := p.RunRanked(context.Background(), poolDate)
	require.NoError(t, err)
	assert.True(t, result.InsufficientData)
	assert.True(t, result.DistributedAmount.IsZero())

	_, err = p.RunRanked(context.Background(), runAt.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, ErrFutureDate)
}

func TestRunRanked_FailureLeavesDayUndistributed(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	affiliates := seedDay(t, s, poolDate, "1000", "600", "400")
	p := newPools(t, s, nil, nil, nil)

	s.SetHook(func(op string) error {
		if op == "CreateRankedPoolRun" {
			return errors.New("connection reset")
		}
		return nil
	})
	_, err := p.RunRanked(ctx, poolDate)
	require.Error(t, err)
	s.SetHook(nil)

	assert.Equal(t, "0.00", earnings(t, s, affiliates[0].ID))
	commissions, err := s.ListCommissionsByOrderRef(ctx, RankedOrderRef(poolDate))
	require.NoError(t, err)
	assert.Empty(t, commissions)

	result, err := p.RunRanked(ctx, poolDate)
	require.NoError(t, err, "a rolled back run can be retried")
	assert.Equal(t, "160.00", result.DistributedAmount.StringFixed(2))
}

func TestRunRanked_RefusedWhileHalted(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedDay(t, s, poolDate, "1000")
	_, err := s.CreateLedgerHalt(ctx, "drift", nil)
	require.NoError(t, err)
	p := newPools(t, s, nil, nil, nil)

	_, err = p.RunRanked(ctx, poolDate)
	assert.ErrorIs(t, err, store.ErrLedgerHalted)

	_, err = s.GetRankedPoolRun(ctx, poolDate)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunRanked_LockHeld(t *testing.T) {
	locker := new(MockLocker)
	locker.On("Lock", mock.Anything, "lock:ranked-pool:2026-05-10", lockTTL).Return(nil, errors.New("held")).Once()
	p := newPools(t, memstore.New(), locker, nil, nil)

	_, err := p.RunRanked(context.Background(), poolDate)
	assert.ErrorIs(t, err, ErrDistributionInFlight)
	locker.AssertExpectations(t)
}

func TestRunRanked_ReleasesLock(t *testing.T) {
	released := false
	release := func(context.Context) error {
		released = true
		return nil
	}
	locker := new(MockLocker)
	locker.On("Lock", mock.Anything, "lock:ranked-pool:2026-05-10", lockTTL).Return(release, nil).Once()
	p := newPools(t, memstore.New(), locker, nil, nil)

	_, err := p.RunRanked(context.Background(), poolDate)
	require.NoError(t, err)
	assert.True(t, released)
}
