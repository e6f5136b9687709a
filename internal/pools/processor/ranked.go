package processor

import (
	"commission-engine/internal/commissions/split"
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// errRunExists aborts a transaction that lost the race for a run marker
var errRunExists = errors.New("distribution already recorded")

// RankedShare is one affiliate's place in a day's distribution
type RankedShare struct {
	StatID       uuid.UUID       `json:"-"`
	Rank         int             `json:"rank"`
	AffiliateID  uuid.UUID       `json:"affiliate_id"`
	Profit       decimal.Decimal `json:"profit"`
	Share        decimal.Decimal `json:"share"`
	CommissionID *uuid.UUID      `json:"commission_id,omitempty"`
}

// RankedResult reports a ranked pool run. AlreadyDistributed and
// InsufficientData are successful no-ops.
type RankedResult struct {
	Date               time.Time       `json:"date"`
	TotalProfit        decimal.Decimal `json:"total_profit"`
	PoolAmount         decimal.Decimal `json:"pool_amount"`
	DistributedAmount  decimal.Decimal `json:"distributed_amount"`
	Rankings           []RankedShare   `json:"rankings"`
	AlreadyDistributed bool            `json:"already_distributed"`
	InsufficientData   bool            `json:"insufficient_data"`
}

// RankedOrderRef tags the commissions paid for a date
func RankedOrderRef(date time.Time) string {
	return "RANKED-POOL-" + date.UTC().Format(time.DateOnly)
}

// RankStats orders a day's stats by profit, highest first. Ties go to the
// earlier stat row, then the lower affiliate id.
func RankStats(stats []store.DailyStat) []store.DailyStat {
	ranked := make([]store.DailyStat, len(stats))
	copy(ranked, stats)
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].ProfitGenerated.Cmp(ranked[j].ProfitGenerated); c != 0 {
			return c > 0
		}
		if !ranked[i].CreatedAt.Equal(ranked[j].CreatedAt) {
			return ranked[i].CreatedAt.Before(ranked[j].CreatedAt)
		}
		return ranked[i].AffiliateID.String() < ranked[j].AffiliateID.String()
	})
	return ranked
}

// AllocateRanked splits 8% of the day's profit 50/30/20 across the top three.
// Every other rank gets zero. Shares come from the unrounded pool and are
// rounded once each; the returned pool is rounded for reporting only.
func AllocateRanked(stats []store.DailyStat) (total, pool decimal.Decimal, shares []RankedShare) {
	total = decimal.Zero
	for _, s := range stats {
		total = total.Add(s.ProfitGenerated)
	}
	exact := total.Mul(RankedPoolRate)

	ranked := RankStats(stats)
	shares = make([]RankedShare, len(ranked))
	for i, s := range ranked {
		share := decimal.Zero
		if i < len(RankedTiers) {
			share = split.Cents(exact.Mul(RankedTiers[i]))
		}
		shares[i] = RankedShare{
			StatID:      s.ID,
			Rank:        i + 1,
			AffiliateID: s.AffiliateID,
			Profit:      s.ProfitGenerated,
			Share:       share,
		}
	}
	return total, split.Cents(exact), shares
}

// RunRanked distributes the ranked pool for date. A zero date means today.
// A date that already has a run marker is reported, never paid twice.
func (p *PoolProcessor) RunRanked(ctx context.Context, date time.Time) (RankedResult, error) {
	today := store.DateOnly(p.now())
	if date.IsZero() {
		date = today
	}
	date = store.DateOnly(date)
	if date.After(today) {
		return RankedResult{}, ErrFutureDate
	}

	day := date.Format(time.DateOnly)
	ctx = observability.WithFields(ctx, observability.Field{Key: "pool_date", Value: day})
	ctx, span := observability.StartSpan(ctx, "pools.RunRanked")
	defer span.End()

	release, err := p.lock(ctx, "lock:ranked-pool:"+day)
	if err != nil {
		return RankedResult{}, err
	}
	defer release()

	now := p.now()
	result := RankedResult{Date: date, TotalProfit: decimal.Zero, PoolAmount: decimal.Zero, DistributedAmount: decimal.Zero, Rankings: []RankedShare{}}
	err = p.store.InTx(ctx, func(tx store.Repository) error {
		if err := tx.AcquireDistributionLock(ctx, "ranked-pool:"+day); err != nil {
			return err
		}

		_, err := tx.GetRankedPoolRun(ctx, date)
		if err == nil {
			result.AlreadyDistributed = true
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		stats, err := tx.ListDailyStats(ctx, date)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			result.InsufficientData = true
			return nil
		}

		if err := store.EnsureNotHalted(ctx, tx); err != nil {
			return err
		}

		total, pool, shares := AllocateRanked(stats)
		result.TotalProfit = total
		result.PoolAmount = pool

		orderRef := RankedOrderRef(date)
		periodEnd := date.AddDate(0, 0, 1)
		for i := range shares {
			share := &shares[i]
			if err := tx.UpdateDailyStatRanking(ctx, share.StatID, share.Rank, share.Share); err != nil {
				return err
			}
			if !share.Share.IsPositive() {
				continue
			}

			c, err := tx.CreateCommission(ctx, store.CreateCommissionParams{
				AffiliateID:    share.AffiliateID,
				Kind:           store.CommissionKindRankedPool,
				OrderRef:       &orderRef,
				Profit:         share.Profit,
				CommissionRate: RankedTiers[share.Rank-1].Mul(decimal.NewFromInt(100)),
				Amount:         share.Share,
				Status:         store.CommissionStatusConfirmed,
				PeriodStart:    &date,
				PeriodEnd:      &periodEnd,
				ConfirmedAt:    &now,
			})
			if err != nil {
				return fmt.Errorf("failed to create ranked pool commission: %w", err)
			}
			if err := tx.IncrementAffiliateEarnings(ctx, share.AffiliateID, share.Share); err != nil {
				return err
			}
			share.CommissionID = &c.ID
			result.DistributedAmount = result.DistributedAmount.Add(share.Share)
		}
		result.Rankings = shares

		_, err = tx.CreateRankedPoolRun(ctx, store.CreateRankedPoolRunParams{
			Date:              date,
			TotalProfit:       total,
			PoolAmount:        pool,
			DistributedAmount: result.DistributedAmount,
		})
		if errors.Is(err, store.ErrConflict) {
			return errRunExists
		}
		return err
	})
	if errors.Is(err, errRunExists) {
		return RankedResult{Date: date, TotalProfit: decimal.Zero, PoolAmount: decimal.Zero, DistributedAmount: decimal.Zero, Rankings: []RankedShare{}, AlreadyDistributed: true}, nil
	}
	if err != nil {
		p.logger.Error(ctx, "failed to distribute ranked pool", err)
		return RankedResult{}, err
	}

	switch {
	case result.AlreadyDistributed:
		p.logger.Info(ctx, "ranked pool already distributed")
	case result.InsufficientData:
		p.logger.Warn(ctx, "no daily stats to distribute")
	default:
		observability.PoolDistributed("ranked", result.DistributedAmount)
		if p.events != nil {
			if err := p.events.PublishRankedPoolDistributed(ctx, result); err != nil {
				p.logger.InfoWithError(ctx, "failed to publish ranked pool event", err)
			}
		}
		p.logger.Info(ctx, fmt.Sprintf("ranked pool distributed %s of %s across %d affiliates",
			result.DistributedAmount.StringFixed(2), result.PoolAmount.StringFixed(2), len(result.Rankings)))
	}
	return result, nil
}

// RankedDay is the stored state of one day's ranking
type RankedDay struct {
	Date        time.Time            `json:"date"`
	Run         *store.RankedPoolRun `json:"run,omitempty"`
	Stats       []store.DailyStat    `json:"stats"`
	Commissions []store.Commission   `json:"commissions"`
}

// Day returns a date's stats and, once distributed, its run and commissions
func (p *PoolProcessor) Day(ctx context.Context, date time.Time) (RankedDay, error) {
	date = store.DateOnly(date)
	day := RankedDay{Date: date, Stats: []store.DailyStat{}, Commissions: []store.Commission{}}

	run, err := p.store.GetRankedPoolRun(ctx, date)
	switch {
	case err == nil:
		day.Run = &run
	case !errors.Is(err, store.ErrNotFound):
		p.logger.Error(ctx, "failed to get ranked pool run", err)
		return RankedDay{}, err
	}

	stats, err := p.store.ListDailyStats(ctx, date)
	if err != nil {
		p.logger.Error(ctx, "failed to list daily stats", err)
		return RankedDay{}, err
	}
	if stats != nil {
		day.Stats = RankStats(stats)
	}

	if day.Run != nil {
		commissions, err := p.store.ListCommissionsByOrderRef(ctx, RankedOrderRef(date))
		if err != nil {
			p.logger.Error(ctx, "failed to list ranked pool commissions", err)
			return RankedDay{}, err
		}
		if commissions != nil {
			day.Commissions = commissions
		}
	}
	return day, nil
}
