package processor

import (
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	SkipBeforeActivation = "before_activation_year"
	SkipEmptyPot         = "empty_pot"
	SkipNoEligible       = "no_eligible_affiliates"
)

// LotteryShare is one affiliate's part of the annual pot
type LotteryShare struct {
	AffiliateID  uuid.UUID       `json:"affiliate_id"`
	Points       int64           `json:"points"`
	Share        decimal.Decimal `json:"share"`
	CommissionID *uuid.UUID      `json:"commission_id,omitempty"`
}

// LotteryResult reports an annual pot run. AlreadyDistributed and Skipped
// are successful no-ops.
type LotteryResult struct {
	Year               int             `json:"year"`
	PotAmount          decimal.Decimal `json:"pot_amount"`
	TotalPoints        int64           `json:"total_points"`
	DistributedAmount  decimal.Decimal `json:"distributed_amount"`
	Shares             []LotteryShare  `json:"shares"`
	AlreadyDistributed bool            `json:"already_distributed"`
	Skipped            bool            `json:"skipped"`
	SkipReason         string          `json:"skip_reason,omitempty"`
}

// LotteryOrderRef tags the commissions paid from a year's pot
func LotteryOrderRef(year int) string {
	return "LOTTERY-POOL-" + strconv.Itoa(year)
}

// AllocateLottery shares pot in proportion to reward points. Shares are
// floored to the cent so the total never exceeds the pot.
func AllocateLottery(pot decimal.Decimal, affiliates []store.Affiliate) (int64, []LotteryShare) {
	var total int64
	for _, a := range affiliates {
		if a.RewardPoints > 0 {
			total += a.RewardPoints
		}
	}
	shares := make([]LotteryShare, 0, len(affiliates))
	if total == 0 {
		return 0, shares
	}

	totalPoints := decimal.NewFromInt(total)
	for _, a := range affiliates {
		if a.RewardPoints <= 0 {
			continue
		}
		share := pot.Mul(decimal.NewFromInt(a.RewardPoints)).Div(totalPoints).RoundFloor(2)
		shares = append(shares, LotteryShare{AffiliateID: a.ID, Points: a.RewardPoints, Share: share})
	}
	return total, shares
}

// RunLottery pays out a year's pot to active affiliates by reward points.
// The pot is marked distributed in the same transaction as the commissions.
func (p *PoolProcessor) RunLottery(ctx context.Context, year int) (LotteryResult, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "pot_year", Value: year})
	result := LotteryResult{Year: year, PotAmount: decimal.Zero, DistributedAmount: decimal.Zero, Shares: []LotteryShare{}}

	if year < p.cfg.LotteryActivationYear {
		result.Skipped = true
		result.SkipReason = SkipBeforeActivation
		p.logger.Info(ctx, "lottery pool not active for year")
		return result, nil
	}

	ctx, span := observability.StartSpan(ctx, "pools.RunLottery")
	defer span.End()

	release, err := p.lock(ctx, fmt.Sprintf("lock:lottery-pool:%d", year))
	if err != nil {
		return LotteryResult{}, err
	}
	defer release()

	now := p.now()
	err = p.store.InTx(ctx, func(tx store.Repository) error {
		if err := tx.AcquireDistributionLock(ctx, fmt.Sprintf("lottery-pool:%d", year)); err != nil {
			return err
		}

		pot, err := tx.GetAnnualPotForUpdate(ctx, year)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrPotNotFound
			}
			return err
		}
		result.PotAmount = pot.TotalAmount
		if pot.Distributed {
			result.AlreadyDistributed = true
			return nil
		}
		if !pot.TotalAmount.IsPositive() {
			result.Skipped = true
			result.SkipReason = SkipEmptyPot
			return nil
		}

		if err := store.EnsureNotHalted(ctx, tx); err != nil {
			return err
		}

		affiliates, err := tx.ListActiveAffiliatesWithPoints(ctx)
		if err != nil {
			return err
		}
		total, shares := AllocateLottery(pot.TotalAmount, affiliates)
		if total == 0 {
			result.Skipped = true
			result.SkipReason = SkipNoEligible
			return nil
		}
		result.TotalPoints = total

		orderRef := LotteryOrderRef(year)
		periodStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		periodEnd := periodStart.AddDate(1, 0, 0)
		for i := range shares {
			share := &shares[i]
			if !share.Share.IsPositive() {
				continue
			}
			c, err := tx.CreateCommission(ctx, store.CreateCommissionParams{
				AffiliateID:    share.AffiliateID,
				Kind:           store.CommissionKindLotteryPool,
				OrderRef:       &orderRef,
				Profit:         pot.TotalAmount,
				CommissionRate: decimal.NewFromInt(share.Points).Div(decimal.NewFromInt(total)).Mul(decimal.NewFromInt(100)).Round(4),
				Amount:         share.Share,
				Status:         store.CommissionStatusConfirmed,
				PeriodStart:    &periodStart,
				PeriodEnd:      &periodEnd,
				ConfirmedAt:    &now,
			})
			if err != nil {
				return fmt.Errorf("failed to create lottery pool commission: %w", err)
			}
			if err := tx.IncrementAffiliateEarnings(ctx, share.AffiliateID, share.Share); err != nil {
				return err
			}
			share.CommissionID = &c.ID
			result.DistributedAmount = result.DistributedAmount.Add(share.Share)
		}
		result.Shares = shares

		if err := tx.MarkAnnualPotDistributed(ctx, year, now); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return errRunExists
			}
			return err
		}
		return nil
	})
	if errors.Is(err, errRunExists) {
		return LotteryResult{Year: year, PotAmount: result.PotAmount, DistributedAmount: decimal.Zero, Shares: []LotteryShare{}, AlreadyDistributed: true}, nil
	}
	if err != nil {
		if !errors.Is(err, ErrPotNotFound) {
			p.logger.Error(ctx, "failed to distribute lottery pool", err)
		}
		return LotteryResult{}, err
	}

	switch {
	case result.AlreadyDistributed:
		p.logger.Info(ctx, "lottery pool already distributed")
	case result.Skipped:
		p.logger.Info(ctx, "lottery pool skipped: "+result.SkipReason)
	default:
		observability.PoolDistributed("lottery", result.DistributedAmount)
		if p.events != nil {
			if err := p.events.PublishLotteryPoolDistributed(ctx, result); err != nil {
				p.logger.InfoWithError(ctx, "failed to publish lottery pool event", err)
			}
		}
		p.logger.Info(ctx, fmt.Sprintf("lottery pool distributed %s of %s across %d affiliates",
			result.DistributedAmount.StringFixed(2), result.PotAmount.StringFixed(2), len(result.Shares)))
	}
	return result, nil
}

// Pot returns a year's pot
func (p *PoolProcessor) Pot(ctx context.Context, year int) (store.AnnualPot, error) {
	pot, err := p.store.GetAnnualPot(ctx, year)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.AnnualPot{}, ErrPotNotFound
		}
		p.logger.Error(ctx, "failed to get annual pot", err)
		return store.AnnualPot{}, err
	}
	return pot, nil
}
