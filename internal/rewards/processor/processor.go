package processor

import (
	"commission-engine/internal/commissions/split"
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSource     = errors.New("invalid reward points source")
	ErrAffiliateNotFound = errors.New("affiliate not found")
	// ErrLedgerWriteFailed wraps storage failures while awarding. The award
	// was rolled back and is safe to retry.
	ErrLedgerWriteFailed = errors.New("reward ledger write failed")
)

const defaultHistoryLimit = 50

type RewardProcessor struct {
	store  RewardStore
	logger *observability.Logger
}

func New(store RewardStore, logger *observability.Logger) RewardProcessor {
	return RewardProcessor{
		store:  store,
		logger: logger,
	}
}

// AwardRequest describes a points award
type AwardRequest struct {
	AffiliateID  uuid.UUID
	ProfitAmount decimal.Decimal
	Source       string
	CommissionID *uuid.UUID
	Description  *string
}

// AwardResult reports what was written. Entry is nil when no points were due.
type AwardResult struct {
	PointsAwarded int64                    `json:"points_awarded"`
	Entry         *store.RewardPointsEntry `json:"entry,omitempty"`
}

// Award grants floor(profit/10) points. The history row and the cached
// balance are written in one transaction.
func (p *RewardProcessor) Award(ctx context.Context, req AwardRequest) (AwardResult, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "affiliate_id", Value: req.AffiliateID.String()},
		observability.Field{Key: "source", Value: req.Source},
	)

	if err := validateSource(req.Source); err != nil {
		return AwardResult{}, err
	}
	if split.Points(req.ProfitAmount) == 0 {
		return AwardResult{}, nil
	}

	var result AwardResult
	err := p.store.InTx(ctx, func(tx store.Repository) error {
		var err error
		result, err = p.AwardInTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return AwardResult{}, err
	}

	p.logger.Info(ctx, fmt.Sprintf("awarded %d reward points", result.PointsAwarded))
	return result, nil
}

// AwardInTx performs Award inside the caller's transaction.
func (p *RewardProcessor) AwardInTx(ctx context.Context, tx store.Repository, req AwardRequest) (AwardResult, error) {
	if err := validateSource(req.Source); err != nil {
		return AwardResult{}, err
	}

	points := split.Points(req.ProfitAmount)
	if points == 0 {
		return AwardResult{}, nil
	}

	entry, err := tx.CreateRewardPointsEntry(ctx, store.CreateRewardPointsEntryParams{
		AffiliateID:  req.AffiliateID,
		Points:       points,
		ProfitAmount: split.Cents(req.ProfitAmount),
		Source:       req.Source,
		CommissionID: req.CommissionID,
		Description:  req.Description,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to insert reward points history", err)
		return AwardResult{}, fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}

	if err := tx.IncrementAffiliateRewardPoints(ctx, req.AffiliateID, points); err != nil {
		p.logger.Error(ctx, "failed to increment affiliate reward points", err)
		if errors.Is(err, store.ErrNotFound) {
			return AwardResult{}, ErrAffiliateNotFound
		}
		return AwardResult{}, fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}

	return AwardResult{PointsAwarded: points, Entry: &entry}, nil
}

func validateSource(source string) error {
	switch source {
	case store.RewardSourceSale, store.RewardSourceSelfPurchase, store.RewardSourceAdjustment:
		return nil
	default:
		return ErrInvalidSource
	}
}

// PointsBreakdown totals points per source. Bonus is always zero since bonus
// awards are rejected.
type PointsBreakdown struct {
	Sale         int64 `json:"sale"`
	SelfPurchase int64 `json:"self_purchase"`
	Bonus        int64 `json:"bonus"`
	Adjustment   int64 `json:"adjustment"`
}

// History is an affiliate's points ledger
type History struct {
	Entries     []store.RewardPointsEntry `json:"entries"`
	TotalPoints int64                     `json:"total_points"`
	Balance     int64                     `json:"balance"`
	Breakdown   PointsBreakdown           `json:"breakdown"`
}

// History returns entries newest first with per-source totals
func (p *RewardProcessor) History(ctx context.Context, affiliateID uuid.UUID, limit int) (History, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "affiliate_id", Value: affiliateID.String()},
	)

	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	affiliate, err := p.store.GetAffiliateByID(ctx, affiliateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return History{}, ErrAffiliateNotFound
		}
		p.logger.Error(ctx, "failed to get affiliate", err)
		return History{}, err
	}

	entries, err := p.store.ListRewardPointsHistory(ctx, affiliateID, limit)
	if err != nil {
		p.logger.Error(ctx, "failed to list reward points history", err)
		return History{}, err
	}

	totals, err := p.store.SumRewardPointsBySource(ctx, affiliateID)
	if err != nil {
		p.logger.Error(ctx, "failed to sum reward points", err)
		return History{}, err
	}

	breakdown := PointsBreakdown{
		Sale:         totals[store.RewardSourceSale],
		SelfPurchase: totals[store.RewardSourceSelfPurchase],
		Adjustment:   totals[store.RewardSourceAdjustment],
	}

	if entries == nil {
		entries = []store.RewardPointsEntry{}
	}
	return History{
		Entries:     entries,
		TotalPoints: breakdown.Sale + breakdown.SelfPurchase + breakdown.Adjustment,
		Balance:     affiliate.RewardPoints,
		Breakdown:   breakdown,
	}, nil
}
