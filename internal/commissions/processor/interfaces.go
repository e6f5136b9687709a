package processor

import (
	rewardsProcessor "commission-engine/internal/rewards/processor"
	"commission-engine/internal/store"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionStore is the subset of store.Repository the ledger reads outside
// of transactions
type CommissionStore interface {
	InTx(ctx context.Context, fn func(store.Repository) error) error
	GetAffiliateByID(ctx context.Context, id uuid.UUID) (store.Affiliate, error)
	ListAffiliates(ctx context.Context) ([]store.Affiliate, error)
	GetCommissionByID(ctx context.Context, id uuid.UUID) (store.Commission, error)
	GetSaleCommissionByOrderRef(ctx context.Context, orderRef string) (store.Commission, error)
	ListCommissionsByOrderRef(ctx context.Context, orderRef string) ([]store.Commission, error)
	ListCommissionsByAffiliate(ctx context.Context, affiliateID uuid.UUID, status string, limit int) ([]store.Commission, error)
	SumCommissions(ctx context.Context, affiliateID uuid.UUID) (store.CommissionTotals, error)
	SumRewardPointsBySource(ctx context.Context, affiliateID uuid.UUID) (map[string]int64, error)
	CreateLedgerHalt(ctx context.Context, reason string, affiliateID *uuid.UUID) (store.LedgerHalt, error)
	GetActiveLedgerHalt(ctx context.Context) (store.LedgerHalt, error)
	ResolveLedgerHalt(ctx context.Context, id uuid.UUID, at time.Time) error
}

// RewardAwarder grants reward points inside a caller's transaction
type RewardAwarder interface {
	AwardInTx(ctx context.Context, tx store.Repository, req rewardsProcessor.AwardRequest) (rewardsProcessor.AwardResult, error)
}

// DiscountGuard gates employee discount use
type DiscountGuard interface {
	CanUseDiscount(affiliate store.Affiliate) (bool, int)
	UseDiscountInTx(ctx context.Context, tx store.Repository, id uuid.UUID, amount decimal.Decimal) (store.Affiliate, error)
}

// EventPublisher emits commission lifecycle events
type EventPublisher interface {
	PublishCommissionRecorded(ctx context.Context, commission store.Commission) error
	PublishCommissionConfirmed(ctx context.Context, commission store.Commission) error
	PublishCommissionCancelled(ctx context.Context, commission store.Commission) error
}

// ProfitTicker mirrors daily profit into the live ranking
type ProfitTicker interface {
	IncrementDailyProfit(ctx context.Context, date time.Time, affiliateID uuid.UUID, amount decimal.Decimal) error
}
