package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository is every storage operation the engine performs. *Store backs it
// with Postgres; memstore backs it in memory.
type Repository interface {
	InTx(ctx context.Context, fn func(Repository) error) error
	AcquireDistributionLock(ctx context.Context, key string) error

	// Affiliates
	CreateAffiliate(ctx context.Context, params CreateAffiliateParams) (Affiliate, error)
	GetAffiliateByID(ctx context.Context, id uuid.UUID) (Affiliate, error)
	GetAffiliateByIDForUpdate(ctx context.Context, id uuid.UUID) (Affiliate, error)
	GetAffiliateByCode(ctx context.Context, code string) (Affiliate, error)
	GetAffiliateByUserID(ctx context.Context, userID uuid.UUID) (Affiliate, error)
	ListAffiliates(ctx context.Context) ([]Affiliate, error)
	ListActiveAffiliatesWithPoints(ctx context.Context) ([]Affiliate, error)
	UpdateAffiliateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateAffiliatePayoutDetails(ctx context.Context, id uuid.UUID, payoutEmail *string, stripeAccountID *string) error
	UpdateAffiliateMode(ctx context.Context, id uuid.UUID, mode string, changedOn time.Time) error
	StampDiscountUse(ctx context.Context, id uuid.UUID, usedOn time.Time, credit decimal.Decimal) error
	IncrementAffiliateRewardPoints(ctx context.Context, id uuid.UUID, delta int64) error
	IncrementAffiliateEarnings(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
	IncrementAffiliatePaid(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error

	// Referrals
	CreateReferral(ctx context.Context, affiliateID, referredUserID uuid.UUID) (Referral, error)
	GetReferralByUserID(ctx context.Context, referredUserID uuid.UUID) (Referral, error)
	MarkReferralConverted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// Discount codes
	GetDiscountCodeByAffiliate(ctx context.Context, affiliateID uuid.UUID) (DiscountCode, error)
	ActivateDiscountCode(ctx context.Context, affiliateID uuid.UUID, code string, percent decimal.Decimal) (DiscountCode, error)
	DeactivateDiscountCode(ctx context.Context, affiliateID uuid.UUID) error

	// Commissions
	CreateCommission(ctx context.Context, params CreateCommissionParams) (Commission, error)
	GetCommissionByID(ctx context.Context, id uuid.UUID) (Commission, error)
	GetSaleCommissionByOrderRef(ctx context.Context, orderRef string) (Commission, error)
	ListCommissionsByOrderRef(ctx context.Context, orderRef string) ([]Commission, error)
	ListChildCommissions(ctx context.Context, parentID uuid.UUID) ([]Commission, error)
	ListCommissionsByAffiliate(ctx context.Context, affiliateID uuid.UUID, status string, limit int) ([]Commission, error)
	ListPayableCommissions(ctx context.Context, affiliateID uuid.UUID) ([]Commission, error)
	TransitionCommission(ctx context.Context, id uuid.UUID, from, to string, at time.Time) (Commission, error)
	MarkCommissionPaid(ctx context.Context, id, affiliateID, payoutRequestID uuid.UUID, at time.Time) (Commission, error)
	SumCommissions(ctx context.Context, affiliateID uuid.UUID) (CommissionTotals, error)

	// Reward points
	CreateRewardPointsEntry(ctx context.Context, params CreateRewardPointsEntryParams) (RewardPointsEntry, error)
	ListRewardPointsHistory(ctx context.Context, affiliateID uuid.UUID, limit int) ([]RewardPointsEntry, error)
	SumRewardPointsBySource(ctx context.Context, affiliateID uuid.UUID) (map[string]int64, error)

	// Ranked pool
	AddDailyProfit(ctx context.Context, affiliateID uuid.UUID, date time.Time, delta decimal.Decimal) error
	ListDailyStats(ctx context.Context, date time.Time) ([]DailyStat, error)
	UpdateDailyStatRanking(ctx context.Context, id uuid.UUID, rank int, poolShare decimal.Decimal) error
	GetRankedPoolRun(ctx context.Context, date time.Time) (RankedPoolRun, error)
	CreateRankedPoolRun(ctx context.Context, params CreateRankedPoolRunParams) (RankedPoolRun, error)
	CreateHourlySnapshots(ctx context.Context, snapshots []HourlyRankingSnapshot) error
	ListSnapshotsSince(ctx context.Context, since time.Time) ([]HourlyRankingSnapshot, error)
	DeleteSnapshotsBefore(ctx context.Context, before time.Time) (int64, error)

	// Lottery pool
	AddToAnnualPot(ctx context.Context, year int, delta decimal.Decimal) error
	CreatePotContribution(ctx context.Context, params CreatePotContributionParams) error
	GetAnnualPot(ctx context.Context, year int) (AnnualPot, error)
	GetAnnualPotForUpdate(ctx context.Context, year int) (AnnualPot, error)
	MarkAnnualPotDistributed(ctx context.Context, year int, at time.Time) error

	// Payouts
	CreatePayoutRequest(ctx context.Context, params CreatePayoutRequestParams) (PayoutRequest, error)
	GetPayoutRequestByID(ctx context.Context, id uuid.UUID) (PayoutRequest, error)
	GetOpenPayoutRequestByAffiliate(ctx context.Context, affiliateID uuid.UUID) (PayoutRequest, error)
	ListPayoutRequestsByStatus(ctx context.Context, status string, limit int) ([]PayoutRequest, error)
	ListPayoutRequestCommissionIDs(ctx context.Context, payoutRequestID uuid.UUID) ([]uuid.UUID, error)
	TransitionPayoutRequest(ctx context.Context, id uuid.UUID, from, to string) error
	CompletePayoutRequest(ctx context.Context, id uuid.UUID, externalID string, at time.Time) error
	FailPayoutRequest(ctx context.Context, id uuid.UUID, message string, at time.Time) error

	// Ledger halts
	CreateLedgerHalt(ctx context.Context, reason string, affiliateID *uuid.UUID) (LedgerHalt, error)
	GetActiveLedgerHalt(ctx context.Context) (LedgerHalt, error)
	ResolveLedgerHalt(ctx context.Context, id uuid.UUID, at time.Time) error
}

type CreateAffiliateParams struct {
	UserID         uuid.UUID
	Code           string
	ReferredBy     *uuid.UUID
	CommissionRate decimal.Decimal
	PayoutEmail    *string
}

type CreateCommissionParams struct {
	AffiliateID        uuid.UUID
	Kind               string
	ParentCommissionID *uuid.UUID
	OrderRef           *string
	Revenue            decimal.Decimal
	Costs              decimal.Decimal
	Profit             decimal.Decimal
	CommissionRate     decimal.Decimal
	Amount             decimal.Decimal
	Status             string
	PeriodStart        *time.Time
	PeriodEnd          *time.Time
	ConfirmedAt        *time.Time
}

type CreateRewardPointsEntryParams struct {
	AffiliateID  uuid.UUID
	Points       int64
	ProfitAmount decimal.Decimal
	Source       string
	CommissionID *uuid.UUID
	Description  *string
}

type CreateRankedPoolRunParams struct {
	Date              time.Time
	TotalProfit       decimal.Decimal
	PoolAmount        decimal.Decimal
	DistributedAmount decimal.Decimal
}

type CreatePotContributionParams struct {
	Year         int
	CommissionID *uuid.UUID
	OrderRef     *string
	Amount       decimal.Decimal
	Reason       string
}

type CreatePayoutRequestParams struct {
	AffiliateID   uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	PayoutEmail   string
	Notes         *string
	CommissionIDs []uuid.UUID
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var _ Repository = (*Store)(nil)
