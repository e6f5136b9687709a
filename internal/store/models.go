package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Affiliate struct {
	ID                    uuid.UUID       `db:"id" json:"id"`
	UserID                uuid.UUID       `db:"user_id" json:"user_id"`
	Code                  string          `db:"code" json:"code"`
	ReferredBy            *uuid.UUID      `db:"referred_by" json:"referred_by,omitempty"`
	Status                string          `db:"status" json:"status"`
	CommissionMode        string          `db:"commission_mode" json:"commission_mode"`
	CommissionRate        decimal.Decimal `db:"commission_rate" json:"commission_rate"`
	RewardPoints          int64           `db:"reward_points" json:"reward_points"`
	TotalEarnings         decimal.Decimal `db:"total_earnings" json:"total_earnings"`
	TotalPaid             decimal.Decimal `db:"total_paid" json:"total_paid"`
	DiscountCreditBalance decimal.Decimal `db:"discount_credit_balance" json:"discount_credit_balance"`
	PayoutEmail           *string         `db:"payout_email" json:"payout_email,omitempty"`
	StripeAccountID       *string         `db:"stripe_account_id" json:"-"`
	LastModeChangeDate    *time.Time      `db:"last_mode_change_date" json:"last_mode_change_date,omitempty"`
	LastDiscountUseDate   *time.Time      `db:"last_discount_use_date" json:"last_discount_use_date,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

type Referral struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	AffiliateID    uuid.UUID  `db:"affiliate_id" json:"affiliate_id"`
	ReferredUserID uuid.UUID  `db:"referred_user_id" json:"referred_user_id"`
	Converted      bool       `db:"converted" json:"converted"`
	ConvertedAt    *time.Time `db:"converted_at" json:"converted_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

type DiscountCode struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	AffiliateID     uuid.UUID       `db:"affiliate_id" json:"affiliate_id"`
	Code            string          `db:"code" json:"code"`
	DiscountPercent decimal.Decimal `db:"discount_percent" json:"discount_percent"`
	IsActive        bool            `db:"is_active" json:"is_active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

type Commission struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	AffiliateID        uuid.UUID       `db:"affiliate_id" json:"affiliate_id"`
	Kind               string          `db:"kind" json:"kind"`
	ParentCommissionID *uuid.UUID      `db:"parent_commission_id" json:"parent_commission_id,omitempty"`
	OrderRef           *string         `db:"order_ref" json:"order_ref,omitempty"`
	Revenue            decimal.Decimal `db:"revenue" json:"revenue"`
	Costs              decimal.Decimal `db:"costs" json:"costs"`
	Profit             decimal.Decimal `db:"profit" json:"profit"`
	CommissionRate     decimal.Decimal `db:"commission_rate" json:"commission_rate"`
	Amount             decimal.Decimal `db:"amount" json:"amount"`
	Status             string          `db:"status" json:"status"`
	PeriodStart        *time.Time      `db:"period_start" json:"period_start,omitempty"`
	PeriodEnd          *time.Time      `db:"period_end" json:"period_end,omitempty"`
	ConfirmedAt        *time.Time      `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	PaidAt             *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	PayoutRequestID    *uuid.UUID      `db:"payout_request_id" json:"payout_request_id,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// CommissionTotals are ledger sums used to verify cached aggregates.
type CommissionTotals struct {
	Earned decimal.Decimal `db:"earned" json:"earned"`
	Paid   decimal.Decimal `db:"paid" json:"paid"`
}

type RewardPointsEntry struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	AffiliateID  uuid.UUID       `db:"affiliate_id" json:"affiliate_id"`
	Points       int64           `db:"points" json:"points"`
	ProfitAmount decimal.Decimal `db:"profit_amount" json:"profit_amount"`
	Source       string          `db:"source" json:"source"`
	CommissionID *uuid.UUID      `db:"commission_id" json:"commission_id,omitempty"`
	Description  *string         `db:"description" json:"description,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

type DailyStat struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	AffiliateID     uuid.UUID       `db:"affiliate_id" json:"affiliate_id"`
	Date            time.Time       `db:"date" json:"date"`
	ProfitGenerated decimal.Decimal `db:"profit_generated" json:"profit_generated"`
	Rank            *int            `db:"rank" json:"rank,omitempty"`
	PoolShare       decimal.Decimal `db:"pool_share" json:"pool_share"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

type RankedPoolRun struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	Date              time.Time       `db:"date" json:"date"`
	TotalProfit       decimal.Decimal `db:"total_profit" json:"total_profit"`
	PoolAmount        decimal.Decimal `db:"pool_amount" json:"pool_amount"`
	DistributedAmount decimal.Decimal `db:"distributed_amount" json:"distributed_amount"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

type HourlyRankingSnapshot struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	AffiliateID     uuid.UUID       `db:"affiliate_id" json:"affiliate_id"`
	Rank            int             `db:"rank" json:"rank"`
	ProfitGenerated decimal.Decimal `db:"profit_generated" json:"profit_generated"`
	RankChange      int             `db:"rank_change" json:"rank_change"`
	RecordedAt      time.Time       `db:"recorded_at" json:"recorded_at"`
}

type AnnualPot struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	Year             int             `db:"year" json:"year"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"total_amount"`
	Distributed      bool            `db:"distributed" json:"distributed"`
	DistributionDate *time.Time      `db:"distribution_date" json:"distribution_date,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

type PotContribution struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	Year         int             `db:"year" json:"year"`
	CommissionID *uuid.UUID      `db:"commission_id" json:"commission_id,omitempty"`
	OrderRef     *string         `db:"order_ref" json:"order_ref,omitempty"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Reason       string          `db:"reason" json:"reason"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

type PayoutRequest struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	AffiliateID  uuid.UUID       `db:"affiliate_id" json:"affiliate_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Currency     string          `db:"currency" json:"currency"`
	Status       string          `db:"status" json:"status"`
	PayoutEmail  string          `db:"payout_email" json:"payout_email"`
	ExternalID   *string         `db:"external_id" json:"external_id,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	Notes        *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// LedgerHalt blocks money-moving writes until an operator resolves it.
type LedgerHalt struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	AffiliateID *uuid.UUID `db:"affiliate_id" json:"affiliate_id,omitempty"`
	Reason      string     `db:"reason" json:"reason"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt  *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}
