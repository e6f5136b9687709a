package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const affiliateColumns = `id, user_id, code, referred_by, status, commission_mode, commission_rate, reward_points, total_earnings, total_paid, discount_credit_balance, payout_email, stripe_account_id, last_mode_change_date, last_discount_use_date, created_at, updated_at`

const sqlCreateAffiliate = `
INSERT INTO affiliates (user_id, code, referred_by, commission_rate, payout_email)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + affiliateColumns

// CreateAffiliate creates a new affiliate in active, cash mode
func (s *Store) CreateAffiliate(ctx context.Context, params CreateAffiliateParams) (Affiliate, error) {
	var affiliate Affiliate
	err := s.db.GetContext(ctx, &affiliate, sqlCreateAffiliate,
		params.UserID,
		params.Code,
		params.ReferredBy,
		params.CommissionRate,
		params.PayoutEmail)
	if err != nil {
		if uniqueViolation(err) {
			return Affiliate{}, fmt.Errorf("failed to create affiliate: %w", ErrDuplicate)
		}
		return Affiliate{}, fmt.Errorf("failed to create affiliate: %w", err)
	}
	return affiliate, nil
}

const sqlGetAffiliateByID = `SELECT ` + affiliateColumns + ` FROM affiliates WHERE id = $1`

// GetAffiliateByID retrieves an affiliate by ID
func (s *Store) GetAffiliateByID(ctx context.Context, id uuid.UUID) (Affiliate, error) {
	return s.getAffiliate(ctx, sqlGetAffiliateByID, id)
}

const sqlGetAffiliateByIDForUpdate = sqlGetAffiliateByID + ` FOR UPDATE`

// GetAffiliateByIDForUpdate retrieves an affiliate and locks its row for the
// rest of the transaction
func (s *Store) GetAffiliateByIDForUpdate(ctx context.Context, id uuid.UUID) (Affiliate, error) {
	return s.getAffiliate(ctx, sqlGetAffiliateByIDForUpdate, id)
}

const sqlGetAffiliateByCode = `SELECT ` + affiliateColumns + ` FROM affiliates WHERE code = $1`

// GetAffiliateByCode retrieves an affiliate by its referral code
func (s *Store) GetAffiliateByCode(ctx context.Context, code string) (Affiliate, error) {
	return s.getAffiliate(ctx, sqlGetAffiliateByCode, code)
}

const sqlGetAffiliateByUserID = `SELECT ` + affiliateColumns + ` FROM affiliates WHERE user_id = $1`

// GetAffiliateByUserID retrieves the affiliate owned by a user
func (s *Store) GetAffiliateByUserID(ctx context.Context, userID uuid.UUID) (Affiliate, error) {
	return s.getAffiliate(ctx, sqlGetAffiliateByUserID, userID)
}

func (s *Store) getAffiliate(ctx context.Context, query string, arg interface{}) (Affiliate, error) {
	var affiliate Affiliate
	err := s.db.GetContext(ctx, &affiliate, query, arg)
	if err != nil {
		if notFound(err) {
			return Affiliate{}, ErrNotFound
		}
		return Affiliate{}, fmt.Errorf("failed to get affiliate: %w", err)
	}
	return affiliate, nil
}

const sqlListAffiliates = `SELECT ` + affiliateColumns + ` FROM affiliates ORDER BY created_at ASC, id ASC`

// ListAffiliates retrieves every affiliate
func (s *Store) ListAffiliates(ctx context.Context) ([]Affiliate, error) {
	var affiliates []Affiliate
	err := s.db.SelectContext(ctx, &affiliates, sqlListAffiliates)
	if err != nil {
		return nil, fmt.Errorf("failed to list affiliates: %w", err)
	}
	return affiliates, nil
}

const sqlListActiveAffiliatesWithPoints = `
SELECT ` + affiliateColumns + `
FROM affiliates
WHERE status = 'active' AND reward_points > 0
ORDER BY created_at ASC, id ASC
`

// ListActiveAffiliatesWithPoints retrieves the lottery pool participants
func (s *Store) ListActiveAffiliatesWithPoints(ctx context.Context) ([]Affiliate, error) {
	var affiliates []Affiliate
	err := s.db.SelectContext(ctx, &affiliates, sqlListActiveAffiliatesWithPoints)
	if err != nil {
		return nil, fmt.Errorf("failed to list active affiliates: %w", err)
	}
	return affiliates, nil
}

const sqlUpdateAffiliateStatus = `
UPDATE affiliates SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1
`

// UpdateAffiliateStatus sets an affiliate's status
func (s *Store) UpdateAffiliateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return s.execOne(ctx, "update affiliate status", sqlUpdateAffiliateStatus, id, status)
}

const sqlUpdateAffiliatePayoutDetails = `
UPDATE affiliates
SET payout_email = COALESCE($2, payout_email),
    stripe_account_id = COALESCE($3, stripe_account_id),
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1
`

// UpdateAffiliatePayoutDetails sets where payouts are sent
func (s *Store) UpdateAffiliatePayoutDetails(ctx context.Context, id uuid.UUID, payoutEmail *string, stripeAccountID *string) error {
	return s.execOne(ctx, "update affiliate payout details", sqlUpdateAffiliatePayoutDetails, id, payoutEmail, stripeAccountID)
}

const sqlUpdateAffiliateMode = `
UPDATE affiliates
SET commission_mode = $2, last_mode_change_date = $3, updated_at = CURRENT_TIMESTAMP
WHERE id = $1
`

// UpdateAffiliateMode switches the commission mode and stamps the change date
func (s *Store) UpdateAffiliateMode(ctx context.Context, id uuid.UUID, mode string, changedOn time.Time) error {
	return s.execOne(ctx, "update affiliate mode", sqlUpdateAffiliateMode, id, mode, DateOnly(changedOn))
}

const sqlStampDiscountUse = `
UPDATE affiliates
SET last_discount_use_date = $2,
    discount_credit_balance = discount_credit_balance + $3,
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1
`

// StampDiscountUse records an employee discount use
func (s *Store) StampDiscountUse(ctx context.Context, id uuid.UUID, usedOn time.Time, credit decimal.Decimal) error {
	return s.execOne(ctx, "stamp discount use", sqlStampDiscountUse, id, DateOnly(usedOn), credit)
}

const sqlIncrementAffiliateRewardPoints = `
UPDATE affiliates SET reward_points = reward_points + $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1
`

// IncrementAffiliateRewardPoints atomically adds to the cached points balance
func (s *Store) IncrementAffiliateRewardPoints(ctx context.Context, id uuid.UUID, delta int64) error {
	return s.execOne(ctx, "increment reward points", sqlIncrementAffiliateRewardPoints, id, delta)
}

const sqlIncrementAffiliateEarnings = `
UPDATE affiliates SET total_earnings = total_earnings + $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1
`

// IncrementAffiliateEarnings atomically adds to total_earnings
func (s *Store) IncrementAffiliateEarnings(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	return s.execOne(ctx, "increment total earnings", sqlIncrementAffiliateEarnings, id, delta)
}

const sqlIncrementAffiliatePaid = `
UPDATE affiliates SET total_paid = total_paid + $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1
`

// IncrementAffiliatePaid atomically adds to total_paid
func (s *Store) IncrementAffiliatePaid(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	return s.execOne(ctx, "increment total paid", sqlIncrementAffiliatePaid, id, delta)
}

// execOne runs an update that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if err := requireOneRow(res); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
