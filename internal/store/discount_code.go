package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const discountCodeColumns = `id, affiliate_id, code, discount_percent, is_active, created_at, updated_at`

const sqlGetDiscountCodeByAffiliate = `SELECT ` + discountCodeColumns + ` FROM discount_codes WHERE affiliate_id = $1`

// GetDiscountCodeByAffiliate retrieves an affiliate's employee discount code
func (s *Store) GetDiscountCodeByAffiliate(ctx context.Context, affiliateID uuid.UUID) (DiscountCode, error) {
	var code DiscountCode
	err := s.db.GetContext(ctx, &code, sqlGetDiscountCodeByAffiliate, affiliateID)
	if err != nil {
		if notFound(err) {
			return DiscountCode{}, ErrNotFound
		}
		return DiscountCode{}, fmt.Errorf("failed to get discount code: %w", err)
	}
	return code, nil
}

const sqlActivateDiscountCode = `
INSERT INTO discount_codes (affiliate_id, code, discount_percent, is_active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (affiliate_id) DO UPDATE
SET is_active = TRUE, discount_percent = EXCLUDED.discount_percent, updated_at = CURRENT_TIMESTAMP
RETURNING ` + discountCodeColumns

// ActivateDiscountCode creates the code or reactivates the existing one
func (s *Store) ActivateDiscountCode(ctx context.Context, affiliateID uuid.UUID, code string, percent decimal.Decimal) (DiscountCode, error) {
	var dc DiscountCode
	err := s.db.GetContext(ctx, &dc, sqlActivateDiscountCode, affiliateID, code, percent)
	if err != nil {
		return DiscountCode{}, fmt.Errorf("failed to activate discount code: %w", err)
	}
	return dc, nil
}

const sqlDeactivateDiscountCode = `
UPDATE discount_codes SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP
WHERE affiliate_id = $1
`

// DeactivateDiscountCode disables the code, keeping the row. Missing codes are
// not an error.
func (s *Store) DeactivateDiscountCode(ctx context.Context, affiliateID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, sqlDeactivateDiscountCode, affiliateID)
	if err != nil {
		return fmt.Errorf("failed to deactivate discount code: %w", err)
	}
	return nil
}
