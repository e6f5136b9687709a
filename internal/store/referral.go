package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sqlCreateReferral = `
INSERT INTO referrals (affiliate_id, referred_user_id)
VALUES ($1, $2)
RETURNING id, affiliate_id, referred_user_id, converted, converted_at, created_at
`

// CreateReferral ties a referred user to an affiliate for life
func (s *Store) CreateReferral(ctx context.Context, affiliateID, referredUserID uuid.UUID) (Referral, error) {
	var referral Referral
	err := s.db.GetContext(ctx, &referral, sqlCreateReferral, affiliateID, referredUserID)
	if err != nil {
		if uniqueViolation(err) {
			return Referral{}, fmt.Errorf("failed to create referral: %w", ErrDuplicate)
		}
		return Referral{}, fmt.Errorf("failed to create referral: %w", err)
	}
	return referral, nil
}

const sqlGetReferralByUserID = `
SELECT id, affiliate_id, referred_user_id, converted, converted_at, created_at
FROM referrals
WHERE referred_user_id = $1
`

// GetReferralByUserID retrieves the referral for a referred user
func (s *Store) GetReferralByUserID(ctx context.Context, referredUserID uuid.UUID) (Referral, error) {
	var referral Referral
	err := s.db.GetContext(ctx, &referral, sqlGetReferralByUserID, referredUserID)
	if err != nil {
		if notFound(err) {
			return Referral{}, ErrNotFound
		}
		return Referral{}, fmt.Errorf("failed to get referral: %w", err)
	}
	return referral, nil
}

const sqlMarkReferralConverted = `
UPDATE referrals SET converted = TRUE, converted_at = $2
WHERE id = $1 AND converted = FALSE
`

// MarkReferralConverted flips converted exactly once. It reports whether this
// call performed the flip.
func (s *Store) MarkReferralConverted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, sqlMarkReferralConverted, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark referral converted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}
