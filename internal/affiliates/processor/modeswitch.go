package processor

import (
	"commission-engine/internal/commissions/split"
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrSameMode              = errors.New("affiliate is already in that commission mode")
	ErrInvalidMode           = errors.New("invalid commission mode")
	ErrCooldownActive        = errors.New("cooldown active")
	ErrNotDiscountMode       = errors.New("affiliate is not in discount mode")
	ErrInvalidDiscountAmount = errors.New("discount amount must be positive")
)

// CooldownDays applies to both mode switches and discount use
const CooldownDays = 30

// DiscountCodeSuffix is appended to the affiliate code for the employee code
const DiscountCodeSuffix = "-EMPLOYEE"

// EmployeeDiscountPercent is stored on provisioned employee discount codes
var EmployeeDiscountPercent = split.EmployeeDiscountRate.Mul(decimal.NewFromInt(100))

// CooldownError reports when the next change is allowed
type CooldownError struct {
	DaysRemaining int
	NextAvailable time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active: %d days remaining", e.DaysRemaining)
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldownActive
}

// cooldown returns days remaining in a 30 day window that started on last.
// Elapsed time is counted in whole UTC days.
func cooldown(now time.Time, last *time.Time) (bool, int) {
	if last == nil || last.IsZero() {
		return true, 0
	}
	daysSince := int(now.Sub(store.DateOnly(*last)) / (24 * time.Hour))
	if daysSince >= CooldownDays {
		return true, 0
	}
	return false, CooldownDays - daysSince
}

func cooldownError(last *time.Time, daysRemaining int) *CooldownError {
	return &CooldownError{
		DaysRemaining: daysRemaining,
		NextAvailable: store.DateOnly(*last).AddDate(0, 0, CooldownDays),
	}
}

// CanSwitch reports whether the commission mode may change now
func (p *AffiliateProcessor) CanSwitch(affiliate store.Affiliate) (bool, int) {
	return cooldown(p.now(), affiliate.LastModeChangeDate)
}

// CanUseDiscount reports whether the employee discount may be used now. The
// window is independent from the mode switch window.
func (p *AffiliateProcessor) CanUseDiscount(affiliate store.Affiliate) (bool, int) {
	return cooldown(p.now(), affiliate.LastDiscountUseDate)
}

type SwitchResult struct {
	Affiliate    store.Affiliate     `json:"affiliate"`
	DiscountCode *store.DiscountCode `json:"discount_code,omitempty"`
}

// EmployeeDiscountCode is the deterministic discount code for an affiliate
func EmployeeDiscountCode(affiliateCode string) string {
	return affiliateCode + DiscountCodeSuffix
}

// SwitchMode moves an affiliate between cash and discount commission. The
// mode change and the discount code change share one transaction.
func (p *AffiliateProcessor) SwitchMode(ctx context.Context, id uuid.UUID, newMode string) (SwitchResult, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "affiliate_id", Value: id.String()},
		observability.Field{Key: "commission_mode", Value: newMode},
	)

	if newMode != store.CommissionModeCash && newMode != store.CommissionModeDiscount {
		return SwitchResult{}, ErrInvalidMode
	}

	now := p.now()
	var result SwitchResult
	err := p.store.InTx(ctx, func(tx store.Repository) error {
		affiliate, err := tx.GetAffiliateByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrAffiliateNotFound
			}
			return err
		}
		if affiliate.Status != store.AffiliateStatusActive {
			return ErrAffiliateInactive
		}
		if affiliate.CommissionMode == newMode {
			return ErrSameMode
		}
		if ok, daysRemaining := cooldown(now, affiliate.LastModeChangeDate); !ok {
			return cooldownError(affiliate.LastModeChangeDate, daysRemaining)
		}

		if err := tx.UpdateAffiliateMode(ctx, id, newMode, now); err != nil {
			return err
		}

		if newMode == store.CommissionModeDiscount {
			code, err := tx.ActivateDiscountCode(ctx, id, EmployeeDiscountCode(affiliate.Code), EmployeeDiscountPercent)
			if err != nil {
				return err
			}
			result.DiscountCode = &code
		} else if err := tx.DeactivateDiscountCode(ctx, id); err != nil {
			return err
		}

		result.Affiliate, err = tx.GetAffiliateByID(ctx, id)
		return err
	})
	if err != nil {
		var cdErr *CooldownError
		if !errors.As(err, &cdErr) && !errors.Is(err, ErrSameMode) && !errors.Is(err, ErrAffiliateNotFound) && !errors.Is(err, ErrAffiliateInactive) {
			p.logger.Error(ctx, "failed to switch commission mode", err)
		}
		return SwitchResult{}, err
	}

	p.logger.Info(ctx, "commission mode switched")
	return result, nil
}

// UseDiscount records an employee discount use and credits the discount
// amount to the affiliate.
func (p *AffiliateProcessor) UseDiscount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (store.Affiliate, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "affiliate_id", Value: id.String()})

	var affiliate store.Affiliate
	err := p.store.InTx(ctx, func(tx store.Repository) error {
		var err error
		affiliate, err = p.UseDiscountInTx(ctx, tx, id, amount)
		return err
	})
	if err != nil {
		return store.Affiliate{}, err
	}
	return affiliate, nil
}

// UseDiscountInTx performs UseDiscount inside the caller's transaction
func (p *AffiliateProcessor) UseDiscountInTx(ctx context.Context, tx store.Repository, id uuid.UUID, amount decimal.Decimal) (store.Affiliate, error) {
	if !amount.IsPositive() {
		return store.Affiliate{}, ErrInvalidDiscountAmount
	}

	affiliate, err := tx.GetAffiliateByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Affiliate{}, ErrAffiliateNotFound
		}
		return store.Affiliate{}, err
	}
	if affiliate.CommissionMode != store.CommissionModeDiscount {
		return store.Affiliate{}, ErrNotDiscountMode
	}

	now := p.now()
	if ok, daysRemaining := cooldown(now, affiliate.LastDiscountUseDate); !ok {
		return store.Affiliate{}, cooldownError(affiliate.LastDiscountUseDate, daysRemaining)
	}

	if err := tx.StampDiscountUse(ctx, id, now, split.Cents(amount)); err != nil {
		p.logger.Error(ctx, "failed to stamp discount use", err)
		return store.Affiliate{}, err
	}
	return tx.GetAffiliateByID(ctx, id)
}
