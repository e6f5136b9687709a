package processor

import (
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrAffiliateNotFound = errors.New("affiliate not found")
	ErrAffiliateExists   = errors.New("user is already an affiliate")
	ErrAffiliateInactive = errors.New("affiliate is not active")
	ErrInvalidCode       = errors.New("affiliate code must be 4-12 uppercase letters or digits")
	ErrReservedCode      = errors.New("affiliate code is reserved")
	ErrCodeTaken         = errors.New("affiliate code already taken")
	ErrReferrerNotFound  = errors.New("referrer code not found")
	ErrInvalidStatus     = errors.New("invalid affiliate status")
)

// DefaultCommissionRate is the percentage stored on new affiliates
var DefaultCommissionRate = decimal.NewFromInt(42)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{4,12}$`)

var reservedCodes = map[string]struct{}{
	"ADMIN":     {},
	"TEST":      {},
	"SYSTEM":    {},
	"API":       {},
	"NULL":      {},
	"UNDEFINED": {},
	"ROOT":      {},
	"OWNER":     {},
}

type AffiliateProcessor struct {
	store  AffiliateStore
	logger *observability.Logger
	now    func() time.Time
}

func New(store AffiliateStore, logger *observability.Logger) AffiliateProcessor {
	return AffiliateProcessor{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeCode upper-cases and trims a user supplied code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCode checks format and the reserved list
func ValidateCode(code string) error {
	if !codePattern.MatchString(code) {
		return ErrInvalidCode
	}
	if _, reserved := reservedCodes[code]; reserved {
		return ErrReservedCode
	}
	return nil
}

type RegisterRequest struct {
	UserID       uuid.UUID
	Code         string
	ReferrerCode *string
	PayoutEmail  *string
}

// Register creates an affiliate. The code is immutable afterwards.
func (p *AffiliateProcessor) Register(ctx context.Context, req RegisterRequest) (store.Affiliate, error) {
	code := NormalizeCode(req.Code)
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "user_id", Value: req.UserID.String()},
		observability.Field{Key: "affiliate_code", Value: code},
	)

	if err := ValidateCode(code); err != nil {
		return store.Affiliate{}, err
	}

	_, err := p.store.GetAffiliateByUserID(ctx, req.UserID)
	if err == nil {
		return store.Affiliate{}, ErrAffiliateExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		p.logger.Error(ctx, "failed to check existing affiliate", err)
		return store.Affiliate{}, err
	}

	var referredBy *uuid.UUID
	if req.ReferrerCode != nil && *req.ReferrerCode != "" {
		referrer, err := p.store.GetAffiliateByCode(ctx, NormalizeCode(*req.ReferrerCode))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.Affiliate{}, ErrReferrerNotFound
			}
			p.logger.Error(ctx, "failed to look up referrer", err)
			return store.Affiliate{}, err
		}
		referredBy = &referrer.ID
	}

	affiliate, err := p.store.CreateAffiliate(ctx, store.CreateAffiliateParams{
		UserID:         req.UserID,
		Code:           code,
		ReferredBy:     referredBy,
		CommissionRate: DefaultCommissionRate,
		PayoutEmail:    req.PayoutEmail,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// user_id and code are both unique; a concurrent registration for
			// the same user lands here after passing the check above
			if _, lookupErr := p.store.GetAffiliateByUserID(ctx, req.UserID); lookupErr == nil {
				return store.Affiliate{}, ErrAffiliateExists
			}
			return store.Affiliate{}, ErrCodeTaken
		}
		p.logger.Error(ctx, "failed to create affiliate", err)
		return store.Affiliate{}, err
	}

	p.logger.Info(ctx, "affiliate registered")
	return affiliate, nil
}

func (p *AffiliateProcessor) Get(ctx context.Context, id uuid.UUID) (store.Affiliate, error) {
	affiliate, err := p.store.GetAffiliateByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Affiliate{}, ErrAffiliateNotFound
		}
		p.logger.Error(ctx, "failed to get affiliate", err)
		return store.Affiliate{}, err
	}
	return affiliate, nil
}

func (p *AffiliateProcessor) GetByUserID(ctx context.Context, userID uuid.UUID) (store.Affiliate, error) {
	affiliate, err := p.store.GetAffiliateByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Affiliate{}, ErrAffiliateNotFound
		}
		p.logger.Error(ctx, "failed to get affiliate by user", err)
		return store.Affiliate{}, err
	}
	return affiliate, nil
}

func (p *AffiliateProcessor) List(ctx context.Context) ([]store.Affiliate, error) {
	affiliates, err := p.store.ListAffiliates(ctx)
	if err != nil {
		p.logger.Error(ctx, "failed to list affiliates", err)
		return nil, err
	}
	if affiliates == nil {
		affiliates = []store.Affiliate{}
	}
	return affiliates, nil
}

// SetStatus suspends, deactivates or reactivates an affiliate
func (p *AffiliateProcessor) SetStatus(ctx context.Context, id uuid.UUID, status string) (store.Affiliate, error) {
	switch status {
	case store.AffiliateStatusActive, store.AffiliateStatusSuspended, store.AffiliateStatusInactive:
	default:
		return store.Affiliate{}, ErrInvalidStatus
	}

	if err := p.store.UpdateAffiliateStatus(ctx, id, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Affiliate{}, ErrAffiliateNotFound
		}
		p.logger.Error(ctx, "failed to update affiliate status", err)
		return store.Affiliate{}, err
	}
	return p.Get(ctx, id)
}

// UpdatePayoutDetails sets where payouts are sent. Nil fields are unchanged.
func (p *AffiliateProcessor) UpdatePayoutDetails(ctx context.Context, id uuid.UUID, payoutEmail, stripeAccountID *string) (store.Affiliate, error) {
	if err := p.store.UpdateAffiliatePayoutDetails(ctx, id, payoutEmail, stripeAccountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Affiliate{}, ErrAffiliateNotFound
		}
		p.logger.Error(ctx, "failed to update payout details", err)
		return store.Affiliate{}, err
	}
	return p.Get(ctx, id)
}

// Profile is the affiliate dashboard view
type Profile struct {
	Affiliate           store.Affiliate     `json:"affiliate"`
	DiscountCode        *store.DiscountCode `json:"discount_code,omitempty"`
	CanSwitchMode       bool                `json:"can_switch_mode"`
	ModeSwitchDaysLeft  int                 `json:"mode_switch_days_remaining"`
	CanUseDiscount      bool                `json:"can_use_discount"`
	DiscountUseDaysLeft int                 `json:"discount_use_days_remaining"`
	OutstandingEarnings decimal.Decimal     `json:"outstanding_earnings"`
}

func (p *AffiliateProcessor) Profile(ctx context.Context, id uuid.UUID) (Profile, error) {
	affiliate, err := p.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}

	profile := Profile{
		Affiliate:           affiliate,
		OutstandingEarnings: affiliate.TotalEarnings.Sub(affiliate.TotalPaid),
	}
	profile.CanSwitchMode, profile.ModeSwitchDaysLeft = p.CanSwitch(affiliate)
	profile.CanUseDiscount, profile.DiscountUseDaysLeft = p.CanUseDiscount(affiliate)

	code, err := p.store.GetDiscountCodeByAffiliate(ctx, id)
	switch {
	case err == nil:
		profile.DiscountCode = &code
	case errors.Is(err, store.ErrNotFound):
	default:
		p.logger.Error(ctx, "failed to get discount code", err)
		return Profile{}, err
	}
	return profile, nil
}

// Uplines returns the active level 1 and level 2 uplines of affiliate.
// Missing or inactive parents end the chain.
func Uplines(ctx context.Context, lookup AffiliateLookup, affiliate store.Affiliate) (level1, level2 *store.Affiliate, err error) {
	level1, err = parentOf(ctx, lookup, affiliate)
	if err != nil || level1 == nil {
		return nil, nil, err
	}
	level2, err = parentOf(ctx, lookup, *level1)
	if err != nil {
		return nil, nil, err
	}
	return level1, level2, nil
}

func parentOf(ctx context.Context, lookup AffiliateLookup, child store.Affiliate) (*store.Affiliate, error) {
	if child.ReferredBy == nil || *child.ReferredBy == child.ID {
		return nil, nil
	}
	parent, err := lookup.GetAffiliateByID(ctx, *child.ReferredBy)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load upline: %w", err)
	}
	if parent.Status != store.AffiliateStatusActive {
		return nil, nil
	}
	return &parent, nil
}
