package processor

import (
	affiliatesProcessor "commission-engine/internal/affiliates/processor"
	"commission-engine/internal/commissions/split"
	"commission-engine/internal/observability"
	rewardsProcessor "commission-engine/internal/rewards/processor"
	"commission-engine/internal/store"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrCommissionNotFound = errors.New("commission not found")
	ErrInvalidTransition  = errors.New("invalid commission status transition")
	ErrInvalidSale        = errors.New("invalid sale")
	ErrDuplicateOrder     = errors.New("order already recorded")
	ErrNothingToSettle    = errors.New("no commissions to settle")
	ErrAffiliateNotFound  = errors.New("affiliate not found")
)

var hundred = decimal.NewFromInt(100)

type CommissionProcessor struct {
	store     CommissionStore
	rewards   RewardAwarder
	discounts DiscountGuard
	events    EventPublisher
	ticker    ProfitTicker
	logger    *observability.Logger
	now       func() time.Time
}

// New wires the ledger. events and ticker may be nil.
func New(store CommissionStore, rewards RewardAwarder, discounts DiscountGuard, events EventPublisher, ticker ProfitTicker, logger *observability.Logger) CommissionProcessor {
	return CommissionProcessor{
		store:     store,
		rewards:   rewards,
		discounts: discounts,
		events:    events,
		ticker:    ticker,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordRequest carries one sale's split into the ledger
type RecordRequest struct {
	AffiliateID      *uuid.UUID
	Level1ID         *uuid.UUID
	Level2ID         *uuid.UUID
	BuyerAffiliateID *uuid.UUID
	OrderRef         string
	Revenue          decimal.Decimal
	Costs            decimal.Decimal
	Breakdown        split.Breakdown
	SaleDate         time.Time
}

// RecordResult lists what a sale wrote
type RecordResult struct {
	Skipped       bool               `json:"skipped"`
	Sale          *store.Commission  `json:"sale_commission,omitempty"`
	MLM           []store.Commission `json:"mlm_commissions"`
	PointsAwarded int64              `json:"points_awarded"`
	PotYear       int                `json:"pot_year,omitempty"`
	PotShare      decimal.Decimal    `json:"pot_share"`
}

// Record persists a sale's split in one transaction: the pending sale
// commission, upline commissions, both pool inflows and reward points.
// Nothing is written when adjusted profit is not positive.
func (p *CommissionProcessor) Record(ctx context.Context, req RecordRequest) (RecordResult, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "order_ref", Value: req.OrderRef})

	var result RecordResult
	err := p.store.InTx(ctx, func(tx store.Repository) error {
		var err error
		result, err = p.recordInTx(ctx, tx, req)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateOrder) {
			p.logger.Error(ctx, "failed to record sale", err)
		}
		return RecordResult{}, err
	}

	p.afterRecord(ctx, req, result)
	return result, nil
}

func (p *CommissionProcessor) recordInTx(ctx context.Context, tx store.Repository, req RecordRequest) (RecordResult, error) {
	b := req.Breakdown
	if !b.Persistable() {
		return RecordResult{Skipped: true, MLM: []store.Commission{}}, nil
	}
	if req.SaleDate.IsZero() {
		req.SaleDate = p.now()
	}

	result := RecordResult{MLM: []store.Commission{}, PotShare: decimal.Zero}
	var orderRef *string
	if req.OrderRef != "" {
		orderRef = &req.OrderRef
	}
	profit := b.Profit

	if req.AffiliateID != nil {
		amount := split.Cents(b.AffiliateCommission)
		if amount.IsPositive() {
			sale, err := tx.CreateCommission(ctx, store.CreateCommissionParams{
				AffiliateID:    *req.AffiliateID,
				Kind:           store.CommissionKindSale,
				OrderRef:       orderRef,
				Revenue:        req.Revenue,
				Costs:          req.Costs,
				Profit:         profit,
				CommissionRate: split.AffiliateRate.Mul(hundred),
				Amount:         amount,
				Status:         store.CommissionStatusPending,
			})
			if err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return RecordResult{}, ErrDuplicateOrder
				}
				return RecordResult{}, err
			}
			result.Sale = &sale
		}

		var parentID *uuid.UUID
		if result.Sale != nil {
			parentID = &result.Sale.ID
		}
		uplines := []struct {
			id   *uuid.UUID
			kind string
			rate decimal.Decimal
			amt  decimal.Decimal
		}{
			{req.Level1ID, store.CommissionKindMLMLevel1, split.Level1Rate, b.MLMLevel1},
			{req.Level2ID, store.CommissionKindMLMLevel2, split.Level2Rate, b.MLMLevel2},
		}
		for _, u := range uplines {
			amount := split.Cents(u.amt)
			if u.id == nil || !amount.IsPositive() {
				continue
			}
			child, err := tx.CreateCommission(ctx, store.CreateCommissionParams{
				AffiliateID:        *u.id,
				Kind:               u.kind,
				ParentCommissionID: parentID,
				OrderRef:           orderRef,
				Revenue:            req.Revenue,
				Costs:              req.Costs,
				Profit:             profit,
				CommissionRate:     u.rate.Mul(hundred),
				Amount:             amount,
				Status:             store.CommissionStatusPending,
			})
			if err != nil {
				return RecordResult{}, err
			}
			result.MLM = append(result.MLM, child)
		}

		if err := tx.AddDailyProfit(ctx, *req.AffiliateID, store.DateOnly(req.SaleDate), split.Cents(b.AdjustedProfit)); err != nil {
			return RecordResult{}, err
		}
	}

	potShare := split.Cents(b.LotteryPoolShare)
	if potShare.IsPositive() {
		year, err := addToPot(ctx, tx, req.SaleDate.UTC().Year(), potShare)
		if err != nil {
			return RecordResult{}, err
		}
		var commissionID *uuid.UUID
		if result.Sale != nil {
			commissionID = &result.Sale.ID
		}
		err = tx.CreatePotContribution(ctx, store.CreatePotContributionParams{
			Year:         year,
			CommissionID: commissionID,
			OrderRef:     orderRef,
			Amount:       potShare,
			Reason:       store.PotContributionReasonSale,
		})
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return RecordResult{}, ErrDuplicateOrder
			}
			return RecordResult{}, err
		}
		result.PotYear = year
		result.PotShare = potShare
	}

	// Points go to the referrer, or to a buying affiliate on a direct sale.
	award := rewardsProcessor.AwardRequest{ProfitAmount: b.AdjustedProfit}
	switch {
	case req.AffiliateID != nil:
		award.AffiliateID = *req.AffiliateID
		award.Source = store.RewardSourceSale
		if result.Sale != nil {
			award.CommissionID = &result.Sale.ID
		}
	case req.BuyerAffiliateID != nil:
		award.AffiliateID = *req.BuyerAffiliateID
		award.Source = store.RewardSourceSelfPurchase
	}
	if award.AffiliateID != uuid.Nil {
		awarded, err := p.rewards.AwardInTx(ctx, tx, award)
		if err != nil {
			return RecordResult{}, err
		}
		result.PointsAwarded = awarded.PointsAwarded
	}

	return result, nil
}

// addToPot credits the sale year's pot. Once a pot has been distributed
// later sales roll into the following year.
func addToPot(ctx context.Context, tx store.Repository, year int, amount decimal.Decimal) (int, error) {
	err := tx.AddToAnnualPot(ctx, year, amount)
	if errors.Is(err, store.ErrConflict) {
		year++
		err = tx.AddToAnnualPot(ctx, year, amount)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to add to annual pot %d: %w", year, err)
	}
	return year, nil
}

// afterRecord runs best-effort side effects once the sale is committed
func (p *CommissionProcessor) afterRecord(ctx context.Context, req RecordRequest, result RecordResult) {
	if result.Skipped {
		return
	}

	if result.Sale != nil {
		observability.CommissionRecorded(result.Sale.Kind)
		p.publish(ctx, p.eventsRecorded, *result.Sale)
	}
	for _, c := range result.MLM {
		observability.CommissionRecorded(c.Kind)
		p.publish(ctx, p.eventsRecorded, c)
	}

	if p.ticker != nil && req.AffiliateID != nil {
		date := req.SaleDate
		if date.IsZero() {
			date = p.now()
		}
		if err := p.ticker.IncrementDailyProfit(ctx, store.DateOnly(date), *req.AffiliateID, split.Cents(req.Breakdown.AdjustedProfit)); err != nil {
			p.logger.InfoWithError(ctx, "failed to update live ranking", err)
		}
	}
}

func (p *CommissionProcessor) eventsRecorded(ctx context.Context, c store.Commission) error {
	return p.events.PublishCommissionRecorded(ctx, c)
}

func (p *CommissionProcessor) eventsConfirmed(ctx context.Context, c store.Commission) error {
	return p.events.PublishCommissionConfirmed(ctx, c)
}

func (p *CommissionProcessor) eventsCancelled(ctx context.Context, c store.Commission) error {
	return p.events.PublishCommissionCancelled(ctx, c)
}

func (p *CommissionProcessor) publish(ctx context.Context, fn func(context.Context, store.Commission) error, c store.Commission) {
	if p.events == nil {
		return
	}
	if err := fn(ctx, c); err != nil {
		p.logger.InfoWithError(ctx, "failed to publish commission event", err)
	}
}

// SaleRequest describes a paid order as reported by checkout
type SaleRequest struct {
	OrderRef     string
	BuyerUserID  *uuid.UUID
	ReferralCode *string
	DiscountCode *string
	Revenue      decimal.Decimal
	Costs        decimal.Decimal
	SaleDate     time.Time
}

type SaleResult struct {
	Breakdown        split.Breakdown `json:"breakdown"`
	EmployeeDiscount bool            `json:"employee_discount"`
	Duplicate        bool            `json:"duplicate"`
	ReferrerID       *uuid.UUID      `json:"referrer_id,omitempty"`
	Record           RecordResult    `json:"record"`
}

// ProcessSale attributes a sale, computes its split and records it. A sale
// whose order was already recorded returns the existing commission.
func (p *CommissionProcessor) ProcessSale(ctx context.Context, req SaleRequest) (SaleResult, error) {
	req.OrderRef = strings.TrimSpace(req.OrderRef)
	ctx = observability.WithFields(ctx, observability.Field{Key: "order_ref", Value: req.OrderRef})

	if req.OrderRef == "" || req.Revenue.IsNegative() || req.Costs.IsNegative() {
		return SaleResult{}, ErrInvalidSale
	}
	if req.SaleDate.IsZero() {
		req.SaleDate = p.now()
	}

	if existing, err := p.duplicateSale(ctx, req.OrderRef); err != nil || existing != nil {
		return p.duplicateResult(existing), err
	}

	var (
		result SaleResult
		record RecordRequest
	)
	err := p.store.InTx(ctx, func(tx store.Repository) error {
		var buyer *store.Affiliate
		if req.BuyerUserID != nil {
			a, err := tx.GetAffiliateByUserID(ctx, *req.BuyerUserID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if err == nil {
				buyer = &a
			}
		}

		referrer, referral, err := p.resolveReferrer(ctx, tx, req)
		if err != nil {
			return err
		}
		if referrer != nil && (referrer.Status != store.AffiliateStatusActive || (buyer != nil && buyer.ID == referrer.ID)) {
			referrer = nil
		}

		employeeDiscount, err := p.employeeDiscountApplies(ctx, tx, buyer, req.DiscountCode)
		if err != nil {
			return err
		}

		profit := req.Revenue.Sub(req.Costs)
		input := split.Input{Profit: profit, IsEmployeeDiscount: employeeDiscount, HasReferrer: referrer != nil}

		record = RecordRequest{
			OrderRef: req.OrderRef,
			Revenue:  req.Revenue,
			Costs:    req.Costs,
			SaleDate: req.SaleDate,
		}
		if buyer != nil {
			record.BuyerAffiliateID = &buyer.ID
		}
		if referrer != nil {
			record.AffiliateID = &referrer.ID
			level1, level2, err := affiliatesProcessor.Uplines(ctx, tx, *referrer)
			if err != nil {
				return err
			}
			if level1 != nil {
				input.HasLevel1Upline = true
				record.Level1ID = &level1.ID
			}
			if level2 != nil {
				input.HasLevel2Upline = true
				record.Level2ID = &level2.ID
			}
		}

		record.Breakdown = split.Calculate(input)
		result.Breakdown = record.Breakdown
		result.ReferrerID = record.AffiliateID
		if !record.Breakdown.Persistable() {
			result.Record = RecordResult{Skipped: true, MLM: []store.Commission{}}
			return nil
		}

		if employeeDiscount {
			if _, err := p.discounts.UseDiscountInTx(ctx, tx, buyer.ID, record.Breakdown.EmployeeDiscount); err != nil {
				return err
			}
			result.EmployeeDiscount = true
		}

		if referral != nil && record.AffiliateID != nil && referral.AffiliateID == *record.AffiliateID {
			if _, err := tx.MarkReferralConverted(ctx, referral.ID, req.SaleDate); err != nil {
				return err
			}
		}

		result.Record, err = p.recordInTx(ctx, tx, record)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateOrder) {
			existing, lookupErr := p.duplicateSale(ctx, req.OrderRef)
			if lookupErr != nil {
				return SaleResult{}, lookupErr
			}
			return p.duplicateResult(existing), nil
		}
		p.logger.Error(ctx, "failed to process sale", err)
		return SaleResult{}, err
	}

	p.afterRecord(ctx, record, result.Record)
	p.logger.Info(ctx, "sale processed")
	return result, nil
}

func (p *CommissionProcessor) duplicateSale(ctx context.Context, orderRef string) (*store.Commission, error) {
	existing, err := p.store.GetSaleCommissionByOrderRef(ctx, orderRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		p.logger.Error(ctx, "failed to check for duplicate sale", err)
		return nil, err
	}
	return &existing, nil
}

func (p *CommissionProcessor) duplicateResult(existing *store.Commission) SaleResult {
	result := SaleResult{Duplicate: true, Record: RecordResult{MLM: []store.Commission{}, PotShare: decimal.Zero}}
	if existing != nil {
		result.Record.Sale = existing
		result.ReferrerID = &existing.AffiliateID
	}
	return result
}

// resolveReferrer prefers an existing referral tie over the checkout code.
// A code used by a known buyer creates the tie on first purchase.
func (p *CommissionProcessor) resolveReferrer(ctx context.Context, tx store.Repository, req SaleRequest) (*store.Affiliate, *store.Referral, error) {
	if req.BuyerUserID != nil {
		referral, err := tx.GetReferralByUserID(ctx, *req.BuyerUserID)
		switch {
		case err == nil:
			affiliate, err := tx.GetAffiliateByID(ctx, referral.AffiliateID)
			if err != nil {
				return nil, nil, err
			}
			return &affiliate, &referral, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, nil, err
		}
	}

	if req.ReferralCode == nil || strings.TrimSpace(*req.ReferralCode) == "" {
		return nil, nil, nil
	}
	affiliate, err := tx.GetAffiliateByCode(ctx, affiliatesProcessor.NormalizeCode(*req.ReferralCode))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.logger.Warn(ctx, "sale carried an unknown referral code")
			return nil, nil, nil
		}
		return nil, nil, err
	}

	if req.BuyerUserID == nil || affiliate.UserID == *req.BuyerUserID {
		return &affiliate, nil, nil
	}
	referral, err := tx.CreateReferral(ctx, affiliate.ID, *req.BuyerUserID)
	if err != nil {
		return nil, nil, err
	}
	return &affiliate, &referral, nil
}

// employeeDiscountApplies reports whether the buyer redeemed their own active
// employee code inside its cooldown window. An unusable code prices the sale
// as a regular one.
func (p *CommissionProcessor) employeeDiscountApplies(ctx context.Context, tx store.Repository, buyer *store.Affiliate, code *string) (bool, error) {
	if buyer == nil || code == nil || buyer.CommissionMode != store.CommissionModeDiscount {
		return false, nil
	}
	if !strings.EqualFold(strings.TrimSpace(*code), affiliatesProcessor.EmployeeDiscountCode(buyer.Code)) {
		return false, nil
	}

	dc, err := tx.GetDiscountCodeByAffiliate(ctx, buyer.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !dc.IsActive {
		return false, nil
	}
	if ok, _ := p.discounts.CanUseDiscount(*buyer); !ok {
		p.logger.Warn(ctx, "employee discount code used inside cooldown window")
		return false, nil
	}
	return true, nil
}

// List returns an affiliate's commissions newest first
func (p *CommissionProcessor) List(ctx context.Context, affiliateID uuid.UUID, status string, limit int) ([]store.Commission, error) {
	if limit <= 0 {
		limit = 100
	}
	commissions, err := p.store.ListCommissionsByAffiliate(ctx, affiliateID, status, limit)
	if err != nil {
		p.logger.Error(ctx, "failed to list commissions", err)
		return nil, err
	}
	if commissions == nil {
		commissions = []store.Commission{}
	}
	return commissions, nil
}

// Get returns one commission
func (p *CommissionProcessor) Get(ctx context.Context, id uuid.UUID) (store.Commission, error) {
	c, err := p.store.GetCommissionByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Commission{}, ErrCommissionNotFound
		}
		p.logger.Error(ctx, "failed to get commission", err)
		return store.Commission{}, err
	}
	return c, nil
}
