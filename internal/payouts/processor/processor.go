package processor

import (
	"commission-engine/internal/email"
	"commission-engine/internal/observability"
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
	ErrAffiliateNotFound     = errors.New("affiliate not found")
	ErrAffiliateInactive     = errors.New("affiliate is not active")
	ErrMissingPayoutEmail    = errors.New("affiliate has no payout email")
	ErrMissingPayoutAccount  = errors.New("affiliate has no connected payout account")
	ErrPayoutPending         = errors.New("a payout request is already open")
	ErrBelowMinimum          = errors.New("payable balance is below the payout minimum")
	ErrPayoutNotFound        = errors.New("payout request not found")
	ErrPayoutNotPending      = errors.New("payout request is not pending")
	ErrPayoutNotProcessing   = errors.New("payout request is not processing")
	ErrProviderFailed        = errors.New("payout provider rejected the transfer")
	ErrProviderNotConfigured = errors.New("payout provider is not configured")
	ErrSettlementFailed      = errors.New("transfer sent but settlement failed")
)

var DefaultMinPayout = decimal.NewFromInt(10)

// Config holds payout tunables
type Config struct {
	MinPayout decimal.Decimal
	Currency  string
}

func (c Config) withDefaults() Config {
	if !c.MinPayout.IsPositive() {
		c.MinPayout = DefaultMinPayout
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	return c
}

type PayoutProcessor struct {
	store    PayoutStore
	settler  Settler
	provider Provider
	events   EventPublisher
	notifier Notifier
	cfg      Config
	logger   *observability.Logger
	now      func() time.Time
}

// New wires payouts. provider, events and notifier may be nil; without a
// provider requests can be created but not processed.
func New(store PayoutStore, settler Settler, provider Provider, events EventPublisher, notifier Notifier, cfg Config, logger *observability.Logger) PayoutProcessor {
	return PayoutProcessor{
		store:    store,
		settler:  settler,
		provider: provider,
		events:   events,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RequestPayout opens a payout for every confirmed, unclaimed commission of
// the affiliate.
func (p *PayoutProcessor) RequestPayout(ctx context.Context, affiliateID uuid.UUID, notes *string) (store.PayoutRequest, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "affiliate_id", Value: affiliateID.String()})

	var request store.PayoutRequest
	err := p.store.InTx(ctx, func(tx store.Repository) error {
		affiliate, err := tx.GetAffiliateByIDForUpdate(ctx, affiliateID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrAffiliateNotFound
			}
			return err
		}
		if affiliate.Status != store.AffiliateStatusActive {
			return ErrAffiliateInactive
		}
		if affiliate.PayoutEmail == nil || strings.TrimSpace(*affiliate.PayoutEmail) == "" {
			return ErrMissingPayoutEmail
		}

		if _, err := tx.GetOpenPayoutRequestByAffiliate(ctx, affiliateID); err == nil {
			return ErrPayoutPending
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		payable, err := tx.ListPayableCommissions(ctx, affiliateID)
		if err != nil {
			return err
		}
		total := decimal.Zero
		ids := make([]uuid.UUID, 0, len(payable))
		for _, c := range payable {
			total = total.Add(c.Amount)
			ids = append(ids, c.ID)
		}
		if total.LessThan(p.cfg.MinPayout) {
			return fmt.Errorf("%w: %s available, %s required", ErrBelowMinimum, total.StringFixed(2), p.cfg.MinPayout.StringFixed(2))
		}

		request, err = tx.CreatePayoutRequest(ctx, store.CreatePayoutRequestParams{
			AffiliateID:   affiliateID,
			Amount:        total,
			Currency:      p.cfg.Currency,
			PayoutEmail:   *affiliate.PayoutEmail,
			Notes:         notes,
			CommissionIDs: ids,
		})
		if errors.Is(err, store.ErrDuplicate) {
			return ErrPayoutPending
		}
		return err
	})
	if err != nil {
		p.logger.InfoWithError(ctx, "payout request rejected", err)
		return store.PayoutRequest{}, err
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "payout_request_id", Value: request.ID.String()})
	p.logger.Info(ctx, fmt.Sprintf("payout requested for %s %s", request.Amount.StringFixed(2), request.Currency))
	return request, nil
}

// ProcessResult reports the outcome of one payout
type ProcessResult struct {
	Request     store.PayoutRequest `json:"request"`
	TransferID  string              `json:"transfer_id,omitempty"`
	Commissions int                 `json:"commissions"`
}

// ProcessPayout sends a pending request's funds and settles its commissions.
// A provider rejection fails the request and leaves the commissions payable.
func (p *PayoutProcessor) ProcessPayout(ctx context.Context, id uuid.UUID) (ProcessResult, error) {
	ctx, span := observability.StartSpan(ctx, "payouts.ProcessPayout")
	defer span.End()
	ctx = observability.WithFields(ctx, observability.Field{Key: "payout_request_id", Value: id.String()})

	if p.provider == nil {
		return ProcessResult{}, ErrProviderNotConfigured
	}

	request, err := p.Get(ctx, id)
	if err != nil {
		return ProcessResult{}, err
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "affiliate_id", Value: request.AffiliateID.String()})

	err = p.store.InTx(ctx, func(tx store.Repository) error {
		if err := store.EnsureNotHalted(ctx, tx); err != nil {
			return err
		}
		err := tx.TransitionPayoutRequest(ctx, id, store.PayoutStatusPending, store.PayoutStatusProcessing)
		if errors.Is(err, store.ErrConflict) {
			return ErrPayoutNotPending
		}
		return err
	})
	if err != nil {
		return ProcessResult{}, err
	}

	affiliate, err := p.store.GetAffiliateByID(ctx, request.AffiliateID)
	if err != nil {
		return ProcessResult{}, p.fail(ctx, request, fmt.Sprintf("affiliate lookup failed: %v", err), err)
	}
	if affiliate.StripeAccountID == nil || *affiliate.StripeAccountID == "" {
		return ProcessResult{}, p.fail(ctx, request, ErrMissingPayoutAccount.Error(), ErrMissingPayoutAccount)
	}

	commissionIDs, err := p.store.ListPayoutRequestCommissionIDs(ctx, id)
	if err != nil {
		return ProcessResult{}, p.fail(ctx, request, fmt.Sprintf("commission lookup failed: %v", err), err)
	}

	transferID, err := p.provider.Transfer(ctx, TransferRequest{
		Destination:    *affiliate.StripeAccountID,
		Amount:         request.Amount,
		Currency:       request.Currency,
		Description:    fmt.Sprintf("Affiliate payout %s", affiliate.Code),
		IdempotencyKey: "payout-" + id.String(),
	})
	if err != nil {
		p.notifyFailed(ctx, affiliate, request, err.Error())
		return ProcessResult{}, p.fail(ctx, request, err.Error(), fmt.Errorf("%w: %v", ErrProviderFailed, err))
	}

	return p.settle(ctx, request, affiliate, commissionIDs, transferID)
}

// CompleteSettlement finishes a processing request whose transfer already
// went through, e.g. after an operator cleared a settlement failure.
func (p *PayoutProcessor) CompleteSettlement(ctx context.Context, id uuid.UUID, transferID string) (ProcessResult, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "payout_request_id", Value: id.String()})

	request, err := p.Get(ctx, id)
	if err != nil {
		return ProcessResult{}, err
	}
	if request.Status != store.PayoutStatusProcessing {
		return ProcessResult{}, ErrPayoutNotProcessing
	}
	affiliate, err := p.store.GetAffiliateByID(ctx, request.AffiliateID)
	if err != nil {
		return ProcessResult{}, err
	}
	commissionIDs, err := p.store.ListPayoutRequestCommissionIDs(ctx, id)
	if err != nil {
		return ProcessResult{}, err
	}
	return p.settle(ctx, request, affiliate, commissionIDs, transferID)
}

func (p *PayoutProcessor) settle(ctx context.Context, request store.PayoutRequest, affiliate store.Affiliate, commissionIDs []uuid.UUID, transferID string) (ProcessResult, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "transfer_id", Value: transferID})

	var count int
	err := p.store.InTx(ctx, func(tx store.Repository) error {
		settled, err := p.settler.SettleInTx(ctx, tx, request.AffiliateID, commissionIDs, request.ID)
		if err != nil {
			return err
		}
		count = len(settled.Commissions)
		err = tx.CompletePayoutRequest(ctx, request.ID, transferID, p.now())
		if errors.Is(err, store.ErrConflict) {
			return ErrPayoutNotProcessing
		}
		return err
	})
	if err != nil {
		// The money has left; keep the request processing so its commissions
		// stay claimed, and stop further payouts until an operator steps in.
		p.logger.Error(ctx, "transfer sent but settlement failed", err)
		reason := fmt.Sprintf("payout %s transferred as %s but settlement failed: %v", request.ID, transferID, err)
		if _, haltErr := p.store.CreateLedgerHalt(context.WithoutCancel(ctx), reason, &request.AffiliateID); haltErr != nil {
			p.logger.Error(ctx, "failed to record ledger halt", haltErr)
		}
		return ProcessResult{}, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	request, err = p.store.GetPayoutRequestByID(ctx, request.ID)
	if err != nil {
		return ProcessResult{}, err
	}
	observability.PayoutProcessed(store.PayoutStatusPaid)

	if p.events != nil {
		if err := p.events.PublishPayoutSettled(ctx, request, commissionIDs); err != nil {
			p.logger.Error(ctx, "failed to publish payout settled event", err)
		}
	}
	if p.notifier != nil {
		err := p.notifier.SendPayoutSettledEmail(ctx, request.PayoutEmail, email.TemplateData{
			AffiliateCode:   affiliate.Code,
			Amount:          request.Amount.StringFixed(2),
			Currency:        request.Currency,
			CommissionCount: count,
			Reference:       transferID,
		})
		if err != nil {
			p.logger.Error(ctx, "failed to send payout settled email", err)
		}
	}

	p.logger.Info(ctx, fmt.Sprintf("payout of %s %s settled %d commissions", request.Amount.StringFixed(2), request.Currency, count))
	return ProcessResult{Request: request, TransferID: transferID, Commissions: count}, nil
}

// fail records message on the request and returns cause
func (p *PayoutProcessor) fail(ctx context.Context, request store.PayoutRequest, message string, cause error) error {
	p.logger.Error(ctx, "payout failed", cause)
	if err := p.store.FailPayoutRequest(context.WithoutCancel(ctx), request.ID, message, p.now()); err != nil {
		p.logger.Error(ctx, "failed to mark payout failed", err)
	}
	observability.PayoutProcessed(store.PayoutStatusFailed)
	return cause
}

func (p *PayoutProcessor) notifyFailed(ctx context.Context, affiliate store.Affiliate, request store.PayoutRequest, reason string) {
	if p.notifier == nil {
		return
	}
	err := p.notifier.SendPayoutFailedEmail(ctx, request.PayoutEmail, email.TemplateData{
		AffiliateCode: affiliate.Code,
		Amount:        request.Amount.StringFixed(2),
		Currency:      request.Currency,
		Reason:        reason,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to send payout failed email", err)
	}
}

// PendingSummary reports a ProcessPending run
type PendingSummary struct {
	Processed int `json:"processed"`
	Paid      int `json:"paid"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ProcessPending works through pending requests oldest first. It stops early
// when the ledger is halted.
func (p *PayoutProcessor) ProcessPending(ctx context.Context, limit int) (PendingSummary, error) {
	var summary PendingSummary
	if p.provider == nil {
		p.logger.Warn(ctx, "payout provider not configured, skipping pending payouts")
		return summary, nil
	}

	requests, err := p.store.ListPayoutRequestsByStatus(ctx, store.PayoutStatusPending, limit)
	if err != nil {
		p.logger.Error(ctx, "failed to list pending payouts", err)
		return summary, err
	}

	for _, request := range requests {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Processed++
		_, err := p.ProcessPayout(ctx, request.ID)
		switch {
		case err == nil:
			summary.Paid++
		case errors.Is(err, store.ErrLedgerHalted), errors.Is(err, ErrSettlementFailed):
			return summary, err
		case errors.Is(err, ErrPayoutNotPending):
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	p.logger.Info(ctx, fmt.Sprintf("processed %d pending payouts: %d paid, %d failed", summary.Processed, summary.Paid, summary.Failed))
	return summary, nil
}

// Get returns one payout request
func (p *PayoutProcessor) Get(ctx context.Context, id uuid.UUID) (store.PayoutRequest, error) {
	request, err := p.store.GetPayoutRequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.PayoutRequest{}, ErrPayoutNotFound
		}
		return store.PayoutRequest{}, err
	}
	return request, nil
}

// Open returns the affiliate's pending or processing request
func (p *PayoutProcessor) Open(ctx context.Context, affiliateID uuid.UUID) (store.PayoutRequest, error) {
	request, err := p.store.GetOpenPayoutRequestByAffiliate(ctx, affiliateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.PayoutRequest{}, ErrPayoutNotFound
		}
		return store.PayoutRequest{}, err
	}
	return request, nil
}

// List returns requests in status, oldest first
func (p *PayoutProcessor) List(ctx context.Context, status string, limit int) ([]store.PayoutRequest, error) {
	requests, err := p.store.ListPayoutRequestsByStatus(ctx, status, limit)
	if err != nil {
		p.logger.Error(ctx, "failed to list payout requests", err)
		return nil, err
	}
	if requests == nil {
		requests = []store.PayoutRequest{}
	}
	return requests, nil
}
