package payments

import (
	commissionsProcessor "commission-engine/internal/commissions/processor"
	"commission-engine/internal/events"
	"commission-engine/internal/observability"
	"commission-engine/internal/workers"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is the part of the commission ledger payment events drive
type Ledger interface {
	ProcessSale(ctx context.Context, req commissionsProcessor.SaleRequest) (commissionsProcessor.SaleResult, error)
	ConfirmByOrder(ctx context.Context, orderRef string) (commissionsProcessor.TransitionResult, error)
	CancelByOrder(ctx context.Context, orderRef string) (commissionsProcessor.TransitionResult, error)
}

// SaleCompletedData is the payload of a sale.completed event
type SaleCompletedData struct {
	OrderRef     string          `json:"order_ref"`
	BuyerUserID  *uuid.UUID      `json:"buyer_user_id,omitempty"`
	ReferralCode *string         `json:"referral_code,omitempty"`
	DiscountCode *string         `json:"discount_code,omitempty"`
	Revenue      decimal.Decimal `json:"revenue"`
	Costs        decimal.Decimal `json:"costs"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// PaymentData is the payload of payment.confirmed and payment.refunded
type PaymentData struct {
	OrderRef string `json:"order_ref"`
}

// Processor routes payment events into the commission ledger
type Processor struct {
	ledger Ledger
	logger *observability.Logger
}

var _ workers.EventProcessor = (*Processor)(nil)

func New(ledger Ledger, logger *observability.Logger) *Processor {
	return &Processor{ledger: ledger, logger: logger}
}

func (p *Processor) Name() string {
	return "payments"
}

// Process applies one payment event. Events that can never succeed are
// logged and acknowledged; everything else is returned for redelivery.
func (p *Processor) Process(ctx context.Context, event workers.EventMessage) error {
	var err error
	switch event.Type {
	case events.TypeSaleCompleted:
		err = p.saleCompleted(ctx, event)
	case events.TypePaymentConfirmed:
		err = p.byOrder(ctx, event, p.ledger.ConfirmByOrder)
	case events.TypePaymentRefunded:
		err = p.byOrder(ctx, event, p.ledger.CancelByOrder)
	default:
		p.logger.Warn(ctx, fmt.Sprintf("ignoring event type %s", event.Type))
		return nil
	}

	if err != nil && permanent(err) {
		p.logger.InfoWithError(ctx, "dropping payment event that cannot be applied", err)
		return nil
	}
	return err
}

func permanent(err error) bool {
	return errors.Is(err, errMalformed) ||
		errors.Is(err, commissionsProcessor.ErrInvalidSale) ||
		errors.Is(err, commissionsProcessor.ErrCommissionNotFound) ||
		errors.Is(err, commissionsProcessor.ErrInvalidTransition)
}

var errMalformed = errors.New("malformed event data")

func decode(event workers.EventMessage, out interface{}) error {
	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if err := json.Unmarshal(dataBytes, out); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

func (p *Processor) saleCompleted(ctx context.Context, event workers.EventMessage) error {
	var data SaleCompletedData
	if err := decode(event, &data); err != nil {
		return err
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "order_ref", Value: data.OrderRef})

	req := commissionsProcessor.SaleRequest{
		OrderRef:     data.OrderRef,
		BuyerUserID:  data.BuyerUserID,
		ReferralCode: data.ReferralCode,
		DiscountCode: data.DiscountCode,
		Revenue:      data.Revenue,
		Costs:        data.Costs,
	}
	if data.CompletedAt != nil {
		req.SaleDate = data.CompletedAt.UTC()
	}

	result, err := p.ledger.ProcessSale(ctx, req)
	if err != nil {
		return err
	}
	if result.Duplicate {
		p.logger.Info(ctx, "sale already recorded")
	}
	return nil
}

func (p *Processor) byOrder(ctx context.Context, event workers.EventMessage, fn func(context.Context, string) (commissionsProcessor.TransitionResult, error)) error {
	var data PaymentData
	if err := decode(event, &data); err != nil {
		return err
	}
	if data.OrderRef == "" {
		return fmt.Errorf("%w: missing order_ref", errMalformed)
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "order_ref", Value: data.OrderRef})

	result, err := fn(ctx, data.OrderRef)
	if err != nil {
		return err
	}
	if result.AlreadyApplied {
		p.logger.Info(ctx, fmt.Sprintf("%s already applied", event.Type))
	}
	return nil
}
