package processor

import (
	commissionsProcessor "commission-engine/internal/commissions/processor"
	"commission-engine/internal/observability"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
)

// PaymentIntentSucceeded confirms the commission of the paid order
func (p *BillingProcessor) PaymentIntentSucceeded(ctx context.Context, paymentIntent stripe.PaymentIntent) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "payment_intent_id", Value: paymentIntent.ID})
	return p.applyToOrder(ctx, paymentIntent.Metadata[OrderRefMetadataKey], p.ledger.ConfirmByOrder)
}

// PaymentIntentCanceled cancels the commission of a voided order
func (p *BillingProcessor) PaymentIntentCanceled(ctx context.Context, paymentIntent stripe.PaymentIntent) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "payment_intent_id", Value: paymentIntent.ID})
	return p.applyToOrder(ctx, paymentIntent.Metadata[OrderRefMetadataKey], p.ledger.CancelByOrder)
}

// ChargeRefunded cancels the commission once the charge is fully refunded.
// Partial refunds leave the commission untouched.
func (p *BillingProcessor) ChargeRefunded(ctx context.Context, charge stripe.Charge) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "charge_id", Value: charge.ID})
	if !charge.Refunded {
		p.logger.Info(ctx, "ignoring partial refund")
		return nil
	}

	orderRef := charge.Metadata[OrderRefMetadataKey]
	if orderRef == "" && charge.PaymentIntent != nil {
		orderRef = charge.PaymentIntent.Metadata[OrderRefMetadataKey]
	}
	return p.applyToOrder(ctx, orderRef, p.ledger.CancelByOrder)
}

func (p *BillingProcessor) applyToOrder(ctx context.Context, orderRef string, fn func(context.Context, string) (commissionsProcessor.TransitionResult, error)) error {
	if orderRef == "" {
		p.logger.Info(ctx, "payment carries no order reference, ignoring")
		return nil
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "order_ref", Value: orderRef})

	result, err := fn(ctx, orderRef)
	switch {
	case err == nil:
	case errors.Is(err, commissionsProcessor.ErrInvalidTransition):
		// A refund after confirmation cannot reverse a commission
		p.logger.Warn(ctx, "payment outcome does not apply to commission in its current status")
		return nil
	case errors.Is(err, commissionsProcessor.ErrCommissionNotFound):
		// Stripe redelivers until the sale event has been recorded
		return fmt.Errorf("order %s: %w", orderRef, err)
	default:
		p.logger.Error(ctx, "failed to apply payment outcome", err)
		return err
	}

	if result.AlreadyApplied {
		p.logger.Info(ctx, "payment outcome already applied")
		return nil
	}
	p.logger.Info(ctx, fmt.Sprintf("commission moved to %s", result.Commission.Status))
	return nil
}

// HandleWebhook routes a verified Stripe event
func (p *BillingProcessor) HandleWebhook(ctx context.Context, event stripe.Event) error {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "stripe_event_id", Value: event.ID},
		observability.Field{Key: "stripe_event_type", Value: string(event.Type)},
	)

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.canceled":
		var paymentIntent stripe.PaymentIntent
		err := json.Unmarshal(event.Data.Raw, &paymentIntent)
		if err != nil {
			p.logger.Error(ctx, "failed to unmarshal payment intent", err)
			return err
		}
		if event.Type == "payment_intent.succeeded" {
			return p.PaymentIntentSucceeded(ctx, paymentIntent)
		}
		return p.PaymentIntentCanceled(ctx, paymentIntent)

	case "charge.refunded":
		var charge stripe.Charge
		err := json.Unmarshal(event.Data.Raw, &charge)
		if err != nil {
			p.logger.Error(ctx, "failed to unmarshal charge", err)
			return err
		}
		return p.ChargeRefunded(ctx, charge)

	default:
		p.logger.Info(ctx, "Unhandled event type")
	}

	return nil
}
