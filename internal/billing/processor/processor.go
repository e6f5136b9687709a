package processor

import (
	commissionsProcessor "commission-engine/internal/commissions/processor"
	"commission-engine/internal/observability"
	"context"
)

// OrderLedger applies payment outcomes to the commission recorded for an order
type OrderLedger interface {
	ConfirmByOrder(ctx context.Context, orderRef string) (commissionsProcessor.TransitionResult, error)
	CancelByOrder(ctx context.Context, orderRef string) (commissionsProcessor.TransitionResult, error)
}

// OrderRefMetadataKey is the Stripe metadata key checkout sets on payment
// intents and charges.
const OrderRefMetadataKey = "order_ref"

type BillingProcessor struct {
	WebhookSecret string
	ledger        OrderLedger
	logger        *observability.Logger
}

func New(webhookSecret string, ledger OrderLedger, logger *observability.Logger) BillingProcessor {
	return BillingProcessor{
		WebhookSecret: webhookSecret,
		ledger:        ledger,
		logger:        logger,
	}
}
