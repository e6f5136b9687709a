package processor

import (
	commissionsProcessor "commission-engine/internal/commissions/processor"
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v79"
)

type MockOrderLedger struct {
	mock.Mock
}

func (m *MockOrderLedger) ConfirmByOrder(ctx context.Context, orderRef string) (commissionsProcessor.TransitionResult, error) {
	args := m.Called(ctx, orderRef)
	return args.Get(0).(commissionsProcessor.TransitionResult), args.Error(1)
}

func (m *MockOrderLedger) CancelByOrder(ctx context.Context, orderRef string) (commissionsProcessor.TransitionResult, error) {
	args := m.Called(ctx, orderRef)
	return args.Get(0).(commissionsProcessor.TransitionResult), args.Error(1)
}

func confirmed() commissionsProcessor.TransitionResult {
	return commissionsProcessor.TransitionResult{Commission: store.Commission{Status: store.CommissionStatusConfirmed}}
}

func TestHandleWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("unhandled event type", func(t *testing.T) {
		ledger := new(MockOrderLedger)
		p := New("whsec_test", ledger, observability.NewLogger())

		err := p.HandleWebhook(ctx, stripe.Event{ID: "evt_1", Type: "customer.created"})
		assert.NoError(t, err)
		ledger.AssertNotCalled(t, "ConfirmByOrder", mock.Anything, mock.Anything)
	})

	t.Run("payment_intent.succeeded confirms the order", func(t *testing.T) {
		ledger := new(MockOrderLedger)
		p := New("whsec_test", ledger, observability.NewLogger())
		ledger.On("ConfirmByOrder", mock.Anything, "ORD-1").Return(confirmed(), nil).Once()

		err := p.HandleWebhook(ctx, stripe.Event{
			ID:   "evt_1",
			Type: "payment_intent.succeeded",
			Data: &stripe.EventData{Raw: []byte(`{"id":"pi_1","metadata":{"order_ref":"ORD-1"}}`)},
		})
		assert.NoError(t, err)
		ledger.AssertExpectations(t)
	})

	t.Run("payment_intent.canceled cancels the order", func(t *testing.T) {
		ledger := new(MockOrderLedger)
		p := New("whsec_test", ledger, observability.NewLogger())
		ledger.On("CancelByOrder", mock.Anything, "ORD-2").Return(commissionsProcessor.TransitionResult{AlreadyApplied: true}, nil).Once()

		err := p.HandleWebhook(ctx, stripe.Event{
			Type: "payment_intent.canceled",
			Data: &stripe.EventData{Raw: []byte(`{"id":"pi_2","metadata":{"order_ref":"ORD-2"}}`)},
		})
		assert.NoError(t, err)
		ledger.AssertExpectations(t)
	})

	t.Run("full refund falls back to payment intent metadata", func(t *testing.T) {
		ledger := new(MockOrderLedger)
		p := New("whsec_test", ledger, observability.NewLogger())
		ledger.On("CancelByOrder", mock.Anything, "ORD-3").Return(commissionsProcessor.TransitionResult{}, nil).Once()

		err := p.HandleWebhook(ctx, stripe.Event{
			Type: "charge.refunded",
			Data: &stripe.EventData{Raw: []byte(`{"id":"ch_1","refunded":true,"payment_intent":{"id":"pi_3","metadata":{"order_ref":"ORD-3"}}}`)},
		})
		assert.NoError(t, err)
		ledger.AssertExpectations(t)
	})

	t.Run("partial refund is ignored", func(t *testing.T) {
		ledger := new(MockOrderLedger)
		p := New("whsec_test", ledger, observability.NewLogger())

		err := p.HandleWebhook(ctx, stripe.Event{
			Type: "charge.refunded",
			Data: &stripe.EventData{Raw: []byte(`{"id":"ch_2","refunded":false,"metadata":{"order_ref":"ORD-4"}}`)},
		})
		assert.NoError(t, err)
		ledger.AssertNotCalled(t, "CancelByOrder", mock.Anything, mock.Anything)
	})

	t.Run("refund after confirmation is acknowledged", func(t *testing.T) {
		ledger := new(MockOrderLedger)
		p := New("whsec_test", ledger, observability.NewLogger())
		ledger.On("CancelByOrder", mock.Anything, "ORD-5").Return(commissionsProcessor.TransitionResult{}, commissionsProcessor.ErrInvalidTransition).Once()

		err := p.HandleWebhook(ctx, stripe.Event{
			Type: "charge.refunded",
			Data: &stripe.EventData{Raw: []byte(`{"id":"ch_3","refunded":true,"metadata":{"order_ref":"ORD-5"}}`)},
		})
		assert.NoError(t, err)
	})

	t.Run("unknown order is returned for redelivery", func(t *testing.T) {
		ledger := new(MockOrderLedger)
		p := New("whsec_test", ledger, observability.NewLogger())
		ledger.On("ConfirmByOrder", mock.Anything, "ORD-6").Return(commissionsProcessor.TransitionResult{}, commissionsProcessor.ErrCommissionNotFound).Once()

		err := p.HandleWebhook(ctx, stripe.Event{
			Type: "payment_intent.succeeded",
			Data: &stripe.EventData{Raw: []byte(`{"id":"pi_6","metadata":{"order_ref":"ORD-6"}}`)},
		})
		assert.ErrorIs(t, err, commissionsProcessor.ErrCommissionNotFound)
	})

	t.Run("missing order reference is ignored", func(t *testing.T) {
		ledger := new(MockOrderLedger)
		p := New("whsec_test", ledger, observability.NewLogger())

		err := p.HandleWebhook(ctx, stripe.Event{
			Type: "payment_intent.succeeded",
			Data: &stripe.EventData{Raw: []byte(`{"id":"pi_7"}`)},
		})
		assert.NoError(t, err)
		ledger.AssertNotCalled(t, "ConfirmByOrder", mock.Anything, mock.Anything)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		ledger := new(MockOrderLedger)
		p := New("whsec_test", ledger, observability.NewLogger())

		err := p.HandleWebhook(ctx, stripe.Event{
			Type: "payment_intent.succeeded",
			Data: &stripe.EventData{Raw: []byte(`invalid json`)},
		})
		assert.Error(t, err)
	})

	t.Run("store failure is returned", func(t *testing.T) {
		ledger := new(MockOrderLedger)
		p := New("whsec_test", ledger, observability.NewLogger())
		dbErr := errors.New("connection reset")
		ledger.On("ConfirmByOrder", mock.Anything, "ORD-8").Return(commissionsProcessor.TransitionResult{}, dbErr).Once()

		err := p.HandleWebhook(ctx, stripe.Event{
			Type: "payment_intent.succeeded",
			Data: &stripe.EventData{Raw: []byte(`{"id":"pi_8","metadata":{"order_ref":"ORD-8"}}`)},
		})
		assert.ErrorIs(t, err, dbErr)
	})
}
