package events

import (
	"commission-engine/internal/clients/kafka"
	"commission-engine/internal/observability"
	poolsProcessor "commission-engine/internal/pools/processor"
	"commission-engine/internal/store"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEventWriter struct {
	mock.Mock
}

func (m *MockEventWriter) PublishEvent(ctx context.Context, event kafka.EventMessage) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventWriter) PublishEvents(ctx context.Context, events []kafka.EventMessage) error {
	return m.Called(ctx, events).Error(0)
}

func TestPublishCommissionConfirmed(t *testing.T) {
	writer := new(MockEventWriter)
	p := NewPublisher(writer, observability.NewLogger())

	orderRef := "ORD-1"
	c := store.Commission{
		ID:          uuid.New(),
		AffiliateID: uuid.New(),
		Kind:        store.CommissionKindSale,
		Status:      store.CommissionStatusConfirmed,
		OrderRef:    &orderRef,
		Amount:      decimal.RequireFromString("42"),
		Profit:      decimal.RequireFromString("100"),
	}

	var got kafka.EventMessage
	writer.On("PublishEvent", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(1).(kafka.EventMessage)
	}).Return(nil).Once()

	require.NoError(t, p.PublishCommissionConfirmed(context.Background(), c))
	assert.Equal(t, TypeCommissionConfirmed, got.Type)
	assert.Equal(t, c.AffiliateID.String(), got.Key)
	assert.Equal(t, "42.00", got.Data["amount"])
	assert.Equal(t, "ORD-1", got.Data["order_ref"])
	assert.NotEmpty(t, got.ID)
}

func TestPublishRankedPoolDistributed_SummaryThenCommissions(t *testing.T) {
	writer := new(MockEventWriter)
	p := NewPublisher(writer, observability.NewLogger())

	first, second := uuid.New(), uuid.New()
	result := poolsProcessor.RankedResult{
		Date:              time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC),
		TotalProfit:       decimal.NewFromInt(2000),
		PoolAmount:        decimal.NewFromInt(160),
		DistributedAmount: decimal.NewFromInt(80),
		Rankings: []poolsProcessor.RankedShare{
			{Rank: 1, AffiliateID: uuid.New(), Profit: decimal.NewFromInt(1000), Share: decimal.NewFromInt(80), CommissionID: &first},
			{Rank: 2, AffiliateID: uuid.New(), Profit: decimal.NewFromInt(600), Share: decimal.NewFromInt(48), CommissionID: &second},
			{Rank: 4, AffiliateID: uuid.New(), Profit: decimal.NewFromInt(100), Share: decimal.Zero},
		},
	}

	var got []kafka.EventMessage
	writer.On("PublishEvents", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(1).([]kafka.EventMessage)
	}).Return(nil).Once()

	require.NoError(t, p.PublishRankedPoolDistributed(context.Background(), result))
	require.Len(t, got, 3)
	assert.Equal(t, TypeRankedPoolDistributed, got[0].Type)
	assert.Equal(t, "2026-05-10", got[0].Key)
	assert.Len(t, got[0].Data["rankings"], 3)
	assert.Equal(t, TypeCommissionRecorded, got[1].Type)
	assert.Equal(t, first.String(), got[1].Data["commission_id"])
	assert.Equal(t, "RANKED-POOL-2026-05-10", got[2].Data["order_ref"])
}

func TestPublishPayoutSettled(t *testing.T) {
	writer := new(MockEventWriter)
	p := NewPublisher(writer, observability.NewLogger())

	externalID := "tr_1"
	request := store.PayoutRequest{ID: uuid.New(), AffiliateID: uuid.New(), Amount: decimal.NewFromInt(50), Currency: "USD", ExternalID: &externalID}
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	writer.On("PublishEvent", mock.Anything, mock.MatchedBy(func(e kafka.EventMessage) bool {
		commissionIDs, _ := e.Data["commission_ids"].([]string)
		return e.Type == TypePayoutSettled && e.Data["external_id"] == "tr_1" && len(commissionIDs) == 2
	})).Return(nil).Once()

	require.NoError(t, p.PublishPayoutSettled(context.Background(), request, ids))
	writer.AssertExpectations(t)
}
