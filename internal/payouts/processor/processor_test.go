package processor

import (
	affiliatesProcessor "commission-engine/internal/affiliates/processor"
	commissionsProcessor "commission-engine/internal/commissions/processor"
	"commission-engine/internal/email"
	"commission-engine/internal/observability"
	rewardsProcessor "commission-engine/internal/rewards/processor"
	"commission-engine/internal/store"
	"commission-engine/internal/store/memstore"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishPayoutSettled(ctx context.Context, request store.PayoutRequest, commissionIDs []uuid.UUID) error {
	return m.Called(ctx, request, commissionIDs).Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendPayoutSettledEmail(ctx context.Context, to string, data email.TemplateData) error {
	return m.Called(ctx, to, data).Error(0)
}

func (m *MockNotifier) SendPayoutFailedEmail(ctx context.Context, to string, data email.TemplateData) error {
	return m.Called(ctx, to, data).Error(0)
}

type fixture struct {
	store    *memstore.Store
	provider *MockProvider
	events   *MockEventPublisher
	notifier *MockNotifier
	p        PayoutProcessor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := observability.NewLogger()
	s := memstore.New()

	affiliates := affiliatesProcessor.New(s, logger)
	rewards := rewardsProcessor.New(s, logger)
	commissions := commissionsProcessor.New(s, &rewards, &affiliates, nil, nil, logger)

	f := &fixture{
		store:    s,
		provider: new(MockProvider),
		events:   new(MockEventPublisher),
		notifier: new(MockNotifier),
	}
	f.events.On("PublishPayoutSettled", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.notifier.On("SendPayoutSettledEmail", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.notifier.On("SendPayoutFailedEmail", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	f.p = New(s, &commissions, f.provider, f.events, f.notifier, Config{}, logger)
	return f
}

func strPtr(s string) *string { return &s }

// affiliate creates an active affiliate with a payout email and a connected
// account
func (f *fixture) affiliate(t *testing.T, code string) store.Affiliate {
	t.Helper()
	ctx := context.Background()
	a, err := f.store.CreateAffiliate(ctx, store.CreateAffiliateParams{
		UserID:         uuid.New(),
		Code:           code,
		CommissionRate: decimal.NewFromInt(42),
		PayoutEmail:    strPtr(code + "@example.com"),
	})
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateAffiliatePayoutDetails(ctx, a.ID, nil, strPtr("acct_"+code)))
	a, err = f.store.GetAffiliateByID(ctx, a.ID)
	require.NoError(t, err)
	return a
}

// earn writes a commission in status and credits total_earnings when it is
// confirmed
func (f *fixture) earn(t *testing.T, affiliateID uuid.UUID, amount, status string) store.Commission {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	params := store.CreateCommissionParams{
		AffiliateID:    affiliateID,
		Kind:           store.CommissionKindSale,
		OrderRef:       strPtr("ORD-" + uuid.NewString()),
		Revenue:        decimal.NewFromInt(200),
		Costs:          decimal.NewFromInt(100),
		Profit:         decimal.NewFromInt(100),
		CommissionRate: decimal.NewFromInt(42),
		Amount:         decimal.RequireFromString(amount),
		Status:         status,
	}
	if status == store.CommissionStatusConfirmed {
		params.ConfirmedAt = &now
	}
	c, err := f.store.CreateCommission(ctx, params)
	require.NoError(t, err)
	if status == store.CommissionStatusConfirmed {
		require.NoError(t, f.store.IncrementAffiliateEarnings(ctx, affiliateID, c.Amount))
	}
	return c
}

func TestRequestPayout_SumsConfirmedCommissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "PAY001")
	c1 := f.earn(t, a.ID, "42.00", store.CommissionStatusConfirmed)
	c2 := f.earn(t, a.ID, "8.50", store.CommissionStatusConfirmed)
	f.earn(t, a.ID, "99.00", store.CommissionStatusPending)

	request, err := f.p.RequestPayout(ctx, a.ID, strPtr("monthly"))
	require.NoError(t, err)
	assert.Equal(t, store.PayoutStatusPending, request.Status)
	assert.Equal(t, "50.50", request.Amount.StringFixed(2))
	assert.Equal(t, "USD", request.Currency)
	assert.Equal(t, "PAY001@example.com", request.PayoutEmail)

	ids, err := f.store.ListPayoutRequestCommissionIDs(ctx, request.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{c1.ID, c2.ID}, ids)

	open, err := f.p.Open(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, request.ID, open.ID)
}

func TestRequestPayout_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.p.RequestPayout(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrAffiliateNotFound)

	small := f.affiliate(t, "SMALL1")
	f.earn(t, small.ID, "9.99", store.CommissionStatusConfirmed)
	_, err = f.p.RequestPayout(ctx, small.ID, nil)
	assert.ErrorIs(t, err, ErrBelowMinimum)

	noEmail, err := f.store.CreateAffiliate(ctx, store.CreateAffiliateParams{UserID: uuid.New(), Code: "NOMAIL", CommissionRate: decimal.NewFromInt(42)})
	require.NoError(t, err)
	f.earn(t, noEmail.ID, "50.00", store.CommissionStatusConfirmed)
	_, err = f.p.RequestPayout(ctx, noEmail.ID, nil)
	assert.ErrorIs(t, err, ErrMissingPayoutEmail)

	suspended := f.affiliate(t, "SUSP01")
	f.earn(t, suspended.ID, "50.00", store.CommissionStatusConfirmed)
	require.NoError(t, f.store.UpdateAffiliateStatus(ctx, suspended.ID, store.AffiliateStatusSuspended))
	_, err = f.p.RequestPayout(ctx, suspended.ID, nil)
	assert.ErrorIs(t, err, ErrAffiliateInactive)

	open := f.affiliate(t, "OPEN01")
	f.earn(t, open.ID, "50.00", store.CommissionStatusConfirmed)
	_, err = f.p.RequestPayout(ctx, open.ID, nil)
	require.NoError(t, err)
	f.earn(t, open.ID, "20.00", store.CommissionStatusConfirmed)
	_, err = f.p.RequestPayout(ctx, open.ID, nil)
	assert.ErrorIs(t, err, ErrPayoutPending)
}

func TestProcessPayout_SettlesCommissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "PAY002")
	c1 := f.earn(t, a.ID, "30.00", store.CommissionStatusConfirmed)
	c2 := f.earn(t, a.ID, "12.00", store.CommissionStatusConfirmed)

	request, err := f.p.RequestPayout(ctx, a.ID, nil)
	require.NoError(t, err)

	f.provider.On("Transfer", mock.Anything, mock.MatchedBy(func(req TransferRequest) bool {
		return req.Destination == "acct_PAY002" &&
			req.Amount.Equal(decimal.NewFromInt(42)) &&
			req.IdempotencyKey == "payout-"+request.ID.String()
	})).Return("tr_123", nil).Once()

	result, err := f.p.ProcessPayout(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, "tr_123", result.TransferID)
	assert.Equal(t, 2, result.Commissions)
	assert.Equal(t, store.PayoutStatusPaid, result.Request.Status)
	require.NotNil(t, result.Request.ExternalID)
	assert.Equal(t, "tr_123", *result.Request.ExternalID)

	for _, id := range []uuid.UUID{c1.ID, c2.ID} {
		c, err := f.store.GetCommissionByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.CommissionStatusPaid, c.Status)
		require.NotNil(t, c.PayoutRequestID)
		assert.Equal(t, request.ID, *c.PayoutRequestID)
	}

	got, err := f.store.GetAffiliateByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "42.00", got.TotalPaid.StringFixed(2))

	f.provider.AssertExpectations(t)
	f.events.AssertCalled(t, "PublishPayoutSettled", mock.Anything, mock.Anything, mock.Anything)
	f.notifier.AssertCalled(t, "SendPayoutSettledEmail", mock.Anything, "PAY002@example.com", mock.Anything)

	_, err = f.p.ProcessPayout(ctx, request.ID)
	assert.ErrorIs(t, err, ErrPayoutNotPending)
}

func TestProcessPayout_ProviderFailureLeavesCommissionsPayable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "PAY003")
	c := f.earn(t, a.ID, "25.00", store.CommissionStatusConfirmed)

	request, err := f.p.RequestPayout(ctx, a.ID, nil)
	require.NoError(t, err)

	f.provider.On("Transfer", mock.Anything, mock.Anything).Return("", errors.New("insufficient platform balance")).Once()

	_, err = f.p.ProcessPayout(ctx, request.ID)
	assert.ErrorIs(t, err, ErrProviderFailed)

	got, err := f.p.Get(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PayoutStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "insufficient platform balance")

	commission, err := f.store.GetCommissionByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.CommissionStatusConfirmed, commission.Status)
	f.notifier.AssertCalled(t, "SendPayoutFailedEmail", mock.Anything, "PAY003@example.com", mock.Anything)

	retry, err := f.p.RequestPayout(ctx, a.ID, nil)
	require.NoError(t, err, "a failed request releases its commissions")
	assert.Equal(t, "25.00", retry.Amount.StringFixed(2))
}

func TestProcessPayout_MissingAccountFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.store.CreateAffiliate(ctx, store.CreateAffiliateParams{
		UserID: uuid.New(), Code: "NOACCT", CommissionRate: decimal.NewFromInt(42), PayoutEmail: strPtr("noacct@example.com"),
	})
	require.NoError(t, err)
	f.earn(t, a.ID, "15.00", store.CommissionStatusConfirmed)

	request, err := f.p.RequestPayout(ctx, a.ID, nil)
	require.NoError(t, err)

	_, err = f.p.ProcessPayout(ctx, request.ID)
	assert.ErrorIs(t, err, ErrMissingPayoutAccount)
	f.provider.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)

	got, err := f.p.Get(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PayoutStatusFailed, got.Status)
}

func TestProcessPayout_HaltedLedgerSendsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "PAY004")
	f.earn(t, a.ID, "25.00", store.CommissionStatusConfirmed)

	request, err := f.p.RequestPayout(ctx, a.ID, nil)
	require.NoError(t, err)
	_, err = f.store.CreateLedgerHalt(ctx, "aggregate mismatch", nil)
	require.NoError(t, err)

	_, err = f.p.ProcessPayout(ctx, request.ID)
	assert.ErrorIs(t, err, store.ErrLedgerHalted)
	f.provider.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)

	got, err := f.p.Get(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PayoutStatusPending, got.Status)
}

func TestProcessPayout_SettlementFailureHaltsAndCanBeCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "PAY005")
	c := f.earn(t, a.ID, "60.00", store.CommissionStatusConfirmed)

	request, err := f.p.RequestPayout(ctx, a.ID, nil)
	require.NoError(t, err)
	f.provider.On("Transfer", mock.Anything, mock.Anything).Return("tr_456", nil).Once()

	f.store.SetHook(func(op string) error {
		if op == "IncrementAffiliatePaid" {
			return errors.New("connection reset")
		}
		return nil
	})
	_, err = f.p.ProcessPayout(ctx, request.ID)
	f.store.SetHook(nil)
	assert.ErrorIs(t, err, ErrSettlementFailed)

	got, err := f.p.Get(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PayoutStatusProcessing, got.Status, "commissions stay claimed")

	commission, err := f.store.GetCommissionByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.CommissionStatusConfirmed, commission.Status)

	halt, err := f.store.GetActiveLedgerHalt(ctx)
	require.NoError(t, err)
	assert.Contains(t, halt.Reason, "tr_456")

	_, err = f.p.RequestPayout(ctx, a.ID, nil)
	assert.ErrorIs(t, err, ErrPayoutPending)

	require.NoError(t, f.store.ResolveLedgerHalt(ctx, halt.ID, time.Now().UTC()))
	result, err := f.p.CompleteSettlement(ctx, request.ID, "tr_456")
	require.NoError(t, err)
	assert.Equal(t, store.PayoutStatusPaid, result.Request.Status)
	assert.Equal(t, 1, result.Commissions)

	_, err = f.p.CompleteSettlement(ctx, request.ID, "tr_456")
	assert.ErrorIs(t, err, ErrPayoutNotProcessing)
}

func TestProcessPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok := f.affiliate(t, "PEND01")
	f.earn(t, ok.ID, "20.00", store.CommissionStatusConfirmed)
	bad := f.affiliate(t, "PEND02")
	f.earn(t, bad.ID, "20.00", store.CommissionStatusConfirmed)

	_, err := f.p.RequestPayout(ctx, ok.ID, nil)
	require.NoError(t, err)
	_, err = f.p.RequestPayout(ctx, bad.ID, nil)
	require.NoError(t, err)

	f.provider.On("Transfer", mock.Anything, mock.MatchedBy(func(req TransferRequest) bool { return req.Destination == "acct_PEND01" })).Return("tr_ok", nil).Once()
	f.provider.On("Transfer", mock.Anything, mock.MatchedBy(func(req TransferRequest) bool { return req.Destination == "acct_PEND02" })).Return("", errors.New("account closed")).Once()

	summary, err := f.p.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, PendingSummary{Processed: 2, Paid: 1, Failed: 1}, summary)

	pending, err := f.p.List(ctx, store.PayoutStatusPending, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessPending_StopsWhenHalted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "PEND03")
	f.earn(t, a.ID, "20.00", store.CommissionStatusConfirmed)
	_, err := f.p.RequestPayout(ctx, a.ID, nil)
	require.NoError(t, err)
	_, err = f.store.CreateLedgerHalt(ctx, "mismatch", nil)
	require.NoError(t, err)

	summary, err := f.p.ProcessPending(ctx, 10)
	assert.ErrorIs(t, err, store.ErrLedgerHalted)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Paid)
}

func TestProcessPayout_NoProvider(t *testing.T) {
	s := memstore.New()
	p := New(s, nil, nil, nil, nil, Config{}, observability.NewLogger())

	_, err := p.ProcessPayout(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	summary, err := p.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, PendingSummary{}, summary)
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrPayoutNotFound)
	_, err = f.p.Open(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrPayoutNotFound)
}
