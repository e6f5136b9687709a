package handler

import (
	affiliatesProcessor "commission-engine/internal/affiliates/processor"
	"commission-engine/internal/apierrors"
	commissionsProcessor "commission-engine/internal/commissions/processor"
	"commission-engine/internal/observability"
	"commission-engine/internal/payouts/processor"
	rewardsProcessor "commission-engine/internal/rewards/processor"
	"commission-engine/internal/store"
	"commission-engine/internal/store/memstore"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubProvider struct {
	transfers int
}

func (p *stubProvider) Transfer(ctx context.Context, req processor.TransferRequest) (string, error) {
	p.transfers++
	return "tr_test", nil
}

func setupTestHandler(t *testing.T) (Handler, *memstore.Store) {
	t.Helper()
	h, s, _ := setupTestHandlerWithProvider(t)
	return h, s
}

func setupTestHandlerWithProvider(t *testing.T) (Handler, *memstore.Store, *stubProvider) {
	t.Helper()
	logger := observability.NewLogger()
	s := memstore.New()

	affiliates := affiliatesProcessor.New(s, logger)
	rewards := rewardsProcessor.New(s, logger)
	commissions := commissionsProcessor.New(s, &rewards, &affiliates, nil, nil, logger)

	provider := &stubProvider{}

	return New(processor.New(s, &commissions, provider, nil, nil, processor.Config{}, logger), logger), s, provider
}

func newContext(method, body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	code, _ := body["code"].(string)
	return code
}

// payableAffiliate creates an affiliate with confirmed, unpaid earnings
func payableAffiliate(t *testing.T, s *memstore.Store, code, amount string) store.Affiliate {
	t.Helper()
	ctx := context.Background()
	email := strings.ToLower(code) + "@example.com"
	a, err := s.CreateAffiliate(ctx, store.CreateAffiliateParams{
		UserID:         uuid.New(),
		Code:           code,
		CommissionRate: decimal.NewFromInt(42),
		PayoutEmail:    &email,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	orderRef := "ORD-" + code
	c, err := s.CreateCommission(ctx, store.CreateCommissionParams{
		AffiliateID:    a.ID,
		Kind:           store.CommissionKindSale,
		OrderRef:       &orderRef,
		Profit:         decimal.NewFromInt(100),
		CommissionRate: decimal.NewFromInt(42),
		Amount:         decimal.RequireFromString(amount),
		Status:         store.CommissionStatusConfirmed,
		ConfirmedAt:    &now,
	})
	require.NoError(t, err)
	require.NoError(t, s.IncrementAffiliateEarnings(ctx, a.ID, c.Amount))
	return a
}

func TestHandler_HandleRequestPayout(t *testing.T) {
	t.Run("opens a request then rejects a second", func(t *testing.T) {
		h, s := setupTestHandler(t)
		a := payableAffiliate(t, s, "PAYH01", "42.00")

		c, w := newContext(http.MethodPost, "")
		c.Set("Affiliate-ID", a.ID.String())
		h.HandleRequestPayout(c)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var request store.PayoutRequest
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &request))
		assert.Equal(t, "42.00", request.Amount.StringFixed(2))

		c, w = newContext(http.MethodPost, `{"notes":"again"}`)
		c.Set("Affiliate-ID", a.ID.String())
		h.HandleRequestPayout(c)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, apierrors.CodePayoutPending, errorCode(t, w))
	})

	t.Run("below minimum", func(t *testing.T) {
		h, s := setupTestHandler(t)
		a := payableAffiliate(t, s, "PAYH02", "9.99")

		c, w := newContext(http.MethodPost, "")
		c.Set("Affiliate-ID", a.ID.String())
		h.HandleRequestPayout(c)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apierrors.CodeBelowMinimumPayout, errorCode(t, w))
	})

	t.Run("caller is not an affiliate", func(t *testing.T) {
		h, _ := setupTestHandler(t)

		c, w := newContext(http.MethodPost, "")
		h.HandleRequestPayout(c)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestHandler_HandleProcessPayout(t *testing.T) {
	t.Run("ledger halted", func(t *testing.T) {
		h, s, provider := setupTestHandlerWithProvider(t)
		ctx := context.Background()
		a := payableAffiliate(t, s, "PAYH03", "25.00")

		c, w := newContext(http.MethodPost, "")
		c.Set("Affiliate-ID", a.ID.String())
		h.HandleRequestPayout(c)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var request store.PayoutRequest
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &request))

		_, err := s.CreateLedgerHalt(ctx, "aggregate mismatch", nil)
		require.NoError(t, err)

		c, w = newContext(http.MethodPost, "")
		c.Params = gin.Params{{Key: "payout_id", Value: request.ID.String()}}
		h.HandleProcessPayout(c)
		assert.Equal(t, http.StatusLocked, w.Code)
		assert.Equal(t, apierrors.CodeLedgerHalted, errorCode(t, w))
		assert.Zero(t, provider.transfers, "nothing is sent while halted")
	})

	t.Run("unknown payout", func(t *testing.T) {
		h, _ := setupTestHandler(t)

		c, w := newContext(http.MethodPost, "")
		c.Params = gin.Params{{Key: "payout_id", Value: uuid.NewString()}}
		h.HandleProcessPayout(c)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		h, _ := setupTestHandler(t)

		c, w := newContext(http.MethodPost, "")
		c.Params = gin.Params{{Key: "payout_id", Value: "not-a-uuid"}}
		h.HandleProcessPayout(c)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_HandleCompleteSettlement_RequiresTransferID(t *testing.T) {
	h, _ := setupTestHandler(t)

	c, w := newContext(http.MethodPost, `{}`)
	c.Params = gin.Params{{Key: "payout_id", Value: uuid.NewString()}}
	h.HandleCompleteSettlement(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_HandleListPayouts_UnknownStatus(t *testing.T) {
	h, _ := setupTestHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?status=lost", nil)
	h.HandleListPayouts(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
