package apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	affiliatesProcessor "commission-engine/internal/affiliates/processor"
	commissionsProcessor "commission-engine/internal/commissions/processor"
	payoutsProcessor "commission-engine/internal/payouts/processor"
	poolsProcessor "commission-engine/internal/pools/processor"
	rewardsProcessor "commission-engine/internal/rewards/processor"
	"commission-engine/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid transition", fmt.Errorf("confirm: %w", commissionsProcessor.ErrInvalidTransition), http.StatusConflict, CodeInvalidTransition},
		{"invalid source", rewardsProcessor.ErrInvalidSource, http.StatusBadRequest, CodeInvalidSource},
		{"cooldown sentinel", affiliatesProcessor.ErrCooldownActive, http.StatusTooManyRequests, CodeCooldownActive},
		{"pot not found", poolsProcessor.ErrPotNotFound, http.StatusNotFound, CodePotNotFound},
		{"distribution in flight", poolsProcessor.ErrDistributionInFlight, http.StatusConflict, CodeDistributionInFlight},
		{"future date", poolsProcessor.ErrFutureDate, http.StatusBadRequest, CodeFutureDate},
		{"duplicate order", commissionsProcessor.ErrDuplicateOrder, http.StatusConflict, CodeDuplicateOrder},
		{"ledger halted", fmt.Errorf("%w: mismatch", store.ErrLedgerHalted), http.StatusLocked, CodeLedgerHalted},
		{"payout pending", payoutsProcessor.ErrPayoutPending, http.StatusConflict, CodePayoutPending},
		{"below minimum", fmt.Errorf("%w: 9.99 available", payoutsProcessor.ErrBelowMinimum), http.StatusBadRequest, CodeBelowMinimumPayout},
		{"provider failed", payoutsProcessor.ErrProviderFailed, http.StatusBadGateway, CodePaymentProviderError},
		{"store not found", store.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.Equal(t, tt.code, got.Code)
		})
	}
}

func TestMapError_CooldownDetails(t *testing.T) {
	err := fmt.Errorf("switch mode: %w", &affiliatesProcessor.CooldownError{
		DaysRemaining: 12,
		NextAvailable: time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
	})

	got := MapError(err)
	assert.Equal(t, http.StatusTooManyRequests, got.StatusCode)
	assert.Equal(t, 12, got.Details["days_remaining"])
	assert.Equal(t, "2026-06-01", got.Details["next_available"])
}

func TestMapError_AggregateMismatchIsSanitized(t *testing.T) {
	err := &commissionsProcessor.AggregateMismatchError{AffiliateID: uuid.New()}

	got := MapError(err)
	assert.Equal(t, http.StatusInternalServerError, got.StatusCode)
	assert.NotContains(t, got.Message, err.AffiliateID.String())
	assert.ErrorIs(t, got.Err, commissionsProcessor.ErrAggregateMismatch)
}

func TestMapError_PassesThroughAPIError(t *testing.T) {
	original := BadRequest(CodeInvalidInput, "bad")
	assert.Same(t, original, MapError(fmt.Errorf("wrapped: %w", original)))
	assert.Nil(t, MapError(nil))
}

func TestRespondWithError_WritesBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	RespondWithError(c, &affiliatesProcessor.CooldownError{DaysRemaining: 3, NextAvailable: time.Date(2026, time.May, 4, 0, 0, 0, 0, time.UTC)})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, CodeCooldownActive, body.Code)
	assert.Equal(t, float64(3), body.Details["days_remaining"])
}
