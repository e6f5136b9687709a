package handler

import (
	"commission-engine/internal/affiliates/processor"
	"commission-engine/internal/apierrors"
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"commission-engine/internal/store/memstore"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestHandler(t *testing.T) Handler {
	t.Helper()
	logger := observability.NewLogger()
	return New(processor.New(memstore.New(), logger), logger)
}

func newContext(method, body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func register(t *testing.T, h Handler, userID uuid.UUID, code string) *httptest.ResponseRecorder {
	t.Helper()
	c, w := newContext(http.MethodPost, `{"code":"`+code+`"}`)
	c.Set("User-ID", userID.String())
	h.HandleRegister(c)
	return w
}

func TestHandler_HandleRegister(t *testing.T) {
	h := setupTestHandler(t)
	userID := uuid.New()

	w := register(t, h, userID, "handle01")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "HANDLE01", decode(t, w)["code"])

	tests := []struct {
		name     string
		userID   uuid.UUID
		code     string
		wantCode int
		wantErr  string
	}{
		{"same user again", userID, "HANDLE02", http.StatusConflict, apierrors.CodeAffiliateExists},
		{"code taken", uuid.New(), "HANDLE01", http.StatusConflict, apierrors.CodeCodeTaken},
		{"reserved code", uuid.New(), "ADMIN", http.StatusBadRequest, apierrors.CodeReservedCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := register(t, h, tt.userID, tt.code)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decode(t, w)["code"])
		})
	}
}

func TestHandler_HandleSwitchMode_Cooldown(t *testing.T) {
	h := setupTestHandler(t)
	w := register(t, h, uuid.New(), "MODEH01")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	affiliateID := decode(t, w)["id"].(string)

	switchMode := func(mode string) *httptest.ResponseRecorder {
		c, w := newContext(http.MethodPost, `{"mode":"`+mode+`"}`)
		c.Set("Affiliate-ID", affiliateID)
		h.HandleSwitchMode(c)
		return w
	}

	w = switchMode(store.CommissionModeDiscount)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = switchMode(store.CommissionModeCash)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decode(t, w)
	assert.Equal(t, apierrors.CodeCooldownActive, body["code"])
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 30, details["days_remaining"])

	w = switchMode("credit")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_HandleSwitchMode_NotAnAffiliate(t *testing.T) {
	h := setupTestHandler(t)

	c, w := newContext(http.MethodPost, `{"mode":"cash"}`)
	h.HandleSwitchMode(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
