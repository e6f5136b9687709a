package handler

import (
	"bytes"
	"commission-engine/internal/apierrors"
	"commission-engine/internal/observability"
	"commission-engine/internal/pools/processor"
	"commission-engine/internal/store"
	"commission-engine/internal/store/memstore"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
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

// heldLocker reports every lock as owned by another worker
type heldLocker struct{}

func (heldLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	return nil, errors.New("lock held by another worker")
}

type stubBackfiller struct {
	from, to time.Time
}

func (b *stubBackfiller) BackfillRanked(ctx context.Context, from, to time.Time) (int, error) {
	b.from, b.to = from, to
	return int(to.Sub(from).Hours()/24) + 1, nil
}

func setupTestHandler(t *testing.T, locker processor.Locker, backfill Backfiller) (Handler, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	logger := observability.NewLogger()
	return New(processor.New(s, locker, nil, nil, processor.Config{}, logger), backfill, logger), s
}

func jsonContext(t *testing.T, method string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/", bytes.NewReader(raw))
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

func seedProfit(t *testing.T, s *memstore.Store, date time.Time, profit string) store.Affiliate {
	t.Helper()
	ctx := context.Background()
	a, err := s.CreateAffiliate(ctx, store.CreateAffiliateParams{
		UserID:         uuid.New(),
		Code:           "POOL01",
		CommissionRate: decimal.NewFromInt(42),
	})
	require.NoError(t, err)
	require.NoError(t, s.AddDailyProfit(ctx, a.ID, date, decimal.RequireFromString(profit)))
	return a
}

func TestHandler_HandleRunRanked(t *testing.T) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format(time.DateOnly)
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format(time.DateOnly)

	t.Run("distributes the day", func(t *testing.T) {
		h, s := setupTestHandler(t, nil, nil)
		date, _ := time.Parse(time.DateOnly, yesterday)
		seedProfit(t, s, date, "1000.07")

		c, w := jsonContext(t, http.MethodPost, RunRankedRequest{Date: yesterday})
		h.HandleRunRanked(c)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var result processor.RankedResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		require.Len(t, result.Rankings, 1)
		assert.Equal(t, "40.00", result.Rankings[0].Share.StringFixed(2))
	})

	t.Run("ledger halted", func(t *testing.T) {
		h, s := setupTestHandler(t, nil, nil)
		date, _ := time.Parse(time.DateOnly, yesterday)
		seedProfit(t, s, date, "500")
		_, err := s.CreateLedgerHalt(context.Background(), "aggregate mismatch", nil)
		require.NoError(t, err)

		c, w := jsonContext(t, http.MethodPost, RunRankedRequest{Date: yesterday})
		h.HandleRunRanked(c)

		assert.Equal(t, http.StatusLocked, w.Code)
		assert.Equal(t, apierrors.CodeLedgerHalted, errorCode(t, w))
	})

	t.Run("distribution already running", func(t *testing.T) {
		h, _ := setupTestHandler(t, heldLocker{}, nil)

		c, w := jsonContext(t, http.MethodPost, RunRankedRequest{Date: yesterday})
		h.HandleRunRanked(c)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, apierrors.CodeDistributionInFlight, errorCode(t, w))
	})

	t.Run("future date", func(t *testing.T) {
		h, _ := setupTestHandler(t, nil, nil)

		c, w := jsonContext(t, http.MethodPost, RunRankedRequest{Date: tomorrow})
		h.HandleRunRanked(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed date", func(t *testing.T) {
		h, _ := setupTestHandler(t, nil, nil)

		c, w := jsonContext(t, http.MethodPost, map[string]string{"date": "10/05/2026"})
		h.HandleRunRanked(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_HandleBackfillRanked(t *testing.T) {
	t.Run("no job queue", func(t *testing.T) {
		h, _ := setupTestHandler(t, nil, nil)

		c, w := jsonContext(t, http.MethodPost, BackfillRankedRequest{From: "2026-01-01", To: "2026-01-03"})
		h.HandleBackfillRanked(c)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("queues the range", func(t *testing.T) {
		backfill := &stubBackfiller{}
		h, _ := setupTestHandler(t, nil, backfill)

		c, w := jsonContext(t, http.MethodPost, BackfillRankedRequest{From: "2026-01-01", To: "2026-01-03"})
		h.HandleBackfillRanked(c)

		require.Equal(t, http.StatusAccepted, w.Code)
		assert.JSONEq(t, `{"queued":3}`, w.Body.String())
		assert.Equal(t, "2026-01-03", backfill.to.Format(time.DateOnly))
	})

	t.Run("reversed range", func(t *testing.T) {
		h, _ := setupTestHandler(t, nil, &stubBackfiller{})

		c, w := jsonContext(t, http.MethodPost, BackfillRankedRequest{From: "2026-02-01", To: "2026-01-01"})
		h.HandleBackfillRanked(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_HandleRunLottery_InvalidYear(t *testing.T) {
	h, _ := setupTestHandler(t, nil, nil)

	c, w := jsonContext(t, http.MethodPost, nil)
	c.Params = gin.Params{{Key: "year", Value: "nineteen"}}
	h.HandleRunLottery(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
