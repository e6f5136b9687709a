package handler

import (
	"commission-engine/internal/apierrors"
	"commission-engine/internal/observability"
	"commission-engine/internal/pools/processor"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Backfiller queues ranked distributions for past days
type Backfiller interface {
	BackfillRanked(ctx context.Context, from, to time.Time) (int, error)
}

type Handler struct {
	processor processor.PoolProcessor
	backfill  Backfiller
	logger    *observability.Logger
}

// New creates the pools handler. backfill may be nil when no job queue is
// configured.
func New(processor processor.PoolProcessor, backfill Backfiller, logger *observability.Logger) Handler {
	return Handler{
		processor: processor,
		backfill:  backfill,
		logger:    logger,
	}
}

// RunRankedRequest selects the day to distribute. Omitted means today.
type RunRankedRequest struct {
	Date string `json:"date,omitempty" binding:"omitempty,datetime=2006-01-02"`
}

// HandleRunRanked handles POST /api/admin/pools/ranked/run
func (h *Handler) HandleRunRanked(c *gin.Context) {
	var req RunRankedRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	var date time.Time
	if req.Date != "" {
		date, _ = time.Parse(time.DateOnly, req.Date)
	}

	result, err := h.processor.RunRanked(c.Request.Context(), date)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// BackfillRankedRequest is an inclusive range of days to distribute
type BackfillRankedRequest struct {
	From string `json:"from" binding:"required,datetime=2006-01-02"`
	To   string `json:"to" binding:"required,datetime=2006-01-02"`
}

const maxBackfillDays = 366

// HandleBackfillRanked handles POST /api/admin/pools/ranked/backfill
func (h *Handler) HandleBackfillRanked(c *gin.Context) {
	if h.backfill == nil {
		apierrors.RespondWithError(c, apierrors.ServiceUnavailable(apierrors.CodeJobQueueUnavailable, "job queue is not configured", nil))
		return
	}

	var req BackfillRankedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}
	from, _ := time.Parse(time.DateOnly, req.From)
	to, _ := time.Parse(time.DateOnly, req.To)
	if to.Before(from) || to.Sub(from) > maxBackfillDays*24*time.Hour {
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "range must be ordered and at most a year long"))
		return
	}

	queued, err := h.backfill.BackfillRanked(c.Request.Context(), from, to)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}

// HandleGetRankedDay handles GET /api/admin/pools/ranked/:date
func (h *Handler) HandleGetRankedDay(c *gin.Context) {
	date, ok := parseDate(c, c.Param("date"))
	if !ok {
		return
	}

	day, err := h.processor.Day(c.Request.Context(), date)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, day)
}

// HandleSnapshot handles POST /api/admin/pools/ranked/snapshot
func (h *Handler) HandleSnapshot(c *gin.Context) {
	result, err := h.processor.Snapshot(c.Request.Context(), time.Time{})
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleGetTicker handles GET /api/protected/pools/ranked/ticker
func (h *Handler) HandleGetTicker(c *gin.Context) {
	var date time.Time
	if raw := c.Query("date"); raw != "" {
		var ok bool
		if date, ok = parseDate(c, raw); !ok {
			return
		}
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit > 100 {
		limit = 100
	}

	entries, err := h.processor.Ticker(c.Request.Context(), date, limit)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// HandleRunLottery handles POST /api/admin/pools/lottery/:year/run
func (h *Handler) HandleRunLottery(c *gin.Context) {
	year, ok := parseYear(c)
	if !ok {
		return
	}

	result, err := h.processor.RunLottery(c.Request.Context(), year)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleGetPot handles GET /api/protected/pools/lottery/:year
func (h *Handler) HandleGetPot(c *gin.Context) {
	year, ok := parseYear(c)
	if !ok {
		return
	}

	pot, err := h.processor.Pot(c.Request.Context(), year)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, pot)
}

func parseDate(c *gin.Context, raw string) (time.Time, bool) {
	date, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "date must be YYYY-MM-DD"))
		return time.Time{}, false
	}
	return date, true
}

func parseYear(c *gin.Context) (int, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 2000 || year > 9999 {
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "invalid year"))
		return 0, false
	}
	return year, true
}
