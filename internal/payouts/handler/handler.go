package handler

import (
	"commission-engine/internal/apierrors"
	"commission-engine/internal/observability"
	"commission-engine/internal/payouts/processor"
	"commission-engine/internal/store"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor processor.PayoutProcessor
	logger    *observability.Logger
}

func New(processor processor.PayoutProcessor, logger *observability.Logger) Handler {
	return Handler{
		processor: processor,
		logger:    logger,
	}
}

// RequestPayoutRequest carries an affiliate's optional note for the operator
type RequestPayoutRequest struct {
	Notes *string `json:"notes,omitempty" binding:"omitempty,max=500"`
}

// HandleRequestPayout handles POST /api/protected/affiliate/payouts
func (h *Handler) HandleRequestPayout(c *gin.Context) {
	ctx := c.Request.Context()

	affiliateID, ok := callerAffiliateID(c)
	if !ok {
		return
	}

	var req RequestPayoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.RespondWithValidationError(c, err)
			return
		}
	}

	request, err := h.processor.RequestPayout(ctx, affiliateID, req.Notes)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

// HandleGetMyOpenPayout handles GET /api/protected/affiliate/payouts/open
func (h *Handler) HandleGetMyOpenPayout(c *gin.Context) {
	affiliateID, ok := callerAffiliateID(c)
	if !ok {
		return
	}

	request, err := h.processor.Open(c.Request.Context(), affiliateID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// HandleListPayouts handles GET /api/admin/payouts?status=pending
func (h *Handler) HandleListPayouts(c *gin.Context) {
	status := c.DefaultQuery("status", store.PayoutStatusPending)
	switch status {
	case store.PayoutStatusPending, store.PayoutStatusProcessing, store.PayoutStatusPaid, store.PayoutStatusFailed:
	default:
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "unknown payout status"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	requests, err := h.processor.List(c.Request.Context(), status, limit)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payouts": requests})
}

// HandleGetPayout handles GET /api/admin/payouts/:payout_id
func (h *Handler) HandleGetPayout(c *gin.Context) {
	payoutID, ok := h.payoutID(c)
	if !ok {
		return
	}

	request, err := h.processor.Get(c.Request.Context(), payoutID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// HandleProcessPayout handles POST /api/admin/payouts/:payout_id/process
func (h *Handler) HandleProcessPayout(c *gin.Context) {
	payoutID, ok := h.payoutID(c)
	if !ok {
		return
	}

	result, err := h.processor.ProcessPayout(c.Request.Context(), payoutID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CompleteSettlementRequest names the transfer that already moved the funds
type CompleteSettlementRequest struct {
	TransferID string `json:"transfer_id" binding:"required,max=255"`
}

// HandleCompleteSettlement handles POST /api/admin/payouts/:payout_id/complete
func (h *Handler) HandleCompleteSettlement(c *gin.Context) {
	payoutID, ok := h.payoutID(c)
	if !ok {
		return
	}

	var req CompleteSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	result, err := h.processor.CompleteSettlement(c.Request.Context(), payoutID, req.TransferID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleProcessPending handles POST /api/admin/payouts/process-pending
func (h *Handler) HandleProcessPending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	summary, err := h.processor.ProcessPending(c.Request.Context(), limit)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) payoutID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("payout_id"))
	if err != nil {
		h.logger.Error(c.Request.Context(), "failed to parse payout ID", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payout id"})
		return uuid.Nil, false
	}
	return id, true
}

func callerAffiliateID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get("Affiliate-ID")
	if !exists {
		apierrors.RespondWithError(c, apierrors.Forbidden("caller is not an affiliate"))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw.(string))
	if err != nil {
		apierrors.RespondWithError(c, apierrors.Forbidden("caller is not an affiliate"))
		return uuid.Nil, false
	}
	return id, true
}
