package handler

import (
	"commission-engine/internal/apierrors"
	"commission-engine/internal/observability"
	"commission-engine/internal/rewards/processor"
	"commission-engine/internal/store"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handler struct {
	processor processor.RewardProcessor
	logger    *observability.Logger
}

func New(processor processor.RewardProcessor, logger *observability.Logger) Handler {
	return Handler{
		processor: processor,
		logger:    logger,
	}
}

// HandleGetMyHistory handles GET /api/protected/affiliate/rewards
func (h *Handler) HandleGetMyHistory(c *gin.Context) {
	affiliateIDStr, exists := c.Get("Affiliate-ID")
	if !exists {
		apierrors.RespondWithError(c, apierrors.Forbidden("caller is not an affiliate"))
		return
	}
	h.respondWithHistory(c, affiliateIDStr.(string))
}

// HandleGetHistory handles GET /api/admin/affiliates/:affiliate_id/rewards
func (h *Handler) HandleGetHistory(c *gin.Context) {
	h.respondWithHistory(c, c.Param("affiliate_id"))
}

func (h *Handler) respondWithHistory(c *gin.Context, rawID string) {
	ctx := c.Request.Context()

	affiliateID, err := uuid.Parse(rawID)
	if err != nil {
		h.logger.Error(ctx, "failed to parse affiliate ID", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid affiliate id"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	history, err := h.processor.History(ctx, affiliateID, limit)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

// AdjustPointsRequest represents a manual points award
type AdjustPointsRequest struct {
	ProfitAmount string  `json:"profit_amount" binding:"required,numeric"`
	Description  *string `json:"description,omitempty" binding:"omitempty,max=500"`
}

// HandleAdjustPoints handles POST /api/admin/affiliates/:affiliate_id/rewards/adjust
func (h *Handler) HandleAdjustPoints(c *gin.Context) {
	ctx := c.Request.Context()

	affiliateID, err := uuid.Parse(c.Param("affiliate_id"))
	if err != nil {
		h.logger.Error(ctx, "failed to parse affiliate ID", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid affiliate id"})
		return
	}

	var req AdjustPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	profit, err := decimal.NewFromString(req.ProfitAmount)
	if err != nil || !profit.IsPositive() {
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "profit_amount must be a positive number"))
		return
	}

	result, err := h.processor.Award(ctx, processor.AwardRequest{
		AffiliateID:  affiliateID,
		ProfitAmount: profit,
		Source:       store.RewardSourceAdjustment,
		Description:  req.Description,
	})
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
