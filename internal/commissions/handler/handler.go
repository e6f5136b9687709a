package handler

import (
	"commission-engine/internal/apierrors"
	"commission-engine/internal/commissions/processor"
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handler struct {
	processor processor.CommissionProcessor
	logger    *observability.Logger
}

func New(processor processor.CommissionProcessor, logger *observability.Logger) Handler {
	return Handler{
		processor: processor,
		logger:    logger,
	}
}

// RecordSaleRequest represents a paid order submitted by checkout or an operator
type RecordSaleRequest struct {
	OrderRef     string     `json:"order_ref" binding:"required,max=255"`
	BuyerUserID  *uuid.UUID `json:"buyer_user_id,omitempty"`
	ReferralCode *string    `json:"referral_code,omitempty" binding:"omitempty,max=32"`
	DiscountCode *string    `json:"discount_code,omitempty" binding:"omitempty,max=32"`
	Revenue      string     `json:"revenue" binding:"required,numeric"`
	Costs        string     `json:"costs" binding:"required,numeric"`
	SaleDate     *time.Time `json:"sale_date,omitempty"`
}

// HandleRecordSale handles POST /api/admin/sales
func (h *Handler) HandleRecordSale(c *gin.Context) {
	ctx := c.Request.Context()

	var req RecordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	revenue, err := decimal.NewFromString(req.Revenue)
	if err != nil {
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "revenue must be a number"))
		return
	}
	costs, err := decimal.NewFromString(req.Costs)
	if err != nil {
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "costs must be a number"))
		return
	}

	sale := processor.SaleRequest{
		OrderRef:     req.OrderRef,
		BuyerUserID:  req.BuyerUserID,
		ReferralCode: req.ReferralCode,
		DiscountCode: req.DiscountCode,
		Revenue:      revenue,
		Costs:        costs,
	}
	if req.SaleDate != nil {
		sale.SaleDate = req.SaleDate.UTC()
	}

	result, err := h.processor.ProcessSale(ctx, sale)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate || result.Record.Skipped {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// HandleConfirm handles POST /api/admin/commissions/:commission_id/confirm
func (h *Handler) HandleConfirm(c *gin.Context) {
	h.handleTransition(c, h.processor.Confirm)
}

// HandleCancel handles POST /api/admin/commissions/:commission_id/cancel
func (h *Handler) HandleCancel(c *gin.Context) {
	h.handleTransition(c, h.processor.Cancel)
}

func (h *Handler) handleTransition(c *gin.Context, fn func(context.Context, uuid.UUID) (processor.TransitionResult, error)) {
	ctx := c.Request.Context()

	commissionID, err := uuid.Parse(c.Param("commission_id"))
	if err != nil {
		h.logger.Error(ctx, "failed to parse commission ID", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid commission id"})
		return
	}

	result, err := fn(ctx, commissionID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleGetCommission handles GET /api/admin/commissions/:commission_id
func (h *Handler) HandleGetCommission(c *gin.Context) {
	ctx := c.Request.Context()

	commissionID, err := uuid.Parse(c.Param("commission_id"))
	if err != nil {
		h.logger.Error(ctx, "failed to parse commission ID", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid commission id"})
		return
	}

	commission, err := h.processor.Get(ctx, commissionID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, commission)
}

// HandleListMyCommissions handles GET /api/protected/affiliate/commissions
func (h *Handler) HandleListMyCommissions(c *gin.Context) {
	affiliateIDStr, exists := c.Get("Affiliate-ID")
	if !exists {
		apierrors.RespondWithError(c, apierrors.Forbidden("caller is not an affiliate"))
		return
	}
	h.respondWithList(c, affiliateIDStr.(string))
}

// HandleListAffiliateCommissions handles GET /api/admin/affiliates/:affiliate_id/commissions
func (h *Handler) HandleListAffiliateCommissions(c *gin.Context) {
	h.respondWithList(c, c.Param("affiliate_id"))
}

func (h *Handler) respondWithList(c *gin.Context, rawID string) {
	ctx := c.Request.Context()

	affiliateID, err := uuid.Parse(rawID)
	if err != nil {
		h.logger.Error(ctx, "failed to parse affiliate ID", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid affiliate id"})
		return
	}

	status := c.Query("status")
	switch status {
	case "", store.CommissionStatusPending, store.CommissionStatusConfirmed, store.CommissionStatusPaid, store.CommissionStatusCancelled:
	default:
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "unknown commission status"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	commissions, err := h.processor.List(ctx, affiliateID, status, limit)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"commissions": commissions})
}

// HandleReconcileAffiliate handles POST /api/admin/affiliates/:affiliate_id/reconcile
func (h *Handler) HandleReconcileAffiliate(c *gin.Context) {
	ctx := c.Request.Context()

	affiliateID, err := uuid.Parse(c.Param("affiliate_id"))
	if err != nil {
		h.logger.Error(ctx, "failed to parse affiliate ID", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid affiliate id"})
		return
	}

	if err := h.processor.Reconcile(ctx, affiliateID); err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"consistent": true})
}

// HandleReconcileAll handles POST /api/admin/ledger/reconcile
func (h *Handler) HandleReconcileAll(c *gin.Context) {
	report, err := h.processor.ReconcileAll(c.Request.Context())
	if err != nil && !errors.Is(err, processor.ErrAggregateMismatch) {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"consistent": len(report.Mismatches) == 0,
		"report":     report,
	})
}

// HandleGetHalt handles GET /api/admin/ledger/halt
func (h *Handler) HandleGetHalt(c *gin.Context) {
	halt, err := h.processor.ActiveHalt(c.Request.Context())
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"halted": halt != nil,
		"halt":   halt,
	})
}

// HandleResolveHalt handles POST /api/admin/ledger/halts/:halt_id/resolve
func (h *Handler) HandleResolveHalt(c *gin.Context) {
	ctx := c.Request.Context()

	haltID, err := uuid.Parse(c.Param("halt_id"))
	if err != nil {
		h.logger.Error(ctx, "failed to parse halt ID", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid halt id"})
		return
	}

	if err := h.processor.ResolveHalt(ctx, haltID); err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
