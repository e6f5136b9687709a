package handler

import (
	"commission-engine/internal/affiliates/processor"
	"commission-engine/internal/apierrors"
	"commission-engine/internal/observability"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor processor.AffiliateProcessor
	logger    *observability.Logger
}

func New(processor processor.AffiliateProcessor, logger *observability.Logger) Handler {
	return Handler{
		processor: processor,
		logger:    logger,
	}
}

// RegisterRequest represents the HTTP request for becoming an affiliate
type RegisterRequest struct {
	Code         string  `json:"code" binding:"required,min=4,max=12,alphanum"`
	ReferrerCode *string `json:"referrer_code,omitempty" binding:"omitempty,max=12"`
	PayoutEmail  *string `json:"payout_email,omitempty" binding:"omitempty,email"`
}

// HandleRegister handles POST /api/protected/affiliate
func (h *Handler) HandleRegister(c *gin.Context) {
	ctx := c.Request.Context()

	userIDStr, exists := c.Get("User-ID")
	if !exists {
		apierrors.RespondWithError(c, apierrors.Unauthorized("user ID not found in context"))
		return
	}

	userID, err := uuid.Parse(userIDStr.(string))
	if err != nil {
		h.logger.Error(ctx, "failed to parse user ID", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	affiliate, err := h.processor.Register(ctx, processor.RegisterRequest{
		UserID:       userID,
		Code:         req.Code,
		ReferrerCode: req.ReferrerCode,
		PayoutEmail:  req.PayoutEmail,
	})
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, affiliate)
}

// HandleGetProfile handles GET /api/protected/affiliate
func (h *Handler) HandleGetProfile(c *gin.Context) {
	affiliateID, ok := h.callerAffiliateID(c)
	if !ok {
		return
	}

	profile, err := h.processor.Profile(c.Request.Context(), affiliateID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// SwitchModeRequest represents the HTTP request for changing commission mode
type SwitchModeRequest struct {
	Mode string `json:"mode" binding:"required,oneof=cash discount"`
}

// HandleSwitchMode handles POST /api/protected/affiliate/mode
func (h *Handler) HandleSwitchMode(c *gin.Context) {
	affiliateID, ok := h.callerAffiliateID(c)
	if !ok {
		return
	}

	var req SwitchModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	result, err := h.processor.SwitchMode(c.Request.Context(), affiliateID, req.Mode)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// PayoutDetailsRequest represents where an affiliate wants to be paid
type PayoutDetailsRequest struct {
	PayoutEmail     *string `json:"payout_email,omitempty" binding:"omitempty,email"`
	StripeAccountID *string `json:"stripe_account_id,omitempty" binding:"omitempty,startswith=acct_"`
}

// HandleUpdatePayoutDetails handles PUT /api/protected/affiliate/payout-details
func (h *Handler) HandleUpdatePayoutDetails(c *gin.Context) {
	affiliateID, ok := h.callerAffiliateID(c)
	if !ok {
		return
	}

	var req PayoutDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	affiliate, err := h.processor.UpdatePayoutDetails(c.Request.Context(), affiliateID, req.PayoutEmail, req.StripeAccountID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, affiliate)
}

// HandleListAffiliates handles GET /api/admin/affiliates
func (h *Handler) HandleListAffiliates(c *gin.Context) {
	affiliates, err := h.processor.List(c.Request.Context())
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"affiliates": affiliates})
}

// HandleGetAffiliate handles GET /api/admin/affiliates/:affiliate_id
func (h *Handler) HandleGetAffiliate(c *gin.Context) {
	ctx := c.Request.Context()

	affiliateID, err := uuid.Parse(c.Param("affiliate_id"))
	if err != nil {
		h.logger.Error(ctx, "failed to parse affiliate ID", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid affiliate id"})
		return
	}

	profile, err := h.processor.Profile(ctx, affiliateID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpdateStatusRequest represents an admin status change
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active suspended inactive"`
}

// HandleUpdateStatus handles PUT /api/admin/affiliates/:affiliate_id/status
func (h *Handler) HandleUpdateStatus(c *gin.Context) {
	ctx := c.Request.Context()

	affiliateID, err := uuid.Parse(c.Param("affiliate_id"))
	if err != nil {
		h.logger.Error(ctx, "failed to parse affiliate ID", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid affiliate id"})
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	affiliate, err := h.processor.SetStatus(ctx, affiliateID, req.Status)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, affiliate)
}

func (h *Handler) callerAffiliateID(c *gin.Context) (uuid.UUID, bool) {
	affiliateIDStr, exists := c.Get("Affiliate-ID")
	if !exists {
		apierrors.RespondWithError(c, apierrors.Forbidden("caller is not an affiliate"))
		return uuid.Nil, false
	}

	affiliateID, err := uuid.Parse(affiliateIDStr.(string))
	if err != nil {
		h.logger.Error(c.Request.Context(), "failed to parse affiliate ID", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid affiliate id"})
		return uuid.Nil, false
	}
	return affiliateID, true
}
