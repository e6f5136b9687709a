package handler

import (
	"commission-engine/internal/apierrors"
	"commission-engine/internal/auth/processor"
	"commission-engine/internal/observability"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	authProcessor processor.AuthProcessor
	logger        *observability.Logger
}

func New(authProcessor processor.AuthProcessor, logger *observability.Logger) Handler {
	return Handler{authProcessor: authProcessor, logger: logger}
}

// HandleJWTMiddleware validates the bearer token and stores the caller's
// User-ID and Role in the gin context.
func (h *Handler) HandleJWTMiddleware(c *gin.Context) {
	ctx := c.Request.Context()
	tokenHeader := c.GetHeader("Authorization")

	if tokenHeader == "" || !strings.HasPrefix(tokenHeader, "Bearer ") {
		apierrors.RespondWithError(c, apierrors.Unauthorized("Authorization token is missing or invalid"))
		c.Abort()
		return
	}

	tokenString := strings.TrimPrefix(tokenHeader, "Bearer ")

	claims, err := h.authProcessor.ValidateJWTToken(ctx, tokenString)
	if err != nil {
		apierrors.RespondWithError(c, apierrors.Unauthorized(err.Error()))
		c.Abort()
		return
	}

	c.Set("User-ID", claims.Subject)
	c.Set("Role", claims.Role)
	c.Request = c.Request.WithContext(observability.WithFields(ctx,
		observability.Field{Key: "user_id", Value: claims.Subject},
	))
	c.Next()
}

// HandleRequireAdmin must run after HandleJWTMiddleware
func (h *Handler) HandleRequireAdmin(c *gin.Context) {
	if c.GetString("Role") != processor.RoleAdmin {
		h.logger.Warn(c.Request.Context(), "non-admin caller rejected from admin route")
		apierrors.RespondWithError(c, apierrors.Forbidden("admin role required"))
		c.Abort()
		return
	}
	c.Next()
}

// HandleResolveAffiliate sets Affiliate-ID when the caller owns an affiliate.
// Callers without one continue so they can register.
func (h *Handler) HandleResolveAffiliate(c *gin.Context) {
	ctx := c.Request.Context()

	userID, err := uuid.Parse(c.GetString("User-ID"))
	if err != nil {
		apierrors.RespondWithError(c, apierrors.Unauthorized("user ID not found in context"))
		c.Abort()
		return
	}

	affiliateID, err := h.authProcessor.ResolveAffiliate(ctx, userID)
	switch {
	case err == nil:
		c.Set("Affiliate-ID", affiliateID.String())
		c.Request = c.Request.WithContext(observability.WithFields(ctx,
			observability.Field{Key: "affiliate_id", Value: affiliateID.String()},
		))
	case errors.Is(err, processor.ErrNotAnAffiliate):
	default:
		apierrors.RespondWithError(c, err)
		c.Abort()
		return
	}
	c.Next()
}
