package api

import (
	affiliatesHandler "commission-engine/internal/affiliates/handler"
	authHandler "commission-engine/internal/auth/handler"
	billingHandler "commission-engine/internal/billing/handler"
	commissionsHandler "commission-engine/internal/commissions/handler"
	"commission-engine/internal/observability"
	payoutsHandler "commission-engine/internal/payouts/handler"
	poolsHandler "commission-engine/internal/pools/handler"
	rewardsHandler "commission-engine/internal/rewards/handler"
	"net/http"

	"github.com/gin-gonic/gin"
)

type API struct {
	router            *gin.RouterGroup
	authHandler       authHandler.Handler
	affiliateHandler  affiliatesHandler.Handler
	commissionHandler commissionsHandler.Handler
	rewardHandler     rewardsHandler.Handler
	poolHandler       poolsHandler.Handler
	payoutHandler     payoutsHandler.Handler
	billingHandler    billingHandler.Handler
}

func New(
	router *gin.RouterGroup,
	authHandler authHandler.Handler,
	affiliateHandler affiliatesHandler.Handler,
	commissionHandler commissionsHandler.Handler,
	rewardHandler rewardsHandler.Handler,
	poolHandler poolsHandler.Handler,
	payoutHandler payoutsHandler.Handler,
	billingHandler billingHandler.Handler,
) API {
	return API{
		router:            router,
		authHandler:       authHandler,
		affiliateHandler:  affiliateHandler,
		commissionHandler: commissionHandler,
		rewardHandler:     rewardHandler,
		poolHandler:       poolHandler,
		payoutHandler:     payoutHandler,
		billingHandler:    billingHandler,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	a.router.GET("/metrics", observability.MetricsHandler())

	apiGroup := a.router.Group("/api")
	apiGroup.POST("/billing/webhook", a.billingHandler.HandleWebhook)

	protectedGroup := apiGroup.Group("/protected", a.authHandler.HandleJWTMiddleware, a.authHandler.HandleResolveAffiliate)
	{
		affiliateGroup := protectedGroup.Group("/affiliate")
		affiliateGroup.POST("", a.affiliateHandler.HandleRegister)
		affiliateGroup.GET("", a.affiliateHandler.HandleGetProfile)
		affiliateGroup.POST("/mode", a.affiliateHandler.HandleSwitchMode)
		affiliateGroup.PUT("/payout-details", a.affiliateHandler.HandleUpdatePayoutDetails)
		affiliateGroup.GET("/commissions", a.commissionHandler.HandleListMyCommissions)
		affiliateGroup.GET("/rewards", a.rewardHandler.HandleGetMyHistory)
		affiliateGroup.POST("/payouts", a.payoutHandler.HandleRequestPayout)
		affiliateGroup.GET("/payouts/open", a.payoutHandler.HandleGetMyOpenPayout)

		protectedGroup.GET("/pools/ranked/ticker", a.poolHandler.HandleGetTicker)
		protectedGroup.GET("/pools/lottery/:year", a.poolHandler.HandleGetPot)
	}

	adminGroup := apiGroup.Group("/admin", a.authHandler.HandleJWTMiddleware, a.authHandler.HandleRequireAdmin)
	{
		affiliatesGroup := adminGroup.Group("/affiliates")
		affiliatesGroup.GET("", a.affiliateHandler.HandleListAffiliates)
		affiliatesGroup.GET("/:affiliate_id", a.affiliateHandler.HandleGetAffiliate)
		affiliatesGroup.PUT("/:affiliate_id/status", a.affiliateHandler.HandleUpdateStatus)
		affiliatesGroup.GET("/:affiliate_id/commissions", a.commissionHandler.HandleListAffiliateCommissions)
		affiliatesGroup.POST("/:affiliate_id/reconcile", a.commissionHandler.HandleReconcileAffiliate)
		affiliatesGroup.GET("/:affiliate_id/rewards", a.rewardHandler.HandleGetHistory)
		affiliatesGroup.POST("/:affiliate_id/rewards/adjust", a.rewardHandler.HandleAdjustPoints)

		adminGroup.POST("/sales", a.commissionHandler.HandleRecordSale)

		commissionsGroup := adminGroup.Group("/commissions")
		commissionsGroup.GET("/:commission_id", a.commissionHandler.HandleGetCommission)
		commissionsGroup.POST("/:commission_id/confirm", a.commissionHandler.HandleConfirm)
		commissionsGroup.POST("/:commission_id/cancel", a.commissionHandler.HandleCancel)

		ledgerGroup := adminGroup.Group("/ledger")
		ledgerGroup.POST("/reconcile", a.commissionHandler.HandleReconcileAll)
		ledgerGroup.GET("/halt", a.commissionHandler.HandleGetHalt)
		ledgerGroup.POST("/halts/:halt_id/resolve", a.commissionHandler.HandleResolveHalt)

		poolsGroup := adminGroup.Group("/pools")
		poolsGroup.POST("/ranked/run", a.poolHandler.HandleRunRanked)
		poolsGroup.POST("/ranked/backfill", a.poolHandler.HandleBackfillRanked)
		poolsGroup.POST("/ranked/snapshot", a.poolHandler.HandleSnapshot)
		poolsGroup.GET("/ranked/:date", a.poolHandler.HandleGetRankedDay)
		poolsGroup.POST("/lottery/:year/run", a.poolHandler.HandleRunLottery)

		payoutsGroup := adminGroup.Group("/payouts")
		payoutsGroup.GET("", a.payoutHandler.HandleListPayouts)
		payoutsGroup.POST("/process-pending", a.payoutHandler.HandleProcessPending)
		payoutsGroup.GET("/:payout_id", a.payoutHandler.HandleGetPayout)
		payoutsGroup.POST("/:payout_id/process", a.payoutHandler.HandleProcessPayout)
		payoutsGroup.POST("/:payout_id/complete", a.payoutHandler.HandleCompleteSettlement)
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
