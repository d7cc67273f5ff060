package handlers

import (
	"smart_cash_power/internal/logger"
	"smart_cash_power/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	gatherer prometheus.Gatherer
}

// NewHandler constructs a new HTTP handler with dependencies. A nil gatherer
// disables /metrics.
func NewHandler(services *service.Service, log *logger.Logger, gatherer prometheus.Gatherer) *Handler {
	return &Handler{services: services, log: log, gatherer: gatherer}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if h.log != nil {
		router.Use(logger.GinMiddleware(h.log))
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// live meter stream; the token travels in the query string
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdentityMiddleware)
	{
		api.POST("/auth/sign-out", h.signOut)
		h.registerMeterRoutes(api)
		h.registerDashboardRoutes(api)
		h.registerLedgerRoutes(api)
		h.registerTransactionRoutes(api)
	}
}

func (h *Handler) registerMeterRoutes(api *gin.RouterGroup) {
	meters := api.Group("/meters", h.nonAdminMiddleware)
	{
		meters.GET("", h.listMeters)
		meters.POST("", h.addMeter)
		meters.POST("/refresh", h.refreshMeters)
		meters.DELETE("/:id", h.deleteMeter)
		meters.GET("/:id/snapshot", h.meterSnapshot)
		// Body example: {"currentUnits":0,"usedUnits":12.5}
		meters.PUT("/:id/units", h.writeUnits)
	}
}

func (h *Handler) registerDashboardRoutes(api *gin.RouterGroup) {
	dash := api.Group("/dashboard", h.nonAdminMiddleware)
	{
		dash.GET("/live", h.dashboardLive)
		dash.GET("/canonical", h.dashboardCanonical)
	}
}

func (h *Handler) registerLedgerRoutes(api *gin.RouterGroup) {
	api.GET("/ledger", h.getLedger)
}

func (h *Handler) registerTransactionRoutes(api *gin.RouterGroup) {
	txs := api.Group("/transactions", h.nonAdminMiddleware)
	{
		// Body example: {"meterId":1,"amount":500}
		txs.POST("/purchase", h.purchase)
		txs.GET("/history", h.transactionHistory)
	}
}
