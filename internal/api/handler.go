package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"pantry-service/internal/service"
	"pantry-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency the readiness probe checks
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the core services the handlers call
type Services struct {
	Catalog      *service.CatalogService
	Ledger       *service.LedgerService
	Availability *service.AvailabilityService
	Carts        *service.CartService
	Orders       *service.OrderService
	Shop         *service.ShopService
	Reports      *service.ReportService
}

// Handler contains HTTP handlers
type Handler struct {
	catalog      *service.CatalogService
	ledger       *service.LedgerService
	availability *service.AvailabilityService
	carts        *service.CartService
	orders       *service.OrderService
	shop         *service.ShopService
	reports      *service.ReportService
	deps         map[string]Pinger
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler. deps are checked by /ready.
func NewHandler(svc Services, deps map[string]Pinger) *Handler {
	return &Handler{
		catalog:      svc.Catalog,
		ledger:       svc.Ledger,
		availability: svc.Availability,
		carts:        svc.Carts,
		orders:       svc.Orders,
		shop:         svc.Shop,
		reports:      svc.Reports,
		deps:         deps,
		logger:       util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.POST("/products", h.createProduct)
		v1.GET("/products/:id", h.getProduct)
		v1.PUT("/products/:id", h.updateProduct)
		v1.DELETE("/products/:id", h.deleteProduct)
		v1.GET("/products/:id/movements", h.productMovements)
		v1.GET("/products/:id/availability", h.productAvailability)
		v1.GET("/products/:id/balances", h.productBalances)
		v1.GET("/products/:id/outbound", h.productOutbound)
		v1.POST("/products/:id/verify", h.verifyProduct)

		v1.GET("/locations", h.listLocations)
		v1.POST("/locations", h.createLocation)
		v1.PUT("/locations/:id", h.renameLocation)
		v1.DELETE("/locations/:id", h.deleteLocation)

		v1.GET("/keys/products/:key", h.productKeyAvailable)
		v1.GET("/keys/locations/:key", h.locationKeyAvailable)

		v1.GET("/clients", h.listClients)
		v1.POST("/clients", h.createClient)
		v1.GET("/clients/:id", h.getClient)
		v1.PUT("/clients/:id", h.updateClient)
		v1.GET("/clients/:id/orders", h.clientOrders)

		v1.GET("/movements", h.listMovements)
		v1.POST("/movements", h.appendMovement)
		v1.GET("/movements/:id", h.getMovement)
		v1.PUT("/movements/:id", h.updateMovement)
		v1.DELETE("/movements/:id", h.deleteMovement)
		v1.GET("/movements/:id/corrections", h.movementCorrections)
		v1.POST("/inventory/rebuild", h.rebuildInventory)

		v1.GET("/carts/:key", h.getCart)
		v1.DELETE("/carts/:key", h.clearCart)
		v1.POST("/carts/:key/items", h.addToCart)
		v1.DELETE("/carts/:key/items/:product_id", h.removeFromCart)

		v1.POST("/checkout", h.checkout)
		v1.POST("/kiosk/checkout", h.kioskCheckout)

		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/movements", h.orderMovements)
		v1.POST("/orders/:id/status", h.updateOrderStatus)

		v1.GET("/shop/:category", h.shopCategory)

		v1.GET("/reports/revenue", h.revenueReport)
		v1.GET("/reports/balances", h.balanceReport)
		v1.GET("/reports/dashboard", h.dashboard)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// requestLogger writes one structured line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
