// Package server assembles the API's gin router.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "coinfolio/internal/docs" // Import swagger docs
	"coinfolio/internal/handlers"
	"coinfolio/internal/middleware"
	"coinfolio/internal/services"
	"coinfolio/internal/updates"
)

// Deps are the collaborators the router hands to its handlers.
type Deps struct {
	Users    services.UserServicer
	Wallet   services.WalletServicer
	Prices   services.PriceServicer
	Profiles services.ProfileServicer
	Hub      *updates.Hub
	Issuer   *middleware.TokenIssuer

	// AuthLimiter throttles register and login per client IP; nil disables it.
	AuthLimiter *middleware.IPRateLimiter
	// MetricsAPIKey guards /metrics when set.
	MetricsAPIKey string
}

// NewRouter builds the gin engine with every API route.
func NewRouter(d Deps) *gin.Engine {
	authHandler := handlers.NewAuthHandler(d.Users, d.Profiles, d.Issuer)
	walletHandler := handlers.NewWalletHandler(d.Wallet)
	adminHandler := handlers.NewAdminHandler(d.Users, d.Wallet)
	priceHandler := handlers.NewPriceHandler(d.Prices)
	updatesHandler := handlers.NewUpdatesHandler(d.Hub)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.Metrics())
	router.Use(middleware.ErrorHandler())
	router.Use(cors())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", middleware.APIKeyMiddleware(d.MetricsAPIKey), gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public routes
	auth := api.Group("/auth")
	if d.AuthLimiter != nil {
		auth.Use(middleware.RateLimit(d.AuthLimiter))
	}
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	// Protected routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(d.Issuer))

	protected.GET("/auth/me", authHandler.Me)
	protected.GET("/prices", priceHandler.Prices)
	protected.GET("/updates/stream", updatesHandler.Stream)

	wallet := protected.Group("/wallet")
	wallet.POST("/deposits", walletHandler.Deposit)
	wallet.POST("/withdrawals", walletHandler.Withdraw)
	wallet.GET("/withdrawals/quote", walletHandler.Quote)
	wallet.GET("/transactions", walletHandler.Transactions)

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/users", adminHandler.ListUsers)
	admin.PUT("/users/:id/balance", adminHandler.SetBalance)
	admin.PUT("/users/:id/holdings", adminHandler.SetHoldings)
	admin.GET("/transactions", adminHandler.ListTransactions)
	admin.POST("/transactions/:id/approve", adminHandler.Approve)
	admin.POST("/transactions/:id/reject", adminHandler.Reject)

	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
