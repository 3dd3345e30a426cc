package handlers

import (
	"github.com/expresspay/expresspay-go/internal/adapters/browser"
	"github.com/expresspay/expresspay-go/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures the Gin router with all routes. challenges may be
// nil when no relay surface is in use.
func SetupRouter(handler *PaymentHandler, challenges *ChallengeHandler, ginMode, apiKey string) *gin.Engine {
	gin.SetMode(ginMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware())
	router.Use(metrics.PrometheusMiddleware("expresspay-go"))
	router.SetHTMLTemplate(browser.ChallengeTemplate)

	// Health check and metrics (public)
	router.GET("/health", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes (requires Bearer auth)
	v1 := router.Group("/api/v1")
	v1.Use(ServiceAuthMiddleware(apiKey))
	{
		payments := v1.Group("/payments")
		{
			payments.POST("/card", handler.CreateCardPayment)
			payments.POST("/applepay", handler.CreateApplePayPayment)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.GET("/:id", handler.GetAttempt)
			attempts.DELETE("/:id", handler.CancelAttempt)
		}

		v1.GET("/transactions", handler.ListTransactions)
		v1.DELETE("/transactions", handler.ClearTransactions)
	}

	// Challenge relay (public, reached by the payer's browser and the ACS)
	if challenges != nil {
		ch := router.Group("/challenges/:id")
		{
			ch.GET("", challenges.Show)
			ch.GET("/complete", challenges.Complete)
			ch.POST("/complete", challenges.Complete)
			ch.GET("/cancel", challenges.Cancel)
			ch.POST("/cancel", challenges.Cancel)
			ch.POST("/error", challenges.Fail)
		}
	}

	return router
}
