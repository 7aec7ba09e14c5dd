package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/revaspay/onboarding/internal/handlers"
	"github.com/revaspay/onboarding/internal/middleware"
)

// SetupWebhookRoutes configures routes for vendor webhook endpoints. Payload
// signatures are verified upstream of this service.
func SetupWebhookRoutes(router *gin.Engine, handler *handlers.VerificationWebhookHandler, limiter *middleware.RateLimiter) {
	webhookGroup := router.Group("/api/v1/webhooks")
	if limiter != nil {
		webhookGroup.Use(limiter.Middleware())
	}
	{
		// kind is one of liveness, kyc, kyb, cod
		webhookGroup.POST("/verification/:kind", handler.Receive)
	}
}
