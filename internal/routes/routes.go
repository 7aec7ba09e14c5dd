package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/revaspay/onboarding/internal/config"
	"github.com/revaspay/onboarding/internal/handlers"
	"github.com/revaspay/onboarding/internal/middleware"
	"github.com/revaspay/onboarding/internal/utils"
)

// Deps carries everything the router needs
type Deps struct {
	Config         *config.Config
	Signer         *utils.TokenSigner
	Gatherer       prometheus.Gatherer
	Webhook        *handlers.VerificationWebhookHandler
	Onboarding     *handlers.OnboardingHandler
	Health         *handlers.HealthHandler
	APILimiter     *middleware.RateLimiter
	WebhookLimiter *middleware.RateLimiter
}

// NewRouter builds the gin engine with every route registered
func NewRouter(deps Deps) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(corsConfig(deps.Config.Security.CORSAllowedOrigins)))
	router.Use(middleware.SecureHeadersMiddleware(middleware.DefaultSecureHeadersConfig(deps.Config.IsProduction())))

	RegisterRoutes(router, deps)
	return router
}

// RegisterRoutes configures all routes
func RegisterRoutes(router *gin.Engine, deps Deps) {
	router.GET("/healthz", deps.Health.Health)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	SetupWebhookRoutes(router, deps.Webhook, deps.WebhookLimiter)
	RegisterOnboardingRoutes(router, deps.Onboarding, deps.Signer, deps.APILimiter)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})
}

// RegisterOnboardingRoutes registers the caller-facing onboarding API
func RegisterOnboardingRoutes(router *gin.Engine, handler *handlers.OnboardingHandler, signer *utils.TokenSigner, limiter *middleware.RateLimiter) {
	group := router.Group("/api/v1/organizations/:id/onboarding")
	if limiter != nil {
		group.Use(limiter.Middleware())
	}
	group.Use(middleware.AuthMiddleware(signer))
	{
		group.POST("", handler.StartOnboarding)
		group.GET("", handler.GetOnboardingStatus)
		group.POST("/retry", handler.RetryOnboarding)
		group.POST("/sync", handler.SyncOnboardingStatus)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
