// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/devmart/devmart-backend/internal/config"
	"github.com/devmart/devmart-backend/internal/handlers"
	"github.com/devmart/devmart-backend/internal/middleware"
	"github.com/devmart/devmart-backend/internal/services"
	"github.com/devmart/devmart-backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config) *gin.Engine {
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Services
	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		logrus.WithError(err).Warn("Storage unavailable, archive upload/download disabled")
		storageService = &services.StorageService{}
	}
	paymentProvider := services.NewStripeProvider(cfg.Payment)
	licensePolicy := services.BuildLicensePolicy(cfg.License, cfg.Payment.Currency)
	providerTimeout := time.Duration(cfg.Payment.RequestTimeout) * time.Second

	authService := services.NewAuthService(db, cfg)
	oauthService := services.NewOAuthService(db, cfg, authService)
	projectService := services.NewProjectService(db, storageService)
	licenseService := services.NewLicenseService(db, licensePolicy, paymentProvider, providerTimeout)
	reviewService := services.NewReviewService(db)
	adminService := services.NewAdminService(db, licenseService)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, oauthService)
	projectHandler := handlers.NewProjectHandler(projectService, storageService)
	licenseHandler := handlers.NewLicenseHandler(licenseService)
	paymentHandler := handlers.NewPaymentHandler(licenseService, cfg.Payment.StripeWebhookSecret)
	reviewHandler := handlers.NewReviewHandler(reviewService)
	adminHandler := handlers.NewAdminHandler(adminService)

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.Frontend.BaseURL))

	rateLimited := cfg.Environment != "test"
	if rateLimited {
		r.Use(middleware.GeneralRateLimit())
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		if rateLimited {
			auth.Use(middleware.AuthRateLimit())
		}
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", middleware.AuthRequired(authService), authHandler.Logout)
			auth.GET("/me", middleware.AuthRequired(authService), authHandler.Me)
			auth.GET("/oauth/:provider", authHandler.OAuthRedirect)
			auth.POST("/oauth/:provider/callback", authHandler.OAuthCallback)
		}

		projects := v1.Group("/projects")
		{
			projects.GET("", middleware.OptionalAuth(authService), projectHandler.Search)
			projects.GET("/:id", middleware.OptionalAuth(authService), projectHandler.Get)
			projects.GET("/:id/code", middleware.OptionalAuth(authService), projectHandler.Code)
			projects.GET("/:id/download", middleware.OptionalAuth(authService), projectHandler.Download)
			projects.GET("/:id/run", middleware.OptionalAuth(authService), projectHandler.Run)
			projects.GET("/:id/reviews", middleware.OptionalAuth(authService), reviewHandler.List)

			protected := projects.Group("")
			protected.Use(middleware.AuthRequired(authService))
			{
				protected.POST("", projectHandler.Create)
				protected.PUT("/:id", projectHandler.Update)
				protected.DELETE("/:id", projectHandler.Delete)
				protected.POST("/:id/publish", projectHandler.Publish)
				protected.POST("/:id/archive", projectHandler.UploadArchive)
				protected.POST("/:id/reviews", reviewHandler.Create)
			}
		}

		licenses := v1.Group("/licenses")
		{
			licenses.GET("/:id/verify", licenseHandler.Verify)

			protected := licenses.Group("")
			protected.Use(middleware.AuthRequired(authService))
			{
				protected.GET("", licenseHandler.MyLicenses)
				protected.GET("/:id", licenseHandler.Get)
				if rateLimited {
					protected.POST("/purchase", middleware.PurchaseRateLimit(), licenseHandler.Purchase)
				} else {
					protected.POST("/purchase", licenseHandler.Purchase)
				}
			}
		}

		payments := v1.Group("/payments")
		{
			// Webhook authenticates with the provider signature, not a
			// bearer token.
			payments.POST("/webhook", paymentHandler.Webhook)
			payments.POST("/confirm", middleware.AuthRequired(authService), paymentHandler.Confirm)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(authService), middleware.AdminRequired())
		{
			admin.GET("/licenses", adminHandler.ListLicenses)
			admin.POST("/licenses/:id/refund", adminHandler.RefundLicense)
			admin.GET("/users", adminHandler.ListUsers)
			admin.PUT("/users/:id/status", adminHandler.SetUserStatus)
		}
	}

	return r
}
