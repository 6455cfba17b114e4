package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/middleware"
	"github.com/noah-isme/sma-admissions-api/internal/models"
)

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// Routes groups everything needed to mount the API.
type Routes struct {
	Prefix       string
	Tokens       tokenValidator
	Audit        auditWriter
	Auth         *AuthHandler
	Public       *PublicHandler
	Applications *ApplicationHandler
	Attachments  *AttachmentHandler
	AdmitCards   *AdmitCardHandler
	Counters     *CounterHandler
	History      *AuditHandler
	Metrics      *MetricsHandler
}

// Register mounts the ops endpoints at the root and the API under Prefix.
func (r Routes) Register(engine gin.IRouter) {
	if r.Metrics != nil {
		engine.GET("/health", r.Metrics.Health)
		engine.GET("/ready", r.Metrics.Ready)
		engine.GET("/metrics", r.Metrics.Prometheus)
	}

	api := engine.Group(r.Prefix)
	api.Use(middleware.WithResponseMeta())

	api.POST("/auth/login", r.Auth.Login)
	api.POST("/public/:category", middleware.OptionalJWT(r.Tokens), r.Public.Submit)
	api.GET("/public/verify/:externalId", r.Public.Verify)
	api.GET("/files/download", r.Attachments.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(r.Tokens))
	secured.GET("/auth/me", r.Auth.Me)
	secured.POST("/users", middleware.RequireRoles(models.RoleSuperAdmin), r.Auth.CreateUser)

	staff := middleware.StaffOrAbove()
	admin := middleware.AdminOrAbove()

	apps := secured.Group("/applications")
	apps.GET("", staff, r.Applications.List)
	apps.GET("/export", admin, middleware.Audit(r.Audit, models.AuditActionApplicationExport, models.AuditResourceApplication), r.Applications.Export)
	apps.GET("/:id", staff, r.Applications.Get)
	apps.PATCH("/:id", admin, r.Applications.Update)
	apps.POST("/:id/transition", admin, r.Applications.Transition)
	apps.DELETE("/:id", admin, r.Applications.Delete)
	if r.History != nil {
		apps.GET("/:id/history", staff, r.History.History)
	}

	apps.GET("/:id/attachments", staff, r.Attachments.List)
	apps.PUT("/:id/attachments/:role", admin, r.Attachments.Put)
	apps.DELETE("/:id/attachments/:role", admin, r.Attachments.Release)
	apps.GET("/:id/attachments/:role/url", staff, r.Attachments.URL)
	apps.POST("/:id/admit-card", admin, r.AdmitCards.Issue)

	secured.GET("/counters/:category", admin, r.Counters.Get)
	if r.Metrics != nil {
		secured.GET("/ops/summary", admin, r.Metrics.Summary)
	}
}
