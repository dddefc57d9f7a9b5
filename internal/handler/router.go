package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/middleware"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/service"
)

// Handlers aggregates every HTTP handler mounted by the API.
type Handlers struct {
	Auth          *AuthHandler
	Leads         *LeadHandler
	Enrollment    *EnrollmentHandler
	Notifications *NotificationHandler
	Documents     *DocumentHandler
	Admins        *AdminUserHandler
	Metrics       *MetricsHandler
}

// RegisterRoutes mounts the API surface on the router. The enrollment wizard
// endpoints are public (the frontend drives them before any account exists);
// everything management-facing sits behind JWT.
func RegisterRoutes(r *gin.Engine, h Handlers, auth *service.AuthService) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	v1 := r.Group("/api/v1")

	// Public wizard surface.
	v1.POST("/leads", h.Leads.Create)
	v1.PUT("/leads/:id", h.Leads.Update)

	enrollment := v1.Group("/enrollment/lead/:id")
	{
		enrollment.GET("/steps", h.Enrollment.ListSteps)
		enrollment.PUT("/step/:step", h.Enrollment.UpdateStep)
		enrollment.POST("/step/:step/complete", h.Enrollment.CompleteStep)
		enrollment.GET("/progress", h.Enrollment.Progress)
	}

	// Signed downloads carry their own token.
	v1.GET("/documents/download", h.Documents.Download)

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", middleware.JWT(auth), h.Auth.Logout)
		authGroup.POST("/change-password", middleware.JWT(auth), h.Auth.ChangePassword)
		authGroup.GET("/me", middleware.JWT(auth), h.Auth.Me)
	}

	protected := v1.Group("")
	protected.Use(middleware.JWT(auth))
	{
		protected.GET("/leads", h.Leads.List)
		protected.GET("/leads/export", h.Leads.Export)
		protected.GET("/leads/:id", h.Leads.Get)
		protected.DELETE("/leads/:id",
			middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), h.Leads.Delete)
		protected.GET("/leads/:id/activity", h.Leads.Activity)

		protected.GET("/leads/:id/dependents", h.Leads.ListDependents)
		protected.POST("/leads/:id/dependents", h.Leads.AddDependent)
		protected.PUT("/leads/:id/dependents/:dependentId", h.Leads.UpdateDependent)
		protected.DELETE("/leads/:id/dependents/:dependentId", h.Leads.RemoveDependent)

		// Legacy path kept for the existing admin frontend.
		protected.POST("/users/force-update-status",
			middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), h.Leads.ForceUpdateStatus)

		protected.GET("/notifications/lead/:id/history", h.Notifications.History)
		protected.POST("/notifications/lead/:id/send", h.Notifications.Send)
		protected.POST("/notifications/lead/:id/resend", h.Notifications.Resend)
		protected.GET("/notifications/test-email", h.Notifications.TestEmail)
		protected.GET("/notifications/test-whatsapp", h.Notifications.TestWhatsApp)

		protected.POST("/documents/lead/:id/enrollment-pdf", h.Documents.Generate)
		protected.GET("/documents/lead/:id", h.Documents.List)
		protected.GET("/documents/:id/url", h.Documents.SignedURL)

		protected.GET("/metrics/snapshot",
			middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), h.Metrics.Snapshot)

		admins := protected.Group("/admins")
		admins.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
		{
			admins.GET("", h.Admins.List)
			admins.POST("", middleware.RequireRoles(models.RoleSuperAdmin), h.Admins.Create)
			admins.GET("/:id", h.Admins.Get)
			admins.PUT("/:id", middleware.RequireRoles(models.RoleSuperAdmin), h.Admins.Update)
			admins.DELETE("/:id", middleware.RequireRoles(models.RoleSuperAdmin), h.Admins.Delete)
		}
	}
}
