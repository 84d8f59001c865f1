package main

import (
	"database/sql"

	"voicebot-platform/internal/httpapi"
	"voicebot-platform/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const gatherPath = "/webhooks/twilio/gather"

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, db *sql.DB, rdb *redis.Client, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", httpapi.Healthz(db, func(c *gin.Context) error {
		return rdb.Ping(c.Request.Context()).Err()
	}))

	// Provider webhooks (public).
	// NOTE: These endpoints should be protected by Twilio signature validation in production.
	r.POST("/webhooks/twilio/voice", h.TwilioVoice)
	r.POST(gatherPath, h.TwilioVoice)
	r.POST("/webhooks/twilio/status", h.TwilioStatus)

	// protected API group
	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	// NOTE: This is a skeleton login route; real credential validation is not implemented.
	v1.POST("/auth/login", h.Login)

	v1.Use(authMW)
	{
		// RESERVATION routes. Hosts can read the book; changes need manager.
		reservations := v1.Group("/reservations")
		{
			reservations.GET("", rbac.RequireAnyRole(rbac.RoleHost, rbac.RoleManager), h.ListReservations)
			reservations.GET("/:id", rbac.RequireAnyRole(rbac.RoleHost, rbac.RoleManager), h.GetReservation)

			reservations.POST("", rbac.RequireAnyRole(rbac.RoleManager), h.CreateReservation)
			reservations.PATCH("/:id", rbac.RequireAnyRole(rbac.RoleManager), h.UpdateReservation)
			reservations.DELETE("/:id", rbac.RequireAnyRole(rbac.RoleManager), h.CancelReservation)
			reservations.POST("/:id/complete", rbac.RequireAnyRole(rbac.RoleManager), h.CompleteReservation)
			reservations.POST("/:id/no-show", rbac.RequireAnyRole(rbac.RoleManager), h.NoShowReservation)
		}

		v1.GET("/availability", rbac.RequireAnyRole(rbac.RoleHost, rbac.RoleManager), h.Availability)

		// ADMIN routes: call history and the audit trail.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.GET("/calls", h.ListCalls)
			admin.GET("/calls/:call_id", h.GetCall)
			admin.GET("/audit", h.ListAudit)
		}
	}
}
