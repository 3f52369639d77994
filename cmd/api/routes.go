package main

import (
	"net/http"

	"voicecampaign/internal/auth"
	"voicecampaign/internal/conversation"
	"voicecampaign/internal/httpapi"
	"voicecampaign/internal/queue"
	"voicecampaign/internal/rbac"
	"voicecampaign/internal/usage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(
	r *gin.Engine,
	h httpapi.Handlers,
	engine *conversation.Engine,
	jobs queue.Queue,
	authMW gin.HandlerFunc,
) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := jobs.Healthy(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "queue": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks (public).
	// NOTE: These endpoints should be protected by Twilio signature validation
	// in production.
	conversation.RegisterRoutes(r, engine)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			c.JSON(http.StatusOK, identityFrom(c))
		})

		// AUTH routes (token issuance).
		// NOTE: This is a placeholder login route; real credential validation
		// is not implemented.
		v1.POST("/auth/login", h.Login)

		campaigns := v1.Group("/campaigns")
		campaigns.Use(rbac.RequireTenant())
		campaigns.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleOperator, rbac.RoleAdmin))
		{
			campaigns.POST("", h.CreateCampaign)
			campaigns.GET("", h.ListCampaigns)
			campaigns.GET("/:campaign_id", h.GetCampaign)
			campaigns.GET("/:campaign_id/progress", h.GetCampaignProgress)
			campaigns.POST("/:campaign_id/contacts", h.LoadContacts)

			// Start dispatches billable calls; the quota gate runs before the
			// state transition so a capped tenant never leaves created.
			campaigns.POST("/:campaign_id/start", usage.RequireQuota(h.Usage), h.StartCampaign)
			campaigns.POST("/:campaign_id/pause", h.PauseCampaign)
			campaigns.POST("/:campaign_id/resume", h.ResumeCampaign)
			campaigns.POST("/:campaign_id/stop", h.StopCampaign)
		}

		agents := v1.Group("/agents")
		agents.Use(rbac.RequireTenant())
		{
			agents.GET("", h.ListAgents)
			agents.GET("/:agent_id", h.GetAgent)
		}

		runs := v1.Group("/runs")
		runs.Use(rbac.RequireTenant())
		{
			runs.GET("", h.ListRuns)
			runs.GET("/:run_id", h.GetRun)
		}

		v1.GET("/usage/month", rbac.RequireTenant(), h.MonthUsage)

		reports := v1.Group("/reports")
		reports.Use(rbac.RequireTenant())
		{
			reports.GET("/runs", h.RunsReport)
			reports.GET("/spend", h.SpendReport)
			reports.GET("/campaigns/:campaign_id", h.CampaignReport)
		}

		// Credential management is owner/admin only: a stored credential set
		// silently redirects billing for every subsequent call.
		credentials := v1.Group("/credentials")
		credentials.Use(rbac.RequireTenant())
		credentials.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAdmin))
		{
			credentials.PUT("", h.PutCredentials)
			credentials.DELETE("", h.DeleteCredentials)
		}
	}
}

func identityFrom(c *gin.Context) gin.H {
	uid, _ := auth.UserID(c.Request.Context())
	tenantID, _ := auth.TenantID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	return gin.H{"user_id": uid, "tenant_id": tenantID, "role": role}
}
