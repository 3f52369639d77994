package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"voicecampaign/internal/agent"
	"voicecampaign/internal/auth"
	"voicecampaign/internal/calls"
	"voicecampaign/internal/campaign"
	"voicecampaign/internal/creds"
	"voicecampaign/internal/reporting"
	"voicecampaign/internal/usage"
	"voicecampaign/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Campaigns *campaign.Service
	Agents    agent.Repository
	Runs      calls.Repository
	Usage     *usage.Service
	Reports   *reporting.Service
	Creds     creds.Repository
}

// writeServiceError maps sentinel errors from internal services to HTTP
// status codes. Unknown errors become a 500 without leaking internals.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, agent.ErrNotFound),
		errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, campaign.ErrPreconditionFailed):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, campaign.ErrConfigMissing):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, campaign.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("request failed", "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func tenantFrom(c *gin.Context) (string, bool) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return "", false
	}
	return tenantID, true
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.TenantID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, tenant_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.TenantID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Campaigns ---

type createCampaignRequest struct {
	AgentID string `json:"agent_id"`
	Source  string `json:"source,omitempty"`
}

func (h Handlers) CreateCampaign(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	out, err := h.Campaigns.Create(c.Request.Context(), tenantID, req.AgentID, req.Source)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) ListCampaigns(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	out, err := h.Campaigns.List(c.Request.Context(), tenantID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": out})
}

func (h Handlers) GetCampaign(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	out, err := h.Campaigns.Get(c.Request.Context(), tenantID, c.Param("campaign_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) GetCampaignProgress(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	out, err := h.Campaigns.GetProgress(c.Request.Context(), tenantID, c.Param("campaign_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type loadContactsRequest struct {
	Contacts []campaign.SourceRow `json:"contacts"`
}

func (h Handlers) LoadContacts(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req loadContactsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	n, err := h.Campaigns.LoadContacts(c.Request.Context(), tenantID, c.Param("campaign_id"), req.Contacts)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loaded": n})
}

func (h Handlers) StartCampaign(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	actorID, _ := auth.UserID(c.Request.Context())
	n, err := h.Campaigns.Start(c.Request.Context(), tenantID, actorID, c.Param("campaign_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": campaign.StateRunning, "enqueued": n})
}

func (h Handlers) PauseCampaign(c *gin.Context) {
	h.transitionCampaign(c, h.Campaigns.Pause, campaign.StatePaused)
}

func (h Handlers) ResumeCampaign(c *gin.Context) {
	h.transitionCampaign(c, h.Campaigns.Resume, campaign.StateRunning)
}

func (h Handlers) StopCampaign(c *gin.Context) {
	h.transitionCampaign(c, h.Campaigns.Stop, campaign.StateStopped)
}

func (h Handlers) transitionCampaign(c *gin.Context, op func(ctx context.Context, tenantID, actorID, campaignID string) error, to campaign.State) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	actorID, _ := auth.UserID(c.Request.Context())
	if err := op(c.Request.Context(), tenantID, actorID, c.Param("campaign_id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": to})
}

// --- Agents ---

func (h Handlers) ListAgents(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	out, err := h.Agents.List(c.Request.Context(), tenantID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": out})
}

func (h Handlers) GetAgent(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	out, err := h.Agents.Get(c.Request.Context(), tenantID, c.Param("agent_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Call runs ---

func (h Handlers) ListRuns(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	out, err := h.Runs.ListRuns(c.Request.Context(), tenantID, rng.From, rng.To, c.Query("campaign_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

// GetRun returns one run with its full turn history and a rendered
// transcript. Runs are keyed globally; the tenant check happens here.
func (h Handlers) GetRun(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	run, err := h.Runs.GetRun(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if run.TenantID != tenantID {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	turns, err := h.Runs.ListTurns(c.Request.Context(), run.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run":        run,
		"turns":      turns,
		"transcript": calls.RenderTranscript(turns),
	})
}

// --- Usage ---

func (h Handlers) MonthUsage(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	totals, buckets, err := h.Usage.MonthSummary(c.Request.Context(), tenantID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totals": totals, "days": buckets})
}

// --- Reports ---

func (h Handlers) RunsReport(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.RunsSummary(c.Request.Context(), reporting.RunsSummaryRequest{
		TenantID:   tenantID,
		Range:      rng,
		CampaignID: c.Query("campaign_id"),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) SpendReport(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.SpendSummary(c.Request.Context(), reporting.SpendSummaryRequest{
		TenantID: tenantID,
		Range:    rng,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) CampaignReport(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	out, err := h.Reports.CampaignOutcome(c.Request.Context(), reporting.CampaignOutcomeRequest{
		TenantID:   tenantID,
		CampaignID: c.Param("campaign_id"),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// parseRange reads from/to query params as RFC 3339 timestamps. A missing
// range defaults to the last 30 days.
func parseRange(c *gin.Context) (reporting.TimeRange, bool) {
	now := time.Now().UTC()
	rng := reporting.TimeRange{From: now.AddDate(0, 0, -30), To: now}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return reporting.TimeRange{}, false
		}
		rng.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return reporting.TimeRange{}, false
		}
		rng.To = t
	}
	return rng, true
}

// --- Telephony credentials ---

type putCredentialsRequest struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token"`
	FromNumber string `json:"from_number"`
}

// PutCredentials stores tenant-scoped telephony credentials. They take
// precedence over the platform fallback for every call placed afterwards,
// including jobs already sitting in the queue.
func (h Handlers) PutCredentials(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	var req putCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AccountSID == "" || req.AuthToken == "" || req.FromNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "account_sid, auth_token, from_number required"})
		return
	}
	err := h.Creds.Put(c.Request.Context(), tenantID, creds.Credentials{
		AccountSID: req.AccountSID,
		AuthToken:  req.AuthToken,
		FromNumber: req.FromNumber,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stored"})
}

func (h Handlers) DeleteCredentials(c *gin.Context) {
	tenantID, ok := tenantFrom(c)
	if !ok {
		return
	}
	if err := h.Creds.Delete(c.Request.Context(), tenantID); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
