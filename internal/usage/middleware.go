package usage

import (
	"net/http"
	"strconv"
	"strings"

	"voicecampaign/internal/auth"
	"voicecampaign/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	headerEstimatedTokens = "X-Estimated-Tokens"
	headerEstimatedCalls  = "X-Estimated-Calls"
)

// RequireQuota blocks the request if the tenant's remaining monthly quota
// cannot cover the estimated usage.
//
// Estimate sources (non-business-logic):
// - X-Estimated-Tokens / X-Estimated-Calls headers when present
// - otherwise a single call is assumed
//
// Admin exemption is applied inside the service via the role claim.
func RequireQuota(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := auth.TenantID(c.Request.Context())
		if err != nil || tenantID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
			return
		}
		role, _ := auth.Role(c.Request.Context())

		estimate := Usage{Calls: 1}
		if raw := strings.TrimSpace(c.GetHeader(headerEstimatedTokens)); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n < 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid estimated tokens"})
				return
			}
			estimate.Tokens = n
		}
		if raw := strings.TrimSpace(c.GetHeader(headerEstimatedCalls)); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid estimated calls"})
				return
			}
			estimate.Calls = n
		}

		decision, err := svc.CheckCallLimit(c.Request.Context(), tenantID, role, estimate)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "quota check failed"})
			return
		}
		if !decision.Allowed {
			utils.QuotaDenialsTotal.Inc()
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":            "quota exceeded",
				"reason":           decision.Reason,
				"tier":             decision.Tier,
				"remaining_tokens": decision.RemainingTokens,
				"remaining_calls":  decision.RemainingCalls,
				"suggestion":       decision.Suggestion,
			})
			return
		}
		c.Next()
	}
}
