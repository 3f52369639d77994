package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"voicecampaign/internal/auth"

	"github.com/gin-gonic/gin"
)

func serve(t *testing.T, tenantID, role string, allowed ...string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", tenantID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireTenant(), RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	if code := serve(t, "t1", RoleAdmin, RoleOwner); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_DeniesUnlistedRole(t *testing.T) {
	if code := serve(t, "t1", RoleOperator, RoleOwner); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_TenantRequired(t *testing.T) {
	if code := serve(t, "", RoleOwner, RoleOwner); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}
