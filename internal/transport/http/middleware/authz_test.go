package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/usecase"
)

type auditRecorder struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *auditRecorder) WriteAudit(_ context.Context, entry domain.AuditEntry) error {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
	return nil
}

func (r *auditRecorder) last() domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return domain.AuditEntry{}
	}
	return r.entries[len(r.entries)-1]
}

type stubResolver struct {
	sessions map[string]domain.Identity
	tokens   map[string]domain.Identity
}

func (s stubResolver) ResolveSession(_ context.Context, id string) (*domain.Identity, error) {
	identity, ok := s.sessions[id]
	if !ok {
		return nil, usecase.ErrSessionNotFound
	}
	return &identity, nil
}

func (s stubResolver) VerifyToken(token string) (*domain.Identity, bool) {
	identity, ok := s.tokens[token]
	if !ok {
		return nil, false
	}
	return &identity, true
}

var (
	adminID = domain.Identity{SubjectID: domain.AdminSubjectID, Role: domain.RoleAdmin}
	userA   = domain.Identity{SubjectID: "lock-a", Role: domain.RoleUser, LockID: "lock-a"}
)

func newAuthzRouter(t *testing.T) (*gin.Engine, *auditRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := &auditRecorder{}
	audit := usecase.NewAuditService(domain.AuditModeConsole, nil, nil, nil).WithSinks(recorder)
	policy := NewAuthorizationPolicy(audit, nil)
	resolver := stubResolver{
		sessions: map[string]domain.Identity{"sess-admin": adminID},
		tokens:   map[string]domain.Identity{"token-a": userA},
	}

	router := gin.New()
	router.Use(EnrichContext(), ClassifyClient(), Identify(IdentifyOptions{
		APIKey:     "device-key",
		CookieName: "smartlock_session",
		Resolver:   resolver,
	}))

	echo := func(c *gin.Context) {
		identity, _ := CurrentIdentity(c)
		body, _ := io.ReadAll(c.Request.Body)
		c.JSON(http.StatusOK, gin.H{"userId": identity.SubjectID, "role": identity.Role, "body": string(body)})
	}

	router.GET("/dashboard", policy.RequireAuthenticated(), echo)
	router.GET("/api/admin", policy.RequireRole(domain.RoleAdmin), echo)
	router.GET("/api/locks/:lockId", policy.RequireLockOwnership(nil), echo)
	router.POST("/api/temp-codes/revoke", policy.RequireLockOwnership(nil), echo)
	return router, recorder
}

func decodeDeny(t *testing.T, rr *httptest.ResponseRecorder) DenyResponse {
	t.Helper()
	var body DenyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode deny body: %v (%s)", err, rr.Body.String())
	}
	return body
}

func TestRequireAuthenticatedBrowserRedirects(t *testing.T) {
	router, recorder := newAuthzRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if recorder.last().EventType != domain.AuditAuthFailed {
		t.Fatalf("expected AUTH_FAILED audit, got %+v", recorder.last())
	}
}

func TestRequireAuthenticatedAcceptsSessionCookie(t *testing.T) {
	router, _ := newAuthzRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "smartlock_session", Value: "sess-admin"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"role":"admin"`) {
		t.Fatalf("expected admin session to pass, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRequireRoleAdminAPI(t *testing.T) {
	router, recorder := newAuthzRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/admin", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin", nil)
	req.Header.Set("Authorization", "Bearer token-a")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if body := decodeDeny(t, rr); body.Success || body.Error == "" {
		t.Fatalf("unexpected body %+v", body)
	}
	if recorder.last().EventType != domain.AuditAdminRequired || recorder.last().UserID != "lock-a" {
		t.Fatalf("expected ADMIN_REQUIRED audit, got %+v", recorder.last())
	}
}

func TestRequireLockOwnership(t *testing.T) {
	router, recorder := newAuthzRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/locks/lock-a", nil)
	req.Header.Set("Authorization", "Bearer token-a")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("owner should pass, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/locks/lock-b", nil)
	req.Header.Set("Authorization", "Bearer token-a")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign lock, got %d", rr.Code)
	}
	body := decodeDeny(t, rr)
	if body.Success || body.Error != "Forbidden: Access Denied" {
		t.Fatalf("unexpected body %+v", body)
	}
	if last := recorder.last(); last.EventType != domain.AuditLockAccessDenied || last.LockID != "lock-b" {
		t.Fatalf("expected LOCK_ACCESS_DENIED for lock-b, got %+v", last)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/locks/lock-b", nil)
	req.AddCookie(&http.Cookie{Name: "smartlock_session", Value: "sess-admin"})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin should pass, got %d", rr.Code)
	}
}

func TestRequireLockOwnershipChecksEveryLockID(t *testing.T) {
	router, recorder := newAuthzRouter(t)

	send := func(target, payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer token-a")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	if rr := send("/api/temp-codes/revoke?lockId=lock-a", `{"lockId":"lock-b","code":"123456"}`); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for query/body mismatch, got %d", rr.Code)
	}
	if last := recorder.last(); last.EventType != domain.AuditLockAccessDenied || last.LockID != "lock-b" {
		t.Fatalf("expected LOCK_ACCESS_DENIED for lock-b, got %+v", last)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/locks/lock-a?lockId=lock-b", nil)
	req.Header.Set("Authorization", "Bearer token-a")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for param/query mismatch, got %d", rr.Code)
	}

	if rr := send("/api/temp-codes/revoke?lockId=lock-a", `{"lockId":"lock-a","code":"123456"}`); rr.Code != http.StatusOK {
		t.Fatalf("expected matching ids to pass, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRequestLockIDsOrderAndDeduplicate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var ids []string
	var first string
	router := gin.New()
	router.POST("/locks/:lockId", func(c *gin.Context) {
		ids = RequestLockIDs(c)
		first = RequestLockID(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/locks/lock-a?lockId=lock-b", strings.NewReader(`{"lockId":" lock-a "}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(httptest.NewRecorder(), req)

	if len(ids) != 2 || ids[0] != "lock-a" || ids[1] != "lock-b" {
		t.Fatalf("unexpected lock ids %v", ids)
	}
	if first != "lock-a" {
		t.Fatalf("expected route param to win, got %q", first)
	}
}

func TestAPIKeyResolvesSystemIdentityFromBody(t *testing.T) {
	router, _ := newAuthzRouter(t)

	payload := `{"lockId":"lock-b","code":"123456"}`
	req := httptest.NewRequest(http.MethodPost, "/api/temp-codes/revoke", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, "device-key")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected system caller to pass, got %d %s", rr.Code, rr.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["userId"] != "system_bot_lock-b" || body["role"] != "system" {
		t.Fatalf("unexpected identity %v", body)
	}
	if body["body"] != payload {
		t.Fatalf("expected body to be restored, got %q", body["body"])
	}
}

func TestInvalidAPIKeyIsAnonymous(t *testing.T) {
	router, recorder := newAuthzRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set(APIKeyHeader, "wrong")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("api key callers get JSON denials, got %d", rr.Code)
	}
	if recorder.last().EventType != domain.AuditAuthFailed {
		t.Fatalf("expected AUTH_FAILED, got %+v", recorder.last())
	}
}

func TestFlashRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/set", func(c *gin.Context) {
		SetFlash(c, "Code expired, try again")
		c.Status(http.StatusOK)
	})
	router.GET("/get", func(c *gin.Context) {
		c.String(http.StatusOK, PopFlash(c))
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/set", nil))
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}

	req := httptest.NewRequest(http.MethodGet, "/get", nil)
	req.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Body.String() != "Code expired, try again" {
		t.Fatalf("unexpected flash %q", rr.Body.String())
	}
}
