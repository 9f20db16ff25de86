package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "coinfolio/internal/errors"
	"coinfolio/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func parseBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response body: %v", err)
	}
	return result
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := parseBody(t, rec)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

func testUser(role models.Role) *models.User {
	u := &models.User{Email: "alice@example.com", Role: role}
	u.ID = "0190d0a4-0000-7000-8000-000000000001"
	return u
}

func setupAuthRouter(issuer *TokenIssuer) *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthMiddleware(issuer), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(ContextUserID),
			"email":   c.GetString(ContextEmail),
		})
	})
	r.GET("/admin", AuthMiddleware(issuer), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func doAuthRequest(r *gin.Engine, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret-0123456789", time.Hour)
	token, err := issuer.GenerateToken(testUser(models.RoleAdmin))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := issuer.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != testUser(models.RoleAdmin).ID || claims.Subject != claims.UserID {
		t.Errorf("expected user_id and sub to carry the user ID, got %+v", claims)
	}
	if claims.Role != models.RoleAdmin {
		t.Errorf("expected admin role, got %s", claims.Role)
	}
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer := NewTokenIssuer("test-secret-0123456789", time.Hour)

	t.Run("wrong_secret", func(t *testing.T) {
		other := NewTokenIssuer("another-secret-987654321", time.Hour)
		token, _ := other.GenerateToken(testUser(models.RoleUser))
		if _, err := issuer.ParseToken(token); err == nil {
			t.Error("expected signature error")
		}
	})

	t.Run("expired", func(t *testing.T) {
		past := NewTokenIssuer("test-secret-0123456789", time.Minute)
		past.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, _ := past.GenerateToken(testUser(models.RoleUser))
		if _, err := issuer.ParseToken(token); err == nil {
			t.Error("expected expiry error")
		}
	})

	t.Run("none_algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "x", "iss": "coinfolio-api"})
		signed, _ := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if _, err := issuer.ParseToken(signed); err == nil {
			t.Error("expected unsigned token to be rejected")
		}
	})
}

func TestAuthMiddleware(t *testing.T) {
	issuer := NewTokenIssuer("test-secret-0123456789", time.Hour)
	r := setupAuthRouter(issuer)
	userToken, _ := issuer.GenerateToken(testUser(models.RoleUser))
	adminToken, _ := issuer.GenerateToken(testUser(models.RoleAdmin))

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"missing_header", "/me", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad_format", "/me", "Token abc", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad_token", "/me", "Bearer nope", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"valid", "/me", "Bearer " + userToken, http.StatusOK, ""},
		{"admin_route_as_user", "/admin", "Bearer " + userToken, http.StatusForbidden, "FORBIDDEN"},
		{"admin_route_as_admin", "/admin", "Bearer " + adminToken, http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doAuthRequest(r, tt.path, tt.header)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantCode != "" {
				if got := errorCode(t, rec); got != tt.wantCode {
					t.Errorf("expected error code %s, got %s", tt.wantCode, got)
				}
			}
		})
	}

	t.Run("sets_context", func(t *testing.T) {
		rec := doAuthRequest(r, "/me", "Bearer "+userToken)
		body := parseBody(t, rec)
		if body["user_id"] != testUser(models.RoleUser).ID || body["email"] != "alice@example.com" {
			t.Errorf("unexpected context values %v", body)
		}
	})
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		configuredKey string
		requestKey    string
		wantStatus    int
	}{
		{"open_when_unconfigured", "", "", http.StatusOK},
		{"missing_key", "secret", "", http.StatusUnauthorized},
		{"wrong_key", "secret", "nope", http.StatusUnauthorized},
		{"valid_key", "secret", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/metrics", APIKeyMiddleware(tt.configuredKey), func(c *gin.Context) {
				c.String(http.StatusOK, "ok")
			})
			req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
			if tt.requestKey != "" {
				req.Header.Set("X-API-Key", tt.requestKey)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	limiter := NewIPRateLimiter(4) // burst of 1
	r := gin.New()
	r.POST("/login", RateLimit(limiter), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", http.NoBody)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	if code := send("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", code)
	}
	if code := send("10.0.0.2"); code != http.StatusOK {
		t.Errorf("other IP: expected 200, got %d", code)
	}
}

func TestIPRateLimiter_EvictsIdle(t *testing.T) {
	limiter := NewIPRateLimiter(60)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	limiter.Allow("10.0.0.1")
	now = now.Add(limiterIdleTTL + time.Second)
	limiter.Allow("10.0.0.2")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, ok := limiter.limiters["10.0.0.1"]; ok {
		t.Error("expected idle limiter to be evicted")
	}
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(http.ErrAbortHandler)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", http.NoBody))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := errorCode(t, rec); got != "INTERNAL_ERROR" {
		t.Errorf("expected INTERNAL_ERROR, got %s", got)
	}
}

func TestRequestLogging_SetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogging(), Metrics())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestRequestLogging_PropagatesCallerRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogging())
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = RequestID(c)
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name   string
		header string
		reuse  bool
	}{
		{"caller_id_kept", "req-123", true},
		{"oversized_id_replaced", "0123456789012345678901234567890123456789012345678901234567890123456789", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
			req.Header.Set("X-Request-ID", tt.header)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			got := rec.Header().Get("X-Request-ID")
			if got != seen {
				t.Errorf("header %q does not match context id %q", got, seen)
			}
			if (got == tt.header) != tt.reuse {
				t.Errorf("reuse = %v, want %v", got == tt.header, tt.reuse)
			}
		})
	}
}

func TestWriteError_AppError(t *testing.T) {
	r := gin.New()
	r.GET("/missing", func(c *gin.Context) {
		WriteError(c, apperrors.Wrap(apperrors.ErrNotFound, errors.New("row lookup failed")))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", http.NoBody))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	body := parseBody(t, rec)
	errObj := body["error"].(map[string]interface{})
	if errObj["code"] != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %v", errObj["code"])
	}
	if errObj["message"] == "row lookup failed" {
		t.Error("internal error text leaked to the client")
	}
}

func TestErrorHandler_LeavesWrittenResponses(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/partial", func(c *gin.Context) {
		c.String(http.StatusAccepted, "accepted")
		_ = c.Error(errors.New("late failure"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/partial", http.NoBody))
	if rec.Code != http.StatusAccepted || rec.Body.String() != "accepted" {
		t.Errorf("expected untouched 202 response, got %d %q", rec.Code, rec.Body.String())
	}
}
