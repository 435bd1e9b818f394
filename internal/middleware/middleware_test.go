package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oceanstella/api/internal/cookies"
	"oceanstella/api/internal/models"
	"oceanstella/api/internal/repository"
	"oceanstella/api/internal/security"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubUsers map[string]models.User

func (s stubUsers) FindByID(ctx context.Context, id string) (models.User, error) {
	if id == "broken" {
		return models.User{}, errors.New("db down")
	}
	u, ok := s[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func newIssuer(t *testing.T) *security.TokenIssuer {
	t.Helper()
	issuer, err := security.NewTokenIssuer("middleware-secret", time.Minute)
	require.NoError(t, err)
	return issuer
}

func tokenFor(t *testing.T, issuer *security.TokenIssuer, id string, role models.UserRole) string {
	t.Helper()
	token, _, err := issuer.SignAccessToken(security.TokenSubject{ID: id, Role: string(role), Email: id + "@x.com"})
	require.NoError(t, err)
	return token
}

func newRouter(issuer *security.TokenIssuer, guard gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(AttachIdentity(issuer))
	r.GET("/guarded", guard, func(c *gin.Context) {
		id, _ := CurrentIdentity(c)
		c.JSON(http.StatusOK, gin.H{"ok": true, "user": id.UserID})
	})
	return r
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: cookies.AccessName, Value: token})
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAttachIdentityIgnoresBadTokens(t *testing.T) {
	issuer := newIssuer(t)
	r := gin.New()
	r.Use(AttachIdentity(issuer))
	r.GET("/guarded", func(c *gin.Context) {
		_, ok := CurrentIdentity(c)
		c.JSON(http.StatusOK, gin.H{"identified": ok})
	})

	rec := do(r, "not-a-jwt")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"identified":false}`, rec.Body.String())

	rec = do(r, tokenFor(t, issuer, "u1", models.UserRoleViewer))
	assert.JSONEq(t, `{"identified":true}`, rec.Body.String())
}

func TestPipelineAuthenticated(t *testing.T) {
	issuer := newIssuer(t)
	r := newRouter(issuer, Pipeline(Authenticated()))

	rec := do(r, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"Unauthorized"}`, rec.Body.String())

	rec = do(r, tokenFor(t, issuer, "u1", models.UserRoleViewer))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPipelineActiveUser(t *testing.T) {
	issuer := newIssuer(t)
	disabled := models.User{ID: "off", Status: models.UserStatusDisabled}
	users := stubUsers{
		"u1":  {ID: "u1", Status: models.UserStatusActive, Role: models.UserRoleViewer},
		"off": disabled,
	}
	r := newRouter(issuer, Pipeline(Authenticated(), ActiveUser(users)))

	assert.Equal(t, http.StatusOK, do(r, tokenFor(t, issuer, "u1", models.UserRoleViewer)).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, tokenFor(t, issuer, "off", models.UserRoleViewer)).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, tokenFor(t, issuer, "gone", models.UserRoleViewer)).Code)
	assert.Equal(t, http.StatusInternalServerError, do(r, tokenFor(t, issuer, "broken", models.UserRoleViewer)).Code)
}

func TestRequireRolesUsesStoredRole(t *testing.T) {
	issuer := newIssuer(t)
	users := stubUsers{
		"demoted": {ID: "demoted", Status: models.UserStatusActive, Role: models.UserRoleViewer},
		"adm":     {ID: "adm", Status: models.UserStatusActive, Role: models.UserRoleAdmin},
	}
	guard := Pipeline(Authenticated(), ActiveUser(users), RequireRoles(models.UserRoleAdmin, models.UserRoleSuperAdmin))
	r := newRouter(issuer, guard)

	rec := do(r, tokenFor(t, issuer, "demoted", models.UserRoleAdmin))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"Forbidden"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, do(r, tokenFor(t, issuer, "adm", models.UserRoleAdmin)).Code)
}

func TestRequireRolesFallsBackToToken(t *testing.T) {
	issuer := newIssuer(t)
	r := newRouter(issuer, Pipeline(RequireRoles(models.UserRoleEditor)))

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusOK, do(r, tokenFor(t, issuer, "e", models.UserRoleEditor)).Code)
	assert.Equal(t, http.StatusForbidden, do(r, tokenFor(t, issuer, "v", models.UserRoleViewer)).Code)
}

func TestPipelineStopsAtFirstRejection(t *testing.T) {
	issuer := newIssuer(t)
	var ran []string
	stage := func(name string, reject bool) Stage {
		return func(c *gin.Context) *Rejection {
			ran = append(ran, name)
			if reject {
				return &Rejection{Status: http.StatusTeapot, Message: name}
			}
			return nil
		}
	}
	r := newRouter(issuer, Pipeline(stage("a", false), stage("b", true), stage("c", false)))

	rec := do(r, "")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestRecoveryAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := gin.New()
	r.Use(RequestID(), Logger(logger), Recovery(logger))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
	assert.JSONEq(t, `{"ok":false,"error":"Internal server error"}`, rec.Body.String())
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
}

func TestCORSAllowsCredentialedOrigin(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://shop.oceanstella.test"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://shop.oceanstella.test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://shop.oceanstella.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDReplacesMalformed(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, incoming := range []string{"", "has space", strings.Repeat("a", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if incoming != "" {
			req.Header.Set(requestIDHeader, incoming)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		got := rec.Header().Get(requestIDHeader)
		assert.NotEqual(t, incoming, got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err)
	}
}

func TestCORSNormalizesOrigins(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://Shop.OceanStella.test/ "}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://shop.oceanstella.test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "https://shop.oceanstella.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, requestIDHeader, rec.Header().Get("Access-Control-Expose-Headers"))
}
