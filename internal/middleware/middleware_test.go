package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qr-attendance-gateway/internal/identity"
	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	"github.com/noah-isme/qr-attendance-gateway/internal/repository"
	"github.com/noah-isme/qr-attendance-gateway/internal/service"
)

func signToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", handlers...)
	return r
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	r := newRouter(JWT(identity.NewTokenValidator("secret")), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTStoresClaimsAndForwardsToken(t *testing.T) {
	token := signToken(t, "secret", &models.JWTClaims{TeacherID: "T-9"})
	var forwarded bool
	var claims *models.JWTClaims
	r := newRouter(JWT(identity.NewTokenValidator("secret")), func(c *gin.Context) {
		value, _ := c.Get(ContextUserKey)
		claims, _ = value.(*models.JWTClaims)
		forwarded = repository.HasBearerToken(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "T-9", claims.TeacherID)
	assert.True(t, forwarded)
}

func TestOptionalJWTForwardsUnverifiedToken(t *testing.T) {
	var hasClaims, forwarded bool
	r := newRouter(OptionalJWT(identity.NewTokenValidator("secret")), func(c *gin.Context) {
		_, hasClaims = c.Get(ContextUserKey)
		forwarded = repository.HasBearerToken(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer opaque-portal-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, hasClaims)
	assert.True(t, forwarded)
}

func TestTeacherMiddleware(t *testing.T) {
	var tc models.TeacherContext
	r := newRouter(Teacher(identity.DefaultResolver(ContextUserKey)), func(c *gin.Context) {
		tc, _ = TeacherFromContext(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping?teacher_id=T-9&college_id=C-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "T-9", tc.TeacherID)
	assert.Equal(t, "C-1", tc.CollegeID)
}

func TestResponseMetaRecordsCacheHit(t *testing.T) {
	var meta map[string]interface{}
	r := newRouter(WithResponseMeta(), func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.NotNil(t, meta)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestMetricsSkipsConfiguredPaths(t *testing.T) {
	metrics := service.NewMetricsService()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(metrics, "/metrics"))
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, target := range []string{"/metrics", "/ping", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}
	assert.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)
}

func TestRequireCredentialBehindOptionalJWT(t *testing.T) {
	r := newRouter(OptionalJWT(identity.NewTokenValidator("secret")), RequireCredential(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping?teacher_id=T-42", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer opaque-portal-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
