package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriadmin/admin-api/internal/handler"
	"github.com/nutriadmin/admin-api/internal/middleware"
	"github.com/nutriadmin/admin-api/pkg/auth"
)

type echoHandler struct{}

func (echoHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/echo", func(c *gin.Context) {
		id, _ := middleware.UserID(c)
		c.String(http.StatusOK, id.String())
	})
}

func newTestRouter(t *testing.T) (*gin.Engine, auth.JWTService) {
	t.Helper()
	jwtSvc := auth.NewJWTService("secret", "nutriadmin", time.Hour)
	reg := prometheus.NewRegistry()
	r, err := NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		handler.NewHandler(nil, reg),
		echoHandler{},
		RouterConfig{
			RateLimitEnabled: true,
			RateLimit:        100,
			RateBurst:        100,
			MaxUploadBytes:   1024,
			RequestTimeout:   time.Second,
			MetricsPrefix:    "test_http",
			Registerer:       reg,
		},
	)
	require.NoError(t, err)
	r.Setup()
	return r.Engine(), jwtSvc
}

func TestRouter_HealthIsPublic(t *testing.T) {
	engine, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
}

func TestRouter_ProtectedRoutesNeedToken(t *testing.T) {
	engine, jwtSvc := newTestRouter(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/echo", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	userID := uuid.New()
	token, err := jwtSvc.GenerateAccessToken(userID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/echo", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())
}

func TestRouter_MetricsExposeRequests(t *testing.T) {
	engine, _ := newTestRouter(t)

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "test_http_requests_total"))
}
