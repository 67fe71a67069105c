package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"course-checkout/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoggedRouter(t *testing.T) (*gin.Engine, *test.Hook) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.GetLogger()
	level := log.GetLevel()
	log.SetLevel(logrus.DebugLevel)
	hook := test.NewLocal(log)
	t.Cleanup(func() {
		log.SetLevel(level)
		hook.Reset()
	})

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.POST("/api/v1/registrations/:id/checkout", func(c *gin.Context) {
		AddLogFields(c, logrus.Fields{"registration_id": c.Param("id")})
		AddLogFields(c, logrus.Fields{"session_id": "cs_fake_1"})
		c.Status(http.StatusOK)
	})
	r.POST("/api/v1/registrations/:id/confirm", func(c *gin.Context) {
		AddLogFields(c, logrus.Fields{"error_code": "PAYMENT_PENDING"})
		c.Status(http.StatusConflict)
	})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, hook
}

func serve(r *gin.Engine, method, path string) {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(RequestIDHeader, "req-1")
	r.ServeHTTP(httptest.NewRecorder(), req)
}

func TestLoggerCarriesHandlerFields(t *testing.T) {
	r, hook := newLoggedRouter(t)

	serve(r, http.MethodPost, "/api/v1/registrations/abc/checkout")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "/api/v1/registrations/:id/checkout", entry.Data["route"])
	assert.Equal(t, "req-1", entry.Data["request_id"])
	assert.Equal(t, "abc", entry.Data["registration_id"])
	assert.Equal(t, "cs_fake_1", entry.Data["session_id"])
	assert.Equal(t, http.StatusOK, entry.Data["status_code"])
}

func TestLoggerLevelFollowsStatus(t *testing.T) {
	r, hook := newLoggedRouter(t)

	serve(r, http.MethodPost, "/api/v1/registrations/abc/confirm")
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "PAYMENT_PENDING", entry.Data["error_code"])

	serve(r, http.MethodGet, "/health")
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)

	serve(r, http.MethodGet, "/nowhere")
	entry = hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "unmatched", entry.Data["route"])
}
