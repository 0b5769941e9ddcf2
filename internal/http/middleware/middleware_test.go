package middleware_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"lastmile/internal/http/middleware"
	"lastmile/internal/infra/logger"
)

type recordingLogger struct {
	logger.NopLogger
	mu     sync.Mutex
	errors []string
	debug  []map[string]any
}

func (l *recordingLogger) Errorf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Debugw(_ string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = append(l.debug, fields)
}

func newRouter(log logger.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	return r
}

func TestLoggingAssignsRequestID(t *testing.T) {
	log := &recordingLogger{}
	r := newRouter(log)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	if assert.Len(t, log.debug, 1) {
		assert.Equal(t, "/ok", log.debug[0]["path"])
		assert.Equal(t, http.StatusOK, log.debug[0]["status"])
	}
}

func TestLoggingKeepsCallerRequestID(t *testing.T) {
	r := newRouter(&recordingLogger{})
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(middleware.RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	log := &recordingLogger{}
	r := newRouter(log)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
	if assert.Len(t, log.errors, 1) {
		assert.Contains(t, log.errors[0], "boom")
	}
}
