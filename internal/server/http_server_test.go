package server_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pilab-dev/ssobridge/internal/server"
	"github.com/pilab-dev/ssobridge/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingAPI struct{}

func (pingAPI) RegisterRoutes(e *gin.Engine) {
	e.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
}

func newRouter(t *testing.T, ready func(context.Context) error) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "ssobridge_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	return server.NewRouter(server.Options{
		ServiceName: "test",
		Logger:      log.NewZerologAdapter(zerolog.Nop()),
		Gatherer:    reg,
		Ready:       ready,
	}, pingAPI{})
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestNewRouter_RegistersAPI(t *testing.T) {
	w := get(newRouter(t, nil), "/ping")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestNewRouter_Healthz(t *testing.T) {
	w := get(newRouter(t, nil), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = get(newRouter(t, func(context.Context) error { return errors.New("mongo down") }), "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "mongo down")
}

func TestNewRouter_Metrics(t *testing.T) {
	w := get(newRouter(t, nil), "/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ssobridge_test_total 1")
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv := server.NewHTTPServer(server.Options{
		Addr:   "127.0.0.1:0",
		Logger: log.NewZerologAdapter(zerolog.Nop()),
	}, pingAPI{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, server.Run(ctx, srv, time.Second, log.NewZerologAdapter(zerolog.Nop())))
}
