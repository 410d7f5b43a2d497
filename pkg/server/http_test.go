package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"giveaway-fulfillment/pkg/config"
	"giveaway-fulfillment/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func TestListenAddr(t *testing.T) {
	require.Equal(t, ":8080", listenAddr("8080"))
	require.Equal(t, "127.0.0.1:9090", listenAddr("127.0.0.1:9090"))
}

func TestEngineServesMetricsAndErrors(t *testing.T) {
	r := NewEngine(&config.Config{})
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errutil.NotFound("claim not found", nil))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "claim not found")
}
