package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, h HealthService, path string) (int, Health) {
	t.Helper()
	r := gin.New()
	RegisterRoutes(r, h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestLiveness(t *testing.T) {
	code, body := serve(t, New(), "/healthz")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, statusHealthy, body.Status)
}

func TestReadiness(t *testing.T) {
	ok := Pinger{Name: "sqlite", Ping: func(context.Context) error { return nil }}
	down := Pinger{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }}

	code, body := serve(t, New(ok), "/readyz")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body.Deps, 1)

	code, body = serve(t, New(ok, down), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, statusUnhealthy, body.Status)
	require.Equal(t, "connection refused", body.Deps[1].Message)
}
