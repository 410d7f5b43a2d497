package inventory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"giveaway-fulfillment/pkg/middleware"
	"giveaway-fulfillment/pkg/steam"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRefreshHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	f := &fakeFetcher{fn: func(context.Context, int, string) ([]steam.Item, error) {
		return []steam.Item{{AssetID: "1"}}, nil
	}}
	cache := NewCache(f, "owner", time.Minute, nil)
	dota := Key{AppID: 570, ContextID: "2"}
	ctx := context.Background()

	_, err := cache.Get(ctx, csgo)
	require.NoError(t, err)
	_, err = cache.Get(ctx, dota)
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.Error())
	r.POST("/v1/inventory/refresh", RefreshHandler(cache, csgo))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/inventory/refresh?app_id=570", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"invalidated":"570:2"}`, w.Body.String())

	_, err = cache.Get(ctx, csgo)
	require.NoError(t, err)
	require.Equal(t, int32(2), f.calls.Load())
	_, err = cache.Get(ctx, dota)
	require.NoError(t, err)
	require.Equal(t, int32(3), f.calls.Load())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/inventory/refresh?app_id=abc", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
