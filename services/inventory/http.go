package inventory

import (
	"net/http"
	"strconv"
	"strings"

	"giveaway-fulfillment/pkg/config"
	"giveaway-fulfillment/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type routeParams struct {
	fx.In
	Engine *gin.Engine `optional:"true"`
	Config *config.Config
	Cache  *Cache
}

func registerRoutes(p routeParams) {
	if p.Engine == nil {
		return
	}
	p.Engine.POST("/v1/inventory/refresh", RefreshHandler(p.Cache, Key{AppID: p.Config.Steam.AppID, ContextID: p.Config.Steam.ContextID}))
}

// RefreshHandler drops one cached collection so the next lookup refetches it.
// app_id and context_id default to the configured collection.
func RefreshHandler(cache *Cache, fallback Key) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fallback
		if raw := strings.TrimSpace(c.Query("app_id")); raw != "" {
			appID, err := strconv.Atoi(raw)
			if err != nil || appID <= 0 {
				_ = c.Error(errutil.BadRequest("app_id must be a positive integer", err))
				return
			}
			key.AppID = appID
		}
		if ctxID := strings.TrimSpace(c.Query("context_id")); ctxID != "" {
			key.ContextID = ctxID
		}

		cache.Invalidate(key)
		zap.L().Info("[Inventory] cache invalidated", zap.String("key", key.String()))
		c.JSON(http.StatusOK, gin.H{"invalidated": key.String()})
	}
}
