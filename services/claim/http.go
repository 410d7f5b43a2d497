package claim

import (
	"net/http"
	"time"

	"giveaway-fulfillment/pkg/clock"
	"giveaway-fulfillment/pkg/config"
	"giveaway-fulfillment/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type routeParams struct {
	fx.In
	Engine *gin.Engine `optional:"true"`
	Config *config.Config
	Store  Store
	Clock  clock.Clock `optional:"true"`
}

func registerRoutes(p routeParams) {
	if p.Engine == nil {
		return
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	lockTimeout := func() time.Duration {
		if cfg := config.Current(); cfg != nil {
			return cfg.Fulfillment.LockTimeout
		}
		return p.Config.Fulfillment.LockTimeout
	}
	p.Engine.GET("/v1/claims/stats", StatsHandler(p.Store, clk, lockTimeout))
}

// StatsHandler reports pending, lease-eligible and sent claim counts.
func StatsHandler(store Store, clk clock.Clock, lockTimeout func() time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := store.CountPending(c.Request.Context(), clk.Now(), lockTimeout())
		if err != nil {
			_ = c.Error(errutil.Internal("failed to count claims", err))
			return
		}
		c.JSON(http.StatusOK, counts)
	}
}
