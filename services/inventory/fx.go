package inventory

import (
	"giveaway-fulfillment/pkg/clock"
	"giveaway-fulfillment/pkg/config"
	"giveaway-fulfillment/pkg/steam"

	"go.uber.org/fx"
)

var Module = fx.Module("inventory",
	fx.Provide(provideCache),
	fx.Invoke(registerRoutes),
)

type Params struct {
	fx.In
	Config *config.Config
	Steam  *steam.Client
	Clock  clock.Clock `optional:"true"`
}

func provideCache(p Params) *Cache {
	return NewCache(p.Steam, p.Config.Steam.SteamID, p.Config.Inventory.CacheTTL, p.Clock)
}
