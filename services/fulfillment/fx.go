package fulfillment

import (
	asynqtask "giveaway-fulfillment/pkg/asynq"
	"giveaway-fulfillment/pkg/clock"
	"giveaway-fulfillment/pkg/config"
	"giveaway-fulfillment/pkg/gen"
	"giveaway-fulfillment/pkg/steam"
	"giveaway-fulfillment/services/claim"
	"giveaway-fulfillment/services/inventory"
	"giveaway-fulfillment/services/notification"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("fulfillment",
	fx.Provide(
		provideSettings,
		provideConfirmer,
		provideDeps,
		provideReconciler,
		NewDriver,
		NewPoller,
		NewScheduler,
	),
	fx.Invoke(registerHandlers, StartScheduler),
)

func provideSettings(cfg *config.Config) func() Settings {
	return liveSettings(cfg)
}

type confirmerParams struct {
	fx.In
	Queue *asynq.Client `optional:"true"`
	Steam *steam.Client
}

func provideConfirmer(p confirmerParams) *TaskConfirmer {
	var queue asynqtask.Enqueuer
	if p.Queue != nil {
		queue = p.Queue
	}
	return NewTaskConfirmer(queue, p.Steam)
}

type Params struct {
	fx.In
	Store     claim.Store
	Steam     *steam.Client
	Inventory *inventory.Cache
	Notifier  *notification.Emitter
	Confirmer *TaskConfirmer
	IDs       *gen.SnowflakeNode
	Worker    gen.WorkerID
	Clock     clock.Clock `optional:"true"`
	Settings  func() Settings
}

func provideDeps(p Params) Deps {
	return Deps{
		Store:     p.Store,
		Steam:     p.Steam,
		Inventory: p.Inventory,
		Notifier:  p.Notifier,
		Confirmer: p.Confirmer,
		IDs:       p.IDs,
		Worker:    p.Worker,
		Clock:     p.Clock,
		Settings:  p.Settings,
	}
}

func provideReconciler(d Deps) *Reconciler {
	return NewReconciler(d.Store, d.Notifier, d.Clock)
}

type handlerParams struct {
	fx.In
	Mux       *asynq.ServeMux `optional:"true"`
	Confirmer *TaskConfirmer
}

func registerHandlers(p handlerParams) {
	if p.Mux == nil {
		return
	}
	p.Mux.HandleFunc(asynqtask.TypeTradeConfirm, p.Confirmer.HandleConfirm)
}
