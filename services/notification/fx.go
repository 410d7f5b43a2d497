package notification

import (
	asynqtask "giveaway-fulfillment/pkg/asynq"
	"giveaway-fulfillment/pkg/clock"
	"giveaway-fulfillment/pkg/gen"
	"giveaway-fulfillment/services/claim"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(provideEmitter),
	fx.Invoke(registerHandlers),
)

type Params struct {
	fx.In
	Queue *asynq.Client `optional:"true"`
	Store claim.Store
	IDs   *gen.SnowflakeNode
	Clock clock.Clock `optional:"true"`
}

func provideEmitter(p Params) *Emitter {
	var queue asynqtask.Enqueuer
	if p.Queue != nil {
		queue = p.Queue
	}
	return NewEmitter(queue, p.Store, p.IDs, p.Clock)
}

type handlerParams struct {
	fx.In
	Mux     *asynq.ServeMux `optional:"true"`
	Emitter *Emitter
}

func registerHandlers(p handlerParams) {
	if p.Mux == nil {
		return
	}
	p.Mux.HandleFunc(asynqtask.TypeNotificationCreate, p.Emitter.HandleCreate)
}
