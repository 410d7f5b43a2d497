package asynq

import (
	"context"

	"giveaway-fulfillment/pkg/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("asynq:client",
	fx.Provide(registerClient),
)

type clientParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Redis     *redis.Client `optional:"true"`
}

// registerClient returns nil without redis; producers then fall back to running
// work in-process.
func registerClient(p clientParams) *asynq.Client {
	if p.Redis == nil {
		return nil
	}
	client := asynq.NewClientFromRedisClient(p.Redis)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}

var Server = fx.Module("asynq:server",
	fx.Provide(registerServerMux),
	fx.Invoke(registerAsynqServer),
)

func registerServerMux() *asynq.ServeMux {
	return asynq.NewServeMux()
}

type serverParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Mux       *asynq.ServeMux
	Redis     *redis.Client `optional:"true"`
}

func registerAsynqServer(p serverParams) {
	if p.Redis == nil {
		zap.L().Info("[Asynq] Redis not configured, task server disabled")
		return
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     p.Config.Redis.Addr,
			Password: p.Config.Redis.Password,
			DB:       p.Config.Redis.DB,
		},
		asynq.Config{
			Concurrency:    10,
			RetryDelayFunc: asynq.DefaultRetryDelayFunc,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				zap.L().Error("[Asynq] task failed", zap.String("task_type", task.Type()), zap.Error(err))
			}),
		},
	)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			zap.L().Info("[Asynq] Starting task server")
			return server.Start(p.Mux)
		},
		OnStop: func(ctx context.Context) error {
			server.Shutdown()
			return nil
		},
	})
}
