package main

import (
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"giveaway-fulfillment/pkg/asynq"
	"giveaway-fulfillment/pkg/clock"
	"giveaway-fulfillment/pkg/config"
	"giveaway-fulfillment/pkg/db"
	"giveaway-fulfillment/pkg/gen"
	"giveaway-fulfillment/pkg/hashistack/secretmanager"
	"giveaway-fulfillment/pkg/health"
	"giveaway-fulfillment/pkg/logger"
	"giveaway-fulfillment/pkg/mongodb"
	"giveaway-fulfillment/pkg/otelcol"
	"giveaway-fulfillment/pkg/profiling"
	"giveaway-fulfillment/pkg/redis"
	"giveaway-fulfillment/pkg/server"
	"giveaway-fulfillment/pkg/steam"
	"giveaway-fulfillment/services/claim"
	"giveaway-fulfillment/services/fulfillment"
	"giveaway-fulfillment/services/inventory"
	"giveaway-fulfillment/services/notification"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		config.WatchModule,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		mongodb.Module,
		redis.Module,
		asynq.Client,
		asynq.Server,
		gen.Module,
		fx.Provide(
			clock.NewSystem,
			provideTracerProvider,
		),
		steam.Module,
		inventory.Module,
		claim.Module,
		notification.Module,
		fulfillment.Module,
		server.ProvideHTTPServer,
		health.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.Fulfillment.Verbose {
		return &fxevent.ZapLogger{Logger: logger}
	}
	return fxevent.NopLogger
})

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}
