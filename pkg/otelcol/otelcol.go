package otelcol

import (
	"context"
	"errors"
	"time"

	"giveaway-fulfillment/pkg/config"
	"giveaway-fulfillment/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module installs global tracer and meter providers when OTEL.ADDR is set.
var Module = fx.Module("otelcol", fx.Invoke(Register))

const metricInterval = 15 * time.Second

func defaultTraceProviderOption() []trace.TracerProviderOption {
	return []trace.TracerProviderOption{
		trace.WithResource(resource.Default()),
	}
}

func ProvideTrace(exporter trace.SpanExporter, opts ...trace.TracerProviderOption) *trace.TracerProvider {
	if len(opts) == 0 {
		opts = defaultTraceProviderOption()
	}

	opts = append(opts, trace.WithBatcher(exporter))

	return trace.NewTracerProvider(opts...)
}

func defaultMetricProviderOption() []metric.Option {
	return []metric.Option{
		metric.WithResource(resource.Default()),
	}
}

func ProvideMetric(reader metric.Reader, opts ...metric.Option) *metric.MeterProvider {
	if len(opts) == 0 {
		opts = defaultMetricProviderOption()
	}

	opts = append(opts, metric.WithReader(reader))

	return metric.NewMeterProvider(opts...)
}

// Resource describes this process to the collector.
func Resource(cfg *config.Config) (*resource.Resource, error) {
	return resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(cfg.AppName),
		semconv.ServiceVersionKey.String(cfg.AppVersion),
		semconv.DeploymentEnvironmentKey.String(cfg.AppEnv),
	))
}

func Register(lc fx.Lifecycle, cfg *config.Config) error {
	if cfg.Otel.Addr == "" {
		zap.L().Info("[Otel] collector not configured, exporters disabled")
		return nil
	}

	res, err := Resource(cfg)
	if err != nil {
		return err
	}

	var shutdown []func(context.Context) error

	var spans trace.SpanExporter
	if cfg.Otel.Protocol == "http" {
		spans, err = exporters.ProvideHttp(cfg)
	} else {
		spans, err = exporters.ProvideGrpc(cfg)
	}
	if err != nil {
		return err
	}
	tp := ProvideTrace(spans, trace.WithResource(res))
	otel.SetTracerProvider(tp)
	shutdown = append(shutdown, tp.Shutdown)

	// The collector's OTLP/HTTP receiver takes metrics; over gRPC only spans are
	// exported and metrics stay on /metrics.
	if cfg.Otel.Protocol == "http" {
		metrics, err := exporters.ProvideMetricHttp(cfg)
		if err != nil {
			return err
		}
		mp := ProvideMetric(metric.NewPeriodicReader(metrics, metric.WithInterval(metricInterval)), metric.WithResource(res))
		otel.SetMeterProvider(mp)
		shutdown = append(shutdown, mp.Shutdown)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	zap.L().Info("[Otel] exporters started", zap.String("addr", cfg.Otel.Addr), zap.String("protocol", cfg.Otel.Protocol))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			var errs []error
			for i := len(shutdown) - 1; i >= 0; i-- {
				errs = append(errs, shutdown[i](ctx))
			}
			return errors.Join(errs...)
		},
	})
	return nil
}
