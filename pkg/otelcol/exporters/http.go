package exporters

import (
	"context"
	"fmt"

	"giveaway-fulfillment/pkg/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.uber.org/zap"
)

func ProvideHttp(cfg *config.Config) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	exp, err := otlptrace.New(ctx, otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(cfg.Otel.Addr),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		otlptracehttp.WithTimeout(exportTimeout),
	))
	if err != nil {
		zap.L().Error("[Otel] failed to start http span exporter", zap.String("addr", cfg.Otel.Addr), zap.Error(err))
		return nil, fmt.Errorf("otlp http span exporter: %w", err)
	}

	zap.L().Debug("[Otel] http span exporter ready", zap.String("addr", cfg.Otel.Addr))
	return exp, nil
}

// ProvideMetricHttp exports otel metrics to the same collector over OTLP/HTTP.
func ProvideMetricHttp(cfg *config.Config) (*otlpmetrichttp.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	exp, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.Otel.Addr),
		otlpmetrichttp.WithInsecure(),
		otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression),
		otlpmetrichttp.WithTimeout(exportTimeout),
	)
	if err != nil {
		zap.L().Error("[Otel] failed to start http metric exporter", zap.String("addr", cfg.Otel.Addr), zap.Error(err))
		return nil, fmt.Errorf("otlp http metric exporter: %w", err)
	}
	return exp, nil
}
