package exporters

import (
	"context"
	"fmt"
	"time"

	"giveaway-fulfillment/pkg/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.uber.org/zap"
)

const (
	startTimeout  = 10 * time.Second
	exportTimeout = 5 * time.Second
)

// ProvideGrpc ships spans to the collector's OTLP/gRPC receiver. The connection
// is lazy, so an unreachable collector only surfaces on the first export.
func ProvideGrpc(cfg *config.Config) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(cfg.Otel.Addr),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithCompressor("gzip"),
		otlptracegrpc.WithTimeout(exportTimeout),
		otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: time.Second,
			MaxInterval:     10 * time.Second,
			MaxElapsedTime:  time.Minute,
		}),
	))
	if err != nil {
		zap.L().Error("[Otel] failed to start grpc span exporter", zap.String("addr", cfg.Otel.Addr), zap.Error(err))
		return nil, fmt.Errorf("otlp grpc span exporter: %w", err)
	}

	zap.L().Debug("[Otel] grpc span exporter ready", zap.String("addr", cfg.Otel.Addr))
	return exp, nil
}
