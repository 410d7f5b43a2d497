package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"giveaway-fulfillment/pkg/clock"
	"giveaway-fulfillment/pkg/config"
	"giveaway-fulfillment/pkg/hashistack/secretmanager"
	"giveaway-fulfillment/pkg/logger"
	minioclient "giveaway-fulfillment/pkg/minio"
	"giveaway-fulfillment/pkg/steam"
	"giveaway-fulfillment/services/inventory"
)

const exportTimeout = 2 * time.Minute

func main() {
	app := fx.New(
		secretmanager.Module,
		config.Module,
		logger.Module,
		minioclient.Client,
		fx.Provide(clock.NewSystem),
		steam.Module,
		inventory.Module,
		fx.Invoke(run),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Fatalf("inventory export failed: %v", err)
	}
	_ = app.Stop(ctx)
}

type params struct {
	fx.In
	Config *config.Config
	Cache  *inventory.Cache
	Clock  clock.Clock
	Minio  *minio.Client `optional:"true"`
}

func run(p params) error {
	cfg := p.Config.Export
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	items, err := p.Cache.Get(ctx, inventory.Key{AppID: cfg.AppID, ContextID: cfg.ContextID})
	if err != nil {
		return fmt.Errorf("fetch inventory: %w", err)
	}

	res := inventory.Export(items, cfg.Filter, cfg.Limit)
	zap.L().Info("[Export] inventory loaded",
		zap.Int("app_id", cfg.AppID),
		zap.String("context_id", cfg.ContextID),
		zap.Int("total", res.Total),
		zap.Int("matched", res.Matched),
		zap.Int("written", len(res.Items)),
	)

	if err := inventory.WriteAssetIDs(os.Stdout, res.Items); err != nil {
		return err
	}

	var tsv bytes.Buffer
	if err := inventory.WriteTSV(&tsv, res.Items); err != nil {
		return err
	}
	if cfg.Detailed {
		fmt.Fprintln(os.Stdout)
		if _, err := os.Stdout.Write(tsv.Bytes()); err != nil {
			return err
		}
	}

	if !cfg.Upload {
		return nil
	}
	if p.Minio == nil {
		zap.L().Warn("[Export] upload requested but MINIO.ENDPOINT is not set")
		return nil
	}

	name := fmt.Sprintf("inventory/%d-%s/%s.tsv", cfg.AppID, cfg.ContextID, p.Clock.Now().Format("20060102T150405Z"))
	key, err := minioclient.NewUploader(p.Minio, p.Config.Minio.BucketName).Put(ctx, name, "text/tab-separated-values", tsv.Bytes())
	if err != nil {
		return fmt.Errorf("upload export: %w", err)
	}
	zap.L().Info("[Export] uploaded", zap.String("key", key))
	return nil
}
