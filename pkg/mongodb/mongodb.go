package mongodb

import (
	"context"
	"strings"
	"time"

	"giveaway-fulfillment/pkg/config"
	"giveaway-fulfillment/pkg/db"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("mongodb",
	fx.Provide(New),
)

// New connects to DATABASE.URI and returns DATABASE.DBNAME. It returns nil when
// DATABASE.TYPE is not mongodb.
func New(lc fx.Lifecycle, cfg *config.Config) (*mongo.Database, error) {
	if !strings.EqualFold(cfg.Database.Type, db.TypeMongo) {
		return nil, nil
	}

	client, err := mongo.Connect(context.Background(), options.Client().
		ApplyURI(cfg.Database.URI).
		SetAppName(cfg.AppName).
		SetMaxPoolSize(uint64(max(cfg.Database.ConnectionPool.MaxOpenConns, 1))))
	if err != nil {
		zap.L().Error("[MongoDB] Failed to create client", zap.Error(err))
		return nil, err
	}

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = client.Ping(ctx, readpref.Primary())
		cancel()
		if err == nil {
			break
		}
		zap.L().Warn("[MongoDB] Server not ready, retrying in 3 seconds...", zap.Int("retry", i+1), zap.Error(err))
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("[MongoDB] Connected", zap.String("database", cfg.Database.DBNAME))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Disconnect(ctx)
		},
	})

	return client.Database(cfg.Database.DBNAME), nil
}
