package claim

import (
	"context"
	"errors"

	"giveaway-fulfillment/pkg/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("claim",
	fx.Provide(NewStore),
	fx.Invoke(migrate, registerRoutes),
)

type Params struct {
	fx.In
	Config *config.Config
	DB     *gorm.DB        `optional:"true"`
	Mongo  *mongo.Database `optional:"true"`
}

func NewStore(p Params) (Store, error) {
	switch {
	case p.Mongo != nil:
		zap.L().Info("[Claim] Using MongoDB store")
		return NewMongoRepository(p.Mongo), nil
	case p.DB != nil:
		zap.L().Info("[Claim] Using relational store", zap.String("dialect", p.DB.Dialector.Name()))
		return NewRepository(p.DB), nil
	default:
		return nil, errors.New("claim: no database configured")
	}
}

func migrate(p Params, store Store) error {
	if !p.Config.Database.AutoMigrate {
		return nil
	}
	switch s := store.(type) {
	case *Repository:
		zap.L().Info("[Claim] Running auto migration")
		return Migrate(s.db)
	case *MongoRepository:
		zap.L().Info("[Claim] Ensuring indexes")
		return s.EnsureIndexes(context.Background())
	}
	return nil
}
