package db

import (
	"testing"

	"giveaway-fulfillment/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestDialect(t *testing.T) {
	cfg := &config.Config{}

	cfg.Database.Type = "postgres"
	d, err := Dialect(cfg)
	require.NoError(t, err)
	require.IsType(t, &postgres.Dialector{}, d)

	cfg.Database.Type = "mysql"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	require.IsType(t, &mysql.Dialector{}, d)

	cfg.Database.Type = "sqlite"
	cfg.Database.URI = "file::memory:"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	require.IsType(t, &sqlite.Dialector{}, d)

	cfg.Database.Type = "oracle"
	_, err = Dialect(cfg)
	require.Error(t, err)
}

func TestNewSkipsForMongo(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Type = TypeMongo

	db, err := New(Params{Config: cfg})
	require.NoError(t, err)
	require.Nil(t, db)
}
