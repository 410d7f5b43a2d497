package logger

import (
	"os"

	"giveaway-fulfillment/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Module = fx.Module("zap",
	fx.Provide(
		New,
	),
)

type ConfigParams struct {
	fx.In
	Cfg *config.Config
}

// Level is shared by every core so a config reload can flip verbose logging on and off.
var Level = zap.NewAtomicLevelAt(zap.InfoLevel)

func New(p ConfigParams) *zap.Logger {
	Level.SetLevel(levelFor(p.Cfg))

	log := zap.New(developmentCore(), zap.AddCaller())
	if p.Cfg != nil && p.Cfg.AppEnv == "production" {
		log = zap.New(productionCore(p.Cfg), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	}

	if p.Cfg != nil {
		log = log.With(
			zap.String("env", p.Cfg.AppEnv),
			zap.String("service_name", p.Cfg.AppName),
		)
	}

	zap.ReplaceGlobals(log)

	config.OnChange(func(c *config.Config) {
		Level.SetLevel(levelFor(c))
	})

	return log
}

func levelFor(cfg *config.Config) zapcore.Level {
	if cfg == nil {
		return zap.InfoLevel
	}
	if cfg.Fulfillment.Verbose {
		return zap.DebugLevel
	}
	lvl, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return zap.InfoLevel
	}
	return lvl
}

func developmentCore() zapcore.Core {
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), Level)
}

func productionCore(cfg *config.Config) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.StacktraceKey = "stacktrace"
	encCfg.LevelKey = "severity"
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = "caller"
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder

	encoder := zapcore.NewJSONEncoder(encCfg)
	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), Level)}

	if cfg.Log.File != "" {
		rotate := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotate), Level))
	}

	return zapcore.NewTee(cores...)
}
