package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config       = viper.New()
	configHolder atomic.Value
	backend      = "consul"
	backendAddr  = "127.0.0.1:8500"
	backendPath  = "development" // e.g., app/<env>/fulfillment
	configType   = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Log        struct {
		Level      string `mapstructure:"LEVEL"`
		File       string `mapstructure:"FILE"`
		MaxSizeMB  int    `mapstructure:"MAX_SIZE_MB"`
		MaxBackups int    `mapstructure:"MAX_BACKUPS"`
		MaxAgeDays int    `mapstructure:"MAX_AGE_DAYS"`
	} `mapstructure:"LOG"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"` // grpc | http
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"` // postgres | mysql | sqlite | mongodb
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		URI            string `mapstructure:"URI"` // sqlite file or mongodb connection string
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
	Steam struct {
		SteamID           string        `mapstructure:"STEAM_ID"`
		AccountName       string        `mapstructure:"ACCOUNT_NAME"`
		APIKey            string        `mapstructure:"API_KEY"`
		SessionID         string        `mapstructure:"SESSION_ID"`
		LoginSecure       string        `mapstructure:"LOGIN_SECURE"`
		SharedSecret      string        `mapstructure:"SHARED_SECRET"`
		IdentitySecret    string        `mapstructure:"IDENTITY_SECRET"`
		DeviceID          string        `mapstructure:"DEVICE_ID"`
		AppID             int           `mapstructure:"APP_ID"`
		ContextID         string        `mapstructure:"CONTEXT_ID"`
		CommunityURL      string        `mapstructure:"COMMUNITY_URL"`
		APIURL            string        `mapstructure:"API_URL"`
		Language          string        `mapstructure:"LANGUAGE"`
		Timeout           time.Duration `mapstructure:"TIMEOUT"`
		RequestsPerSecond float64       `mapstructure:"REQUESTS_PER_SECOND"`
		Burst             int           `mapstructure:"BURST"`
	} `mapstructure:"STEAM"`
	Fulfillment struct {
		PendingInterval    time.Duration `mapstructure:"PENDING_INTERVAL"`
		PollInterval       time.Duration `mapstructure:"POLL_INTERVAL"`
		ClaimBatchSize     int           `mapstructure:"CLAIM_BATCH_SIZE"`
		SentBatchSize      int           `mapstructure:"SENT_BATCH_SIZE"`
		LockTimeout        time.Duration `mapstructure:"LOCK_TIMEOUT"`
		DryRun             bool          `mapstructure:"DRY_RUN"`
		Verbose            bool          `mapstructure:"VERBOSE"`
		OfferMessagePrefix string        `mapstructure:"OFFER_MESSAGE_PREFIX"`
	} `mapstructure:"FULFILLMENT"`
	Inventory struct {
		CacheTTL time.Duration `mapstructure:"CACHE_TTL"`
	} `mapstructure:"INVENTORY"`
	Export struct {
		AppID     int    `mapstructure:"APP_ID"`
		ContextID string `mapstructure:"CONTEXT_ID"`
		Limit     int    `mapstructure:"LIMIT"`
		Filter    string `mapstructure:"FILTER"`
		Detailed  bool   `mapstructure:"DETAILED"`
		Upload    bool   `mapstructure:"UPLOAD"`
	} `mapstructure:"EXPORT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

// WatchModule reloads the local config file on change. Only the fields read through
// Current() pick up the new values.
var WatchModule = fx.Module("config.watch", fx.Invoke(Watch))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "giveaway-fulfillment")
	v.SetDefault("APP_VERSION", "dev")

	v.SetDefault("LOG.LEVEL", "info")
	v.SetDefault("LOG.FILE", "")
	v.SetDefault("LOG.MAX_SIZE_MB", 100)
	v.SetDefault("LOG.MAX_BACKUPS", 5)
	v.SetDefault("LOG.MAX_AGE_DAYS", 14)

	v.SetDefault("OTEL.ADDR", "")
	v.SetDefault("OTEL.PROTOCOL", "grpc")
	v.SetDefault("PYROSCOPE.ADDR", "")

	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.DBNAME", "skinvault")
	v.SetDefault("DATABASE.USER", "")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.URI", "")
	v.SetDefault("DATABASE.AUTO_MIGRATE", false)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 5)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 5)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 5*time.Minute)

	v.SetDefault("REDIS.ADDR", "")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)

	v.SetDefault("MINIO.ENDPOINT", "")
	v.SetDefault("MINIO.ACCESS_KEY", "")
	v.SetDefault("MINIO.SECRET_KEY", "")
	v.SetDefault("MINIO.SECURE", true)
	v.SetDefault("MINIO.BUCKET_NAME", "inventory-exports")

	v.SetDefault("STEAM.STEAM_ID", "")
	v.SetDefault("STEAM.ACCOUNT_NAME", "")
	v.SetDefault("STEAM.API_KEY", "")
	v.SetDefault("STEAM.SESSION_ID", "")
	v.SetDefault("STEAM.LOGIN_SECURE", "")
	v.SetDefault("STEAM.SHARED_SECRET", "")
	v.SetDefault("STEAM.IDENTITY_SECRET", "")
	v.SetDefault("STEAM.DEVICE_ID", "")
	v.SetDefault("STEAM.APP_ID", 730)
	v.SetDefault("STEAM.CONTEXT_ID", "2")
	v.SetDefault("STEAM.COMMUNITY_URL", "https://steamcommunity.com")
	v.SetDefault("STEAM.API_URL", "https://api.steampowered.com")
	v.SetDefault("STEAM.LANGUAGE", "english")
	v.SetDefault("STEAM.TIMEOUT", 20*time.Second)
	v.SetDefault("STEAM.REQUESTS_PER_SECOND", 1.0)
	v.SetDefault("STEAM.BURST", 3)

	v.SetDefault("FULFILLMENT.PENDING_INTERVAL", 5*time.Second)
	v.SetDefault("FULFILLMENT.POLL_INTERVAL", 30*time.Second)
	v.SetDefault("FULFILLMENT.CLAIM_BATCH_SIZE", 5)
	v.SetDefault("FULFILLMENT.SENT_BATCH_SIZE", 25)
	v.SetDefault("FULFILLMENT.LOCK_TIMEOUT", 5*time.Minute)
	v.SetDefault("FULFILLMENT.DRY_RUN", false)
	v.SetDefault("FULFILLMENT.VERBOSE", false)
	v.SetDefault("FULFILLMENT.OFFER_MESSAGE_PREFIX", "SkinVaults Giveaway Prize")

	v.SetDefault("INVENTORY.CACHE_TTL", 60*time.Second)

	v.SetDefault("EXPORT.APP_ID", 0)
	v.SetDefault("EXPORT.CONTEXT_ID", "")
	v.SetDefault("EXPORT.LIMIT", 2000)
	v.SetDefault("EXPORT.FILTER", "")
	v.SetDefault("EXPORT.DETAILED", false)
	v.SetDefault("EXPORT.UPLOAD", false)
}

// Load reads config.yaml (optional) plus environment overrides into a Config.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType(configType)
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

func LoadConfig(p Params) (*Config, error) {
	cfg, err := Load(config)
	if err != nil {
		return nil, err
	}

	if p.Vault != nil {
		if err := applyVaultSecrets(context.Background(), p.Vault, cfg); err != nil {
			return nil, err
		}
	}

	configHolder.Store(cfg)
	return cfg, nil
}

func LoadRemote(p Params) *Config {
	if p.Vault == nil {
		zap.L().Error("vault can't provide")
		os.Exit(1)
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	setDefaults(config)
	config.SetConfigType(configType)
	if err := config.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		os.Exit(1)
	}

	if err := config.ReadRemoteConfig(); err != nil {
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}
	cfg.Normalize()

	if err := applyVaultSecrets(context.Background(), p.Vault, &cfg); err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}
	configHolder.Store(&cfg)

	go func() {
		for {
			time.Sleep(time.Second * 5)

			if err := config.WatchRemoteConfig(); err != nil {
				zap.L().Error("unable to read remote config", zap.Error(err))
				continue
			}

			var newcfg Config
			if err := config.Unmarshal(&newcfg); err != nil {
				continue
			}
			newcfg.Normalize()
			carrySecrets(&newcfg, Current())
			configHolder.Store(&newcfg)
		}
	}()

	return &cfg
}

// Current returns the most recently loaded config, or nil before the first load.
func Current() *Config {
	if v, ok := configHolder.Load().(*Config); ok {
		return v
	}
	return nil
}

// Watch reloads the local config file into the runtime holder and calls every
// registered listener. Secrets resolved from Vault are carried over.
func Watch(cfg *Config) {
	if config.ConfigFileUsed() == "" {
		return
	}

	config.OnConfigChange(func(e fsnotify.Event) {
		var newcfg Config
		if err := config.Unmarshal(&newcfg); err != nil {
			zap.L().Error("[Config] failed to reload config", zap.String("file", e.Name), zap.Error(err))
			return
		}
		newcfg.Normalize()
		carrySecrets(&newcfg, Current())
		configHolder.Store(&newcfg)

		zap.L().Info("[Config] reloaded", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		for _, fn := range listeners.Load().([]func(*Config)) {
			fn(&newcfg)
		}
	})
	config.WatchConfig()
}

var listeners atomic.Value

func init() {
	listeners.Store([]func(*Config){})
}

// OnChange registers fn to run after every successful reload.
func OnChange(fn func(*Config)) {
	current := listeners.Load().([]func(*Config))
	next := make([]func(*Config), 0, len(current)+1)
	next = append(next, current...)
	listeners.Store(append(next, fn))
}

func applyVaultSecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		return err
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Database.URI = get("mongodb_uri", cfg.Database.URI)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Minio.SecretKey = get("minio_secret_key", cfg.Minio.SecretKey)
	cfg.Steam.APIKey = get("steam_api_key", cfg.Steam.APIKey)
	cfg.Steam.SessionID = get("steam_session_id", cfg.Steam.SessionID)
	cfg.Steam.LoginSecure = get("steam_login_secure", cfg.Steam.LoginSecure)
	cfg.Steam.SharedSecret = NormalizeSecret(get("steam_shared_secret", cfg.Steam.SharedSecret))
	cfg.Steam.IdentitySecret = NormalizeSecret(get("steam_identity_secret", cfg.Steam.IdentitySecret))
	return nil
}

func carrySecrets(dst, src *Config) {
	if src == nil {
		return
	}
	dst.Database.User = src.Database.User
	dst.Database.Password = src.Database.Password
	dst.Database.URI = src.Database.URI
	dst.Redis.Password = src.Redis.Password
	dst.Minio.SecretKey = src.Minio.SecretKey
	dst.Steam.APIKey = src.Steam.APIKey
	dst.Steam.SessionID = src.Steam.SessionID
	dst.Steam.LoginSecure = src.Steam.LoginSecure
	dst.Steam.SharedSecret = src.Steam.SharedSecret
	dst.Steam.IdentitySecret = src.Steam.IdentitySecret
}
