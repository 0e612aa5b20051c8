package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"` // unique per running instance
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
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
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		Metrics        bool   `mapstructure:"METRICS"`
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
	Scheduler struct {
		// BeatMode is "asynq" (redis periodic task) or "local" (in-process ticker).
		BeatMode    string        `mapstructure:"BEAT_MODE"`
		BeatSpec    string        `mapstructure:"BEAT_SPEC"`
		BeatEvery   time.Duration `mapstructure:"BEAT_EVERY"`
		BatchSize   int           `mapstructure:"BATCH_SIZE"`
		Parallelism int           `mapstructure:"PARALLELISM"`
		RetryDelay  time.Duration `mapstructure:"RETRY_DELAY"`
		TaskTimeout time.Duration `mapstructure:"TASK_TIMEOUT"`
	} `mapstructure:"SCHEDULER"`
	Decision struct {
		ShortInterval  time.Duration `mapstructure:"SHORT_INTERVAL"`
		LongInterval   time.Duration `mapstructure:"LONG_INTERVAL"`
		QuickInterval  time.Duration `mapstructure:"QUICK_INTERVAL"`
		MinConsumption float64       `mapstructure:"MIN_CONSUMPTION"`
		MaxCostPerLead float64       `mapstructure:"MAX_COST_PER_LEAD"`
		MaxFailRetries int           `mapstructure:"MAX_FAIL_RETRIES"`
		DefaultBudget  int64         `mapstructure:"DEFAULT_BUDGET"`
		DefaultBid     int64         `mapstructure:"DEFAULT_BID"`
		Objective      string        `mapstructure:"OBJECTIVE"`
	} `mapstructure:"DECISION"`
	Sync struct {
		NewInterval    time.Duration `mapstructure:"NEW_INTERVAL"`
		RecentInterval time.Duration `mapstructure:"RECENT_INTERVAL"`
		OldInterval    time.Duration `mapstructure:"OLD_INTERVAL"`
	} `mapstructure:"SYNC"`
	Ledger struct {
		PricingCacheTTL time.Duration `mapstructure:"PRICING_CACHE_TTL"`
	} `mapstructure:"LEDGER"`
	AdPlatform struct {
		BaseURL     string        `mapstructure:"BASE_URL"`
		AccessToken string        `mapstructure:"ACCESS_TOKEN"`
		Timeout     time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"AD_PLATFORM"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {
	cfg, err := Load(".")
	if err != nil {
		zap.L().Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		if err := applySecrets(context.Background(), p.Vault, cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	return cfg
}

// Load reads config.yaml from path, overlaid by environment variables.
// A missing file is not an error; defaults and env still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "promoflow")
	v.SetDefault("NODE_ID", 1)

	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 5)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 20)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)

	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)

	v.SetDefault("SCHEDULER.BEAT_MODE", "asynq")
	v.SetDefault("SCHEDULER.BEAT_SPEC", "@every 1m")
	v.SetDefault("SCHEDULER.BEAT_EVERY", time.Minute)
	v.SetDefault("SCHEDULER.BATCH_SIZE", 5)
	v.SetDefault("SCHEDULER.PARALLELISM", 1)
	v.SetDefault("SCHEDULER.RETRY_DELAY", 5*time.Minute)
	v.SetDefault("SCHEDULER.TASK_TIMEOUT", 2*time.Minute)

	v.SetDefault("DECISION.SHORT_INTERVAL", 30*time.Minute)
	v.SetDefault("DECISION.LONG_INTERVAL", 120*time.Minute)
	v.SetDefault("DECISION.QUICK_INTERVAL", 5*time.Minute)
	v.SetDefault("DECISION.MIN_CONSUMPTION", 100.0)
	v.SetDefault("DECISION.MAX_COST_PER_LEAD", 50.0)
	v.SetDefault("DECISION.MAX_FAIL_RETRIES", 3)
	v.SetDefault("DECISION.DEFAULT_BUDGET", 10000)
	v.SetDefault("DECISION.DEFAULT_BID", 30)
	v.SetDefault("DECISION.OBJECTIVE", "lead_generation")

	v.SetDefault("SYNC.NEW_INTERVAL", 30*time.Minute)
	v.SetDefault("SYNC.RECENT_INTERVAL", 120*time.Minute)
	v.SetDefault("SYNC.OLD_INTERVAL", 360*time.Minute)

	v.SetDefault("LEDGER.PRICING_CACHE_TTL", time.Minute)

	v.SetDefault("AD_PLATFORM.TIMEOUT", 10*time.Second)
}

func applySecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		return err
	}
	zap.L().Info("Success Get Secret")

	get := func(key string) string {
		if val, ok := secret.Data.Data[key].(string); ok {
			return val
		}
		return ""
	}

	if v := get("postgres_user"); v != "" {
		cfg.Database.User = v
	}
	if v := get("postgres_password"); v != "" {
		cfg.Database.Password = v
	}
	if v := get("redis_password"); v != "" {
		cfg.Redis.Password = v
	}
	if v := get("ad_platform_access_token"); v != "" {
		cfg.AdPlatform.AccessToken = v
	}

	return nil
}
