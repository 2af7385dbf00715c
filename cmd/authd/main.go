package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dmitrymomot/authd/internal/auth"
	"github.com/dmitrymomot/authd/internal/handler"
	"github.com/dmitrymomot/authd/internal/storage"
	"github.com/dmitrymomot/authd/pkg/config"
	"github.com/dmitrymomot/authd/pkg/httpserver"
	"github.com/dmitrymomot/authd/pkg/logger"
	"github.com/dmitrymomot/authd/pkg/oidc"
	"github.com/dmitrymomot/authd/pkg/session"
	"github.com/dmitrymomot/authd/pkg/statestore"
)

type appConfig struct {
	Log  logger.Config
	HTTP httpserver.Config
	OIDC oidc.Config

	DBDriver string `env:"DB_DRIVER" envDefault:"postgres"`
	Postgres storage.PostgresConfig
	Mongo    storage.MongoConfig

	// RedisURL enables the shared one-time OAuth state store. When empty
	// the process falls back to an in-memory store, which is only correct
	// for a single instance.
	RedisURL string `env:"REDIS_URL"`

	SessionSecret string        `env:"SESSION_SECRET,required"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	StateTTL      time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("authd exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := logger.New(cfg.Log, logger.WithAttr(slog.String("service", "authd")))

	store, health, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	states, err := openStateStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	codec, err := session.NewCodec(cfg.SessionSecret, session.WithTTL(cfg.SessionTTL))
	if err != nil {
		return err
	}

	provider, err := oidc.New(cfg.OIDC)
	if err != nil {
		return err
	}

	svc := auth.New(store, codec, provider, states,
		auth.WithLogger(log),
		auth.WithTokenTTL(cfg.SessionTTL),
		auth.WithStateTTL(cfg.StateTTL),
	)

	h := handler.New(svc, log, handler.WithHealthcheck(health))

	return httpserver.New(cfg.HTTP, log).Run(ctx, h.Router())
}

func openStore(ctx context.Context, cfg appConfig, log *slog.Logger) (auth.UserStore, func(context.Context) error, func(), error) {
	switch cfg.DBDriver {
	case "postgres":
		pgStore, err := storage.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pgStore.Migrate(ctx); err != nil {
			pgStore.Close()
			return nil, nil, nil, err
		}
		log.Info("connected to postgres")
		return pgStore, pgStore.Healthcheck, pgStore.Close, nil
	case "mongo":
		mongoStore, err := storage.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("connected to mongo")
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoStore.Close(closeCtx)
		}
		return mongoStore, mongoStore.Healthcheck, closeFn, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

func openStateStore(ctx context.Context, cfg appConfig, log *slog.Logger) (statestore.Store, error) {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set, using in-memory oauth state store")
		return statestore.NewMemoryStore(), nil
	}
	states, err := statestore.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	log.Info("connected to redis")
	return states, nil
}
