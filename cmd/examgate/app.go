package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/examgate/pkg/config"
	"github.com/dmitrymomot/examgate/pkg/email"
	"github.com/dmitrymomot/examgate/pkg/entitlement"
	"github.com/dmitrymomot/examgate/pkg/entitlement/mongostore"
	"github.com/dmitrymomot/examgate/pkg/entitlement/pgstore"
	"github.com/dmitrymomot/examgate/pkg/entitlement/redisstore"
	"github.com/dmitrymomot/examgate/pkg/eventbus"
	"github.com/dmitrymomot/examgate/pkg/httpserver"
	"github.com/dmitrymomot/examgate/pkg/logger"
	"github.com/dmitrymomot/examgate/pkg/mongo"
	"github.com/dmitrymomot/examgate/pkg/pg"
	"github.com/dmitrymomot/examgate/pkg/ratelimiter"
	"github.com/dmitrymomot/examgate/pkg/redis"
)

const (
	backendMemory   = "memory"
	backendPostgres = "postgres"
	backendRedis    = "redis"
	backendMongo    = "mongo"
)

var errUnknownBackend = errors.New("unknown store backend")

type appConfig struct {
	Env           string        `env:"APP_ENV" envDefault:"development"`
	ServiceName   string        `env:"SERVICE_NAME" envDefault:"examgate"`
	StoreBackend  string        `env:"STORE_BACKEND" envDefault:"memory"`
	AdminUserIDs  []string      `env:"ADMIN_USER_IDS" envSeparator:","`
	HealthTimeout time.Duration `env:"HEALTH_TIMEOUT" envDefault:"3s"`
	NotifyTimeout time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
}

// storeHandle is an opened record store together with what serve needs
// around it.
type storeHandle struct {
	store  entitlement.Store
	checks []httpserver.Check
	close  func()

	// limits backs the action rate limiter; Redis deployments share it
	// between instances.
	limits ratelimiter.Store
}

func openStore(ctx context.Context, backend string, log *slog.Logger) (*storeHandle, error) {
	switch backend {
	case backendMemory, "":
		s := entitlement.NewMemoryStore()
		log.WarnContext(ctx, "using in-memory record store, records are lost on restart")
		return &storeHandle{
			store:  s,
			checks: []httpserver.Check{{Name: "store", Ping: s.Healthcheck}},
			close:  func() {},
		}, nil

	case backendPostgres:
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
			pool.Close()
			return nil, err
		}
		s := pgstore.New(pool)
		return &storeHandle{
			store:  s,
			checks: []httpserver.Check{{Name: "postgres", Ping: s.Healthcheck}},
			close:  pool.Close,
		}, nil

	case backendRedis:
		var cfg redis.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s := redisstore.New(client,
			redisstore.WithKeyPrefix(cfg.KeyPrefix),
			redisstore.WithScanBatchSize(cfg.ScanBatchSize),
		)
		return &storeHandle{
			store:  s,
			limits: ratelimiter.NewRedisStore(client, cfg.KeyPrefix),
			checks: []httpserver.Check{{Name: "redis", Ping: s.Healthcheck}},
			close: func() {
				if err := client.Close(); err != nil {
					log.Error("failed to close redis client", logger.Error(err))
				}
			},
		}, nil

	case backendMongo:
		var cfg mongo.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		db, err := mongo.NewWithDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s := mongostore.New(db, mongostore.DefaultCollection)
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, err
		}
		return &storeHandle{
			store:  s,
			checks: []httpserver.Check{{Name: "mongo", Ping: s.Healthcheck}},
			close: func() {
				if err := db.Client().Disconnect(context.Background()); err != nil {
					log.Error("failed to disconnect mongo client", logger.Error(err))
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownBackend, backend)
}

// newProvider builds the Paddle provider behind a circuit breaker.
func newProvider(paddleCfg entitlement.PaddleConfig, log *slog.Logger) (entitlement.PaymentProvider, error) {
	var breakerCfg entitlement.BreakerConfig
	if err := config.Load(&breakerCfg); err != nil {
		return nil, err
	}
	paddle, err := entitlement.NewPaddleProvider(paddleCfg)
	if err != nil {
		return nil, err
	}
	return entitlement.NewBreakerProvider(paddle, breakerCfg, log), nil
}

// newService loads the policy and provider configuration and builds the
// lifecycle service on top of store.
func (c *cli) newService(store entitlement.Store) (*entitlement.Service, entitlement.PaddleConfig, error) {
	var paddleCfg entitlement.PaddleConfig
	if err := config.Load(&paddleCfg); err != nil {
		return nil, paddleCfg, err
	}
	var policyCfg entitlement.PolicyConfig
	if err := config.Load(&policyCfg); err != nil {
		return nil, paddleCfg, err
	}
	provider, err := newProvider(paddleCfg, c.log)
	if err != nil {
		return nil, paddleCfg, err
	}

	opts := []entitlement.ServiceOption{
		entitlement.WithPolicy(policyCfg.Policy()),
		entitlement.WithLogger(c.log),
	}
	if policyCfg.ManualRefunds {
		opts = append(opts, entitlement.WithManualRefunds())
	}
	svc := entitlement.NewService(store, provider, entitlement.NewAdminAllowlist(c.cfg.AdminUserIDs...), opts...)
	return svc, paddleCfg, nil
}

// newNotifier wires grant notifications: email always, the event bus when
// AMQP_URL is set. The returned close func releases the broker connection.
func newNotifier(ctx context.Context, log *slog.Logger) (entitlement.Notifier, []httpserver.Check, func(), error) {
	var emailCfg email.Config
	if err := config.Load(&emailCfg); err != nil {
		return nil, nil, nil, err
	}
	sender, err := email.NewSender(emailCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	notifiers := entitlement.MultiNotifier{email.NewGrantNotifier(sender, emailCfg)}

	var busCfg eventbus.Config
	if err := config.Load(&busCfg); err != nil {
		return nil, nil, nil, err
	}
	if busCfg.URL == "" {
		log.InfoContext(ctx, "AMQP_URL not set, grant events are not published")
		return notifiers, nil, func() {}, nil
	}

	pub, err := eventbus.NewRabbitPublisher(busCfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	notifiers = append(notifiers, eventbus.NewGrantNotifier(pub))
	closeFn := func() {
		if err := pub.Close(); err != nil {
			log.Error("failed to close event publisher", logger.Error(err))
		}
	}
	return notifiers, []httpserver.Check{{Name: "eventbus", Ping: pub.Healthcheck}}, closeFn, nil
}

// newActionLimiter returns the per-user limiter for provider-facing actions,
// or nil when RATE_LIMIT_CAPACITY is 0 or less. The returned close func
// stops the in-memory sweeper.
func newActionLimiter(sh *storeHandle) (*ratelimiter.Bucket, func(), error) {
	var cfg ratelimiter.Config
	if err := config.Load(&cfg); err != nil {
		return nil, nil, err
	}
	if cfg.Capacity <= 0 {
		return nil, func() {}, nil
	}

	store, closeFn := sh.limits, func() {}
	if store == nil {
		mem := ratelimiter.NewMemoryStore()
		store, closeFn = mem, mem.Close
	}
	bucket, err := ratelimiter.NewBucket(store, cfg)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return bucket, closeFn, nil
}
