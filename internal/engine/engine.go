package engine

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/salesops/basket-engine/internal/baskets"
	"github.com/salesops/basket-engine/internal/roundrobin"
	"github.com/salesops/basket-engine/pkg/config"
	"github.com/salesops/basket-engine/pkg/db"
	"github.com/salesops/basket-engine/pkg/enums"
	pkgerrors "github.com/salesops/basket-engine/pkg/errors"
	"github.com/salesops/basket-engine/pkg/logger"
	"github.com/salesops/basket-engine/pkg/metrics"
	"github.com/salesops/basket-engine/pkg/outbox"
	"github.com/salesops/basket-engine/pkg/redis"
)

// Params are the shared clients every binary already owns.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Engine groups the routing components over one database.
type Engine struct {
	Baskets  baskets.Repository
	Catalog  *baskets.CatalogLoader
	Executor *baskets.Executor
	Router   *baskets.Router
	Sweeper  *baskets.Sweeper
	Release  *baskets.ReleasePolicy
	Assigner *roundrobin.Assigner
	Metrics  *metrics.RoutingMetrics
}

// New wires the engine and loads the basket catalog once, so a broken role
// binding fails startup instead of the first event.
func New(ctx context.Context, p Params) (*Engine, error) {
	if p.Config == nil {
		return nil, errors.New("config is required")
	}
	if p.DB == nil {
		return nil, errors.New("database client is required")
	}
	cfg := p.Config

	roles, err := enums.ParseUserRoles(cfg.Routing.TelesaleRoles)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "telesale roles")
	}

	repo := baskets.NewRepository(p.DB.DB())

	var cache catalogCache
	if p.Redis != nil && cfg.FeatureFlags.CatalogCaching {
		cache = p.Redis
	}
	loader, err := baskets.NewCatalogLoader(repo, cache, cfg.Routing.CatalogCacheTTL, p.Logger)
	if err != nil {
		return nil, err
	}
	if _, err := loader.Load(ctx); err != nil {
		return nil, err
	}

	m := metrics.NewRoutingMetrics(p.Registerer)
	emitter := outbox.NewService(outbox.NewRepository(p.DB.DB()), p.Logger)

	exec, err := baskets.NewExecutor(repo, p.DB, emitter, loader, m, p.Logger)
	if err != nil {
		return nil, err
	}
	guard, err := baskets.NewRaceGuard(repo)
	if err != nil {
		return nil, err
	}
	prober, err := baskets.NewInvolvementProber(repo, cfg.Routing.InvolvementLookback, roles)
	if err != nil {
		return nil, err
	}
	router, err := baskets.NewRouter(repo, loader, guard, prober, exec, m, p.Logger)
	if err != nil {
		return nil, err
	}
	sweeper, err := baskets.NewSweeper(repo, loader, exec, cfg.Routing.AgingBatchSize, m, p.Logger)
	if err != nil {
		return nil, err
	}
	release, err := baskets.NewReleasePolicy(repo, p.DB, loader, exec, p.Logger)
	if err != nil {
		return nil, err
	}
	assigner, err := roundrobin.NewAssigner(roundrobin.NewRepository(p.DB.DB()), p.DB, roles, p.Logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Baskets:  repo,
		Catalog:  loader,
		Executor: exec,
		Router:   router,
		Sweeper:  sweeper,
		Release:  release,
		Assigner: assigner.WithScope(cfg.Routing.RoundRobinScope),
		Metrics:  m,
	}, nil
}

type catalogCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(name string) string
}
