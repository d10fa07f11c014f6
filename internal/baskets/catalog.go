package baskets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/salesops/basket-engine/pkg/db/models"
	"github.com/salesops/basket-engine/pkg/enums"
	pkgerrors "github.com/salesops/basket-engine/pkg/errors"
	"github.com/salesops/basket-engine/pkg/logger"
	"github.com/salesops/basket-engine/pkg/redis"
)

const catalogCacheName = "basket-catalog"

// Catalog is a validated, immutable snapshot of every configured basket.
// Routing rules address baskets by role and resolve the key through it.
type Catalog struct {
	byKey  map[string]models.BasketConfig
	byRole map[enums.BasketRole]string
	active []models.BasketConfig
}

// NewCatalog validates configs and builds the role index. Every required
// role must be bound to exactly one active basket, and every fallback key an
// active basket points at must itself be active.
func NewCatalog(configs []models.BasketConfig) (*Catalog, error) {
	c := &Catalog{
		byKey:  make(map[string]models.BasketConfig, len(configs)),
		byRole: make(map[enums.BasketRole]string, len(enums.RequiredBasketRoles)),
	}

	var errs error
	bound := make(map[enums.BasketRole][]string)
	for _, cfg := range configs {
		if cfg.BasketKey == "" {
			errs = multierr.Append(errs, errors.New("basket with empty key"))
			continue
		}
		if _, dup := c.byKey[cfg.BasketKey]; dup {
			errs = multierr.Append(errs, fmt.Errorf("basket %q configured twice", cfg.BasketKey))
			continue
		}
		c.byKey[cfg.BasketKey] = cfg
		if !cfg.IsActive {
			continue
		}
		c.active = append(c.active, cfg)
		if cfg.Role == nil {
			continue
		}
		if !cfg.Role.IsValid() {
			errs = multierr.Append(errs, fmt.Errorf("basket %q has unknown role %q", cfg.BasketKey, *cfg.Role))
			continue
		}
		bound[*cfg.Role] = append(bound[*cfg.Role], cfg.BasketKey)
	}

	for _, role := range enums.RequiredBasketRoles {
		keys := bound[role]
		switch len(keys) {
		case 0:
			errs = multierr.Append(errs, fmt.Errorf("no active basket bound to role %s", role))
		case 1:
			c.byRole[role] = keys[0]
		default:
			errs = multierr.Append(errs, fmt.Errorf("role %s bound to %d baskets %v", role, len(keys), keys))
		}
	}

	for _, cfg := range c.active {
		errs = multierr.Append(errs, c.checkRef(cfg.BasketKey, "on_fail_basket_key", cfg.OnFailBasketKey))
		errs = multierr.Append(errs, c.checkRef(cfg.BasketKey, "on_max_dist_basket_key", cfg.OnMaxDistBasketKey))
		errs = multierr.Append(errs, c.checkRef(cfg.BasketKey, "linked_basket_key", cfg.LinkedBasketKey))
	}

	if errs != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, errs, "basket catalog invalid")
	}

	sort.SliceStable(c.active, func(i, j int) bool {
		if c.active[i].DisplayOrder != c.active[j].DisplayOrder {
			return c.active[i].DisplayOrder < c.active[j].DisplayOrder
		}
		return c.active[i].BasketKey < c.active[j].BasketKey
	})
	return c, nil
}

func (c *Catalog) checkRef(owner, field string, ref *string) error {
	if ref == nil || *ref == "" {
		return nil
	}
	target, ok := c.byKey[*ref]
	if !ok {
		return fmt.Errorf("basket %q %s references unknown basket %q", owner, field, *ref)
	}
	if !target.IsActive {
		return fmt.Errorf("basket %q %s references inactive basket %q", owner, field, *ref)
	}
	return nil
}

// Current returns the catalog itself, for callers that hold a fixed snapshot.
func (c *Catalog) Current(context.Context) (*Catalog, error) {
	return c, nil
}

// Lookup returns the config stored under key, active or not.
func (c *Catalog) Lookup(key string) (models.BasketConfig, bool) {
	cfg, ok := c.byKey[key]
	return cfg, ok
}

// Key returns the basket key bound to role.
func (c *Catalog) Key(role enums.BasketRole) string {
	return c.byRole[role]
}

// Role returns the role bound to key, if any.
func (c *Catalog) Role(key string) (enums.BasketRole, bool) {
	for role, bound := range c.byRole {
		if bound == key {
			return role, true
		}
	}
	return "", false
}

// Is reports whether key is the basket bound to role.
func (c *Catalog) Is(key string, role enums.BasketRole) bool {
	bound, ok := c.byRole[role]
	return ok && bound == key
}

// Active lists active baskets ordered by display order.
func (c *Catalog) Active() []models.BasketConfig {
	out := make([]models.BasketConfig, len(c.active))
	copy(out, c.active)
	return out
}

// Aging lists active baskets with a positive fail-after timeout.
func (c *Catalog) Aging() []models.BasketConfig {
	var out []models.BasketConfig
	for _, cfg := range c.active {
		if cfg.FailAfterDays != nil && *cfg.FailAfterDays > 0 {
			out = append(out, cfg)
		}
	}
	return out
}

func (c *Catalog) configs() []models.BasketConfig {
	out := make([]models.BasketConfig, 0, len(c.byKey))
	for _, cfg := range c.byKey {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BasketKey < out[j].BasketKey })
	return out
}

type configSource interface {
	ListBasketConfigs(ctx context.Context) ([]models.BasketConfig, error)
}

type catalogCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(name string) string
}

// CatalogLoader builds catalogs from the database, optionally through a
// short-lived Redis snapshot shared by every process. Current keeps the last
// catalog in memory for ttl.
type CatalogLoader struct {
	source configSource
	cache  catalogCache
	ttl    time.Duration
	logg   *logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	snapshot *Catalog
	loadedAt time.Time
}

// NewCatalogLoader wires a loader. cache may be nil to skip Redis; a ttl of
// zero or less disables the in-process snapshot as well.
func NewCatalogLoader(source configSource, cache catalogCache, ttl time.Duration, logg *logger.Logger) (*CatalogLoader, error) {
	if source == nil {
		return nil, fmt.Errorf("basket config source required")
	}
	return &CatalogLoader{source: source, cache: cache, ttl: ttl, logg: logg, now: time.Now}, nil
}

// Load reads a validated catalog through Redis or the database and replaces
// the in-process snapshot.
func (l *CatalogLoader) Load(ctx context.Context) (*Catalog, error) {
	catalog, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.snapshot, l.loadedAt = catalog, l.now()
	l.mu.Unlock()
	return catalog, nil
}

func (l *CatalogLoader) read(ctx context.Context) (*Catalog, error) {
	if l.cache != nil && l.ttl > 0 {
		var cached []models.BasketConfig
		err := l.cache.GetJSON(ctx, l.cache.CacheKey(catalogCacheName), &cached)
		switch {
		case err == nil:
			if catalog, cerr := NewCatalog(cached); cerr == nil {
				return catalog, nil
			}
			l.warn(ctx, "cached basket catalog invalid, reloading")
		case errors.Is(err, redis.ErrCacheMiss):
		default:
			l.warn(ctx, "basket catalog cache read failed: "+err.Error())
		}
	}

	configs, err := l.source.ListBasketConfigs(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load basket configs")
	}
	catalog, err := NewCatalog(configs)
	if err != nil {
		return nil, err
	}

	if l.cache != nil && l.ttl > 0 {
		if err := l.cache.SetJSON(ctx, l.cache.CacheKey(catalogCacheName), catalog.configs(), l.ttl); err != nil {
			l.warn(ctx, "basket catalog cache write failed: "+err.Error())
		}
	}
	return catalog, nil
}

// Current returns the in-process snapshot while it is younger than ttl and
// reloads otherwise.
func (l *CatalogLoader) Current(ctx context.Context) (*Catalog, error) {
	if l.ttl > 0 {
		l.mu.Lock()
		snapshot, loadedAt := l.snapshot, l.loadedAt
		l.mu.Unlock()
		if snapshot != nil && l.now().Sub(loadedAt) < l.ttl {
			return snapshot, nil
		}
	}
	return l.Load(ctx)
}

func (l *CatalogLoader) warn(ctx context.Context, msg string) {
	if l.logg != nil {
		l.logg.Warn(ctx, msg)
	}
}
