package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pkgerrors "github.com/salesops/basket-engine/pkg/errors"
	"github.com/salesops/basket-engine/pkg/logger"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

type Params struct {
	Env          string
	Service      string
	Logger       *logger.Logger
	Gatherer     prometheus.Gatherer
	Checks       map[string]Check
	ReadyTimeout time.Duration
}

// NewRouter serves /health/live, /health/ready and /metrics.
func NewRouter(p Params) http.Handler {
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := chi.NewRouter()
	r.Use(recoverer(p.Logger), envHeader(p.Env))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", live(p.Service))
		r.Get("/ready", ready(p))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func live(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "live", "service": service})
	}
}

func ready(p Params) http.HandlerFunc {
	timeout := p.ReadyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	names := make([]string, 0, len(p.Checks))
	for name := range p.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		failed := map[string]string{}
		for _, name := range names {
			if err := p.Checks[name](ctx); err != nil {
				failed[name] = err.Error()
				if p.Logger != nil {
					p.Logger.Warn(p.Logger.WithField(ctx, "dependency", name), "readiness check failed: "+err.Error())
				}
			}
		}
		if len(failed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": names})
	}
}

func recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					err := pkgerrors.Wrap(pkgerrors.CodeInternal, fmt.Errorf("panic: %v", rec), "ops handler")
					if logg != nil {
						ctx := logg.WithFields(r.Context(), map[string]any{"panic": rec, "path": r.URL.Path})
						logg.Error(ctx, "panic.recovered", err)
					}
					writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func envHeader(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if env != "" {
				w.Header().Set("X-Basket-Env", env)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
