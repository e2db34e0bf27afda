package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/farmconnect/marketplace/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	metrics     http.Handler

	orders        RouteRegistrar
	crops         RouteRegistrar
	notifications RouteRegistrar
	internal      []RouteRegistrar

	internalMiddlewares []func(http.Handler) http.Handler
	apiRateLimit        int
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the marketplace route groups.
// The /internal group lives outside the versioned prefix so schedulers can target it directly.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	r.Route(cfg.basePath, func(api chi.Router) {
		api.Use(rateLimitMiddleware(newPerMinuteRateLimiter(cfg.apiRateLimit, nil), time.Minute))

		// The websocket stream must not sit behind the request timeout.
		api.Group(func(group chi.Router) {
			if cfg.notifications != nil {
				cfg.notifications(group)
				return
			}
			registerNotImplementedRoute(group, "/notifications", "notifications")
		})

		api.Group(func(group chi.Router) {
			group.Use(middleware.Timeout(defaultTimeout))
			group.Route("/orders", func(orders chi.Router) {
				if cfg.orders != nil {
					cfg.orders(orders)
					return
				}
				registerNotImplemented(orders, "orders")
			})
			group.Route("/crops", func(crops chi.Router) {
				if cfg.crops != nil {
					cfg.crops(crops)
					return
				}
				registerNotImplemented(crops, "crops")
			})
		})
	})

	r.Route("/internal", func(group chi.Router) {
		group.Use(middleware.Timeout(defaultTimeout))
		for _, mw := range cfg.internalMiddlewares {
			if mw != nil {
				group.Use(mw)
			}
		}
		if len(cfg.internal) == 0 {
			registerNotImplemented(group, "internal")
			return
		}
		for _, reg := range cfg.internal {
			reg(group)
		}
	})

	return r
}

// WithAPIRateLimit caps requests per client address across the versioned API. Zero disables it.
func WithAPIRateLimit(perMinute int) Option {
	return func(cfg *routerConfig) {
		cfg.apiRateLimit = perMinute
	}
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithMetricsHandler exposes the Prometheus scrape endpoint at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.metrics = h
	}
}

// WithOrderRoutes configures the registrar responsible for order endpoints.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = reg
	}
}

// WithCropRoutes configures the registrar responsible for crop listing endpoints.
func WithCropRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.crops = reg
	}
}

// WithNotificationRoutes configures the registrar responsible for inbox endpoints. The registrar
// receives the versioned API router because the inbox uses custom-method paths.
func WithNotificationRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.notifications = reg
	}
}

// WithInternalRoutes adds registrars for internal endpoints. Each call appends, so maintenance
// and event handlers can share the /internal group.
func WithInternalRoutes(regs ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		for _, reg := range regs {
			if reg != nil {
				cfg.internal = append(cfg.internal, reg)
			}
		}
	}
}

// WithInternalMiddlewares configures middlewares applied to the /internal group.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internalMiddlewares = append(cfg.internalMiddlewares, mw...)
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
}

func registerNotImplementedRoute(r chi.Router, path string, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc(path, handler)
}
