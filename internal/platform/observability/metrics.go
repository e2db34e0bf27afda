package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domain "github.com/farmconnect/marketplace/internal/domain"
)

const metricsNamespace = "marketplace"

// Metrics holds the Prometheus collectors for the marketplace API and its background jobs.
// It satisfies the metrics interfaces of the order, notification, removal and reconciler services.
type Metrics struct {
	registry *prometheus.Registry

	ordersPlaced        prometheus.Counter
	ordersRejected      *prometheus.CounterVec
	orderTransitions    *prometheus.CounterVec
	notifications       *prometheus.CounterVec
	cropsRemoved        prometheus.Counter
	cropRemovalFailures prometheus.Counter
	duplicatesDeleted   prometheus.Counter
	duplicateFailures   prometheus.Counter
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// NewMetrics registers all collectors on a fresh registry alongside the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ordersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "orders",
			Name:      "placed_total",
			Help:      "Total number of orders placed",
		}),
		ordersRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "orders",
			Name:      "rejected_total",
			Help:      "Total number of order placements rejected by reason",
		}, []string{"reason"}),
		orderTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "orders",
			Name:      "status_transitions_total",
			Help:      "Total number of order status transitions",
		}, []string{"from", "to"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Total number of notification deliveries by channel and outcome",
		}, []string{"channel", "type", "status"}),
		cropsRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "crop_removal",
			Name:      "removed_total",
			Help:      "Total number of sold out crops removed by the sweep",
		}),
		cropRemovalFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "crop_removal",
			Name:      "failures_total",
			Help:      "Total number of crop removals that failed",
		}),
		duplicatesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "reconciler",
			Name:      "duplicates_deleted_total",
			Help:      "Total number of duplicate orders deleted",
		}),
		duplicateFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "reconciler",
			Name:      "delete_failures_total",
			Help:      "Total number of duplicate order deletions that failed",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests served",
		}, []string{"method", "route", "status_code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OrderPlaced() {
	m.ordersPlaced.Inc()
}

func (m *Metrics) OrderRejected(reason string) {
	m.ordersRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) OrderStatusChanged(from, to domain.OrderStatus) {
	m.orderTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) NotificationDelivered(channel, notificationType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.notifications.WithLabelValues(channel, notificationType, status).Inc()
}

func (m *Metrics) CropsSwept(removed, failed int) {
	m.cropsRemoved.Add(float64(removed))
	m.cropRemovalFailures.Add(float64(failed))
}

func (m *Metrics) DuplicatesDeleted(deleted, failed int) {
	m.duplicatesDeleted.Add(float64(deleted))
	m.duplicateFailures.Add(float64(failed))
}

// HTTPMetricsMiddleware records request counts and latency labelled by route pattern.
func (m *Metrics) HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := SanitizeRoute(routePattern(r))
		method := SanitizeMethod(r.Method)
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusOf(ww))).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}
