package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"

	"github.com/farmconnect/marketplace/internal/platform/auth"
	"github.com/farmconnect/marketplace/internal/platform/config"
	pfirestore "github.com/farmconnect/marketplace/internal/platform/firestore"
	"github.com/farmconnect/marketplace/internal/platform/idempotency"
	"github.com/farmconnect/marketplace/internal/platform/jobs"
	"github.com/farmconnect/marketplace/internal/platform/mongodb"
	"github.com/farmconnect/marketplace/internal/platform/observability"
	"github.com/farmconnect/marketplace/internal/platform/push"
	predis "github.com/farmconnect/marketplace/internal/platform/redis"
	"github.com/farmconnect/marketplace/internal/platform/storage"
	"github.com/farmconnect/marketplace/internal/repositories"
	firestorerepo "github.com/farmconnect/marketplace/internal/repositories/firestore"
	"github.com/farmconnect/marketplace/internal/repositories/memory"
	mongorepo "github.com/farmconnect/marketplace/internal/repositories/mongo"
	"github.com/farmconnect/marketplace/internal/services"
)

// Services bundles the service-layer contracts that handlers and jobs rely upon.
type Services struct {
	Crops         services.CropService
	Orders        services.OrderService
	Notifications services.NotificationService
	CropRemovals  services.CropRemovalService
	Reconciler    services.DuplicateReconciler
	System        services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Metrics      *observability.Metrics
	Idempotency  idempotency.Store
	// Locker is nil when Redis is not configured; maintenance jobs then run unguarded.
	Locker *predis.Locker
	// Firebase is nil without a Firebase project id.
	Firebase *firebase.App

	logger    *zap.Logger
	firestore *pfirestore.Provider
	closers   []namedCloser
}

type namedCloser struct {
	name  string
	close func(context.Context) error
}

// Option customises container construction.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	registry repositories.Registry
	build    services.BuildInfo
	clock    func() time.Time
	metrics  *observability.Metrics
}

// WithLogger sets the base logger used by services and infrastructure.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegistry bypasses the configured store driver. Tests pass a memory registry.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithBuildInfo sets the metadata reported by the health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *options) {
		o.build = build
	}
}

// WithClock overrides the clock passed to every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMetrics reuses an existing collector set instead of creating one.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// NewContainer constructs the runtime dependencies selected by cfg. On failure every
// resource opened so far is closed before the error is returned.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (_ *Container, err error) {
	o := options{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &Container{Config: cfg, logger: o.logger, Metrics: o.metrics}
	if c.Metrics == nil {
		c.Metrics = observability.NewMetrics()
	}
	defer func() {
		if err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	var redisClient *predis.Client
	var extraChecks []repositories.DependencyCheck
	if cfg.Redis.Enabled() {
		redisClient, err = predis.NewClient(ctx, cfg.Redis, o.logger.Named("redis"))
		if err != nil {
			return nil, err
		}
		c.addCloser("redis", func(context.Context) error { return redisClient.Close() })
		c.Locker = predis.NewLocker(redisClient, "marketplace:lock:")
		extraChecks = append(extraChecks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check:   redisClient.Ping,
		})
	}

	if err = c.buildRegistry(ctx, o.registry, extraChecks); err != nil {
		return nil, err
	}
	if err = c.buildIdempotencyStore(ctx, redisClient); err != nil {
		return nil, err
	}

	events, err := c.buildEventPublisher(ctx)
	if err != nil {
		return nil, err
	}
	reports, err := c.buildReportWriter(ctx)
	if err != nil {
		return nil, err
	}

	var realtime services.RealtimeChannel
	if redisClient != nil {
		realtime = predis.NewNotificationFanout(redisClient)
	}
	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		if c.Firebase, err = auth.NewFirebaseApp(ctx, cfg.Firebase); err != nil {
			return nil, err
		}
	}
	var pushSender services.PushSender
	if cfg.Push.Enabled {
		sender, pushErr := push.NewFCMSender(ctx, c.Firebase)
		if pushErr != nil {
			return nil, fmt.Errorf("build fcm sender: %w", pushErr)
		}
		pushSender = sender
	}

	if err = c.buildServices(o, events, reports, realtime, pushSender); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) buildRegistry(ctx context.Context, reg repositories.Registry, checks []repositories.DependencyCheck) error {
	if reg != nil {
		c.Repositories = reg
		return nil
	}

	switch c.Config.Store.Driver {
	case config.StoreDriverFirestore:
		provider := pfirestore.NewProvider(c.Config.Firestore)
		registry, err := firestorerepo.NewRegistry(provider, checks...)
		if err != nil {
			_ = provider.Close(ctx)
			return fmt.Errorf("build firestore repositories: %w", err)
		}
		c.Repositories = registry
		c.firestore = provider
	case config.StoreDriverMongo:
		provider := mongodb.NewProvider(c.Config.Mongo)
		registry, err := mongorepo.NewRegistry(provider, checks...)
		if err != nil {
			_ = provider.Close(ctx)
			return fmt.Errorf("build mongo repositories: %w", err)
		}
		c.Repositories = registry
	case config.StoreDriverMemory, "":
		c.Repositories = memory.NewRegistry(checks...)
	default:
		return fmt.Errorf("unsupported store driver %q", c.Config.Store.Driver)
	}
	return nil
}

// buildIdempotencyStore prefers Redis, then the Firestore client shared with the
// repositories, and falls back to process memory.
func (c *Container) buildIdempotencyStore(ctx context.Context, redisClient *predis.Client) error {
	switch {
	case redisClient != nil:
		c.Idempotency = idempotency.NewRedisStore(redisClient.Redis(), "marketplace:idem:")
	case c.firestore != nil:
		client, err := c.firestore.Client(ctx)
		if err != nil {
			return fmt.Errorf("build idempotency store: %w", err)
		}
		c.Idempotency = idempotency.NewFirestoreStore(client, "")
	default:
		c.Idempotency = idempotency.NewMemoryStore()
	}
	return nil
}

func (c *Container) buildEventPublisher(ctx context.Context) (services.OrderEventPublisher, error) {
	cfg := c.Config.Events
	switch cfg.Driver {
	case config.EventsDriverPubSub:
		client, err := pubsub.NewClient(ctx, c.projectID())
		if err != nil {
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		publisher, err := jobs.NewPubSubOrderEventPublisher(client.Topic(cfg.Topic))
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("build pubsub publisher: %w", err)
		}
		c.addCloser("pubsub", func(context.Context) error {
			publisher.Stop()
			return client.Close()
		})
		return publisher, nil
	case config.EventsDriverKafka:
		publisher, err := jobs.NewKafkaOrderEventPublisher(cfg.KafkaBrokers, cfg.Topic)
		if err != nil {
			return nil, fmt.Errorf("build kafka publisher: %w", err)
		}
		c.addCloser("kafka", func(context.Context) error { return publisher.Close() })
		return publisher, nil
	case config.EventsDriverNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported events driver %q", cfg.Driver)
	}
}

func (c *Container) buildReportWriter(ctx context.Context) (services.CleanupReportWriter, error) {
	bucket := strings.TrimSpace(c.Config.Reconciler.ReportBucket)
	if bucket == "" {
		return nil, nil
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("build storage client: %w", err)
	}
	writer, err := storage.NewReportWriter(client, bucket, c.Config.Reconciler.ReportPrefix)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	c.addCloser("storage", func(context.Context) error { return client.Close() })
	return writer, nil
}

func (c *Container) buildServices(o options, events services.OrderEventPublisher, reports services.CleanupReportWriter, realtime services.RealtimeChannel, pushSender services.PushSender) error {
	reg := c.Repositories
	logEvent := observability.EventLogger(o.logger)

	notifications, err := services.NewNotificationService(services.NotificationServiceDeps{
		Notifications: reg.Notifications(),
		Realtime:      realtime,
		Push:          pushSender,
		Metrics:       c.Metrics,
		Clock:         o.clock,
		Logger:        logEvent,
	})
	if err != nil {
		return fmt.Errorf("build notification service: %w", err)
	}
	c.Services.Notifications = notifications

	crops, err := services.NewCropService(services.CropServiceDeps{
		Crops:  reg.Crops(),
		Clock:  o.clock,
		Logger: logEvent,
	})
	if err != nil {
		return fmt.Errorf("build crop service: %w", err)
	}
	c.Services.Crops = crops

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Crops:        reg.Crops(),
		Orders:       reg.Orders(),
		Notifier:     notifications,
		Events:       events,
		Metrics:      c.Metrics,
		RemovalDelay: c.Config.Removal.Delay,
		Clock:        o.clock,
		Logger:       logEvent,
	})
	if err != nil {
		return fmt.Errorf("build order service: %w", err)
	}
	c.Services.Orders = orders

	removals, err := services.NewCropRemovalService(services.CropRemovalServiceDeps{
		Crops:     reg.Crops(),
		BatchSize: c.Config.Removal.BatchSize,
		Metrics:   c.Metrics,
		Clock:     o.clock,
		Logger:    logEvent,
	})
	if err != nil {
		return fmt.Errorf("build crop removal service: %w", err)
	}
	c.Services.CropRemovals = removals

	reconciler, err := services.NewDuplicateReconciler(services.DuplicateReconcilerDeps{
		Orders:  reg.Orders(),
		Reports: reports,
		Metrics: c.Metrics,
		Clock:   o.clock,
		Logger:  logEvent,
	})
	if err != nil {
		return fmt.Errorf("build duplicate reconciler: %w", err)
	}
	c.Services.Reconciler = reconciler

	build := o.build
	if build.Environment == "" {
		build.Environment = c.Config.Security.Environment
	}
	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		CriticalChecks:   criticalChecks(c.Config.Store.Driver),
		Clock:            o.clock,
		Build:            build,
	})
	if err != nil {
		return fmt.Errorf("build system service: %w", err)
	}
	c.Services.System = system
	return nil
}

// RunExclusive runs fn under the named distributed lock. It returns
// predis.ErrLockNotAcquired when another replica holds the lock and runs fn directly when
// Redis is not configured.
func (c *Container) RunExclusive(ctx context.Context, name string, fn func(context.Context) error) error {
	if c.Locker == nil {
		return fn(ctx)
	}
	ttl := c.Config.Removal.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	// The lock lives at least until the run's deadline.
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > ttl {
			ttl = remaining
		}
	}
	return c.Locker.WithLock(ctx, name, ttl, fn)
}

// Close releases resources in reverse order of acquisition and joins their errors.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repositories: %w", err))
		}
		c.Repositories = nil
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		closer := c.closers[i]
		if err := closer.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", closer.name, err))
		}
	}
	c.closers = nil
	if len(errs) > 0 && c.logger != nil {
		c.logger.Warn("container close reported errors", zap.Int("count", len(errs)))
	}
	return errors.Join(errs...)
}

func (c *Container) addCloser(name string, fn func(context.Context) error) {
	c.closers = append(c.closers, namedCloser{name: name, close: fn})
}

func (c *Container) projectID() string {
	if id := strings.TrimSpace(c.Config.Firestore.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(c.Config.Firebase.ProjectID)
}

func criticalChecks(driver string) []string {
	switch driver {
	case config.StoreDriverFirestore:
		return []string{"firestore"}
	case config.StoreDriverMongo:
		return []string{"mongodb"}
	default:
		return []string{"memory"}
	}
}
