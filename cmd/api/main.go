package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/farmconnect/marketplace/internal/di"
	"github.com/farmconnect/marketplace/internal/handlers"
	"github.com/farmconnect/marketplace/internal/platform/auth"
	"github.com/farmconnect/marketplace/internal/platform/config"
	"github.com/farmconnect/marketplace/internal/platform/idempotency"
	"github.com/farmconnect/marketplace/internal/platform/observability"
	predis "github.com/farmconnect/marketplace/internal/platform/redis"
	"github.com/farmconnect/marketplace/internal/platform/requestctx"
	"github.com/farmconnect/marketplace/internal/platform/secrets"
	"github.com/farmconnect/marketplace/internal/services"
)

const cropRemovalJob = "crop-removal-sweep"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger("marketplace-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	container, err := di.NewContainer(ctx, cfg,
		di.WithLogger(logger),
		di.WithBuildInfo(buildInfo),
	)
	if err != nil {
		logger.Fatal("failed to build dependencies", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()
	logger.Info("dependencies ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("events", cfg.Events.Driver),
		zap.Bool("redis", cfg.Redis.Enabled()),
		zap.Bool("push", cfg.Push.Enabled),
	)

	authenticator, err := newAuthenticator(ctx, cfg, container.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase authenticator", zap.Error(err))
	}

	svc := container.Services
	idempotencyMiddleware := idempotency.Middleware(
		container.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders,
		handlers.WithOrderIdempotency(idempotencyMiddleware),
		handlers.WithOrderRateLimit(cfg.RateLimits.OrdersPerMinute),
	)
	notificationHandlers := handlers.NewNotificationHandlers(authenticator, svc.Notifications,
		handlers.WithStreamOrigins(cfg.CORS.AllowedOrigins),
	)
	cropHandlers := handlers.NewCropHandlers(authenticator, svc.Crops)
	eventHandlers := handlers.NewEventHandlers(svc.Notifications)
	maintenanceHandlers := handlers.NewMaintenanceHandlers(svc.CropRemovals, svc.Reconciler, maintenanceGuard(container))
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(svc.System),
		handlers.WithHealthBuildInfo(buildInfo),
	)

	routerOptions := []handlers.Option{
		handlers.WithMiddlewares(
			corsMiddleware(cfg.CORS.AllowedOrigins),
			observability.TraceMiddleware(traceProjectID(cfg)),
			observability.InjectLoggerMiddleware(logger),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware,
			container.Metrics.HTTPMetricsMiddleware,
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(container.Metrics.Handler()),
		handlers.WithAPIRateLimit(cfg.RateLimits.DefaultPerMinute),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithCropRoutes(cropHandlers.Routes),
		handlers.WithNotificationRoutes(notificationHandlers.Routes),
		handlers.WithInternalRoutes(maintenanceHandlers.Routes, eventHandlers.Routes),
	}
	if oidc := buildOIDCMiddleware(logger, cfg); oidc != nil {
		routerOptions = append(routerOptions, handlers.WithInternalMiddlewares(oidc))
	} else {
		logger.Warn("auth: OIDC JWKS url not configured; internal maintenance routes are unauthenticated")
	}
	router := handlers.NewRouter(routerOptions...)

	jobsCtx, jobsCancel := context.WithCancel(ctx)
	var jobsWG sync.WaitGroup
	runPeriodic(jobsCtx, &jobsWG, cfg.Removal.SweepInterval, func(runCtx context.Context) {
		sweepCropRemovals(runCtx, container, logger.Named("crop-removal"))
	})
	if cleaner, ok := container.Idempotency.(idempotency.Cleaner); ok {
		cleanupLogger := logger.Named("idempotency")
		runPeriodic(jobsCtx, &jobsWG, cfg.Idempotency.CleanupInterval, func(runCtx context.Context) {
			removed, err := cleaner.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
			if err != nil {
				cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
				return
			}
			if removed > 0 {
				cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		})
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("marketplace api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	jobsCancel()
	jobsWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// runPeriodic invokes fn every interval until ctx is done. A non-positive interval disables the job.
func runPeriodic(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, interval)
				fn(runCtx)
				cancel()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func sweepCropRemovals(ctx context.Context, container *di.Container, logger *zap.Logger) {
	var report services.SweepReport
	err := container.RunExclusive(ctx, cropRemovalJob, func(ctx context.Context) error {
		var runErr error
		report, runErr = container.Services.CropRemovals.SweepDue(ctx)
		return runErr
	})
	switch {
	case errors.Is(err, predis.ErrLockNotAcquired):
		logger.Debug("crop removal sweep skipped; another replica holds the lock")
	case err != nil:
		logger.Error("crop removal sweep failed",
			zap.Int("scanned", report.Scanned),
			zap.Int("removed", report.Removed),
			zap.Int("failed", report.Failed),
			zap.Error(err),
		)
	case report.Removed > 0:
		logger.Info("crop removal sweep completed",
			zap.Int("scanned", report.Scanned),
			zap.Int("removed", report.Removed),
		)
	}
}

func maintenanceGuard(container *di.Container) handlers.SweepGuard {
	return func(ctx context.Context, name string, fn func(context.Context) error) error {
		err := container.RunExclusive(ctx, name, fn)
		if errors.Is(err, predis.ErrLockNotAcquired) {
			return handlers.ErrMaintenanceBusy
		}
		return err
	}
}

func newAuthenticator(ctx context.Context, cfg config.Config, app *firebase.App) (*auth.Authenticator, error) {
	if app == nil {
		return nil, errors.New("firebase project id is required for token verification")
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, app, cfg.Firebase.CheckRevoked)
	if err != nil {
		return nil, err
	}
	return auth.NewAuthenticator(verifier), nil
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return nil
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", idempotency.HeaderName},
		ExposedHeaders:   []string{"Location", "X-Request-Id", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           600,
	}).Handler
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	oidc := cfg.Security.OIDC
	if strings.TrimSpace(oidc.JWKSURL) == "" {
		return nil
	}

	policy := auth.SchedulerPolicy{Issuers: oidc.Issuers, ServiceAccounts: oidc.ServiceAccounts}
	if audience := strings.TrimSpace(oidc.Audience); audience != "" {
		policy.Audiences = []string{audience}
	} else {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	oidcLogger := logger.Named("oidc")
	keys := auth.NewJWKSCache(oidc.JWKSURL, auth.WithJWKSLogger(oidcLogger))
	return auth.NewOIDCValidator(keys, policy, oidcLogger).RequireOIDC()
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}
