package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lumamart/api/internal/handlers"
	"github.com/lumamart/api/internal/payments"
	"github.com/lumamart/api/internal/platform/auth"
	"github.com/lumamart/api/internal/platform/config"
	pfirestore "github.com/lumamart/api/internal/platform/firestore"
	"github.com/lumamart/api/internal/platform/idempotency"
	"github.com/lumamart/api/internal/platform/notify"
	"github.com/lumamart/api/internal/platform/observability"
	"github.com/lumamart/api/internal/platform/secrets"
	platformstorage "github.com/lumamart/api/internal/platform/storage"
	"github.com/lumamart/api/internal/repositories"
	firestoreRepo "github.com/lumamart/api/internal/repositories/firestore"
	"github.com/lumamart/api/internal/services"
	"github.com/lumamart/api/internal/shipping"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

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

	requiredSecrets := requiredSecretNames(envValues)
	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecrets...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	archiver, err := platformstorage.NewArchiver(storageClient)
	if err != nil {
		logger.Fatal("failed to initialise storage archiver", zap.Error(err))
	}

	var labelArchiver services.LabelArchiver
	if bucket := strings.TrimSpace(cfg.Storage.LabelsBucket); bucket != "" {
		labelArchive, err := platformstorage.NewLabelArchive(platformstorage.LabelArchiveConfig{
			Uploader: archiver,
			Bucket:   bucket,
		})
		if err != nil {
			logger.Fatal("failed to initialise label archive", zap.Error(err))
		}
		labelArchiver = labelArchive
	} else {
		logger.Warn("labels bucket not configured; carrier label documents will not be archived")
	}

	var signedURLClient *platformstorage.Client
	if keyFile := strings.TrimSpace(cfg.Storage.ServiceAccountFile); keyFile != "" {
		signer, err := platformstorage.NewServiceAccountSignerFromFile(keyFile)
		if err != nil {
			logger.Fatal("failed to parse storage signer key", zap.Error(err))
		}
		signedURLClient, err = platformstorage.NewClient(signer)
		if err != nil {
			logger.Fatal("failed to initialise signed url client", zap.Error(err))
		}
	} else {
		logger.Warn("storage signer not configured; label download links will be unavailable")
	}

	if host := strings.TrimSpace(cfg.PubSub.EmulatorHost); host != "" {
		_ = os.Setenv("PUBSUB_EMULATOR_HOST", host)
	}
	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	notificationsTopic := pubsubClient.Topic(cfg.PubSub.NotificationsTopic)
	defer func() {
		notificationsTopic.Stop()
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()

	notificationPublisher, err := notify.NewPubSubNotificationPublisher(notificationsTopic)
	if err != nil {
		logger.Fatal("failed to initialise notification publisher", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg)

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}
	counterRepo, err := firestoreRepo.NewCounterRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise counter repository", zap.Error(err))
	}

	paymentsLogger := newEventLogger(logger.Named("payments"))
	gatewayProvider, err := payments.NewCheckoutProProvider(payments.CheckoutProConfig{
		BaseURL:         cfg.Payments.Gateway.BaseURL,
		AccessToken:     cfg.Payments.Gateway.AccessToken,
		NotificationURL: strings.TrimSpace(envValues["API_PAYMENTS_NOTIFICATION_URL"]),
		Logger:          paymentsLogger,
		Clock:           time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout gateway provider", zap.Error(err))
	}

	providers := map[string]payments.Provider{
		"checkoutpro": gatewayProvider,
	}
	if strings.TrimSpace(cfg.Payments.Stripe.APIKey) != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.Payments.Stripe.APIKey,
			Logger: paymentsLogger,
			Clock:  time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
		}
		providers["stripe"] = stripeProvider
	}

	paymentManager, err := payments.NewManager(providers,
		payments.WithDefaultProvider(cfg.Payments.DefaultProvider),
		payments.WithCurrencyRoutes(cfg.Payments.CurrencyRoutes),
	)
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	signatureValidator := payments.NewSignatureValidator(cfg.Payments.Gateway.WebhookSecret,
		payments.WithSignatureLogger(newEventLogger(logger.Named("webhooks"))),
		payments.WithSignatureMaxAge(5*time.Minute),
	)

	shippingClient, err := shipping.NewClient(shipping.ClientConfig{
		BaseURL:   cfg.Shipping.BaseURL,
		Token:     cfg.Shipping.Token,
		UserAgent: strings.TrimSpace(envValues["API_SHIPPING_USER_AGENT"]),
		Logger:    newEventLogger(logger.Named("shipping")),
	})
	if err != nil {
		logger.Fatal("failed to initialise shipping client", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        orderRepo,
		Products:      productRepo,
		Counters:      counterRepo,
		Notifications: notificationPublisher,
		Clock:         time.Now,
		Logger:        newEventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	paymentReconciler, err := services.NewPaymentReconciler(services.PaymentReconcilerDeps{
		Orders:        orderRepo,
		Payments:      paymentManager,
		Signatures:    signatureValidator,
		Notifications: notificationPublisher,
		Clock:         time.Now,
		Logger:        newEventLogger(logger.Named("reconcile")),
		RetryAttempts: cfg.Payments.RetryAttempts,
		RetryBackoff:  cfg.Payments.RetryBackoff,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment reconciler", zap.Error(err))
	}

	rateService, err := services.NewRateService(services.RateServiceDeps{
		Products: productRepo,
		Provider: shippingClient,
		Config: services.RateServiceConfig{
			OriginPostalCode:  cfg.Shipping.OriginPostalCode,
			AllowedServiceIDs: parseServiceIDs(envValues["API_SHIPPING_ALLOWED_SERVICE_IDS"]),
		},
		Logger: newEventLogger(logger.Named("rates")),
	})
	if err != nil {
		logger.Fatal("failed to initialise rate service", zap.Error(err))
	}

	fulfillmentService, err := services.NewFulfillmentService(services.FulfillmentServiceDeps{
		Orders:        orderRepo,
		Products:      productRepo,
		Provider:      shippingClient,
		Archiver:      labelArchiver,
		Notifications: notificationPublisher,
		Config: services.FulfillmentConfig{
			Origin:           originPartyFromEnv(envValues, cfg),
			DefaultServiceID: intFromEnv(envValues, "API_SHIPPING_DEFAULT_SERVICE_ID"),
			SettleDelay:      cfg.Shipping.SettleDelay,
		},
		Clock:  time.Now,
		Logger: newEventLogger(logger.Named("fulfillment")),
	})
	if err != nil {
		logger.Fatal("failed to initialise fulfillment service", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: productRepo,
		Logger:   newEventLogger(logger.Named("catalog")),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:     orderRepo,
		Payments:   paymentManager,
		Clock:      time.Now,
		Logger:     newEventLogger(logger.Named("checkout")),
		SuccessURL: strings.TrimSpace(envValues["API_CHECKOUT_SUCCESS_URL"]),
		CancelURL:  strings.TrimSpace(envValues["API_CHECKOUT_CANCEL_URL"]),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	systemService, err := newSystemService(firestoreClient, fetcher, notificationsTopic, counterRepo, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	orderHandlers := handlers.NewOrderHandlers(orderService, checkoutService)
	catalogHandlers := handlers.NewCatalogHandlers(catalogService)
	shippingHandlers := handlers.NewShippingHandlers(rateService)
	webhookHandlers := handlers.NewWebhookHandlers(paymentReconciler)
	fulfillmentHandlers := handlers.NewFulfillmentHandlers(fulfillmentService)
	var labelSigner handlers.LabelLinkSigner
	if signedURLClient != nil {
		labelSigner = signedURLClient
	}
	labelLinkHandlers := handlers.NewLabelLinkHandlers(labelSigner, cfg.Storage.LabelsBucket)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithSystemService(systemService),
	)

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	quoteLimited := func(r chi.Router) {
		r.Use(handlers.RateLimitMiddleware(cfg.RateLimits.QuotePerMinute, time.Minute))
		shippingHandlers.Routes(r)
	}

	adminRoutes := func(r chi.Router) {
		orderHandlers.AdminRoutes(r)
		fulfillmentHandlers.Routes(r)
	}

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithCatalogRoutes(catalogHandlers.Routes))
	opts = append(opts, handlers.WithShippingRoutes(quoteLimited))
	opts = append(opts, handlers.WithOrderRoutes(orderHandlers.Routes))
	opts = append(opts, handlers.WithAdminRoutes(adminRoutes))
	opts = append(opts, handlers.WithWebhookRoutes(webhookHandlers.Routes))
	opts = append(opts, handlers.WithInternalRoutes(labelLinkHandlers.Routes))
	opts = append(opts, handlers.WithPublicMiddlewares(
		handlers.RateLimitMiddleware(cfg.RateLimits.DefaultPerMinute, time.Minute),
	))
	opts = append(opts, handlers.WithWebhookMiddlewares(
		handlers.RateLimitMiddleware(cfg.RateLimits.WebhookPerMinute, time.Minute),
	))
	adminMiddlewares := []func(http.Handler) http.Handler{}
	if oidcMiddleware != nil {
		adminMiddlewares = append(adminMiddlewares, oidcMiddleware)
	}
	adminMiddlewares = append(adminMiddlewares, serviceIdentityBridge(), idempotencyMiddleware)
	opts = append(opts, handlers.WithAdminMiddlewares(adminMiddlewares...))
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware, serviceIdentityBridge()))
	} else {
		opts = append(opts, handlers.WithInternalMiddlewares(serviceIdentityBridge()))
	}

	router := handlers.NewRouter(opts...)
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
		serverLogger.Info("lumamart api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info("service event", zFields...)
	}
}

// serviceIdentityBridge maps a verified OIDC service principal onto the staff
// identity surface used by handlers and the idempotency middleware.
func serviceIdentityBridge() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, ok := auth.IdentityFromContext(ctx); !ok {
				if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc != nil {
					uid := strings.TrimSpace(svc.Email)
					if uid == "" {
						uid = strings.TrimSpace(svc.Subject)
					}
					identity := &auth.Identity{
						UID:   uid,
						Email: strings.TrimSpace(svc.Email),
						Roles: []string{auth.RoleStaff},
					}
					ctx = auth.WithIdentity(ctx, identity)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
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

func newSystemService(client *firestore.Client, fetcher *secrets.Fetcher, topic *pubsub.Topic, counters repositories.CounterRepository, build services.BuildInfo) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok {
					switch st.Code() {
					case codes.NotFound:
						return nil
					}
				}
				return err
			},
		})
	}
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				_, err := t.Exists(ctx)
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Counters:         counters,
		Clock:            time.Now,
		Build:            build,
	})
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger)
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(adapter))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; admin routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; admin routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func originPartyFromEnv(env map[string]string, cfg config.Config) shipping.Party {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}
	postalCode := lookup("API_SHIPPING_ORIGIN_POSTAL_CODE")
	if postalCode == "" {
		postalCode = strings.TrimSpace(cfg.Shipping.OriginPostalCode)
	}
	country := lookup("API_SHIPPING_ORIGIN_COUNTRY")
	if country == "" {
		country = "BR"
	}
	return shipping.Party{
		Name:       lookup("API_SHIPPING_ORIGIN_NAME"),
		Phone:      lookup("API_SHIPPING_ORIGIN_PHONE"),
		Email:      lookup("API_SHIPPING_ORIGIN_EMAIL"),
		Document:   lookup("API_SHIPPING_ORIGIN_DOCUMENT"),
		Address:    lookup("API_SHIPPING_ORIGIN_ADDRESS"),
		Complement: lookup("API_SHIPPING_ORIGIN_COMPLEMENT"),
		Number:     lookup("API_SHIPPING_ORIGIN_NUMBER"),
		District:   lookup("API_SHIPPING_ORIGIN_DISTRICT"),
		City:       lookup("API_SHIPPING_ORIGIN_CITY"),
		State:      lookup("API_SHIPPING_ORIGIN_STATE"),
		PostalCode: postalCode,
		Country:    country,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := secretProjectMapFromEnv(env)
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	versionPins := secretVersionPinsFromEnv(env)
	credentialsFile := lookup("API_SECRET_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if len(versionPins) > 0 {
		opts = append(opts, secrets.WithVersionPins(versionPins))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	required := []string{
		"Payments.Gateway.AccessToken",
		"Payments.Gateway.WebhookSecret",
		"Shipping.Token",
	}

	if env != nil {
		if key := strings.TrimSpace(env["API_PAYMENTS_STRIPE_API_KEY"]); key != "" {
			required = append(required, "Payments.Stripe.APIKey")
		}
	}

	return uniqueStrings(required)
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}

func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_VERSION_PINS"]
	}
	raw = strings.TrimSpace(raw)
	pins := make(map[string]string)
	if raw == "" {
		return pins
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		ref := strings.TrimSpace(parts[0])
		version := strings.TrimSpace(parts[1])
		if ref == "" || version == "" {
			continue
		}
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		if strings.HasPrefix(ref, "sm://") {
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		} else if !strings.HasPrefix(ref, "secret://") {
			ref = "secret://" + ref
		}
		ref = prefix + ref
		pins[ref] = version
	}
	return pins
}

func parseServiceIDs(raw string) []int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func intFromEnv(env map[string]string, key string) int {
	if env == nil {
		return 0
	}
	raw := strings.TrimSpace(env[key])
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
