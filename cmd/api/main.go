package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Rakanrepo/slevenback/internal/handlers"
	"github.com/Rakanrepo/slevenback/internal/notifications"
	"github.com/Rakanrepo/slevenback/internal/omniful"
	"github.com/Rakanrepo/slevenback/internal/payments"
	"github.com/Rakanrepo/slevenback/internal/platform/auth"
	"github.com/Rakanrepo/slevenback/internal/platform/config"
	pfirestore "github.com/Rakanrepo/slevenback/internal/platform/firestore"
	"github.com/Rakanrepo/slevenback/internal/platform/idempotency"
	"github.com/Rakanrepo/slevenback/internal/platform/jobs"
	"github.com/Rakanrepo/slevenback/internal/platform/observability"
	"github.com/Rakanrepo/slevenback/internal/repositories"
	firestoreRepo "github.com/Rakanrepo/slevenback/internal/repositories/firestore"
	"github.com/Rakanrepo/slevenback/internal/services"
)

const gatewayWebhookSecret = "gateway"

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

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

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

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()

	orderTopic := pubsubClient.Topic(cfg.PubSub.OrderTopic)
	syncTopic := pubsubClient.Topic(cfg.PubSub.SyncTopic)
	defer orderTopic.Stop()
	defer syncTopic.Stop()

	publisher, err := jobs.NewPubSubEventPublisher(orderTopic, syncTopic)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}

	capRepo, err := firestoreRepo.NewCapRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise cap repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	paymentRepo, err := firestoreRepo.NewPaymentRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise payment repository", zap.Error(err))
	}
	syncJobRepo, err := firestoreRepo.NewSyncJobRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise sync job repository", zap.Error(err))
	}
	userRepo, err := firestoreRepo.NewUserRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise user repository", zap.Error(err))
	}

	eventLog := zapEventLogger(logger)

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:    cfg.PSP.StripeAPIKey,
		AccountID: cfg.PSP.StripeAccountID,
		Logger:    zapEventLogger(logger.Named("stripe")),
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}

	omnifulClient, err := omniful.NewClient(omniful.ClientConfig{
		BaseURL:  cfg.Omniful.BaseURL,
		APIKey:   cfg.Omniful.APIKey,
		SellerID: cfg.Omniful.SellerID,
		Timeout:  cfg.Omniful.Timeout,
		Logger:   zapEventLogger(logger.Named("omniful")),
	})
	if err != nil {
		logger.Fatal("failed to initialise omniful client", zap.Error(err))
	}

	mailer, err := notifications.NewMailer(notifications.MailerConfig{
		BaseURL:     cfg.Mail.BaseURL,
		APIKey:      cfg.Mail.APIKey,
		FromAddress: cfg.Mail.FromAddress,
		FromName:    cfg.Mail.FromName,
		Timeout:     cfg.Mail.Timeout,
		Users:       userRepo,
		Logger:      zapEventLogger(logger.Named("mail")),
	})
	if err != nil {
		logger.Fatal("failed to initialise mailer", zap.Error(err))
	}

	inventoryService, err := services.NewInventoryService(services.InventoryServiceDeps{
		Caps:   capRepo,
		Logger: eventLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise inventory service", zap.Error(err))
	}

	syncService, err := services.NewSyncService(services.SyncServiceDeps{
		Jobs:        syncJobRepo,
		Client:      omnifulClient,
		Events:      publisher,
		MaxAttempts: cfg.Sync.MaxAttempts,
		Logger:      eventLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise sync service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    orderRepo,
		Caps:      capRepo,
		Inventory: inventoryService,
		Sync:      syncService,
		Notifier:  mailer,
		Currency:  cfg.Store.Currency,
		Events:    publisher,
		Logger:    eventLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Payments: paymentRepo,
		Orders:   orderService,
		Users:    userRepo,
		Provider: stripeProvider,
		Logger:   eventLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Caps:     capRepo,
		Currency: cfg.Store.Currency,
		Logger:   eventLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	userService, err := services.NewUserService(services.UserServiceDeps{
		Users:      userRepo,
		BcryptCost: cfg.Auth.BcryptCost,
		Logger:     eventLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise user service", zap.Error(err))
	}

	tokenManager, err := auth.NewTokenManager(auth.TokenManagerConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		TokenTTL: cfg.Auth.TokenTTL,
	})
	if err != nil {
		logger.Fatal("failed to initialise token manager", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(tokenManager)

	hmacValidator := auth.NewHMACValidator(
		webhookSecretProvider(cfg.Webhooks.Secrets),
		auth.NewInMemoryNonceStore(),
		auth.WithHMACLogger(observability.NewPrintfAdapter(logger.Named("webhooks"))),
		auth.WithHMACHeaders(cfg.Webhooks.SignatureHeader, cfg.Webhooks.TimestampHeader, cfg.Webhooks.NonceHeader),
		auth.WithHMACClockSkew(cfg.Webhooks.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Webhooks.NonceTTL),
	)

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	healthRepo, err := buildHealthRepository(firestoreClient, orderTopic)
	if err != nil {
		logger.Warn("health checks not fully configured", zap.Error(err))
	}

	authHandlers := handlers.NewAuthHandlers(userService, tokenManager, authenticator)
	capHandlers := handlers.NewCapHandlers(catalogService, authenticator)
	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, paymentService)
	syncHandlers := handlers.NewSyncHandlers(authenticator, syncService)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)),
		handlers.WithHealthChecker(healthRepo),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAuthRoutes(authHandlers.Routes),
		handlers.WithMeRoutes(authHandlers.MeRoutes),
		handlers.WithCapRoutes(capHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithOrderMiddlewares(idempotencyMiddleware),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithOmnifulRoutes(syncHandlers.Routes),
		handlers.WithWebhookRoutes(paymentHandlers.WebhookRoutes),
		handlers.WithWebhookMiddlewares(hmacValidator.RequireHMAC(gatewayWebhookSecret)),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go runSyncSweeper(sweepCtx, logger.Named("sync"), syncService, cfg.Sync)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case sig := <-shutdownCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}

	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// runSyncSweeper drives the fulfilment queue on a fixed interval until the
// context is cancelled.
func runSyncSweeper(ctx context.Context, logger *zap.Logger, sync services.SyncService, cfg config.SyncConfig) {
	if cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := sync.ProcessPending(ctx, cfg.SweepLimit)
			if err != nil {
				logger.Warn("sync sweep failed", zap.Error(err))
				continue
			}
			if result.Picked > 0 {
				logger.Info("sync sweep finished",
					zap.Int("picked", result.Picked),
					zap.Int("completed", result.Completed),
					zap.Int("failed", result.Failed),
				)
			}
		}
	}
}

func webhookSecretProvider(secrets map[string]string) auth.SecretProviderFunc {
	return func(_ context.Context, name string) (string, error) {
		secret, ok := secrets[name]
		if !ok || strings.TrimSpace(secret) == "" {
			return "", fmt.Errorf("webhook secret %q is not configured", name)
		}
		return secret, nil
	}
}

func buildHealthRepository(client *firestore.Client, topic *pubsub.Topic) (repositories.HealthRepository, error) {
	checks := []repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 5 * time.Second,
			Check: func(ctx context.Context) error {
				if _, err := client.Collections(ctx).Next(); err != nil && !errors.Is(err, iterator.Done) {
					if status.Code(err) == codes.NotFound {
						return nil
					}
					return err
				}
				return nil
			},
		},
		{
			Name:    "pubsub",
			Timeout: 5 * time.Second,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		},
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildInfoFromEnv(startedAt time.Time) handlers.BuildInfo {
	return handlers.BuildInfo{
		Version:     strings.TrimSpace(os.Getenv("API_BUILD_VERSION")),
		CommitSHA:   strings.TrimSpace(os.Getenv("API_BUILD_COMMIT")),
		Environment: strings.TrimSpace(os.Getenv("API_ENVIRONMENT")),
		StartedAt:   startedAt,
	}
}

// zapEventLogger adapts a zap logger to the per-event callback the services
// and outbound clients accept.
func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		if logger == nil {
			return
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		zapFields := make([]zap.Field, 0, len(keys))
		for _, k := range keys {
			zapFields = append(zapFields, zap.Any(k, fields[k]))
		}
		logger.Info(event, zapFields...)
	}
}
