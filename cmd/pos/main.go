package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/acai-counter/pos/internal/catalog"
	"github.com/acai-counter/pos/internal/handlers"
	"github.com/acai-counter/pos/internal/platform/config"
	pfirestore "github.com/acai-counter/pos/internal/platform/firestore"
	"github.com/acai-counter/pos/internal/platform/jobs"
	"github.com/acai-counter/pos/internal/platform/observability"
	"github.com/acai-counter/pos/internal/repositories"
	firestoreRepo "github.com/acai-counter/pos/internal/repositories/firestore"
	"github.com/acai-counter/pos/internal/repositories/memory"
	"github.com/acai-counter/pos/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("pos")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load(ctx)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	serviceLogger := observability.ServiceLogger(logger.Named("services"))

	state, probes, closeState, err := newStateStore(cfg)
	if err != nil {
		logger.Fatal("failed to initialise state store", zap.Error(err), zap.String("backend", cfg.Storage.Backend))
	}
	defer closeState()

	menu, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		logger.Fatal("failed to load catalog", zap.Error(err))
	}

	publisher, closePublisher, err := newSalePublisher(ctx, cfg.PubSub)
	if err != nil {
		logger.Fatal("failed to initialise sale publisher", zap.Error(err))
	}
	defer closePublisher()

	validation := services.ItemValidationConfig{
		MinWeight:   cfg.Cart.MinWeight,
		MaxWeight:   cfg.Cart.MaxWeight,
		MinQuantity: cfg.Cart.MinQuantity,
		MaxQuantity: cfg.Cart.MaxQuantity,
	}

	orders := services.NewOrderStore(services.OrderStoreDeps{
		Records:           state,
		DisableValidation: !cfg.Cart.ValidationEnabled,
		Logger:            serviceLogger,
	})
	if err := orders.Load(ctx); err != nil {
		logger.Warn("orders snapshot not restored", zap.Error(err))
	}

	tolerance := cfg.Sales.AdjustmentTolerance
	finalizer := services.NewSaleFinalizer(services.SaleFinalizerDeps{
		Orders:              orders,
		Records:             state,
		Publisher:           publisher,
		AdjustmentTolerance: &tolerance,
		FinalizeTimeout:     cfg.Sales.FinalizeTimeout,
		Logger:              serviceLogger,
	})
	if err := finalizer.Load(ctx); err != nil {
		logger.Warn("sales snapshot not restored", zap.Error(err))
	}

	carts := services.NewCartSessions(services.CartStoreDeps{
		State:             state,
		MaxItems:          cfg.Cart.MaxItems,
		DisableValidation: !cfg.Cart.ValidationEnabled,
		Validation:        validation,
		TaxRate:           cfg.Cart.TaxRate,
		Logger:            serviceLogger,
	})

	readiness, err := repositories.NewReadinessRepository(probes)
	if err != nil {
		logger.Fatal("failed to initialise readiness probes", zap.Error(err))
	}
	health := handlers.NewHealthHandlers(
		handlers.WithReadiness(readiness),
		handlers.WithHealthBuildInfo(handlers.BuildInfo{Version: buildVersion(), StartedAt: startedAt}),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(),
			observability.InjectLoggerMiddleware(logger),
			handlers.SessionMiddleware,
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithCatalogRoutes(handlers.NewCatalogHandlers(menu).Routes),
		handlers.WithCartRoutes(handlers.NewCartHandlers(handlers.CartHandlersDeps{
			Carts:   carts,
			Sales:   finalizer,
			Orders:  orders,
			Catalog: menu,
		}).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(handlers.OrderHandlersDeps{
			Orders:     orders,
			Finalizer:  finalizer,
			Catalog:    menu,
			Validate:   cfg.Cart.ValidationEnabled,
			Validation: validation,
		}).Routes),
		handlers.WithSalesRoutes(handlers.NewSalesHandlers(finalizer).Routes),
		handlers.WithReportRoutes(handlers.NewReportHandlers(handlers.ReportHandlersDeps{
			Sales:    finalizer,
			TopLimit: cfg.Reports.TopLimit,
			Location: cfg.Reports.Location,
		}).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("storage", cfg.Storage.Backend))
	go func() {
		serverLogger.Info("pos api listening", zap.Int("products", len(menu.Products())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	flushes := map[string]func(context.Context) error{
		"carts":  carts.Flush,
		"orders": orders.Flush,
		"sales":  finalizer.Flush,
	}
	for name, flush := range flushes {
		if err := flush(shutdownCtx); err != nil {
			logger.Error("pending writes not persisted", zap.String("store", name), zap.Error(err))
		}
	}
}

// stateBackend is what the stores persist through: keyed cart snapshots plus one record per
// order and sale.
type stateBackend interface {
	repositories.StateStore
	repositories.RecordStore
}

// newStateStore picks the persistence backend and the readiness probes that go with it.
func newStateStore(cfg config.Config) (stateBackend, []repositories.Probe, func(), error) {
	switch cfg.Storage.Backend {
	case config.StorageFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		store, err := firestoreRepo.NewStateStore(provider, cfg.Firestore.Collection)
		if err != nil {
			_ = provider.Close()
			return nil, nil, func() {}, err
		}
		probes := []repositories.Probe{{Name: "firestore", Check: provider.Ping}}
		return store, probes, func() { _ = provider.Close() }, nil
	default:
		return memory.NewStateStore(), nil, func() {}, nil
	}
}

func newSalePublisher(ctx context.Context, cfg config.PubSubConfig) (services.SaleEventPublisher, func(), error) {
	if !cfg.Enabled() {
		return nil, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, strings.TrimSpace(cfg.ProjectID))
	if err != nil {
		return nil, func() {}, fmt.Errorf("pubsub: create client: %w", err)
	}
	topic := client.Topic(strings.TrimSpace(cfg.SalesTopic))
	publisher, err := jobs.NewPubSubSalePublisher(topic)
	if err != nil {
		topic.Stop()
		_ = client.Close()
		return nil, func() {}, err
	}
	return publisher, func() {
		topic.Stop()
		_ = client.Close()
	}, nil
}

func buildVersion() string {
	if version := strings.TrimSpace(os.Getenv("POS_BUILD_VERSION")); version != "" {
		return version
	}
	return "dev"
}
