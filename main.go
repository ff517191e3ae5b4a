package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricewatch/config"
	"pricewatch/database"
	"pricewatch/handlers"
	"pricewatch/logging"
	"pricewatch/middleware"
	"pricewatch/notifier"
	"pricewatch/repository"
	"pricewatch/scheduler"
	"pricewatch/scraper"
	"pricewatch/services"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {
	os.Exit(start(os.Args[1:]))
}

// start runs the service and returns the process exit code. Exiting happens
// only in main, after deferred cleanup here has run.
func start(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if cfg == nil {
		// help was shown
		return 0
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
		return 1
	}
	return 0
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	portfolio := services.NewPortfolio(store, logger)
	if err := portfolio.Load(ctx); err != nil {
		return err
	}

	extractorCfg := scraper.DefaultExtractorConfig()
	extractorCfg.HomeCurrency = cfg.HomeCurrency
	extractorCfg.CurrencySymbols = cfg.CurrencySymbols
	if cfg.AssetDomainPattern != "" {
		extractorCfg.AssetDomainPattern = cfg.AssetDomainPattern
	}
	if len(cfg.PriceSelectors) > 0 {
		extractorCfg.PriceSelectors = cfg.PriceSelectors
	}
	extractor, err := scraper.NewExtractor(extractorCfg)
	if err != nil {
		return err
	}

	loader, err := scraper.NewRodLoader(scraper.LoaderConfig{
		Bin:               cfg.ChromiumBin,
		UserAgent:         cfg.UserAgent,
		NavigationTimeout: cfg.NavigationTimeout,
		SettleDelay:       cfg.SettleDelay,
		ReadTimeout:       10 * time.Second,
	}, logger)
	if err != nil {
		return err
	}
	defer loader.Close()
	pageScraper := scraper.NewScraper(loader, extractor, logger)

	notifiers := notifier.Multi{notifier.NewLogNotifier(logger)}
	if cfg.NATSURL != "" {
		nn, err := notifier.NewNATSNotifier(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return err
		}
		defer nn.Close()
		notifiers = append(notifiers, nn)
		logger.Info("Publishing drops to NATS", zap.String("subject", cfg.NATSSubject))
	}
	var push handlers.PushRegistry
	if cfg.PushEnabled() {
		wp, err := notifier.NewWebPushNotifier(notifier.VAPIDConfig{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subscriber: cfg.VAPIDSubscriber,
		}, cfg.PushSubscriptionFile, logger)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, wp)
		push = wp
		logger.Info("Web push enabled", zap.Int("subscriptions", wp.Subscriptions()))
	}

	orchestrator := scheduler.NewOrchestrator(pageScraper, portfolio, notifiers, logger)

	taskManager := scheduler.NewTaskManager(orchestrator, portfolio, cfg.MaxManualTasks, logger)
	defer taskManager.Stop()

	waker := scheduler.NewCronWaker(logger)
	periodic := scheduler.NewPeriodicRunner(waker, orchestrator, portfolio, cfg.RefreshInterval, cfg.CycleBudget, logger)
	if err := periodic.Start(ctx, waker); err != nil {
		return err
	}
	defer waker.Stop()

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.MetricsMiddleware)
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	h := handlers.NewHandlers(pageScraper, portfolio, taskManager, push, cfg.MaxRequestSize, logger)
	h.RegisterRoutes(r)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           c.Handler(middleware.RateLimitMiddleware(cfg.RateLimit, logger)(r)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown", zap.Error(err))
	}
	logger.Info("Graceful shutdown complete")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.CreateTables(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Using postgres store")
		return repository.NewPostgresStore(db), nil
	default:
		logger.Info("Using bolt store", zap.String("path", cfg.BoltPath))
		return repository.NewBoltStore(cfg.BoltPath)
	}
}
