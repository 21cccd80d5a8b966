package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"confluenceBot/config"
	"confluenceBot/internal/adapters/binanceclient"
	"confluenceBot/internal/adapters/draw"
	"confluenceBot/internal/adapters/logger"
	"confluenceBot/internal/adapters/metrics"
	"confluenceBot/internal/adapters/sqlite"
	"confluenceBot/internal/app"
	"confluenceBot/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Load Strategy Parameters
	params, adjustments, err := config.LoadParams(cfg.StrategyParamsPath)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to load strategy parameters")
		log.Fatalf("FATAL: Failed to load strategy parameters: %v", err)
	}
	for _, adj := range adjustments {
		appLogger.Warn(context.Background(), "Strategy parameter clamped", map[string]interface{}{"adjustment": adj.String()})
	}

	// 4. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 5. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	if err := binanceClient.SetServerTime(context.Background()); err != nil {
		appLogger.Warn(context.Background(), "Failed to sync server time", map[string]interface{}{"error": err.Error()})
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 6. Metrics
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recorder := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := recorder.Serve(ctx, cfg.MetricsAddr, appLogger); err != nil {
				appLogger.Error(ctx, err, "Metrics endpoint stopped")
			}
		}()
	}

	// 7. Initialize Application Service
	var exchange ports.ExchangeClient
	if cfg.TradingMode == config.ModeLive {
		exchange = binanceClient
	}
	service, err := app.NewLiveService(app.ServiceConfig{
		Mode:              cfg.TradingMode,
		Symbol:            cfg.Symbol,
		Interval:          cfg.Interval,
		HTFInterval:       cfg.HTFInterval,
		ComparisonSymbols: cfg.ComparisonSymbols,
		TickSize:          cfg.TickSize,
		QuantityStep:      cfg.QuantityStep,
		WarmupBars:        cfg.WarmupBars,
	}, params, app.ServiceDeps{
		Logger:   appLogger,
		Market:   binanceClient,
		Exchange: exchange,
		Journal:  repo,
		Trades:   repo,
		Draws:    draw.NewScene(appLogger),
		Observer: recorder,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize live service")
		log.Fatalf("FATAL: Failed to initialize live service: %v", err)
	}
	appLogger.Info(context.Background(), "Live service initialized", map[string]interface{}{"mode": cfg.TradingMode, "runID": service.RunID()})

	// 8. Start the Service
	if err := service.Start(ctx); err != nil {
		appLogger.Error(context.Background(), err, "Live service exited with error")
		log.Fatalf("FATAL: Live service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
