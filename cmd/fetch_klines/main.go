package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"confluenceBot/config"
	"confluenceBot/internal/adapters/binanceclient"
	"confluenceBot/internal/adapters/logger"
	"confluenceBot/internal/utils"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	symbol := flag.String("symbol", cfg.Symbol, "futures symbol")
	interval := flag.String("interval", cfg.Interval, "kline interval")
	days := flag.Int("days", 90, "history length in days")
	outDir := flag.String("out", "data", "output directory")
	flag.Parse()

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Exchange Client (Binance Adapter)
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
	appLogger.Info(context.Background(), "Binance client initialized")

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -*days)

	appLogger.Info(context.Background(), "Fetching klines", map[string]interface{}{
		"symbol":   *symbol,
		"interval": *interval,
		"start":    start,
		"end":      end,
	})
	bars, err := binanceClient.GetKlinesRange(context.Background(), *symbol, *interval, start, end)
	if err != nil {
		appLogger.Error(context.Background(), err, "Error fetching klines")
		log.Fatalf("Error fetching klines: %v", err)
	}
	appLogger.Info(context.Background(), "Fetched klines", map[string]interface{}{"count": len(bars)})

	filename := fmt.Sprintf("%s/%s_%s_%s_to_%s.csv", *outDir, *symbol, *interval, start.Format("20060102"), end.Format("20060102"))
	if err := utils.WriteBarsToCSV(bars, filename); err != nil {
		appLogger.Error(context.Background(), err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(context.Background(), "Saved to", map[string]interface{}{"filename": filename})
}
