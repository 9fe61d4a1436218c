package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tradesense/internal/challenge"
	"tradesense/internal/config"
	"tradesense/internal/database"
	"tradesense/internal/logger"
	"tradesense/internal/market"
	"tradesense/internal/server"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Quote provider: synthetic path for domestic tickers, Yahoo for the rest
	synthetic := market.NewSynthetic(&cfg.Market, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	yahoo := market.NewYahooClient(&cfg.Market, log.Named("market"))

	domestic := make([]string, 0, len(cfg.Market.BasePrices))
	for ticker := range cfg.Market.BasePrices {
		domestic = append(domestic, ticker)
	}
	provider := market.NewRouter(domestic, synthetic, yahoo)

	// Challenge engine and HTTP server
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	engine := challenge.NewEngine(log.Named("engine"), &cfg, provider, db, rng)
	handler := server.NewHandler(log, engine, provider)
	srv := server.NewServer(cfg.Server.Port, log, handler)

	// Setup context for graceful shutdown
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			log.Error("Graceful shutdown failed", zap.Error(err))
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatal("Web server failed", zap.Error(err))
	}

	log.Info("Server has been shut down.")
}
