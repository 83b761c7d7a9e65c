package main

import (
	"fmt"

	"binance-signal-trader/internal/api"
	"binance-signal-trader/internal/binance"
	"binance-signal-trader/internal/config"
	"binance-signal-trader/internal/database"
	"binance-signal-trader/internal/exchangerules"
	"binance-signal-trader/internal/logger"
	"binance-signal-trader/internal/pricefeed"
	"binance-signal-trader/internal/repository"
	"binance-signal-trader/internal/scheduler"
	"binance-signal-trader/internal/trader"
	"go.uber.org/zap"
)

type app struct {
	log     *zap.Logger
	client  *binance.RestClient
	scanner *scheduler.Scanner
	sweeper *scheduler.Sweeper
	runner  *scheduler.Runner
	server  *api.Server
}

func newApp(configDir string) (*app, error) {
	// Load application configuration
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return nil, fmt.Errorf("could not build logger: %w", err)
	}
	log.Info("Configuration loaded", zap.Bool("dry_run", cfg.Binance.DryRun), zap.Bool("testnet", cfg.Binance.Testnet))

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Info("Database connection successful and schema migrated.", zap.String("driver", cfg.Database.Driver))

	mode, err := pricefeed.ParseMode(cfg.Trading.SignalSource)
	if err != nil {
		return nil, err
	}

	client := binance.NewRestClient(&cfg.Binance, log)
	trades := repository.NewTradeRepo(db)
	configs := repository.NewStrategyConfigRepo(db)
	feed, err := pricefeed.New(repository.NewPriceRepo(db), client, mode, cfg.Trading.SignalInterval)
	if err != nil {
		return nil, err
	}
	rules := exchangerules.NewResolver(client, cfg.Rules.CacheTTL, log)

	engine := trader.NewEngine(log, &cfg, client, rules, feed, trades, repository.NewCredentialRepo(db))
	service := trader.NewService(log, &cfg, engine, trades, configs)

	scanner := scheduler.NewScanner(log, &cfg, client, engine, trades, configs)
	bulk := scheduler.NewBulkInitiator(log, scanner, configs, cfg.Trading.DefaultQuoteAmount, cfg.Trading.DefaultTakeProfit)
	sweeper := scheduler.NewSweeper(log, engine, trades, cfg.Scheduler.Workers)
	runner := scheduler.NewRunner(log, cfg.Scheduler, scanner, sweeper)

	handler := api.NewHandler(log, service, scanner, bulk, sweeper)
	server := api.NewServer(log, cfg.Server.Port, handler)

	return &app{
		log:     log,
		client:  client,
		scanner: scanner,
		sweeper: sweeper,
		runner:  runner,
		server:  server,
	}, nil
}
