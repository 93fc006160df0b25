package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"signal-trader/internal/api"
	"signal-trader/internal/events"
	"signal-trader/internal/market"
	"signal-trader/internal/orchestrator"
	"signal-trader/internal/pairs"
	"signal-trader/internal/pipeline"
	"signal-trader/internal/selldecision"
	sig "signal-trader/internal/signal"
	"signal-trader/internal/takeprofit"
	"signal-trader/internal/telegram"
	"signal-trader/pkg/config"
	"signal-trader/pkg/db"
	"signal-trader/pkg/exchange"
	"signal-trader/pkg/llm"
)

const version = "1.2.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: config: %v", err)
	}
	setupLogging(cfg.LogPath)

	log.Printf("main: signal-trader %s starting (dry_run=%v)", version, cfg.DryRun)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("main: open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("main: migrations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seedWallets(ctx, cfg, database)

	kraken := exchange.NewKrakenClient()
	resolver := pairs.NewResolver(kraken, cfg.PreferredQuote)

	// Live order placement needs signed Kraken endpoints; until those are
	// wired the trader always runs on the paper book.
	if !cfg.DryRun {
		log.Printf("main: live trading not available, forcing dry run")
	}
	var trader exchange.Trader = exchange.NewPaperTrader(database, kraken)

	var parserLLM sig.Completer
	var selectorLLM sig.Completer
	if cfg.LLMAPIKey != "" {
		client := llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
		if cfg.UseLLMParser {
			parserLLM = client
		}
		if cfg.UseLLMTakeProfit {
			selectorLLM = client
		}
	} else if cfg.UseLLMParser || cfg.UseLLMTakeProfit {
		log.Printf("main: LLM_API_KEY not set, model-assisted paths disabled")
	}

	registry, err := sig.BuildRegistry(cfg.ChannelConfigPath, parserLLM, database)
	if err != nil {
		log.Fatalf("main: channel config: %v", err)
	}

	bus := events.NewBus()
	engine := selldecision.New(selldecision.Config{
		MinProfitPct:             cfg.MinProfitPct,
		MaxLossPct:               cfg.MaxLossPct,
		MinHold:                  time.Duration(cfg.MinHoldMinutes) * time.Minute,
		MaxHold:                  time.Duration(cfg.MaxHoldHours) * time.Hour,
		VolatilityThreshold:      cfg.VolatilityThreshold,
		VolumeDropPct:            cfg.VolumeDropPct,
		MaxDrawdownPct:           cfg.MaxDrawdownPct,
		MinConfidence:            cfg.MinSellConfidence,
		ConfidenceBoostThreshold: cfg.ConfidenceBoostThreshold,
		ConfidenceBoostIncrement: cfg.ConfidenceBoostIncrement,
	})

	handler := pipeline.NewHandler(
		pipeline.Config{
			MinConfidence:     cfg.MinConfidence,
			MaxDailyTrades:    cfg.MaxDailyTrades,
			SizingMode:        cfg.SizingMode,
			OrderSizeUSD:      cfg.OrderSizeUSD,
			OrderSizePct:      cfg.OrderSizePct,
			DefaultLeverage:   cfg.DefaultLeverage,
			SellEngineEnabled: cfg.SellEngineEnabled,
		},
		registry,
		resolver,
		database,
		trader,
		takeprofit.NewSelector(selectorLLM, database),
		engine,
		orchestrator.New(database, bus),
		market.NewProvider(kraken),
		bus,
	)

	monitor := pipeline.NewMonitor(handler, time.Duration(cfg.MonitorIntervalMinutes)*time.Minute)
	monitor.Start(ctx)
	defer monitor.Stop()

	server := api.NewServer(bus, database, api.SystemMeta{
		DryRun:    true,
		Channels:  cfg.TelegramChannels,
		Version:   version,
		StartedAt: time.Now(),
	})
	go func() {
		addr := "127.0.0.1:" + cfg.Port
		log.Printf("main: status API listening on %s", addr)
		if err := server.Run(addr); err != nil {
			log.Printf("main: status API stopped: %v", err)
		}
	}()

	if cfg.TelegramToken == "" {
		log.Printf("main: TELEGRAM_BOT_TOKEN not set, no message source; serving API only")
		<-ctx.Done()
		return
	}

	source := telegram.NewSource(cfg.TelegramToken, cfg.TelegramChannels)
	source.Run(ctx, handler.HandleMessage)
	log.Printf("main: shutting down")
}

// setupLogging tees the standard logger to stdout and a rotating file.
func setupLogging(path string) {
	if path == "" {
		return
	}
	log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}))
}

// seedWallets prepares the paper book: an optional full reset, otherwise a
// one-time seed of the global quote wallet when it is empty.
func seedWallets(ctx context.Context, cfg *config.Config, database *db.Database) {
	if cfg.ResetWalletOnStart {
		if err := database.ResetWallets(ctx, map[string]float64{cfg.PreferredQuote: cfg.DryRunInitialBalance}); err != nil {
			log.Fatalf("main: wallet reset: %v", err)
		}
		log.Printf("main: wallets reset, %s %.2f seeded", cfg.PreferredQuote, cfg.DryRunInitialBalance)
		return
	}

	balance, err := database.GetWalletBalance(ctx, "", cfg.PreferredQuote)
	if err != nil {
		log.Fatalf("main: wallet lookup: %v", err)
	}
	if balance == 0 {
		if err := database.SetWalletBalance(ctx, "", cfg.PreferredQuote, cfg.DryRunInitialBalance); err != nil {
			log.Fatalf("main: wallet seed: %v", err)
		}
		log.Printf("main: seeded %s wallet with %.2f", cfg.PreferredQuote, cfg.DryRunInitialBalance)
	}
}
