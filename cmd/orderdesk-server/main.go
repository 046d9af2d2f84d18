package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"orderdesk/internal/api"
	"orderdesk/internal/broker"
	"orderdesk/internal/config"
	"orderdesk/internal/engine"
	"orderdesk/internal/httpapi"
	"orderdesk/internal/store"
	"orderdesk/internal/util"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfgPath := "config/orderdesk.yaml"
	if p := os.Getenv("ORDERDESK_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	sim := broker.NewSimulatorBroker()
	var b broker.Broker = sim
	if cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != "" {
		b = broker.NewAlpacaBroker(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, "")
	}

	eng := engine.NewEngine(b, db, engine.NewRiskManager(cfg.Risk.MaxQuantity, cfg.Risk.MaxNotional), logger)
	hub := api.NewHub(logger)
	eng.OnReport(hub.Publish)

	backend := httpapi.NewBackendServer(eng, sim, db, b.Name(), logger)
	srv := api.NewServer(cfg, backend, hub, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("orderdesk-server starting",
		"broker", b.Name(),
		"port", cfg.Server.Port,
		"grpc_port", cfg.Server.GRPCPort,
		"sqlite", cfg.Storage.SQLitePath,
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
