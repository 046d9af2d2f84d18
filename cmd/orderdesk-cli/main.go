package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"orderdesk/internal/config"
	"orderdesk/internal/metrics"
	"orderdesk/internal/store"
	"orderdesk/internal/util"
	"orderdesk/pkg/orderdesk"
)

const version = "0.1.0"

// app carries what every command needs once flags are parsed.
type app struct {
	cfgPath     string
	backendURL  string
	verbose     bool
	metricsFile string

	cfg    *config.Config
	log    *slog.Logger
	client *orderdesk.Client
}

func (a *app) init() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.backendURL != "" {
		cfg.Backend.BaseURL = a.backendURL
	}
	level := "warn"
	if a.verbose {
		level = cfg.Logging.Level
	}
	a.cfg = cfg
	a.log = util.NewLoggerTo(os.Stderr, level, "text")
	a.client = orderdesk.NewClientWithOptions(cfg.Backend.BaseURL, orderdesk.Options{
		Timeout:         cfg.Backend.Timeout,
		RetryAttempts:   cfg.Backend.RetryAttempts,
		RetryBaseDelay:  cfg.Backend.RetryBaseDelay,
		RateLimitPerMin: cfg.Backend.RateLimitPerMin,
	})
	return nil
}

// history opens the local order history.
func (a *app) history() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(a.cfg.Storage.HistoryPath)
}

func main() {
	_ = godotenv.Load()

	a := &app{cfgPath: "config/orderdesk.yaml"}
	if p := os.Getenv("ORDERDESK_CONFIG"); p != "" {
		a.cfgPath = p
	}

	root := &cobra.Command{
		Use:           "orderdesk-cli",
		Short:         "Order ticket for the trading backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", a.cfgPath, "path to the YAML config")
	root.PersistentFlags().StringVar(&a.backendURL, "backend", "", "backend base URL (overrides config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log at the configured level")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "write ticket metrics here on exit (node_exporter textfile format)")

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the CLI version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Printf("orderdesk-cli %s\n", version)
			},
		},
		statusCmd(a),
		submitCmd(a),
		chainCmd(a),
		analyzeCmd(a),
		templatesCmd(a),
		historyCmd(a),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := root.ExecuteContext(ctx)
	if a.metricsFile != "" {
		if merr := metrics.WriteTextfile(a.metricsFile); merr != nil {
			fmt.Fprintln(os.Stderr, warnStyle.Render("metrics: ")+merr.Error())
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: ")+err.Error())
		cancel()
		os.Exit(1)
	}
}
