package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmarroquin/skytrader/config"
	"github.com/dmarroquin/skytrader/internal/adapters/marketapi"
	"github.com/dmarroquin/skytrader/internal/adapters/notify"
	"github.com/dmarroquin/skytrader/internal/adapters/storage"
	"github.com/dmarroquin/skytrader/internal/application/engine"
	"github.com/dmarroquin/skytrader/internal/application/postmortem"
	"github.com/dmarroquin/skytrader/internal/domain"
	"github.com/dmarroquin/skytrader/internal/queue"
	"github.com/dmarroquin/skytrader/internal/risk"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one decision cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print queue, audit trail and post-mortem report")
	approve := flag.String("approve", "", "approve a pending trade by ID and exit")
	reject := flag.String("reject", "", "reject a pending trade by ID and exit")
	settle := flag.String("settle", "", "apply a settlement as city:bracket and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *report {
		runReport(ctx, store)
		return
	}

	notifier := notify.NewConsole()
	trades := queue.New(store, notifier, cfg.PendingExpiry())

	if *approve != "" || *reject != "" {
		runUserAction(ctx, trades, *approve, *reject)
		return
	}

	riskman := risk.NewManager(
		risk.Limits{
			MaxTradeSize:     cfg.Risk.MaxTradeSize,
			DailyLossLimit:   cfg.Risk.DailyLossLimit,
			MaxDailyExposure: cfg.Risk.MaxDailyExposure,
			MinEVThreshold:   cfg.Risk.MinEVThreshold,
		},
		risk.Tracker{
			PerLoss:              time.Duration(cfg.Cooldown.PerLossMinutes) * time.Minute,
			ConsecutiveLossLimit: cfg.Cooldown.ConsecutiveLossLimit,
		},
		store,
	)

	if saved, found, err := store.LoadRiskState(ctx); err != nil {
		slog.Error("failed to load risk state", "err", err)
		os.Exit(1)
	} else if found {
		riskman.Restore(saved)
		slog.Info("risk state restored",
			"exposure", fmt.Sprintf("$%.2f", saved.Exposure),
			"daily_loss", fmt.Sprintf("$%.2f", saved.DailyLoss),
			"consecutive_losses", saved.ConsecutiveLosses)
	}

	market := marketapi.NewClient(cfg.API.MarketBase)
	forecasts := marketapi.NewForecastClient(cfg.API.ForecastBase)

	eng := engine.New(forecasts, market, riskman, trades, store, postmortem.New(store), engine.Config{
		Mode:          cfg.Trading.Mode,
		Interval:      cfg.CycleInterval(),
		OrderQuantity: cfg.Trading.OrderQuantity,
		FeeDefault:    cfg.Trading.FeeDefault,
	})

	slog.Info("skytrader starting",
		"config", *configPath,
		"mode", cfg.Trading.Mode,
		"interval", cfg.CycleInterval(),
		"once", *once,
	)

	if *settle != "" {
		runSettle(ctx, eng, *settle)
		return
	}

	if *once {
		if _, err := eng.RunOnce(ctx); err != nil {
			slog.Error("cycle failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("skytrader stopped cleanly")
}

// runUserAction aplica la decisión humana sobre un trade encolado.
func runUserAction(ctx context.Context, trades *queue.Queue, approveID, rejectID string) {
	var (
		trade domain.PendingTrade
		err   error
	)
	switch {
	case approveID != "":
		trade, err = trades.Approve(ctx, approveID)
	case rejectID != "":
		trade, err = trades.Reject(ctx, rejectID)
	}

	switch {
	case errors.Is(err, queue.ErrTradeExpired):
		fmt.Printf("trade expired before your action — nothing done\n")
		os.Exit(1)
	case errors.Is(err, queue.ErrAlreadyResolved):
		fmt.Printf("trade already resolved — nothing done\n")
		os.Exit(1)
	case err != nil:
		slog.Error("user action failed", "err", err)
		os.Exit(1)
	}

	fmt.Printf("trade %s → %s (%s %s/%s @ %.0f¢)\n",
		trade.ID, trade.Status, trade.Side, trade.City, trade.Bracket, trade.Price*100)
	if trade.Status == domain.StatusApproved {
		fmt.Println("the order will be placed on the next cycle")
	}
}

// runSettle aplica un settlement manual con formato city:bracket.
func runSettle(ctx context.Context, eng *engine.Engine, arg string) {
	city, bracket, ok := splitSettle(arg)
	if !ok {
		slog.Error("invalid -settle value, expected city:bracket", "got", arg)
		os.Exit(1)
	}
	s := domain.Settlement{City: city, Bracket: bracket, SettledAt: time.Now().UTC(), Raw: arg}
	if err := eng.ApplySettlement(ctx, s); err != nil {
		slog.Error("settlement failed", "err", err)
		os.Exit(1)
	}
	slog.Info("settlement applied", "city", city, "bracket", bracket)
}

func splitSettle(arg string) (city, bracket string, ok bool) {
	for i := 0; i < len(arg); i++ {
		if arg[i] == ':' {
			return arg[:i], arg[i+1:], arg[:i] != "" && arg[i+1:] != ""
		}
	}
	return "", "", false
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
