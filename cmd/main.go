// Command lab-landing serves the token purchase dashboard: it polls the
// purchases API, derives chart, table and card data and publishes them over
// HTTP, SSE and WebSocket.
//
// Usage:
//
//	lab-landing --config config.yaml
//	lab-landing --api-url https://api.example.com/purchases
//	lab-landing --setup
//
// Environment overrides (also read from .env):
//
//	PURCHASES_API_URL, DASHBOARD_ADDR
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devusmanrafiq/lab-landing/config"
	"github.com/devusmanrafiq/lab-landing/internal/clients"
	"github.com/devusmanrafiq/lab-landing/internal/services/aggregator"
	"github.com/devusmanrafiq/lab-landing/internal/services/dashboard"
	"github.com/devusmanrafiq/lab-landing/internal/services/projection"
	"github.com/devusmanrafiq/lab-landing/internal/services/purchases"
	"github.com/devusmanrafiq/lab-landing/internal/setup"
	"github.com/devusmanrafiq/lab-landing/internal/storage/payloadcache"
	"github.com/devusmanrafiq/lab-landing/internal/web"
	"github.com/devusmanrafiq/lab-landing/pkg/retrier"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	if cfg.RunSetup {
		path, err := setup.RunTUI()
		if err != nil {
			log.Fatal(err)
		}
		if cfg, err = config.Load([]string{"-config", path}); err != nil {
			log.Fatal(err)
		}
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("dashboard stopped", zap.Error(err))
	}
	logger.Info("dashboard stopped")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	client := clients.NewPurchasesClient(cfg.PurchasesAPIURL, cfg.HTTPTimeout)
	source := purchases.NewSource(
		client,
		payloadcache.New(cfg.StaleAfter),
		retrier.NewFixed(cfg.FetchAttempts, cfg.RetryDelay, purchases.RetryLogger(logger)),
		logger.With(zap.String("component", "purchases")),
	)

	view := dashboard.NewView(source, viewOptions(cfg), logger.With(zap.String("component", "dashboard")))
	defer view.Close()

	server := web.NewServer(cfg.ListenAddr, view, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return view.Run(ctx)
	})
	g.Go(func() error {
		if len(cfg.TLSDomains) > 0 {
			return server.StartWithAutoTLS(ctx, cfg.TLSDomains, cfg.CertCacheDir)
		}
		return server.Start(ctx)
	})

	logger.Info("dashboard started",
		zap.String("addr", cfg.ListenAddr),
		zap.String("api", cfg.PurchasesAPIURL),
		zap.Stringer("granularity", cfg.Granularity),
		zap.Int("window_days", cfg.WindowDays))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func viewOptions(cfg config.Config) dashboard.Options {
	return dashboard.Options{
		WindowDays: cfg.WindowDays,
		Aggregation: aggregator.Options{
			FeeRate:     cfg.FeeRate,
			Granularity: cfg.Granularity,
			Location:    cfg.Location,
			TrendPeriod: cfg.TrendPeriod,
			TrendMethod: cfg.TrendMethod,
		},
		Rows: projection.Options{
			PricePrecision: cfg.PricePrecision,
			FeeRate:        cfg.FeeRate,
			QuoteSymbol:    cfg.QuoteSymbol,
			Location:       cfg.Location,
		},
		Cards: projection.CardOptions{
			TokenSymbol: cfg.TokenSymbol,
			TotalSupply: cfg.TotalSupply,
		},
		RefreshInterval: cfg.StaleAfter,
	}
}
