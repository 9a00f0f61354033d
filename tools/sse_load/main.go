// Command sse_load opens many concurrent connections to the dashboard SSE
// stream and reports how many dashboard events arrive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func main() {
	var cfg loadConfig

	flag.StringVar(&cfg.targetURL, "url", "http://localhost:8000/api/dashboard/stream", "SSE endpoint URL")
	flag.IntVar(&cfg.connections, "conns", 1000, "number of concurrent connections to open")
	flag.DurationVar(&cfg.duration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&cfg.rampUp, "ramp", 0, "ramp-up duration (spread connection starts across this window)")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if cfg.connections <= 0 {
		logger.Fatal("invalid conns", zap.Int("conns", cfg.connections))
	}
	cfg.rampUp = defaultRampUp(cfg.connections, cfg.rampUp)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}

	logger.Info("starting SSE load",
		zap.String("url", cfg.targetURL),
		zap.Int("conns", cfg.connections),
		zap.Duration("duration", cfg.duration),
		zap.Duration("ramp", cfg.rampUp))

	st := newStats()
	go reportEvery(ctx, 5*time.Second, st, logger)

	runLoad(ctx, cfg, st)

	fmt.Println(st.summary())
}

// defaultRampUp spreads large connection counts over one second per 500 connections.
func defaultRampUp(connections int, rampUp time.Duration) time.Duration {
	if rampUp != 0 || connections <= 100 {
		return rampUp
	}
	d := time.Duration(connections/500) * time.Second
	if d < time.Second {
		d = time.Second
	}
	return d
}

func reportEvery(ctx context.Context, every time.Duration, st *stats, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			connected, connectErrs, streamErrs, events := st.snapshot()
			logger.Info("status",
				zap.Int64("connected", connected),
				zap.Int64("connect_errs", connectErrs),
				zap.Int64("stream_errs", streamErrs),
				zap.Int64("events", events),
				zap.Duration("elapsed", time.Since(st.start).Truncate(time.Second)))
		}
	}
}
