package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/tradewatch/internal/devfeed"
	"github.com/rickgao/tradewatch/internal/version"
)

func main() {
	addr := flag.String("addr", devfeed.DefaultAddr, "listen address")
	rate := flag.Duration("rate", time.Second, "place a random trade this often (0 disables)")
	bulk := flag.Int("bulk", devfeed.DefaultBulkSize, "trades placed per bulk request")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "generator seed")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting devfeed",
		"version", version.Version,
		"addr", *addr,
		"rate", *rate,
		"seed", *seed,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	srv := devfeed.New(devfeed.Config{
		Addr:          *addr,
		TradeInterval: *rate,
		BulkSize:      *bulk,
		Seed:          *seed,
	}, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start devfeed", "error", err)
		os.Exit(1)
	}

	logger.Info("devfeed running", "addr", srv.Addr())

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("devfeed stop", "error", err)
	}

	st := srv.Stats()
	logger.Info("devfeed stopped", "trades", st.Trades, "frames_sent", st.FramesSent, "pruned", st.Pruned)
}
