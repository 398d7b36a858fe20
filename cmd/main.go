package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/zoravur/orderfeed/internal/app"
	"github.com/zoravur/orderfeed/internal/config"
	"github.com/zoravur/orderfeed/internal/logutil"
)

func main() {
	envFile := flag.String("env", ".env", "optional .env file")
	seedOrders := flag.Int("seed-orders", 0, "create this many fake orders at startup")
	seed := flag.Int64("seed", 1, "seed for -seed-orders")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger, err := logutil.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx := context.Background()
	srv, err := app.NewServer(ctx, cfg, logger)
	if err != nil {
		zap.L().Fatal("server setup failed", zap.Error(err))
	}
	if *seedOrders > 0 {
		if err := app.Seed(ctx, srv.Orders, *seed, *seedOrders); err != nil {
			zap.L().Fatal("seeding failed", zap.Error(err))
		}
	}
	if err := srv.Run(ctx); err != nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
}
