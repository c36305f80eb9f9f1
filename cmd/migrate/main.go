package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/odyssey-erp/retailstock/internal/app"
	"github.com/odyssey-erp/retailstock/internal/platform/db"
)

func main() {
	printOnly := flag.Bool("print", false, "print the schema instead of applying it")
	flag.Parse()

	if *printOnly {
		fmt.Print(db.Schema())
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	if cfg.UsesMemoryStore() {
		logger.Error("PG_DSN is required to migrate")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("schema applied")
}
