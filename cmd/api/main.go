package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markdave123-py/knowledgevault/internal/app"
	"github.com/markdave123-py/knowledgevault/internal/config"
	"github.com/markdave123-py/knowledgevault/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode, cfg.LogHashSalt)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", "error", err)
	}
	defer application.Close()

	// Reindex requests are served by in-process workers.
	application.Ingestor.Start(ctx, cfg.IngestWorkers)

	server := app.NewServer(cfg, application.Chat, application.Documents, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	log.Info("knowledge vault api is running", "port", cfg.Port)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", "error", err)
	}
}
