package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Neural-Bridge/sql-analyst/internal/config"
	"github.com/Neural-Bridge/sql-analyst/internal/di"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/env"
	"github.com/Neural-Bridge/sql-analyst/internal/infrastructure/httpapi"
)

func main() {
	envService := env.NewEnvService()
	cfg, err := config.Load(envService)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(ctx, cfg, di.Options{LogName: "server"})
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer container.Close()

	api := container.HTTPServer(httpapi.Options{
		RequestTimeout:    envService.GetDuration("REQUEST_TIMEOUT", 5*time.Minute),
		MaxConcurrentRuns: envService.GetInt("MAX_CONCURRENT_RUNS", 4),
		AccessLog:         true,
	})
	srv := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     api.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		container.Logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			container.Logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	container.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		container.Logger.Error("forced shutdown", "error", err)
	}
}
