package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"riskboard/internal/config"
	"riskboard/internal/container"
	"riskboard/internal/logger"
	"riskboard/ui"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.SetupDefault(os.Stdout, appConfig.Log.Level, appConfig.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, appConfig, appLogger); err != nil {
		appLogger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, appConfig *config.Config, appLogger *slog.Logger) error {
	appContainer, err := container.New(ctx, appConfig, appLogger)
	if err != nil {
		return err
	}
	defer appContainer.Shutdown(context.Background())

	server, err := ui.NewServer(ui.Deps{
		Auth:     appContainer.Auth,
		Uploads:  appContainer.Uploads,
		Exports:  appContainer.Exports,
		Clock:    appContainer.Clock,
		Gatherer: appContainer.Registry,
		Logger:   appLogger,
	}, ui.Options{
		AllowedOrigins:      appConfig.Server.AllowedOrigins,
		DragDebounce:        appConfig.Drag.Debounce,
		UploadRatePerMinute: appConfig.Upload.RatePerMinute,
		MaxUploadBytes:      appConfig.Upload.MaxFileSize,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info("starting dashboard", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("shutting down dashboard")
		server.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
