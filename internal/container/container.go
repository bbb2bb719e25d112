// Package container wires the dashboard components from configuration.
package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"riskboard/adapters/excel"
	"riskboard/adapters/prediction"
	"riskboard/internal/auth"
	"riskboard/internal/clock"
	"riskboard/internal/config"
	"riskboard/internal/export"
	"riskboard/internal/metrics"
	"riskboard/internal/session"
	"riskboard/internal/upload"
	"riskboard/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	Clock  clock.Clock

	// Infrastructure
	Registry *prometheus.Registry
	Metrics  *metrics.Collector
	Sessions session.Store

	// Components
	Auth       ports.AuthProvider
	Prediction *prediction.Client
	Uploads    *upload.Orchestrator
	Exports    *export.Pipeline
}

// New creates a container with every component built and connected
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
		Clock:  clock.New(),
	}

	c.initMetrics()
	if err := c.initSession(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize session components: %w", err)
	}
	c.initUpload()
	if err := c.initExport(); err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize export pipeline: %w", err)
	}

	logger.Info("container initialized",
		"auth_provider", cfg.Auth.Provider,
		"session_store", c.Sessions.Provider(),
		"prediction_url", cfg.Prediction.BaseURL)
	return c, nil
}

func (c *Container) initMetrics() {
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.NewCollector(c.Registry)
}

// initSession opens the credential store and builds the configured auth provider
func (c *Container) initSession(ctx context.Context) error {
	store, err := session.Open(c.Config.Session)
	if err != nil {
		return err
	}
	c.Sessions = store

	provider, err := auth.New(ctx, c.Config.Auth, store, c.Metrics, c.Logger)
	if err != nil {
		store.Close()
		return err
	}
	c.Auth = provider
	return nil
}

func (c *Container) initUpload() {
	c.Prediction = prediction.NewClient(c.Config.Prediction, nil, c.Logger)
	c.Uploads = upload.New(c.Prediction, c.Clock, c.Metrics, c.Logger, upload.Options{
		ProgressInterval: c.Config.Upload.ProgressInterval,
		MaxFileSize:      c.Config.Upload.MaxFileSize,
	})
}

func (c *Container) initExport() error {
	glyphs, err := export.ParseGlyphFilter(c.Config.Export.StripRanges)
	if err != nil {
		return err
	}
	c.Exports = export.NewPipeline(
		excel.NewXLSXEncoder(c.Config.Export.SheetName),
		export.NewNormalizer(glyphs),
		c.Clock,
		c.Metrics,
		c.Logger,
	)
	return nil
}

// Shutdown releases the upload orchestrator and the credential store
func (c *Container) Shutdown(ctx context.Context) error {
	if c.Uploads != nil {
		c.Uploads.Close()
	}
	if c.Sessions != nil {
		return c.Sessions.Close()
	}
	return nil
}
