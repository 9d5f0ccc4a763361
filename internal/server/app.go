// Package server wires the reference record server: configuration, storage
// backend, migrations, the REST API and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/logging"
	"github.com/dmitrijs2005/medsync/internal/server/config"
	"github.com/dmitrijs2005/medsync/internal/server/httpapi"
	"github.com/dmitrijs2005/medsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/medsync/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	manager repomanager.RepositoryManager
	server  *httpapi.Server
}

func NewApp(c *config.Config) (*App, error) {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logging.ParseLevel(c.LogLevel)})
	logger := logging.NewSlogLogger(slog.New(h))

	cat, err := common.NewCatalogue(common.HospitalCollections)
	if err != nil {
		return nil, fmt.Errorf("catalogue: %w", err)
	}

	rm, err := repomanager.New(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := services.NewRecordService(rm.Records(), cat)
	srv := httpapi.NewServer(c.Addr, httpapi.NewHandler(svc, logger, reg), logger)

	return &App{config: c, logger: logger, manager: rm, server: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run migrates the store and serves until ctx is cancelled or a termination
// signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer func() {
		if err := app.manager.Close(); err != nil {
			app.logger.Error(ctx, "close storage", "error", err)
		}
	}()

	app.initSignalHandler(cancelFunc)

	if err := app.manager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	backend := "postgres"
	if app.config.DatabaseDSN == "" {
		backend = "memory"
	}
	app.logger.Info(ctx, "Starting app...", "addr", app.config.Addr, "storage", backend)

	if err := app.server.Run(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	app.logger.Info(ctx, "app stopped")
	return nil
}
