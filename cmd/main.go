// @title           Smart Cash Power API
// @version         1.0
// @description     Prepaid electricity meters with a live drain simulator.
// @BasePath        /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "smart_cash_power/docs"
	"smart_cash_power/internal/client/meterapi"
	"smart_cash_power/internal/config"
	"smart_cash_power/internal/drain"
	"smart_cash_power/internal/handlers"
	"smart_cash_power/internal/logger"
	"smart_cash_power/internal/repository"
	"smart_cash_power/internal/repository/db"
	"smart_cash_power/internal/server"
	"smart_cash_power/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.Log.Level)

	// open DB
	sqlDB, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer closeDB(sqlDB, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	services := service.NewService(repos, serviceConfig(cfg), service.Deps{
		Log:     log,
		Metrics: drain.NewMetrics(reg),
		Remote:  remoteClient(cfg, log),
	})
	apiHandler := handlers.NewHandler(services, log, reg)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(srv, services, log)
}

func serviceConfig(cfg *config.Config) service.Config {
	return service.Config{
		Auth: service.AuthConfig{
			SigningKey: cfg.Auth.SigningKey,
			TokenTTL:   cfg.Auth.TokenTTL,
		},
		Drain: drain.Config{
			Rate:             cfg.Drain.Rate,
			Interval:         cfg.Drain.Interval,
			WriteTimeout:     cfg.Drain.WriteTimeout,
			FlushConcurrency: cfg.Drain.FlushConcurrency,
		},
		FetchTimeout: cfg.Drain.FetchTimeout,
		Purchase: service.PurchaseConfig{
			UnitPrice: cfg.Purchase.UnitPrice,
			MinAmount: cfg.Purchase.MinAmount,
		},
	}
}

// remoteClient returns nil in local mode. Requests carry the calling user's
// token, so the client has no static Authorization header.
func remoteClient(cfg *config.Config, log *logger.Logger) *meterapi.Client {
	if cfg.Backend.Mode != config.BackendRemote {
		return nil
	}
	log.Infow("using remote meter backend", "base_url", cfg.Backend.Remote.BaseURL)
	return meterapi.New(cfg.Backend.Remote.BaseURL,
		meterapi.WithTimeout(cfg.Backend.Remote.Timeout),
	)
}

func closeDB(sqlDB *sql.DB, log *logger.Logger) {
	if err := sqlDB.Close(); err != nil {
		log.Errorw("failed to close sqlite", "err", err)
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
	log.Infow("server started", "port", port)
}

// waitForShutdown blocks until SIGINT/SIGTERM, then stops accepting requests
// and flushes every open drain session before the database is closed.
func waitForShutdown(srv *server.Server, services *service.Service, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
	if err := services.Dashboard.Shutdown(ctx); err != nil {
		log.Warnw("drain sessions flushed with errors", "err", err)
	}
}
