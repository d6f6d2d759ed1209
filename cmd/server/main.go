package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ichi0g0y/thermal-receipt/internal/connection"
	"github.com/ichi0g0y/thermal-receipt/internal/discovery"
	"github.com/ichi0g0y/thermal-receipt/internal/env"
	"github.com/ichi0g0y/thermal-receipt/internal/localdb"
	"github.com/ichi0g0y/thermal-receipt/internal/metrics"
	"github.com/ichi0g0y/thermal-receipt/internal/output"
	"github.com/ichi0g0y/thermal-receipt/internal/settings"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"github.com/ichi0g0y/thermal-receipt/internal/status"
	"github.com/ichi0g0y/thermal-receipt/internal/version"
	"github.com/ichi0g0y/thermal-receipt/internal/webserver"
	"go.uber.org/zap"
)

func main() {
	logger.Init(false)
	defer logger.Sync()

	logger.Info("Starting thermal-receipt server", zap.String("version", version.String()))

	env.LoadEnv()
	if env.Value.DebugMode {
		logger.Init(true)
		logger.Info("Debug mode enabled")
	}

	db, err := localdb.SetupDB(env.Value.DBPath)
	if err != nil {
		logger.Fatal("Failed to setup database", zap.Error(err))
	}
	defer localdb.CloseDB()

	sm := settings.NewSettingsManager(db)
	values := loadSettings(sm)
	cfg := output.ConfigFromEnv(values)

	drv, closeDriver, err := output.NewDriver(cfg)
	if err != nil {
		logger.Fatal("Failed to create printer driver", zap.Error(err))
	}
	defer func() {
		if err := closeDriver(); err != nil {
			logger.Warn("Failed to close printer driver", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	board := status.NewBoard()
	collector := metrics.New()
	reporter := status.Multi(board, collector)

	machine := connection.New(drv, connection.Config{
		Transport:   cfg.Transport(),
		SettleDelay: cfg.SettleDelay,
		Reporter:    reporter,
	})
	machineDone := make(chan struct{})
	go func() {
		defer close(machineDone)
		if err := machine.Run(ctx); err != nil {
			logger.Error("Connection machine stopped with error", zap.Error(err))
		}
	}()

	scanner := discovery.NewScanner(drv, discovery.Config{
		Transport: cfg.Transport(),
		Timeout:   cfg.ScanTimeout,
		Reporter:  reporter,
	})

	printer := output.NewPrinter(machine, cfg, reporter, collector)
	go printer.Run(ctx)

	saved := localdb.NewSavedPrinters(db)

	server := webserver.New(webserver.Deps{
		Connection: machine,
		Scanner:    scanner,
		Filter:     discovery.Filter{VendorIDs: cfg.VendorFilter},
		Printer:    printer,
		Board:      board,
		Saved:      saved,
		Settings:   sm,
		Metrics:    collector.Handler(),
		OnSettingsChanged: func() {
			printer.Reconfigure(output.ConfigFromEnv(loadSettings(sm)))
		},
	})

	if err := server.Start(ctx, env.Value.ServerPort); err != nil {
		logger.Fatal("Failed to start web server", zap.Error(err))
	}

	if values.AutoConnect {
		go autoConnect(ctx, machine, saved)
	}

	logger.Info("Server started",
		zap.Int("port", env.Value.ServerPort),
		zap.String("api", fmt.Sprintf("http://localhost:%d/api/printer/status", env.Value.ServerPort)),
		zap.String("printer_type", string(cfg.Type)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	server.Shutdown()
	if sess := scanner.Current(); sess != nil {
		sess.Cancel()
	}
	cancel()
	<-machineDone

	logger.Info("Shutdown complete")
}
