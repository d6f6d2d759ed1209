package main

import (
	"context"
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/connection"
	"github.com/ichi0g0y/thermal-receipt/internal/env"
	"github.com/ichi0g0y/thermal-receipt/internal/localdb"
	"github.com/ichi0g0y/thermal-receipt/internal/settings"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"go.uber.org/zap"
)

const autoConnectTimeout = 15 * time.Second

// loadSettings は環境変数に保存済み設定を重ねた値を返す
func loadSettings(sm *settings.SettingsManager) env.EnvValue {
	if err := sm.MigrateFromEnv(); err != nil {
		logger.Warn("Failed to migrate settings from environment", zap.Error(err))
	}

	v := env.Value
	if err := sm.ApplyTo(&v); err != nil {
		logger.Warn("Failed to apply stored settings, using environment only", zap.Error(err))
		v = env.Value
	}
	return v
}

// autoConnect は最後に使用したプリンターへの接続を試みる
func autoConnect(ctx context.Context, m *connection.Machine, saved *localdb.SavedPrinters) {
	dev, ok, err := saved.Last()
	if err != nil {
		logger.Warn("Failed to load saved printers", zap.Error(err))
		return
	}
	if !ok {
		logger.Info("No saved printer, skipping auto-connect")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, autoConnectTimeout)
	defer cancel()

	logger.Info("Auto-connecting to last used printer", zap.Stringer("device", dev))
	if err := m.Select(ctx, dev); err != nil {
		logger.Warn("Failed to select saved printer", zap.Error(err))
		return
	}
	if err := m.Connect(ctx); err != nil {
		logger.Warn("Auto-connect failed", zap.Stringer("device", dev), zap.Error(err))
		return
	}
	logger.Info("Auto-connected to printer", zap.Stringer("device", dev))
}
