package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetRoutesPackageFunctions(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	Debug("hidden")
	Info("printer connected", zap.String("device", "0416:5011"))
	Warn("slow")

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "printer connected", entries[0].Message)
	assert.Equal(t, "0416:5011", entries[0].ContextMap()["device"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestSetNilInstallsNop(t *testing.T) {
	Set(nil)
	assert.NotPanics(t, func() {
		Info("dropped")
		Sync()
	})
}
