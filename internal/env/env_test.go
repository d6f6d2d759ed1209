package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvDefaults(t *testing.T) {
	LoadEnv(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, "usb", Value.PrinterType)
	assert.Equal(t, "default", Value.PrinterProfile)
	assert.Equal(t, "58mm", Value.PaperSize)
	assert.Equal(t, 128, Value.Threshold)
	assert.True(t, Value.Dither)
	assert.Equal(t, time.Second, Value.SettleDelay)
	assert.Equal(t, 10*time.Second, Value.ScanTimeout)
	assert.Equal(t, 8080, Value.ServerPort)
}

func TestLoadEnvFromVariables(t *testing.T) {
	t.Setenv("PAPER_SIZE", "80mm")
	t.Setenv("THRESHOLD", "90")
	t.Setenv("DITHER", "false")
	t.Setenv("SETTLE_DELAY_MS", "250")
	t.Setenv("VENDOR_FILTER", "04B8, 0416,,")
	t.Setenv("DRY_RUN_MODE", "true")

	LoadEnv(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, "80mm", Value.PaperSize)
	assert.Equal(t, 90, Value.Threshold)
	assert.False(t, Value.Dither)
	assert.Equal(t, 250*time.Millisecond, Value.SettleDelay)
	assert.Equal(t, []string{"04b8", "0416"}, Value.VendorFilter)
	assert.True(t, Value.DryRunMode)
	assert.Equal(t, "dryrun", Value.PrinterType)
}

func TestLoadEnvRejectsInvalidValues(t *testing.T) {
	t.Setenv("THRESHOLD", "300")
	t.Setenv("DITHER", "maybe")
	t.Setenv("SERVER_PORT", "eighty")

	LoadEnv(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, 128, Value.Threshold)
	assert.True(t, Value.Dither)
	assert.Equal(t, 8080, Value.ServerPort)
}

func TestLoadEnvReadsDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PRINTER_PROFILE=pos-5890\nSCAN_TIMEOUT_SEC=3\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("PRINTER_PROFILE")
		os.Unsetenv("SCAN_TIMEOUT_SEC")
	})

	LoadEnv(path)

	assert.Equal(t, "pos-5890", Value.PrinterProfile)
	assert.Equal(t, 3*time.Second, Value.ScanTimeout)
}
