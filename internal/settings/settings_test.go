package settings

import (
	"path/filepath"
	"testing"

	"github.com/ichi0g0y/thermal-receipt/internal/env"
	"github.com/ichi0g0y/thermal-receipt/internal/localdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *SettingsManager {
	t.Helper()
	require.NoError(t, localdb.CloseDB())

	db, err := localdb.SetupDB(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = localdb.CloseDB() })

	return NewSettingsManager(db)
}

func TestGetSettingFallsBackToDefault(t *testing.T) {
	sm := newTestManager(t)

	v, err := sm.GetSetting("PAPER_SIZE")
	require.NoError(t, err)
	assert.Equal(t, "58mm", v)

	_, err = sm.GetSetting("NO_SUCH_KEY")
	assert.Error(t, err)
}

func TestSetSettingValidates(t *testing.T) {
	sm := newTestManager(t)

	require.NoError(t, sm.SetSetting("PAPER_SIZE", "80mm"))
	v, err := sm.GetSetting("PAPER_SIZE")
	require.NoError(t, err)
	assert.Equal(t, "80mm", v)

	assert.Error(t, sm.SetSetting("PAPER_SIZE", "110mm"))
	assert.Error(t, sm.SetSetting("THRESHOLD", "300"))
	assert.Error(t, sm.SetSetting("DITHER", "yes"))
	assert.Error(t, sm.SetSetting("UNKNOWN", "1"))
}

func TestApplyToOverridesEnvironment(t *testing.T) {
	sm := newTestManager(t)
	require.NoError(t, sm.InitializeDefaultSettings())
	require.NoError(t, sm.SetSetting("THRESHOLD", "90"))
	require.NoError(t, sm.SetSetting("DIFFUSE_GRAY", "true"))
	require.NoError(t, sm.SetSetting("DRY_RUN_MODE", "true"))

	v := env.EnvValue{PrinterType: "usb", Threshold: 128, PaperSize: "80mm"}
	require.NoError(t, sm.ApplyTo(&v))

	assert.Equal(t, 90, v.Threshold)
	assert.True(t, v.DiffuseGray)
	assert.True(t, v.DryRunMode)
	assert.Equal(t, "dryrun", v.PrinterType)
	assert.Equal(t, "58mm", v.PaperSize)
}

func TestMigrateFromEnv(t *testing.T) {
	sm := newTestManager(t)
	t.Setenv("PAPER_SIZE", "72mm")
	t.Setenv("THRESHOLD", "not-a-number")

	require.NoError(t, sm.MigrateFromEnv())

	v, err := sm.GetSetting("PAPER_SIZE")
	require.NoError(t, err)
	assert.Equal(t, "72mm", v)

	v, err = sm.GetSetting("THRESHOLD")
	require.NoError(t, err)
	assert.Equal(t, "128", v)
}

func TestGetAllSettingsHidesInternalKeys(t *testing.T) {
	sm := newTestManager(t)
	_, err := localdb.NewSavedPrinters(localdb.DBClient).Load()
	require.NoError(t, err)
	require.NoError(t, localdb.NewSavedPrinters(localdb.DBClient).Save(nil))

	all, err := sm.GetAllSettings()
	require.NoError(t, err)

	assert.Len(t, all, len(DefaultSettings))
	assert.NotContains(t, all, localdb.SavedPrintersKey)
}
