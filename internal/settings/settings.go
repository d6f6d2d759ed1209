package settings

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/env"
	"github.com/ichi0g0y/thermal-receipt/internal/profile"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"go.uber.org/zap"
)

type SettingType string

const (
	SettingTypeNormal  SettingType = "normal"
	SettingTypePrinter SettingType = "printer"
)

type Setting struct {
	Key         string      `json:"key"`
	Value       string      `json:"value"`
	Type        SettingType `json:"type"`
	Required    bool        `json:"required"`
	Description string      `json:"description"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type SettingsManager struct {
	db *sql.DB
}

func NewSettingsManager(db *sql.DB) *SettingsManager {
	return &SettingsManager{db: db}
}

// 設定の定義
var DefaultSettings = map[string]Setting{
	// プリンター設定
	"PRINTER_PROFILE": {
		Key: "PRINTER_PROFILE", Value: profile.DefaultName, Type: SettingTypePrinter,
		Description: "Printer capability profile name",
	},
	"PAPER_SIZE": {
		Key: "PAPER_SIZE", Value: profile.DefaultPaper, Type: SettingTypePrinter,
		Description: "Paper width (58mm, 72mm or 80mm)",
	},
	"AUTO_CONNECT": {
		Key: "AUTO_CONNECT", Value: "true", Type: SettingTypePrinter,
		Description: "Connect to the last saved printer on startup",
	},

	// 画像処理
	"THRESHOLD": {
		Key: "THRESHOLD", Value: "128", Type: SettingTypeNormal,
		Description: "Luminance threshold for black/white conversion (0-255)",
	},
	"DITHER": {
		Key: "DITHER", Value: "true", Type: SettingTypeNormal,
		Description: "Enable dithering",
	},
	"DIFFUSE_GRAY": {
		Key: "DIFFUSE_GRAY", Value: "false", Type: SettingTypeNormal,
		Description: "Dither the grayscale image instead of the binarized one",
	},
	"DRY_RUN_MODE": {
		Key: "DRY_RUN_MODE", Value: "false", Type: SettingTypeNormal,
		Description: "Enable dry run mode (no actual printing)",
	},
}

// CRUD操作
func (sm *SettingsManager) GetSetting(key string) (string, error) {
	var value string
	err := sm.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		// デフォルト値を返す
		if defaultSetting, exists := DefaultSettings[key]; exists {
			return defaultSetting.Value, nil
		}
		return "", fmt.Errorf("setting not found: %s", key)
	}
	return value, err
}

func (sm *SettingsManager) SetSetting(key, value string) error {
	defaultSetting, exists := DefaultSettings[key]
	if !exists {
		return fmt.Errorf("unknown setting key: %s", key)
	}
	if err := ValidateSetting(key, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	_, err := sm.db.Exec(`
		INSERT INTO settings (key, value, setting_type, is_required, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value,
		string(defaultSetting.Type),
		defaultSetting.Required,
		defaultSetting.Description,
	)
	return err
}

// GetAllSettings returns every known setting, filling in defaults for keys
// that were never stored.
func (sm *SettingsManager) GetAllSettings() (map[string]Setting, error) {
	settings := make(map[string]Setting, len(DefaultSettings))
	for key, s := range DefaultSettings {
		settings[key] = s
	}

	rows, err := sm.db.Query(`
		SELECT key, value, setting_type, is_required, description, updated_at
		FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s Setting
		var settingType string
		var description sql.NullString
		if err := rows.Scan(&s.Key, &s.Value, &settingType, &s.Required, &description, &s.UpdatedAt); err != nil {
			return nil, err
		}
		// 保存済みプリンター一覧などの内部キーは対象外
		if _, known := DefaultSettings[s.Key]; !known {
			continue
		}
		s.Type = SettingType(settingType)
		s.Description = description.String
		settings[s.Key] = s
	}
	return settings, rows.Err()
}

// Keys returns the known setting keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(DefaultSettings))
	for key := range DefaultSettings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// 環境変数からの移行
func (sm *SettingsManager) MigrateFromEnv() error {
	migrated := 0
	for _, key := range Keys() {
		// 既にDB設定が存在する場合はスキップ
		var existingKey string
		if err := sm.db.QueryRow("SELECT key FROM settings WHERE key = ?", key).Scan(&existingKey); err == nil {
			continue
		}

		envValue := os.Getenv(key)
		if envValue == "" {
			continue
		}
		if err := sm.SetSetting(key, strings.ToLower(envValue)); err != nil {
			logger.Warn("Skipping invalid setting from environment", zap.String("key", key), zap.Error(err))
			continue
		}
		logger.Info("Migrated setting from environment", zap.String("key", key))
		migrated++
	}

	if migrated > 0 {
		logger.Info("Migration completed", zap.Int("migrated_count", migrated))
	}
	return nil
}

// ApplyTo overlays the stored settings onto v. Stored values win over the
// environment.
func (sm *SettingsManager) ApplyTo(v *env.EnvValue) error {
	all, err := sm.GetAllSettings()
	if err != nil {
		return err
	}

	v.PrinterProfile = all["PRINTER_PROFILE"].Value
	v.PaperSize = all["PAPER_SIZE"].Value
	v.AutoConnect = all["AUTO_CONNECT"].Value == "true"
	v.Dither = all["DITHER"].Value == "true"
	v.DiffuseGray = all["DIFFUSE_GRAY"].Value == "true"
	if n, err := strconv.Atoi(all["THRESHOLD"].Value); err == nil {
		v.Threshold = n
	}
	if all["DRY_RUN_MODE"].Value == "true" {
		v.DryRunMode = true
		v.PrinterType = "dryrun"
	}
	return nil
}

// バリデーション
func ValidateSetting(key, value string) error {
	switch key {
	case "THRESHOLD":
		if val, err := strconv.Atoi(value); err != nil || val < 0 || val > 255 {
			return fmt.Errorf("must be integer between 0 and 255")
		}
	case "PAPER_SIZE":
		if _, ok := profile.Builtin().PaperSizes[value]; !ok {
			return fmt.Errorf("unknown paper size %q", value)
		}
	case "PRINTER_PROFILE":
		if value == "" {
			return fmt.Errorf("must not be empty")
		}
	case "AUTO_CONNECT", "DITHER", "DIFFUSE_GRAY", "DRY_RUN_MODE":
		// boolean値のチェック
		if value != "true" && value != "false" {
			return fmt.Errorf("must be 'true' or 'false'")
		}
	}
	return nil
}

// 初期設定のセットアップ
func (sm *SettingsManager) InitializeDefaultSettings() error {
	for _, key := range Keys() {
		var existingKey string
		if err := sm.db.QueryRow("SELECT key FROM settings WHERE key = ?", key).Scan(&existingKey); err == nil {
			continue
		}
		if err := sm.SetSetting(key, DefaultSettings[key].Value); err != nil {
			return fmt.Errorf("failed to initialize setting %s: %w", key, err)
		}
	}
	return nil
}
