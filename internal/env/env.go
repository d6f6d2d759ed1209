package env

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// EnvValue はアプリケーション全体の設定値
type EnvValue struct {
	// プリンター設定
	PrinterType    string // "usb" or "dryrun"
	PrinterProfile string
	PaperSize      string
	ProfileFile    string
	VendorFilter   []string
	AutoConnect    bool
	DryRunMode     bool

	// 画像処理
	Threshold   int
	Dither      bool
	DiffuseGray bool

	// タイミング
	SettleDelay time.Duration
	ScanTimeout time.Duration

	// サーバー
	DBPath     string
	ServerPort int
	DebugMode  bool
}

var Value = defaults()

func defaults() EnvValue {
	return EnvValue{
		PrinterType:    "usb",
		PrinterProfile: "default",
		PaperSize:      "58mm",
		AutoConnect:    true,
		Threshold:      128,
		Dither:         true,
		SettleDelay:    time.Second,
		ScanTimeout:    10 * time.Second,
		DBPath:         "thermal-receipt.db",
		ServerPort:     8080,
	}
}

// LoadEnv は .env と環境変数から設定を読み込む
// .env が存在しない場合は環境変数のみを使用する
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		logger.Debug(".env not loaded, using process environment", zap.Error(err))
	}

	v := defaults()

	v.PrinterType = getString("PRINTER_TYPE", v.PrinterType)
	v.PrinterProfile = getString("PRINTER_PROFILE", v.PrinterProfile)
	v.PaperSize = getString("PAPER_SIZE", v.PaperSize)
	v.ProfileFile = getString("PROFILE_FILE", "")
	v.VendorFilter = getList("VENDOR_FILTER")
	v.AutoConnect = getBool("AUTO_CONNECT", v.AutoConnect)
	v.DryRunMode = getBool("DRY_RUN_MODE", false)

	v.Threshold = getInt("THRESHOLD", v.Threshold)
	if v.Threshold < 0 || v.Threshold > 255 {
		logger.Warn("THRESHOLD out of range, using default", zap.Int("value", v.Threshold))
		v.Threshold = 128
	}
	v.Dither = getBool("DITHER", v.Dither)
	v.DiffuseGray = getBool("DIFFUSE_GRAY", false)

	v.SettleDelay = time.Duration(getInt("SETTLE_DELAY_MS", int(v.SettleDelay/time.Millisecond))) * time.Millisecond
	v.ScanTimeout = time.Duration(getInt("SCAN_TIMEOUT_SEC", int(v.ScanTimeout/time.Second))) * time.Second

	v.DBPath = getString("DB_PATH", v.DBPath)
	v.ServerPort = getInt("SERVER_PORT", v.ServerPort)
	v.DebugMode = getBool("DEBUG_MODE", false)

	if v.DryRunMode {
		v.PrinterType = "dryrun"
	}

	Value = v

	logger.Info("Environment loaded",
		zap.String("printer_type", v.PrinterType),
		zap.String("printer_profile", v.PrinterProfile),
		zap.String("paper_size", v.PaperSize),
		zap.Int("threshold", v.Threshold),
		zap.Bool("dither", v.Dither),
		zap.Duration("settle_delay", v.SettleDelay),
		zap.Duration("scan_timeout", v.ScanTimeout))
}

func getString(key, def string) string {
	if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return def
}

func getInt(key string, def int) int {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		logger.Warn("Invalid integer in environment, using default",
			zap.String("key", key),
			zap.String("value", val),
			zap.Int("default", def))
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		logger.Warn("Invalid boolean in environment, using default",
			zap.String("key", key),
			zap.String("value", val),
			zap.Bool("default", def))
		return def
	}
	return b
}

// getList はカンマ区切りの値を分割する
func getList(key string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
