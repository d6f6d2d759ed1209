package output

import (
	"fmt"
	"time"

	"github.com/ichi0g0y/thermal-receipt/internal/driver"
	"github.com/ichi0g0y/thermal-receipt/internal/driver/usb"
	"github.com/ichi0g0y/thermal-receipt/internal/env"
	"github.com/ichi0g0y/thermal-receipt/internal/raster"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"go.uber.org/zap"
)

// PrinterType はプリンターの種類を表す
type PrinterType string

const (
	PrinterTypeUSB    PrinterType = "usb"
	PrinterTypeDryRun PrinterType = "dryrun"
)

// PrinterConfig はプリンター設定
type PrinterConfig struct {
	Type PrinterType

	// レイアウト
	Profile     string
	PaperSize   string
	ProfileFile string

	// 画像処理
	Raster raster.Options

	// 接続
	SettleDelay  time.Duration
	ScanTimeout  time.Duration
	VendorFilter []string
}

// ConfigFromEnv builds a PrinterConfig from the loaded environment.
func ConfigFromEnv(v env.EnvValue) PrinterConfig {
	t := PrinterType(v.PrinterType)
	if v.DryRunMode {
		t = PrinterTypeDryRun
	}
	return PrinterConfig{
		Type:        t,
		Profile:     v.PrinterProfile,
		PaperSize:   v.PaperSize,
		ProfileFile: v.ProfileFile,
		Raster: raster.Options{
			Threshold:   v.Threshold,
			Dither:      v.Dither,
			DiffuseGray: v.DiffuseGray,
		},
		SettleDelay:  v.SettleDelay,
		ScanTimeout:  v.ScanTimeout,
		VendorFilter: v.VendorFilter,
	}
}

// Transport returns the driver transport for the configured printer type.
func (c PrinterConfig) Transport() driver.TransportKind {
	if c.Type == PrinterTypeDryRun {
		return driver.TransportDryRun
	}
	return driver.TransportUSB
}

// NewDriver は設定からプリンタードライバーを作成する
// The returned close function releases the driver's resources.
func NewDriver(cfg PrinterConfig) (driver.Driver, func() error, error) {
	logger.Info("Creating printer driver", zap.String("type", string(cfg.Type)))

	switch cfg.Type {
	case PrinterTypeUSB:
		d := usb.New()
		return d, d.Close, nil

	case PrinterTypeDryRun:
		logger.Info("Dry-run mode: print jobs will be captured and not sent to hardware")
		return driver.NewDryRun(), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown printer type: %s", cfg.Type)
	}
}
