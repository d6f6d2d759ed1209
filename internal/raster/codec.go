package raster

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/ichi0g0y/thermal-receipt/internal/printerr"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// MaxSourcePixels limits the size of an encoded image that Decode accepts.
const MaxSourcePixels = 24_000_000

// Decode decodes an encoded image (png, jpeg, gif, bmp, webp). The header is
// checked first, and images over MaxSourcePixels are rejected before any
// pixel buffer is allocated.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", printerr.Wrap(printerr.KindImage, "decode image", errEmptyImage)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", printerr.Wrap(printerr.KindImage, "decode image", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", printerr.Wrap(printerr.KindImage, "decode image", errEmptyImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return nil, "", printerr.Wrap(printerr.KindImage, "decode image",
			fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, MaxSourcePixels))
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", printerr.Wrap(printerr.KindImage, "decode image", err)
	}
	return img, format, nil
}
