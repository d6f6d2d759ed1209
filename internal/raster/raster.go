// Package raster turns arbitrary images into the 1-bit raster format used by
// the print head raster opcode.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/ichi0g0y/thermal-receipt/internal/printerr"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"go.uber.org/zap"
)

const DefaultThreshold = 128

// MaxHeightDots limits the height of a rasterized image, about two metres of
// paper at 203 dpi.
const MaxHeightDots = 16384

// ErrImageTooLarge is returned for images over MaxSourcePixels or MaxHeightDots.
var ErrImageTooLarge = errors.New("image too large")

// Bitmap はモノクロのラスター画像
// 各行は 1 ピクセル 1 ビット、MSB が左端、1 が黒。幅は 8 の倍数に切り上げてパディングする
type Bitmap struct {
	Width  int
	Height int
	Bits   []byte
}

// WidthBytes is the number of bytes per packed row.
func (b *Bitmap) WidthBytes() int {
	return (b.Width + 7) / 8
}

// At reports whether the pixel at (x, y) is black.
func (b *Bitmap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return false
	}
	return b.Bits[y*b.WidthBytes()+x/8]&(0x80>>uint(x%8)) != 0
}

// Image renders the bitmap back into a grayscale image of the original width.
func (b *Bitmap) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.At(x, y) {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

type Options struct {
	// Threshold is the luminance at or above which a pixel prints white.
	Threshold int
	Dither    bool
	// DiffuseGray dithers the continuous grayscale image instead of the
	// already binarized one.
	DiffuseGray bool
}

func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold, Dither: true}
}

var errEmptyImage = errors.New("empty image")

// Rasterize resizes src to width dots and converts it into a packed
// monochrome bitmap: resize, grayscale, binarize, dither, pack.
func Rasterize(src image.Image, width int, opts Options) (*Bitmap, error) {
	if src == nil || src.Bounds().Empty() {
		return nil, printerr.Wrap(printerr.KindImage, "rasterize", errEmptyImage)
	}
	if width <= 0 {
		return nil, printerr.Wrap(printerr.KindImage, "rasterize", errors.New("target width must be positive"))
	}
	if h := scaledHeight(src.Bounds(), width); h > MaxHeightDots {
		return nil, printerr.Wrap(printerr.KindImage, "rasterize",
			fmt.Errorf("%w: %d dots high at width %d exceeds %d", ErrImageTooLarge, h, width, MaxHeightDots))
	}
	if opts.Threshold < 0 || opts.Threshold > 255 {
		opts.Threshold = DefaultThreshold
	}

	gray := Grayscale(Resize(src, width))

	var mono *image.Gray
	switch {
	case opts.Dither && opts.DiffuseGray:
		mono = Dither(gray, opts.Threshold)
	case opts.Dither:
		mono = Dither(Binarize(gray, opts.Threshold), opts.Threshold)
	default:
		mono = Binarize(gray, opts.Threshold)
	}

	bm := Pack(mono)
	logger.Debug("Image rasterized",
		zap.Int("src_width", src.Bounds().Dx()),
		zap.Int("src_height", src.Bounds().Dy()),
		zap.Int("width", bm.Width),
		zap.Int("height", bm.Height),
		zap.Int("threshold", opts.Threshold),
		zap.Bool("dither", opts.Dither),
		zap.Bool("diffuse_gray", opts.DiffuseGray))
	return bm, nil
}
