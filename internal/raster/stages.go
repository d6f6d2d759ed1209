package raster

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// Resize scales src to width, keeping the aspect ratio with the height
// rounded to the nearest pixel. Transparent areas become white. A source that
// already has the target width is copied without resampling.
func Resize(src image.Image, width int) *image.RGBA {
	b := src.Bounds()
	height := scaledHeight(b, width)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	if b.Dx() == width {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
		return dst
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func scaledHeight(b image.Rectangle, width int) int {
	height := int(math.Round(float64(b.Dy()) * float64(width) / float64(b.Dx())))
	if height < 1 {
		height = 1
	}
	return height
}

// Grayscale converts img to luminance with Y = 0.299R + 0.587G + 0.114B.
// Transparent pixels are treated as white.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.SetGray(x, y, color.Gray{Y: luminance(img.At(b.Min.X+x, b.Min.Y+y))})
		}
	}
	return out
}

func luminance(c color.Color) uint8 {
	r, g, b, a := c.RGBA()
	// 白背景に合成 (premultiplied)
	white := uint32(0xffff) - a
	r, g, b = (r+white)>>8, (g+white)>>8, (b+white)>>8

	y := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	return uint8(math.Min(255, math.Round(y)))
}

// Binarize maps every pixel to white (255) when it is at or above threshold
// and to black (0) otherwise.
func Binarize(g *image.Gray, threshold int) *image.Gray {
	out := image.NewGray(g.Bounds())
	for i, v := range g.Pix {
		if int(v) >= threshold {
			out.Pix[i] = 255
		}
	}
	return out
}

// Dither quantizes g to two levels with Floyd-Steinberg error diffusion.
// On an image that only holds 0 and 255 it changes nothing.
func Dither(g *image.Gray, threshold int) *image.Gray {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()

	buf := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf[y*w+x] = float64(g.Pix[y*g.Stride+x])
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	spread := func(x, y int, e float64) {
		if x >= 0 && x < w && y < h {
			buf[y*w+x] += e
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			old := buf[y*w+x]
			var level float64
			if old >= float64(threshold) {
				level = 255
			}
			out.Pix[y*out.Stride+x] = uint8(level)

			e := old - level
			if e == 0 {
				continue
			}
			spread(x+1, y, e*7/16)
			spread(x-1, y+1, e*3/16)
			spread(x, y+1, e*5/16)
			spread(x+1, y+1, e*1/16)
		}
	}
	return out
}

// Pack packs a two-level image into a Bitmap. Dark pixels become 1 bits and
// the row padding is white.
func Pack(g *image.Gray) *Bitmap {
	b := g.Bounds()
	bm := &Bitmap{Width: b.Dx(), Height: b.Dy()}
	wb := bm.WidthBytes()
	bm.Bits = make([]byte, wb*bm.Height)

	for y := 0; y < bm.Height; y++ {
		row := g.Pix[y*g.Stride:]
		for x := 0; x < bm.Width; x++ {
			if row[x] < 128 {
				bm.Bits[y*wb+x/8] |= 0x80 >> uint(x%8)
			}
		}
	}
	return bm
}
