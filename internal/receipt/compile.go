package receipt

import (
	"fmt"
	"image"

	"github.com/ichi0g0y/thermal-receipt/internal/escpos"
	"github.com/ichi0g0y/thermal-receipt/internal/printerr"
	"github.com/ichi0g0y/thermal-receipt/internal/profile"
	"github.com/ichi0g0y/thermal-receipt/internal/raster"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"github.com/ichi0g0y/thermal-receipt/internal/status"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// ImagePlaceholder is printed in place of an image that could not be processed.
const ImagePlaceholder = "[image]"

type Options struct {
	Raster   raster.Options
	Reporter status.Reporter
}

func DefaultOptions() Options {
	return Options{Raster: raster.DefaultOptions(), Reporter: status.Discard}
}

type compiler struct {
	p    profile.Profile
	opts Options
	gen  *escpos.Generator
	enc  encoder
}

// Compile turns doc into the byte stream for a printer described by p.
// Image failures are replaced by a placeholder line and reported; layout
// errors abort the compilation.
func Compile(doc Document, p profile.Profile, opts Options) ([]byte, error) {
	if opts.Reporter == nil {
		opts.Reporter = status.Discard
	}
	c := &compiler{p: p, opts: opts, gen: escpos.NewGenerator()}

	c.enc, _ = newEncoder(p.DefaultCodePage)
	if n, ok := p.CodePage(p.DefaultCodePage); ok && n != 0 {
		c.gen.CodeTable(n)
	}

	for i, el := range doc {
		if err := c.element(el); err != nil {
			return nil, fmt.Errorf("element %d (%T): %w", i, el, err)
		}
	}

	out := c.gen.Bytes()
	logger.Debug("Receipt compiled",
		zap.String("profile", p.Name),
		zap.String("paper", p.PaperSize),
		zap.Int("elements", len(doc)),
		zap.Int("bytes", len(out)))
	return out, nil
}

func (c *compiler) element(el Element) error {
	switch e := el.(type) {
	case Text:
		c.gen.SetStyle(escpos.Style{Align: e.Align, Bold: e.Bold, Width: e.Width, Height: e.Height})
		c.gen.Line(c.enc.encode(e.Content))

	case Row:
		cells, err := layoutCells(e.Columns, c.p.CharsPerLine)
		if err != nil {
			return err
		}
		c.gen.SetStyle(escpos.DefaultStyle())
		for i, cell := range cells {
			c.gen.SetBold(e.Columns[i].Bold)
			c.gen.Write(c.enc.encode(cell))
		}
		c.gen.SetBold(false)
		c.gen.Write([]byte{escpos.LF})

	case HR:
		c.gen.SetStyle(escpos.DefaultStyle())
		c.gen.Line(c.enc.encode(rule(e.Char, c.p.CharsPerLine)))

	case Image:
		c.printImage(e)

	case QRCode:
		c.printQR(e)

	case Feed:
		c.gen.Feed(e.Lines)

	case Cut:
		c.gen.Cut(e.Partial)

	case EmptyLines:
		c.gen.Empty(e.N)

	case SetCodeTable:
		n, ok := c.p.CodePage(e.Name)
		if !ok {
			return printerr.Wrap(printerr.KindLayout, "set code table",
				fmt.Errorf("code page %q not supported by profile %s", e.Name, c.p.Name))
		}
		enc, ok := newEncoder(e.Name)
		if !ok {
			return printerr.Wrap(printerr.KindLayout, "set code table",
				fmt.Errorf("no text encoding for code page %q", e.Name))
		}
		c.gen.CodeTable(n)
		c.enc = enc

	case nil:
		return printerr.Wrap(printerr.KindLayout, "compile", fmt.Errorf("nil element"))

	default:
		return printerr.Wrap(printerr.KindLayout, "compile", fmt.Errorf("unsupported element %T", el))
	}
	return nil
}

func (c *compiler) printImage(e Image) {
	src := e.Source
	if src == nil {
		img, _, err := raster.Decode(e.Encoded)
		if err != nil {
			c.placeholder("Image could not be decoded, printing placeholder", err)
			return
		}
		src = img
	}

	width := e.Width
	if width <= 0 {
		width = src.Bounds().Dx()
	}
	c.printBitmap(src, width, e.Align)
}

func (c *compiler) printQR(e QRCode) {
	size := e.Size
	if size <= 0 {
		size = c.p.LineWidthDots / 2
	}
	q, err := qrcode.New(e.Content, qrcode.Medium)
	if err != nil {
		c.placeholder("QR code could not be generated, printing placeholder",
			printerr.Wrap(printerr.KindImage, "generate qr code", err))
		return
	}
	c.printBitmap(q.Image(size), size, e.Align)
}

func (c *compiler) printBitmap(src image.Image, width int, align escpos.Align) {
	if width > c.p.LineWidthDots {
		width = c.p.LineWidthDots
	}
	bm, err := raster.Rasterize(src, width, c.opts.Raster)
	if err != nil {
		c.placeholder("Image could not be rasterized, printing placeholder", err)
		return
	}
	c.gen.Image(bm, align)
}

func (c *compiler) placeholder(msg string, err error) {
	if printerr.KindOf(err) == "" {
		err = printerr.Wrap(printerr.KindImage, "image", err)
	}
	logger.Warn(msg, zap.Error(err))
	c.opts.Reporter.Report(status.Failure(msg, err))

	c.gen.SetStyle(escpos.DefaultStyle())
	c.gen.Line([]byte(ImagePlaceholder))
}
