package escpos

import (
	"bytes"

	"github.com/ichi0g0y/thermal-receipt/internal/raster"
)

// Style is the text style the printer is in.
type Style struct {
	Align  Align
	Bold   bool
	Width  int
	Height int
}

// DefaultStyle is the style right after ESC @.
func DefaultStyle() Style {
	return Style{Align: AlignLeft, Width: 1, Height: 1}
}

// Generator は ESC/POS バイト列を組み立てる
// 現在のスタイルを覚えておき、変化したコマンドだけを出力する
type Generator struct {
	buf       bytes.Buffer
	style     Style
	codeTable int
}

// NewGenerator starts a job with ESC @.
func NewGenerator() *Generator {
	g := &Generator{style: DefaultStyle(), codeTable: -1}
	g.buf.Write(Initialize())
	return g
}

// Style returns the style currently in effect.
func (g *Generator) Style() Style {
	return g.style
}

// SetStyle emits only the commands needed to move from the current style to s.
func (g *Generator) SetStyle(s Style) {
	s.Width, s.Height = clampScale(s.Width), clampScale(s.Height)
	g.SetAlign(s.Align)
	g.SetBold(s.Bold)
	if s.Width != g.style.Width || s.Height != g.style.Height {
		g.buf.Write(SetSize(s.Width, s.Height))
		g.style.Width, g.style.Height = s.Width, s.Height
	}
}

func (g *Generator) SetAlign(a Align) {
	if a != g.style.Align {
		g.buf.Write(SetAlign(a))
		g.style.Align = a
	}
}

func (g *Generator) SetBold(on bool) {
	if on != g.style.Bold {
		g.buf.Write(SetBold(on))
		g.style.Bold = on
	}
}

// Write appends already encoded text without a line feed.
func (g *Generator) Write(p []byte) {
	g.buf.Write(p)
}

// Line writes already encoded text followed by LF.
func (g *Generator) Line(text []byte) {
	g.buf.Write(text)
	g.buf.WriteByte(LF)
}

// Image writes bm as a raster image with the given alignment.
func (g *Generator) Image(bm *raster.Bitmap, a Align) {
	g.SetAlign(a)
	g.buf.Write(RasterImage(bm.WidthBytes(), bm.Height, bm.Bits))
}

// CodeTable selects table n unless it is already active.
func (g *Generator) CodeTable(n byte) {
	if g.codeTable == int(n) {
		return
	}
	g.buf.Write(SelectCodeTable(n))
	g.codeTable = int(n)
}

func (g *Generator) Feed(lines int) {
	g.buf.Write(FeedLines(lines))
}

func (g *Generator) Empty(lines int) {
	g.buf.Write(EmptyLines(lines))
}

func (g *Generator) Cut(partial bool) {
	g.buf.Write(Cut(partial))
}

// Bytes returns a copy of the job assembled so far.
func (g *Generator) Bytes() []byte {
	return append([]byte(nil), g.buf.Bytes()...)
}
