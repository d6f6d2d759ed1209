package escpos

import (
	"testing"

	"github.com/ichi0g0y/thermal-receipt/internal/raster"
	"github.com/stretchr/testify/assert"
)

func TestCommandBytes(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"init", Initialize(), []byte{0x1b, 0x40}},
		{"align center", SetAlign(AlignCenter), []byte{0x1b, 0x61, 1}},
		{"bold on", SetBold(true), []byte{0x1b, 0x45, 1}},
		{"bold off", SetBold(false), []byte{0x1b, 0x45, 0}},
		{"size 2x3", SetSize(2, 3), []byte{0x1d, 0x21, 0x12}},
		{"size clamps", SetSize(0, 12), []byte{0x1d, 0x21, 0x07}},
		{"code table", SelectCodeTable(16), []byte{0x1b, 0x74, 16}},
		{"feed", FeedLines(3), []byte{0x1b, 0x64, 3}},
		{"empty lines", EmptyLines(2), []byte{LF, LF}},
		{"full cut", Cut(false), []byte{LF, LF, LF, LF, LF, 0x1d, 0x56, 0}},
		{"partial cut", Cut(true), []byte{LF, LF, LF, LF, LF, 0x1d, 0x56, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
	assert.Empty(t, EmptyLines(0))
}

func TestRasterImageHeader(t *testing.T) {
	bits := make([]byte, 48*300)
	got := RasterImage(48, 300, bits)

	assert.Equal(t, []byte{0x1d, 0x76, 0x30, 0, 48, 0, 0x2c, 0x01}, got[:8])
	assert.Len(t, got, 8+len(bits))
}

func TestRasterImageSplitsTallImages(t *testing.T) {
	height := MaxRasterRows + 4465
	bits := make([]byte, height)
	for i := range bits {
		bits[i] = byte(i)
	}

	got := RasterImage(1, height, bits)

	assert.Len(t, got, 16+height)
	assert.Equal(t, []byte{0x1d, 0x76, 0x30, 0, 1, 0, 0xff, 0xff}, got[:8])
	assert.Equal(t, bits[:MaxRasterRows], got[8:8+MaxRasterRows])

	second := got[8+MaxRasterRows:]
	assert.Equal(t, []byte{0x1d, 0x76, 0x30, 0, 1, 0, 0x71, 0x11}, second[:8])
	assert.Equal(t, bits[MaxRasterRows:], second[8:])
}

func TestGeneratorEmitsOnlyStyleChanges(t *testing.T) {
	g := NewGenerator()

	g.SetStyle(Style{Align: AlignCenter, Bold: true, Width: 2, Height: 2})
	g.Line([]byte("A"))
	g.SetStyle(Style{Align: AlignCenter, Bold: true, Width: 2, Height: 2})
	g.Line([]byte("B"))
	g.SetStyle(DefaultStyle())

	want := []byte{
		0x1b, 0x40,
		0x1b, 0x61, 1,
		0x1b, 0x45, 1,
		0x1d, 0x21, 0x11,
		'A', LF,
		'B', LF,
		0x1b, 0x61, 0,
		0x1b, 0x45, 0,
		0x1d, 0x21, 0x00,
	}
	assert.Equal(t, want, g.Bytes())
}

func TestGeneratorImage(t *testing.T) {
	g := NewGenerator()
	bm := &raster.Bitmap{Width: 10, Height: 1, Bits: []byte{0xff, 0xc0}}

	g.Image(bm, AlignRight)

	want := []byte{
		0x1b, 0x40,
		0x1b, 0x61, 2,
		0x1d, 0x76, 0x30, 0, 2, 0, 1, 0,
		0xff, 0xc0,
	}
	assert.Equal(t, want, g.Bytes())
	assert.Equal(t, AlignRight, g.Style().Align)
}

func TestGeneratorCodeTableOnlyOnChange(t *testing.T) {
	g := NewGenerator()
	g.CodeTable(0)
	g.CodeTable(0)
	g.CodeTable(16)

	assert.Equal(t, []byte{0x1b, 0x40, 0x1b, 0x74, 0, 0x1b, 0x74, 16}, g.Bytes())
}

func TestParseAlign(t *testing.T) {
	assert.Equal(t, AlignCenter, ParseAlign("center"))
	assert.Equal(t, AlignRight, ParseAlign("right"))
	assert.Equal(t, AlignLeft, ParseAlign(""))
	assert.Equal(t, "right", AlignRight.String())
}
