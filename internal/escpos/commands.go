// Package escpos encodes ESC/POS commands for thermal receipt printers.
package escpos

const (
	ESC = 0x1b
	GS  = 0x1d
	LF  = 0x0a
)

type Align byte

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

func (a Align) String() string {
	switch a {
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	default:
		return "left"
	}
}

// ParseAlign accepts "left", "center" and "right". Anything else is left.
func ParseAlign(s string) Align {
	switch s {
	case "center", "centre":
		return AlignCenter
	case "right":
		return AlignRight
	default:
		return AlignLeft
	}
}

// cutFeedLines is the number of line feeds emitted before a cut so the last
// printed line clears the cutter.
const cutFeedLines = 5

// Initialize resets the printer (ESC @).
func Initialize() []byte { return []byte{ESC, '@'} }

// SetAlign sets justification (ESC a n).
func SetAlign(a Align) []byte { return []byte{ESC, 'a', byte(a)} }

// SetBold turns emphasized mode on or off (ESC E n).
func SetBold(on bool) []byte {
	if on {
		return []byte{ESC, 'E', 1}
	}
	return []byte{ESC, 'E', 0}
}

// SetSize selects the character size (GS ! n). Scales are clamped to 1..8.
func SetSize(width, height int) []byte {
	w, h := clampScale(width), clampScale(height)
	return []byte{GS, '!', byte((w-1)<<4 | (h - 1))}
}

// SelectCodeTable selects a character code table (ESC t n).
func SelectCodeTable(n byte) []byte { return []byte{ESC, 't', n} }

// FeedLines prints the buffer and feeds n lines (ESC d n).
func FeedLines(n int) []byte { return []byte{ESC, 'd', clampByte(n)} }

// EmptyLines emits n bare line feeds.
func EmptyLines(n int) []byte {
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = LF
	}
	return out
}

// Cut feeds past the cutter and cuts the paper (GS V 0 full, GS V 1 partial).
func Cut(partial bool) []byte {
	out := EmptyLines(cutFeedLines)
	if partial {
		return append(out, GS, 'V', 1)
	}
	return append(out, GS, 'V', 0)
}

// MaxRasterRows is the tallest block one GS v 0 header can describe.
const MaxRasterRows = 0xffff

// RasterImage encodes a packed 1-bit image with GS v 0 in normal mode.
// widthBytes is the number of bytes per row. Images taller than MaxRasterRows
// are split into bands, each with its own header.
func RasterImage(widthBytes, height int, bits []byte) []byte {
	out := make([]byte, 0, 8*(height/MaxRasterRows+1)+len(bits))
	for y := 0; y < height; y += MaxRasterRows {
		rows := min(MaxRasterRows, height-y)
		out = append(out, GS, 'v', '0', 0,
			byte(widthBytes&0xff), byte(widthBytes>>8&0xff),
			byte(rows&0xff), byte(rows>>8&0xff))
		out = append(out, bits[y*widthBytes:(y+rows)*widthBytes]...)
	}
	return out
}

func clampScale(n int) int {
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}

func clampByte(n int) byte {
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return byte(n)
}
