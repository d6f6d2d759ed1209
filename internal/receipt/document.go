// Package receipt compiles declarative receipt documents into ESC/POS bytes.
package receipt

import (
	"image"

	"github.com/ichi0g0y/thermal-receipt/internal/escpos"
)

// Element is one print directive. The set of element types is closed.
type Element interface {
	element()
}

// Document is an ordered list of elements. Order is print order.
type Document []Element

// Text prints one line. Width and Height are character scales from 1 to 8;
// zero means 1.
type Text struct {
	Content string
	Align   escpos.Align
	Bold    bool
	Width   int
	Height  int
}

// Column is one cell of a Row. Width is in characters.
type Column struct {
	Width int
	Text  string
	Align escpos.Align
	Bold  bool
}

// Row prints columns side by side on one line. Column widths must add up to
// the profile's characters per line.
type Row struct {
	Columns []Column
}

// Image prints a bitmap. Either Source or Encoded must be set. Width is the
// target width in dots; zero keeps the source width. The result never exceeds
// the paper width.
type Image struct {
	Source  image.Image
	Encoded []byte
	Align   escpos.Align
	Width   int
}

// QRCode prints content as a QR code image Size dots wide.
type QRCode struct {
	Content string
	Size    int
	Align   escpos.Align
}

// HR prints a full-width rule of Char (default '-').
type HR struct {
	Char rune
}

// Feed feeds Lines lines (ESC d).
type Feed struct {
	Lines int
}

// Cut feeds past the cutter and cuts.
type Cut struct {
	Partial bool
}

// EmptyLines emits N bare line feeds.
type EmptyLines struct {
	N int
}

// SetCodeTable switches the character code table by name, e.g. "cp858".
type SetCodeTable struct {
	Name string
}

func (Text) element()         {}
func (Row) element()          {}
func (Image) element()        {}
func (QRCode) element()       {}
func (HR) element()           {}
func (Feed) element()         {}
func (Cut) element()          {}
func (EmptyLines) element()   {}
func (SetCodeTable) element() {}
