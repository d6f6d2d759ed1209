package receipt

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ichi0g0y/thermal-receipt/internal/escpos"
	"github.com/ichi0g0y/thermal-receipt/internal/printerr"
	"golang.org/x/text/encoding/charmap"
)

var ErrRowWidth = errors.New("row column widths do not fill the line")

// LayoutRow lays the columns out on one line of exactly charsPerLine
// characters.
func LayoutRow(cols []Column, charsPerLine int) (string, error) {
	cells, err := layoutCells(cols, charsPerLine)
	if err != nil {
		return "", err
	}
	return strings.Join(cells, ""), nil
}

func layoutCells(cols []Column, charsPerLine int) ([]string, error) {
	if len(cols) == 0 {
		return nil, printerr.Wrap(printerr.KindLayout, "layout row", fmt.Errorf("%w: no columns", ErrRowWidth))
	}
	total := 0
	for i, c := range cols {
		if c.Width <= 0 {
			return nil, printerr.Wrap(printerr.KindLayout, "layout row",
				fmt.Errorf("%w: column %d has width %d", ErrRowWidth, i, c.Width))
		}
		total += c.Width
	}
	if total != charsPerLine {
		return nil, printerr.Wrap(printerr.KindLayout, "layout row",
			fmt.Errorf("%w: widths sum to %d, line is %d", ErrRowWidth, total, charsPerLine))
	}

	cells := make([]string, len(cols))
	for i, c := range cols {
		cells[i] = fit(c.Text, c.Width, c.Align)
	}
	return cells, nil
}

// fit truncates or pads s to exactly width characters.
func fit(s string, width int, align escpos.Align) string {
	r := []rune(s)
	if len(r) >= width {
		return string(r[:width])
	}
	gap := width - len(r)
	switch align {
	case escpos.AlignRight:
		return strings.Repeat(" ", gap) + s
	case escpos.AlignCenter:
		left := gap / 2
		return strings.Repeat(" ", left) + s + strings.Repeat(" ", gap-left)
	default:
		return s + strings.Repeat(" ", gap)
	}
}

func rule(char rune, width int) string {
	if char == 0 {
		char = '-'
	}
	return strings.Repeat(string(char), width)
}

var codePages = map[string]*charmap.Charmap{
	"cp437":        charmap.CodePage437,
	"cp850":        charmap.CodePage850,
	"cp852":        charmap.CodePage852,
	"cp858":        charmap.CodePage858,
	"cp860":        charmap.CodePage860,
	"cp863":        charmap.CodePage863,
	"cp865":        charmap.CodePage865,
	"cp866":        charmap.CodePage866,
	"windows-1252": charmap.Windows1252,
	"iso-8859-15":  charmap.ISO8859_15,
}

// encoder converts text into the active code table. Runes the table cannot
// represent become '?'.
type encoder struct {
	name string
	cm   *charmap.Charmap
}

func newEncoder(name string) (encoder, bool) {
	cm, ok := codePages[name]
	if !ok {
		return encoder{}, false
	}
	return encoder{name: name, cm: cm}, true
}

func (e encoder) encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		if r < utf8.RuneSelf {
			out = append(out, byte(r))
			continue
		}
		if e.cm != nil {
			if b, ok := e.cm.EncodeRune(r); ok {
				out = append(out, b)
				continue
			}
		}
		out = append(out, '?')
	}
	return out
}
