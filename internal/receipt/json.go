package receipt

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/ichi0g0y/thermal-receipt/internal/escpos"
	"github.com/ichi0g0y/thermal-receipt/internal/printerr"
)

// ElementJSON is the wire form of an element used by the HTTP API.
//
//	{"type":"text","content":"Total","align":"right","bold":true}
//	{"type":"row","columns":[{"width":24,"text":"Coffee"},{"width":8,"text":"3.50","align":"right"}]}
//	{"type":"image","data":"<base64>","align":"center"}
type ElementJSON struct {
	Type    string       `json:"type"`
	Content string       `json:"content,omitempty"`
	Align   string       `json:"align,omitempty"`
	Bold    bool         `json:"bold,omitempty"`
	Width   int          `json:"width,omitempty"`
	Height  int          `json:"height,omitempty"`
	Columns []ColumnJSON `json:"columns,omitempty"`
	Data    []byte       `json:"data,omitempty"`
	Size    int          `json:"size,omitempty"`
	Char    string       `json:"char,omitempty"`
	Lines   int          `json:"lines,omitempty"`
	Partial bool         `json:"partial,omitempty"`
	N       int          `json:"n,omitempty"`
	Name    string       `json:"name,omitempty"`
}

type ColumnJSON struct {
	Width int    `json:"width"`
	Text  string `json:"text"`
	Align string `json:"align,omitempty"`
	Bold  bool   `json:"bold,omitempty"`
}

// DecodeJSON parses a JSON array of elements into a Document.
func DecodeJSON(data []byte) (Document, error) {
	var raw []ElementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, printerr.Wrap(printerr.KindLayout, "decode document", err)
	}

	doc := make(Document, 0, len(raw))
	for i, r := range raw {
		el, err := r.element()
		if err != nil {
			return nil, printerr.Wrap(printerr.KindLayout, fmt.Sprintf("decode element %d", i), err)
		}
		doc = append(doc, el)
	}
	return doc, nil
}

func (r ElementJSON) element() (Element, error) {
	align := escpos.ParseAlign(r.Align)
	switch r.Type {
	case "text":
		return Text{Content: r.Content, Align: align, Bold: r.Bold, Width: r.Width, Height: r.Height}, nil
	case "row":
		cols := make([]Column, len(r.Columns))
		for i, c := range r.Columns {
			cols[i] = Column{Width: c.Width, Text: c.Text, Align: escpos.ParseAlign(c.Align), Bold: c.Bold}
		}
		return Row{Columns: cols}, nil
	case "image":
		return Image{Encoded: r.Data, Align: align, Width: r.Width}, nil
	case "qrcode":
		return QRCode{Content: r.Content, Size: r.Size, Align: align}, nil
	case "hr":
		ch, _ := utf8.DecodeRuneInString(r.Char)
		if ch == utf8.RuneError {
			ch = 0
		}
		return HR{Char: ch}, nil
	case "feed":
		return Feed{Lines: r.Lines}, nil
	case "cut":
		return Cut{Partial: r.Partial}, nil
	case "empty_lines":
		return EmptyLines{N: r.N}, nil
	case "code_table":
		return SetCodeTable{Name: r.Name}, nil
	default:
		return nil, fmt.Errorf("unknown element type %q", r.Type)
	}
}
