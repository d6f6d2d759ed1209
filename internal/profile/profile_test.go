package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ichi0g0y/thermal-receipt/internal/printerr"
	"github.com/ichi0g0y/thermal-receipt/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperGeometry(t *testing.T) {
	tests := []struct {
		paper string
		dots  int
		chars int
	}{
		{"58mm", 384, 32},
		{"72mm", 512, 42},
		{"80mm", 576, 48},
	}
	for _, tt := range tests {
		t.Run(tt.paper, func(t *testing.T) {
			p, err := Load(DefaultName, tt.paper)
			require.NoError(t, err)
			assert.Equal(t, tt.dots, p.LineWidthDots)
			assert.Equal(t, tt.chars, p.CharsPerLine)
		})
	}
}

func TestCodePages(t *testing.T) {
	p, err := Load("epson-tm-t20", "80mm")
	require.NoError(t, err)

	n, ok := p.CodePage("cp858")
	assert.True(t, ok)
	assert.Equal(t, byte(19), n)

	_, ok = p.CodePage("cp999")
	assert.False(t, ok)
	assert.Equal(t, "cp437", p.DefaultCodePage)
}

func TestLookupErrors(t *testing.T) {
	_, err := Load("no-such-printer", "58mm")
	assert.ErrorIs(t, err, ErrUnknownProfile)
	assert.True(t, printerr.IsKind(err, printerr.KindProfile))

	_, err = Load(DefaultName, "110mm")
	assert.ErrorIs(t, err, ErrUnknownPaper)

	// pos-5890 は 58mm 専用
	_, err = Load("pos-5890", "80mm")
	assert.ErrorIs(t, err, ErrUnknownPaper)
}

func TestResolveFallsBackAndReports(t *testing.T) {
	var events []status.Event
	rep := status.ReporterFunc(func(e status.Event) { events = append(events, e) })

	p := Resolve(nil, "no-such-printer", "80mm", rep)

	assert.Equal(t, DefaultName, p.Name)
	assert.Equal(t, 48, p.CharsPerLine)
	require.Len(t, events, 1)
	assert.Equal(t, printerr.KindProfile, events[0].Kind)
}

func TestResolveUnknownPaperUsesDefaultPaper(t *testing.T) {
	p := Resolve(Builtin(), "default", "110mm", nil)

	assert.Equal(t, DefaultPaper, p.PaperSize)
	assert.Equal(t, 384, p.LineWidthDots)
}

func TestResolveKnownProfileDoesNotReport(t *testing.T) {
	called := false
	p := Resolve(nil, "pos-5890", "58mm", status.ReporterFunc(func(status.Event) { called = true }))

	assert.Equal(t, "pos-5890", p.Name)
	assert.False(t, called)
}

func TestLoadFileMergesOverBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	data := []byte(`
paperSizes:
  112mm:
    dots: 832
    chars: 69
profiles:
  kiosk:
    defaultCodePage: cp437
    codePages:
      cp437: 0
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)

	p, err := c.Lookup("kiosk", "112mm")
	require.NoError(t, err)
	assert.Equal(t, 832, p.LineWidthDots)
	assert.Equal(t, 69, p.CharsPerLine)
	assert.Contains(t, c.Names(), "default")
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, printerr.IsKind(err, printerr.KindProfile))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("paperSizes:\n  tiny:\n    dots: 0\n    chars: 1\n"), 0o644))
	_, err = LoadFile(path)
	assert.True(t, printerr.IsKind(err, printerr.KindProfile))
}
