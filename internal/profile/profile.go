// Package profile describes paper geometry and printer capabilities.
package profile

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/ichi0g0y/thermal-receipt/internal/printerr"
	"github.com/ichi0g0y/thermal-receipt/internal/shared/logger"
	"github.com/ichi0g0y/thermal-receipt/internal/status"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	DefaultName  = "default"
	DefaultPaper = "58mm"
)

var (
	ErrUnknownProfile = errors.New("unknown printer profile")
	ErrUnknownPaper   = errors.New("unknown paper size")
)

//go:embed profiles/builtin.yaml
var builtinYAML []byte

// Profile は印刷レイアウトで使う用紙とプリンターの情報
type Profile struct {
	Name            string
	PaperSize       string
	LineWidthDots   int
	CharsPerLine    int
	CodePages       map[string]byte
	DefaultCodePage string
}

// CodePage returns the ESC t number for the named code page.
func (p Profile) CodePage(name string) (byte, bool) {
	n, ok := p.CodePages[name]
	return n, ok
}

// Paper is the geometry of one paper width.
type Paper struct {
	Dots  int `yaml:"dots"`
	Chars int `yaml:"chars"`
}

// Definition is a capability profile as written in YAML.
type Definition struct {
	Description     string          `yaml:"description,omitempty"`
	DefaultCodePage string          `yaml:"defaultCodePage,omitempty"`
	PaperSizes      []string        `yaml:"paperSizes,omitempty"`
	CodePages       map[string]byte `yaml:"codePages"`
}

// Catalog holds every known paper size and profile.
type Catalog struct {
	PaperSizes map[string]Paper      `yaml:"paperSizes"`
	Profiles   map[string]Definition `yaml:"profiles"`
}

// Parse decodes a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, printerr.Wrap(printerr.KindProfile, "parse profiles", err)
	}
	for name, p := range c.PaperSizes {
		if p.Dots <= 0 || p.Chars <= 0 {
			return nil, printerr.Wrap(printerr.KindProfile, "parse profiles",
				fmt.Errorf("paper size %q: dots and chars must be positive", name))
		}
	}
	return &c, nil
}

// Builtin returns the catalog compiled into the binary.
func Builtin() *Catalog {
	c, err := Parse(builtinYAML)
	if err != nil {
		logger.Error("Builtin printer profiles are invalid", zap.Error(err))
		return &Catalog{
			PaperSizes: map[string]Paper{DefaultPaper: {Dots: 384, Chars: 32}},
			Profiles:   map[string]Definition{DefaultName: {DefaultCodePage: "cp437", CodePages: map[string]byte{"cp437": 0}}},
		}
	}
	return c
}

// LoadFile reads a YAML catalog from path and merges it over the builtin one.
// Entries in the file replace builtin entries with the same name.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, printerr.Wrap(printerr.KindProfile, "read profile file", err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, err
	}

	c := Builtin()
	for name, p := range extra.PaperSizes {
		c.PaperSizes[name] = p
	}
	for name, d := range extra.Profiles {
		c.Profiles[name] = d
	}
	logger.Info("Loaded printer profile file",
		zap.String("path", path),
		zap.Int("profiles", len(extra.Profiles)),
		zap.Int("paper_sizes", len(extra.PaperSizes)))
	return c, nil
}

// Lookup builds the profile for name on the given paper size.
func (c *Catalog) Lookup(name, paper string) (Profile, error) {
	def, ok := c.Profiles[name]
	if !ok {
		return Profile{}, printerr.Wrap(printerr.KindProfile, "lookup "+name, ErrUnknownProfile)
	}
	geom, ok := c.PaperSizes[paper]
	if !ok {
		return Profile{}, printerr.Wrap(printerr.KindProfile, "lookup "+name, fmt.Errorf("%w: %s", ErrUnknownPaper, paper))
	}
	if len(def.PaperSizes) > 0 && !contains(def.PaperSizes, paper) {
		return Profile{}, printerr.Wrap(printerr.KindProfile, "lookup "+name,
			fmt.Errorf("%w: %s is not supported by %s", ErrUnknownPaper, paper, name))
	}

	pages := make(map[string]byte, len(def.CodePages))
	for k, v := range def.CodePages {
		pages[k] = v
	}
	return Profile{
		Name:            name,
		PaperSize:       paper,
		LineWidthDots:   geom.Dots,
		CharsPerLine:    geom.Chars,
		CodePages:       pages,
		DefaultCodePage: def.DefaultCodePage,
	}, nil
}

// Names returns the profile names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load looks a profile up in the builtin catalog.
func Load(name, paper string) (Profile, error) {
	return Builtin().Lookup(name, paper)
}

// Resolve looks up name and paper in c and falls back to the default profile
// when that fails. The failure is logged and reported, never returned.
func Resolve(c *Catalog, name, paper string, reporter status.Reporter) Profile {
	if c == nil {
		c = Builtin()
	}
	p, err := c.Lookup(name, paper)
	if err == nil {
		return p
	}

	logger.Warn("Printer profile unavailable, falling back to default",
		zap.String("profile", name),
		zap.String("paper", paper),
		zap.Error(err))
	if reporter != nil {
		reporter.Report(status.Failure("Printer profile unavailable, using default", err))
	}

	if p, err := c.Lookup(DefaultName, paper); err == nil {
		return p
	}
	if p, err := c.Lookup(DefaultName, DefaultPaper); err == nil {
		return p
	}
	p, _ = Builtin().Lookup(DefaultName, DefaultPaper)
	return p
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
