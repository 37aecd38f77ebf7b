package render

import (
	_ "embed"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTheme is used when a job names no theme.
const DefaultTheme = "midnight"

//go:embed themes.yaml
var builtinThemes []byte

// Color is an opaque RGB colour written as "#rrggbb" in theme files.
type Color struct {
	R, G, B uint8
}

// ParseColor parses "#rrggbb" or "rrggbb".
func ParseColor(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("invalid colour %q: want #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Color) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// RGBA returns the colour as an opaque color.RGBA.
func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
}

// Theme is the palette and typography of a slide. Geometry is shared by all
// themes and lives in layout.go.
type Theme struct {
	Name            string  `yaml:"name"`
	Background      Color   `yaml:"background"`
	Card            Color   `yaml:"card"`
	Accent          Color   `yaml:"accent"`
	TitleColor      Color   `yaml:"title_color"`
	BodyColor       Color   `yaml:"body_color"`
	CodeBackground  Color   `yaml:"code_background"`
	CardRadius      int     `yaml:"card_radius"`
	OutlineWidth    int     `yaml:"outline_width"`
	TitleSize       float64 `yaml:"title_size"`
	BodySize        float64 `yaml:"body_size"`
	CodeSize        float64 `yaml:"code_size"`
	WrapColumns     int     `yaml:"wrap_columns"`
	LineSpacing     int     `yaml:"line_spacing"`
	BackgroundImage string  `yaml:"background_image,omitempty"`
}

func (t Theme) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("theme without a name")
	}
	if t.TitleSize <= 0 || t.BodySize <= 0 || t.CodeSize <= 0 {
		return fmt.Errorf("theme %s: font sizes must be positive", t.Name)
	}
	if t.WrapColumns <= 0 || t.LineSpacing <= 0 {
		return fmt.Errorf("theme %s: wrap_columns and line_spacing must be positive", t.Name)
	}
	if t.CardRadius < 0 || t.OutlineWidth < 0 {
		return fmt.Errorf("theme %s: negative card geometry", t.Name)
	}
	return nil
}

type themeFile struct {
	Themes []Theme `yaml:"themes"`
}

// Catalogue holds the themes known to the renderer.
type Catalogue struct {
	themes map[string]Theme
}

// LoadCatalogue returns the built-in themes merged with those in path. An
// empty path loads the built-ins only. Relative background images in the
// file are resolved against the file's directory.
func LoadCatalogue(path string) (*Catalogue, error) {
	c := &Catalogue{themes: make(map[string]Theme)}
	if err := c.merge(builtinThemes, ""); err != nil {
		return nil, fmt.Errorf("builtin themes: %w", err)
	}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read themes file: %w", err)
	}
	if err := c.merge(data, filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("themes file %s: %w", filepath.Base(path), err)
	}
	return c, nil
}

func (c *Catalogue) merge(data []byte, baseDir string) error {
	var tf themeFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return err
	}
	for _, t := range tf.Themes {
		if err := t.validate(); err != nil {
			return err
		}
		if t.BackgroundImage != "" && baseDir != "" && !filepath.IsAbs(t.BackgroundImage) {
			t.BackgroundImage = filepath.Join(baseDir, t.BackgroundImage)
		}
		c.themes[t.Name] = t
	}
	return nil
}

// Get returns the named theme; an empty name means DefaultTheme.
func (c *Catalogue) Get(name string) (Theme, error) {
	if name == "" {
		name = DefaultTheme
	}
	t, ok := c.themes[name]
	if !ok {
		return Theme{}, fmt.Errorf("unknown theme %q", name)
	}
	return t, nil
}

// Has reports whether name resolves to a theme.
func (c *Catalogue) Has(name string) bool {
	_, err := c.Get(name)
	return err == nil
}

// Names lists the theme names in sorted order.
func (c *Catalogue) Names() []string {
	names := make([]string, 0, len(c.themes))
	for n := range c.themes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
