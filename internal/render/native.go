package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // image references may be JPEG
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// NativeRenderer rasterises slides in-process with the Go fonts.
type NativeRenderer struct {
	themes  *Catalogue
	regular *opentype.Font
	bold    *opentype.Font
	mono    *opentype.Font
	logger  *slog.Logger
}

// NewNativeRenderer parses the embedded fonts.
func NewNativeRenderer(themes *Catalogue, logger *slog.Logger) (*NativeRenderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &NativeRenderer{themes: themes, logger: logger}

	var err error
	if r.regular, err = opentype.Parse(goregular.TTF); err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	if r.bold, err = opentype.Parse(gobold.TTF); err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	if r.mono, err = opentype.Parse(gomono.TTF); err != nil {
		return nil, fmt.Errorf("parse mono font: %w", err)
	}
	return r, nil
}

// RenderSlide draws spec and writes it as PNG to outputPath.
func (r *NativeRenderer) RenderSlide(ctx context.Context, spec Spec, outputPath string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	theme, err := r.themes.Get(spec.Theme)
	if err != nil {
		return nil, err
	}

	c, err := newCanvas(r, theme)
	if err != nil {
		return nil, err
	}
	defer c.close()

	art := &Artifact{Path: outputPath}
	if theme.BackgroundImage != "" {
		if err := c.drawBackground(theme.BackgroundImage); err != nil {
			r.logger.Warn("theme background not drawn", "theme", theme.Name, "error", err)
		} else {
			art.Background = theme.BackgroundImage
		}
	}

	c.drawCard()
	y := c.drawTitle(spec.Title)
	if spec.Subtitle != "" {
		y = c.drawSubtitle(spec.Subtitle, y)
	}

	columns := theme.WrapColumns
	right := bodyRight
	if spec.ImagePath != "" {
		if err := c.drawImage(spec.ImagePath); err != nil {
			r.logger.Warn("slide image not drawn", "image", filepath.Base(spec.ImagePath), "error", err)
		} else {
			columns = columns / 2
			right = imageRect.Min.X - 20
		}
	}

	y = max(y, bodyTop)
	y = c.drawBody(wrapBody(spec.Body, columns), y, right)
	if len(spec.Math) > 0 {
		y = c.drawMath(spec.Math, y, right)
	}
	if spec.Code != "" {
		c.drawCode(spec.Code, y, right)
	}

	if err := writePNG(outputPath, c.img); err != nil {
		return nil, err
	}
	return art, nil
}

func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

type canvas struct {
	img   *image.RGBA
	theme Theme

	title    font.Face
	subtitle font.Face
	body     font.Face
	code     font.Face
	faces    []font.Face
	r        *NativeRenderer
}

func newCanvas(r *NativeRenderer, theme Theme) (*canvas, error) {
	c := &canvas{
		img:   image.NewRGBA(image.Rect(0, 0, Width, Height)),
		theme: theme,
		r:     r,
	}
	var err error
	if c.title, err = c.face(r.bold, theme.TitleSize); err != nil {
		return nil, err
	}
	if c.subtitle, err = c.face(r.regular, theme.BodySize*0.75); err != nil {
		return nil, err
	}
	if c.body, err = c.face(r.regular, theme.BodySize); err != nil {
		return nil, err
	}
	if c.code, err = c.face(r.mono, theme.CodeSize); err != nil {
		return nil, err
	}

	xdraw.Draw(c.img, c.img.Bounds(), image.NewUniform(theme.Background.RGBA()), image.Point{}, xdraw.Src)
	return c, nil
}

func (c *canvas) face(f *opentype.Font, size float64) (font.Face, error) {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("font face %.0fpt: %w", size, err)
	}
	c.faces = append(c.faces, face)
	return face, nil
}

func (c *canvas) close() {
	for _, f := range c.faces {
		f.Close()
	}
}

func (c *canvas) drawBackground(path string) error {
	src, err := decodeImage(path)
	if err != nil {
		return err
	}
	xdraw.CatmullRom.Scale(c.img, c.img.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return nil
}

// drawCard paints the rounded panel with its accent outline.
func (c *canvas) drawCard() {
	radius := float32(c.theme.CardRadius)
	if w := c.theme.OutlineWidth; w > 0 {
		fillRoundedRect(c.img, cardRect, radius, c.theme.Accent.RGBA())
		inner := cardRect.Inset(w)
		fillRoundedRect(c.img, inner, max(radius-float32(w), 0), c.theme.Card.RGBA())
		return
	}
	fillRoundedRect(c.img, cardRect, radius, c.theme.Card.RGBA())
}

// drawTitle writes the upper-cased title, shrinking the face until it fits
// the card. It returns the y just below the title.
func (c *canvas) drawTitle(title string) int {
	title = strings.ToUpper(strings.TrimSpace(title))
	face := c.title
	width := bodyRight - titleAt.X
	for size := c.theme.TitleSize; font.MeasureString(face, title).Ceil() > width && size > 20; {
		size -= 4
		smaller, err := c.face(c.r.bold, size)
		if err != nil {
			break
		}
		face = smaller
	}
	return c.text(face, title, titleAt.X, titleAt.Y, c.theme.TitleColor.RGBA())
}

func (c *canvas) drawSubtitle(subtitle string, y int) int {
	return c.text(c.subtitle, subtitle, titleAt.X, y+subtitleGap, c.theme.Accent.RGBA())
}

// drawBody writes wrapped body lines from y, stopping at the bottom of the
// card. The last visible line is ellipsised if lines were cut.
func (c *canvas) drawBody(lines []string, y, right int) int {
	col := c.theme.BodyColor.RGBA()
	for i, line := range lines {
		if y+c.theme.LineSpacing > bodyFloor {
			c.r.logger.Debug("slide body truncated", "hidden_lines", len(lines)-i)
			break
		}
		if i < len(lines)-1 && y+2*c.theme.LineSpacing > bodyFloor {
			line += " …"
		}
		c.text(c.body, fitWidth(c.body, line, right-bodyLeft), bodyLeft, y, col)
		y += c.theme.LineSpacing
	}
	return y
}

func (c *canvas) drawMath(exprs []string, y, right int) int {
	step := int(c.theme.CodeSize * 1.6)
	for _, m := range exprs {
		if y+step > bodyFloor {
			break
		}
		c.text(c.code, fitWidth(c.code, strings.TrimSpace(m), right-bodyLeft), bodyLeft, y, c.theme.TitleColor.RGBA())
		y += step
	}
	return y
}

// drawCode fills an inset panel with monospace code lines.
func (c *canvas) drawCode(code string, y, right int) {
	step := int(c.theme.CodeSize * 1.35)
	lines := strings.Split(code, "\n")
	avail := (bodyFloor - y - 16) / step
	if avail <= 0 {
		return
	}
	if len(lines) > avail {
		lines = append(lines[:avail-1], "…")
	}

	panel := image.Rect(bodyLeft-10, y, right, y+len(lines)*step+16)
	fillRoundedRect(c.img, panel, 8, c.theme.CodeBackground.RGBA())

	ty := y + 8
	for _, line := range lines {
		line = strings.ReplaceAll(line, "\t", "    ")
		c.text(c.code, fitWidth(c.code, line, right-bodyLeft-10), bodyLeft, ty, c.theme.BodyColor.RGBA())
		ty += step
	}
}

func (c *canvas) drawImage(path string) error {
	src, err := decodeImage(path)
	if err != nil {
		return err
	}
	dst := fitRect(src.Bounds(), imageRect)
	xdraw.CatmullRom.Scale(c.img, dst, src, src.Bounds(), xdraw.Over, nil)
	return nil
}

// text draws s with its top edge at y and returns the y below its line.
func (c *canvas) text(face font.Face, s string, x, y int, col color.Color) int {
	m := face.Metrics()
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y+m.Ascent.Ceil()),
	}
	d.DrawString(s)
	return y + m.Height.Ceil()
}

// fitWidth trims s until it fits in width pixels.
func fitWidth(face font.Face, s string, width int) string {
	if font.MeasureString(face, s).Ceil() <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 1 && font.MeasureString(face, string(r)+"…").Ceil() > width {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}

// fitRect scales src into box keeping its aspect ratio, centred.
func fitRect(src, box image.Rectangle) image.Rectangle {
	sw, sh := float64(src.Dx()), float64(src.Dy())
	if sw <= 0 || sh <= 0 {
		return image.Rectangle{}
	}
	ratio := min(float64(box.Dx())/sw, float64(box.Dy())/sh)
	w, h := int(sw*ratio), int(sh*ratio)
	x := box.Min.X + (box.Dx()-w)/2
	y := box.Min.Y + (box.Dy()-h)/2
	return image.Rect(x, y, x+w, y+h)
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522848

// fillRoundedRect fills r with corner radius using an anti-aliased path.
func fillRoundedRect(dst *image.RGBA, r image.Rectangle, radius float32, col color.Color) {
	if r.Empty() {
		return
	}
	x0, y0 := float32(r.Min.X), float32(r.Min.Y)
	x1, y1 := float32(r.Max.X), float32(r.Max.Y)
	radius = min(radius, float32(r.Dx())/2, float32(r.Dy())/2)
	k := radius * kappa

	z := vector.NewRasterizer(dst.Bounds().Dx(), dst.Bounds().Dy())
	z.MoveTo(x0+radius, y0)
	z.LineTo(x1-radius, y0)
	z.CubeTo(x1-radius+k, y0, x1, y0+radius-k, x1, y0+radius)
	z.LineTo(x1, y1-radius)
	z.CubeTo(x1, y1-radius+k, x1-radius+k, y1, x1-radius, y1)
	z.LineTo(x0+radius, y1)
	z.CubeTo(x0+radius-k, y1, x0, y1-radius+k, x0, y1-radius)
	z.LineTo(x0, y0+radius)
	z.CubeTo(x0, y0+radius-k, x0+radius-k, y0, x0+radius, y0)
	z.ClosePath()
	z.Draw(dst, dst.Bounds(), image.NewUniform(col), image.Point{})
}
