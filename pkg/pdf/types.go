package pdf

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FontWeight is the recovered weight of a run's source font.
type FontWeight string

const (
	FontWeightNormal FontWeight = "normal"
	FontWeightBold   FontWeight = "bold"
)

// FontStyle is the recovered slant of a run's source font.
type FontStyle string

const (
	FontStyleNormal FontStyle = "normal"
	FontStyleItalic FontStyle = "italic"
)

// TextAlign positions text inside its box on export.
type TextAlign string

const (
	AlignLeft   TextAlign = "left"
	AlignCenter TextAlign = "center"
	AlignRight  TextAlign = "right"
)

// Color is an opaque RGB color.
type Color struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
}

var (
	Black = Color{}
	White = Color{R: 255, G: 255, B: 255}
)

// ColorFromComponents converts gray, RGB or CMYK components in [0,1] to a Color.
func ColorFromComponents(values []float64) Color {
	clamp := func(v float64) uint8 {
		if v <= 0 {
			return 0
		}
		if v >= 1 {
			return 255
		}
		return uint8(math.Round(v * 255))
	}
	switch len(values) {
	case 1:
		g := clamp(values[0])
		return Color{R: g, G: g, B: g}
	case 3:
		return Color{R: clamp(values[0]), G: clamp(values[1]), B: clamp(values[2])}
	case 4:
		k := values[3]
		return Color{
			R: clamp((1 - values[0]) * (1 - k)),
			G: clamp((1 - values[1]) * (1 - k)),
			B: clamp((1 - values[2]) * (1 - k)),
		}
	}
	return Black
}

// Components returns the color as RGB components in [0,1].
func (c Color) Components() (r, g, b float64) {
	return float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255
}

// Hex returns the color as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseHexColor parses #rgb or #rrggbb.
func ParseHexColor(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return Color{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// UnmarshalYAML accepts either a hex string or an r/g/b mapping.
func (c *Color) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var hex string
	if err := unmarshal(&hex); err == nil {
		parsed, err := ParseHexColor(hex)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	var rgb struct {
		R uint8 `yaml:"r"`
		G uint8 `yaml:"g"`
		B uint8 `yaml:"b"`
	}
	if err := unmarshal(&rgb); err != nil {
		return err
	}
	*c = Color{R: rgb.R, G: rgb.G, B: rgb.B}
	return nil
}

// PageGeometry describes one rasterized page. Width and Height are in editor
// space (already multiplied by Scale); PDFWidth and PDFHeight are the page box
// in PDF units.
type PageGeometry struct {
	PageNumber      int     `json:"pageNumber"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	PDFWidth        float64 `json:"pdfWidth"`
	PDFHeight       float64 `json:"pdfHeight"`
	Scale           float64 `json:"scale"`
	Rotation        int     `json:"rotation,omitempty"`
	BackgroundImage string  `json:"backgroundImage"`
}

// CustomIDPrefix marks ids of user-created elements.
const CustomIDPrefix = "custom-"

// IsCustomID reports whether id belongs to a user-created element.
func IsCustomID(id string) bool {
	return strings.HasPrefix(id, CustomIDPrefix)
}

// TextRunID returns the deterministic id of an extracted run.
func TextRunID(page, item int) string {
	return fmt.Sprintf("p%d-i%d", page, item)
}

// WordRunID returns the deterministic id of a word split from an extracted run.
func WordRunID(page, item, word int) string {
	return fmt.Sprintf("p%d-i%d-w%d", page, item, word)
}

// TextRun is a contiguous span of text with one position and style. All
// geometry is in editor space.
type TextRun struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	OriginalText *string    `json:"originalText,omitempty"`
	X            float64    `json:"x"`
	Y            float64    `json:"y"`
	Width        float64    `json:"width"`
	Height       float64    `json:"height"`
	FontSize     float64    `json:"fontSize"`
	FontName     string     `json:"fontName"`
	FontWeight   FontWeight `json:"fontWeight"`
	FontStyle    FontStyle  `json:"fontStyle"`
	Color        Color      `json:"color"`
	PageNumber   int        `json:"pageNumber"`
	IsEdited     bool       `json:"isEdited"`

	TextAlign TextAlign `json:"textAlign,omitempty"`
	// Rotation is clockwise, in degrees.
	Rotation float64 `json:"rotation,omitempty"`
	// Opacity in (0,1]; zero means fully opaque.
	Opacity   float64 `json:"opacity,omitempty"`
	Underline bool    `json:"underline,omitempty"`
	// SpaceAfter is the gap to the next word of the same line, in editor units.
	SpaceAfter float64 `json:"spaceAfter,omitempty"`
	ZIndex     int     `json:"zIndex,omitempty"`
}

// Clone returns a deep copy of r.
func (r TextRun) Clone() TextRun {
	if r.OriginalText != nil {
		s := *r.OriginalText
		r.OriginalText = &s
	}
	return r
}

// IsDeleted reports whether r is a soft-deleted run.
func (r TextRun) IsDeleted() bool {
	return r.IsEdited && r.Text == ""
}

// Bounds returns the run's box.
func (r TextRun) Bounds() (x, y, w, h float64) {
	return r.X, r.Y, r.Width, r.Height
}

// SameAppearance reports whether r would draw identically to o.
func (r TextRun) SameAppearance(o TextRun) bool {
	const eps = 1e-6
	near := func(a, b float64) bool { return math.Abs(a-b) < eps }
	return r.Text == o.Text &&
		near(r.X, o.X) && near(r.Y, o.Y) &&
		near(r.Width, o.Width) && near(r.Height, o.Height) &&
		near(r.FontSize, o.FontSize) &&
		r.FontWeight == o.FontWeight && r.FontStyle == o.FontStyle &&
		r.Color == o.Color &&
		r.TextAlign == o.TextAlign && near(r.Rotation, o.Rotation) &&
		near(r.Opacity, o.Opacity) && r.Underline == o.Underline
}

// TextRunPatch is a partial update of a TextRun. Nil fields are left unchanged.
type TextRunPatch struct {
	Text       *string     `yaml:"text"`
	X          *float64    `yaml:"x"`
	Y          *float64    `yaml:"y"`
	Width      *float64    `yaml:"width"`
	Height     *float64    `yaml:"height"`
	FontSize   *float64    `yaml:"fontSize"`
	FontName   *string     `yaml:"fontName"`
	FontWeight *FontWeight `yaml:"fontWeight"`
	FontStyle  *FontStyle  `yaml:"fontStyle"`
	Color      *Color      `yaml:"color"`
	TextAlign  *TextAlign  `yaml:"textAlign"`
	Rotation   *float64    `yaml:"rotation"`
	Opacity    *float64    `yaml:"opacity"`
	Underline  *bool       `yaml:"underline"`
	ZIndex     *int        `yaml:"zIndex"`
}

// Apply merges p into r.
func (p TextRunPatch) Apply(r *TextRun) {
	if p.Text != nil {
		r.Text = *p.Text
	}
	if p.X != nil {
		r.X = *p.X
	}
	if p.Y != nil {
		r.Y = *p.Y
	}
	if p.Width != nil {
		r.Width = *p.Width
	}
	if p.Height != nil {
		r.Height = *p.Height
	}
	if p.FontSize != nil {
		r.FontSize = *p.FontSize
	}
	if p.FontName != nil {
		r.FontName = *p.FontName
	}
	if p.FontWeight != nil {
		r.FontWeight = *p.FontWeight
	}
	if p.FontStyle != nil {
		r.FontStyle = *p.FontStyle
	}
	if p.Color != nil {
		r.Color = *p.Color
	}
	if p.TextAlign != nil {
		r.TextAlign = *p.TextAlign
	}
	if p.Rotation != nil {
		r.Rotation = *p.Rotation
	}
	if p.Opacity != nil {
		r.Opacity = *p.Opacity
	}
	if p.Underline != nil {
		r.Underline = *p.Underline
	}
	if p.ZIndex != nil {
		r.ZIndex = *p.ZIndex
	}
}

// ShapeKind enumerates the supported shapes.
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeEllipse   ShapeKind = "ellipse"
	ShapeLine      ShapeKind = "line"
)

// ShapeElement is a geometry-only overlay element. A line runs from (X,Y) to
// (X+Width, Y+Height).
type ShapeElement struct {
	ID          string    `json:"id"`
	PageNumber  int       `json:"pageNumber"`
	Kind        ShapeKind `json:"kind"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Width       float64   `json:"width"`
	Height      float64   `json:"height"`
	Fill        *Color    `json:"fill,omitempty"`
	Stroke      *Color    `json:"stroke,omitempty"`
	StrokeWidth float64   `json:"strokeWidth,omitempty"`
	Opacity     float64   `json:"opacity,omitempty"`
	Rotation    float64   `json:"rotation,omitempty"`
	ZIndex      int       `json:"zIndex,omitempty"`
}

// Clone returns a deep copy of s.
func (s ShapeElement) Clone() ShapeElement {
	if s.Fill != nil {
		c := *s.Fill
		s.Fill = &c
	}
	if s.Stroke != nil {
		c := *s.Stroke
		s.Stroke = &c
	}
	return s
}

// ImageElement places a raster image. Src is a data URL or bare base64 of a
// PNG, JPEG or WebP image.
type ImageElement struct {
	ID         string  `json:"id"`
	PageNumber int     `json:"pageNumber"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Src        string  `json:"src"`
	Opacity    float64 `json:"opacity,omitempty"`
	ZIndex     int     `json:"zIndex,omitempty"`
}

// QRPlaceholder is a square QR code whose symbol is generated from Content on
// export.
type QRPlaceholder struct {
	ID         string  `json:"id"`
	PageNumber int     `json:"pageNumber"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Size       float64 `json:"size"`
	Content    string  `json:"content"`
	Foreground Color   `json:"foreground"`
	Background *Color  `json:"background,omitempty"`
	ZIndex     int     `json:"zIndex,omitempty"`
}

// Clone returns a deep copy of q.
func (q QRPlaceholder) Clone() QRPlaceholder {
	if q.Background != nil {
		c := *q.Background
		q.Background = &c
	}
	return q
}

// TextItem is one positioned show-text entry of a page, in PDF user space
// relative to the page box origin.
type TextItem struct {
	Str string
	// Transform is the text rendering matrix [a b c d e f].
	Transform [6]float64
	// Width is the advance in user space; zero when the font metrics are unknown.
	Width    float64
	FontName string
	Color    Color
	// Invisible is set for text render mode 3.
	Invisible bool
	// Seq orders items and fills in paint order.
	Seq int
}

// FontSize returns |d|, or the length of the (c,d) column for rotated text.
func (t TextItem) FontSize() float64 {
	d := math.Abs(t.Transform[3])
	if d > 1e-6 {
		return d
	}
	return math.Hypot(t.Transform[2], t.Transform[3])
}

// Rotation returns the counter-clockwise angle of the baseline in degrees.
func (t TextItem) Rotation() float64 {
	return math.Atan2(t.Transform[1], t.Transform[0]) * 180 / math.Pi
}

// FillRect is an axis-aligned filled rectangle painted on a page, in PDF user
// space.
type FillRect struct {
	X0, Y0, X1, Y1 float64
	Color          Color
	Seq            int
}

// TextContent is the positioned content of one page.
type TextContent struct {
	PageNumber int
	Width      float64
	Height     float64
	Rotation   int
	Items      []TextItem
	Fills      []FillRect
}
