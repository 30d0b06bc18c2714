package types

// NodeRef identifies a live node in the rendered document.
// The zero value means no node (never retained or already released).
type NodeRef int64

// Rect is a resolved bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the rectangle has no area
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Position is the slide-relative origin of an element
type Position struct {
	Left float64 `json:"left"`
	Top  float64 `json:"top"`
}

// Size is the resolved size of an element
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Font describes the typography of a text-bearing element
type Font struct {
	Name    string   `json:"name,omitempty"`
	Size    float64  `json:"size,omitempty"`
	Weight  int      `json:"weight,omitempty"`
	Color   string   `json:"color,omitempty"`
	Opacity *float64 `json:"opacity,omitempty"`
	Italic  bool     `json:"italic,omitempty"`
}

// Background is a solid fill and/or the first background image url
type Background struct {
	Color    string   `json:"color,omitempty"`
	Opacity  *float64 `json:"opacity,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

// Border is a single uniform border
type Border struct {
	Color   string   `json:"color,omitempty"`
	Opacity *float64 `json:"opacity,omitempty"`
	Width   float64  `json:"width"`
}

// Shadow is the single box-shadow entry selected for export
type Shadow struct {
	Offset  [2]float64 `json:"offset"`
	Color   string     `json:"color,omitempty"`
	Opacity *float64   `json:"opacity,omitempty"`
	Radius  float64    `json:"radius"`
	Spread  float64    `json:"spread"`
	Inset   bool       `json:"inset,omitempty"`
	Angle   float64    `json:"angle"`
}

// Spacing holds four box sides (margin or padding)
type Spacing struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// ListContext describes the list an element belongs to
type ListContext struct {
	IsListItem bool    `json:"is_list_item"`
	ListType   string  `json:"list_type,omitempty"` // "ul" or "ol"
	Level      int     `json:"level"`
	Indent     float64 `json:"indent"`
	Index      int     `json:"index"`
}

// Shape tags for image elements
const (
	ShapeRectangle = "rectangle"
	ShapeCircle    = "circle"
)

// ObjectFitCover is forced onto every rasterized element
const ObjectFitCover = "cover"

// ElementAttributes is the normalized record produced for one visible node
type ElementAttributes struct {
	// Identity
	TagName    string `json:"tag_name"`
	ID         string `json:"id,omitempty"`
	ClassName  string `json:"class_name,omitempty"`
	EditableID string `json:"editable_id,omitempty"`

	// Geometry, relative to the slide root
	Position *Position `json:"position,omitempty"`
	Size     *Size     `json:"size,omitempty"`

	// Style
	Font         *Font              `json:"font,omitempty"`
	LineHeight   *float64           `json:"line_height,omitempty"`
	Background   *Background        `json:"background,omitempty"`
	Border       *Border            `json:"border,omitempty"`
	Shadow       *Shadow            `json:"shadow,omitempty"`
	Filters      map[string]float64 `json:"filters,omitempty"`
	Margin       *Spacing           `json:"margin,omitempty"`
	Padding      *Spacing           `json:"padding,omitempty"`
	BorderRadius []float64          `json:"border_radius,omitempty"` // [TL, TR, BR, BL]
	Shape        string             `json:"shape,omitempty"`
	Opacity      *float64           `json:"opacity,omitempty"`
	ZIndex       int                `json:"z_index"`
	TextAlign    string             `json:"text_align,omitempty"`
	TextWrap     bool               `json:"text_wrap"`

	// Content
	InnerText string `json:"inner_text,omitempty"`
	InnerHTML string `json:"inner_html,omitempty"`
	ImageSrc  string `json:"image_src,omitempty"`
	ObjectFit string `json:"object_fit,omitempty"`

	List *ListContext `json:"list,omitempty"`

	// Structure
	DOMPath string `json:"dom_path"`
	Depth   int    `json:"depth"`

	ShouldScreenshot bool    `json:"should_screenshot,omitempty"`
	Node             NodeRef `json:"-"`
}

// Capture target tags
const (
	TagSVG    = "svg"
	TagCanvas = "canvas"
	TagTable  = "table"
)

// IsCaptureTag reports whether elements with this tag are rasterized instead of described
func IsCaptureTag(tag string) bool {
	return tag == TagSVG || tag == TagCanvas || tag == TagTable
}

// HasSpecialContent reports whether the element carries content that must survive filtering
// even without visible styling: an image source or a capture-target tag.
func (e *ElementAttributes) HasSpecialContent() bool {
	return e.ImageSrc != "" || IsCaptureTag(e.TagName)
}

// HasText reports whether the element carries non-empty text
func (e *ElementAttributes) HasText() bool {
	return e.InnerText != "" || e.InnerHTML != ""
}

// ReleaseNode drops the live node reference
func (e *ElementAttributes) ReleaseNode() {
	e.Node = 0
}

// SlideAttributesResult is the ordered output for one slide
type SlideAttributesResult struct {
	Elements        []*ElementAttributes `json:"elements"`
	BackgroundColor string               `json:"background_color,omitempty"`
	SpeakerNote     string               `json:"speaker_note,omitempty"`
}
