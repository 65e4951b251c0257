package overlay

import (
	"fmt"
	"image/color"

	"firewatch/internal/metrics"
	"firewatch/internal/models"
)

// Viewport reports the on-screen size of the displayed media element.
type Viewport interface {
	DisplaySize() (width, height int)
}

const (
	lineWidth    = 2
	labelPadding = 8
	labelHeight  = 14
	labelRise    = 16 // label background top, above the box top edge
	textInset    = 4
	textRise     = 4 // text baseline, above the box top edge
)

var (
	fireColor       = color.RGBA{R: 0xef, G: 0x44, B: 0x44, A: 0xff}
	smokeColor      = color.RGBA{R: 0xf5, G: 0x9e, B: 0x0b, A: 0xff}
	labelBackground = color.NRGBA{A: 153}
	labelForeground = color.White
)

// ClassColor is the stroke color of a box class.
func ClassColor(cls int) color.Color {
	if cls == 0 {
		return fireColor
	}
	return smokeColor
}

func ClassName(cls int) string {
	if cls == 0 {
		return "Fire"
	}
	return "Smoke"
}

// Label uses the tick's aggregate class score, not a per-box confidence.
func Label(b models.Box, scores models.Scores) string {
	score := scores.Smoke
	if b.Cls == 0 {
		score = scores.Fire
	}
	return fmt.Sprintf("%s %.2f", ClassName(b.Cls), score)
}

// Renderer draws detection boxes of a tick over the displayed video.
type Renderer struct {
	viewport Viewport
	metrics  *metrics.Metrics
}

func NewRenderer(viewport Viewport, m *metrics.Metrics) *Renderer {
	if m == nil {
		m = metrics.New()
	}
	return &Renderer{viewport: viewport, metrics: m}
}

// Render sizes the surface to the viewport and redraws it from tick alone, so the same
// tick always produces the same pixels.
func (r *Renderer) Render(s Surface, tick models.Tick) {
	r.Clear(s)
	r.metrics.Renders.Add(1)
	if len(tick.Boxes) == 0 {
		return
	}

	cw, ch := s.Size()
	fit := Fit(float64(tick.ImgW), float64(tick.ImgH), float64(cw), float64(ch))

	for _, b := range tick.Boxes {
		x1, y1, x2, y2 := fit.MapBox(b)
		s.StrokeRect(x1, y1, x2-x1, y2-y1, ClassColor(b.Cls), lineWidth)

		label := Label(b, tick.Scores)
		tw := s.MeasureText(label) + labelPadding
		s.FillRect(x1, y1-labelRise, tw, labelHeight, labelBackground)
		s.FillText(label, x1+textInset, y1-textRise, labelForeground)
	}
}

// Clear resizes the surface to the viewport and erases it.
func (r *Renderer) Clear(s Surface) {
	w, h := r.viewport.DisplaySize()
	s.Resize(w, h)
	s.Clear()
}
