package overlay

import "firewatch/internal/models"

// Letterbox is a uniform scale-and-center placement of a native frame inside a canvas.
type Letterbox struct {
	Scale   float64
	Width   float64 // displayed content width
	Height  float64 // displayed content height
	OffsetX float64
	OffsetY float64
}

// Fit computes the letterbox of an imgW x imgH frame inside a cw x ch canvas.
// A non-positive dimension on either side yields scale 0, so every point collapses
// onto the offset.
func Fit(imgW, imgH, cw, ch float64) Letterbox {
	var scale float64
	if imgW > 0 && imgH > 0 && cw > 0 && ch > 0 {
		scale = min(cw/imgW, ch/imgH)
	}
	dw := max(imgW, 0) * scale
	dh := max(imgH, 0) * scale
	return Letterbox{
		Scale:   scale,
		Width:   dw,
		Height:  dh,
		OffsetX: (max(cw, 0) - dw) / 2,
		OffsetY: (max(ch, 0) - dh) / 2,
	}
}

// Map converts a native point to canvas pixels.
func (l Letterbox) Map(x, y float64) (float64, float64) {
	return l.OffsetX + x*l.Scale, l.OffsetY + y*l.Scale
}

// MapBox converts both corners of a box.
func (l Letterbox) MapBox(b models.Box) (x1, y1, x2, y2 float64) {
	x1, y1 = l.Map(b.X1, b.Y1)
	x2, y2 = l.Map(b.X2, b.Y2)
	return x1, y1, x2, y2
}
