package overlay

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Surface is a 2D drawing target with canvas-like operations.
// Coordinates are in surface pixels; text is drawn with y on the baseline.
type Surface interface {
	Resize(width, height int)
	Size() (width, height int)
	Clear()
	StrokeRect(x, y, w, h float64, c color.Color, lineWidth float64)
	FillRect(x, y, w, h float64, c color.Color)
	FillText(text string, x, y float64, c color.Color)
	MeasureText(text string) float64
	Image() image.Image
}

// ImageSurface draws into an RGBA raster
type ImageSurface struct {
	img  *image.RGBA
	face font.Face
}

func NewImageSurface() *ImageSurface {
	return &ImageSurface{
		img:  image.NewRGBA(image.Rect(0, 0, 0, 0)),
		face: basicfont.Face7x13,
	}
}

// Resize reallocates the raster when the size changes. Negative sizes become zero.
func (s *ImageSurface) Resize(width, height int) {
	width, height = max(width, 0), max(height, 0)
	if b := s.img.Bounds(); b.Dx() == width && b.Dy() == height {
		return
	}
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

func (s *ImageSurface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *ImageSurface) Clear() {
	draw.Draw(s.img, s.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

// StrokeRect strokes the outline centered on the rectangle edges, like a canvas path.
func (s *ImageSurface) StrokeRect(x, y, w, h float64, c color.Color, lineWidth float64) {
	half := lineWidth / 2
	s.FillRect(x-half, y-half, w+lineWidth, lineWidth, c)
	s.FillRect(x-half, y+h-half, w+lineWidth, lineWidth, c)
	s.FillRect(x-half, y-half, lineWidth, h+lineWidth, c)
	s.FillRect(x+w-half, y-half, lineWidth, h+lineWidth, c)
}

// FillRect composites c over the rectangle; parts outside the raster are clipped.
func (s *ImageSurface) FillRect(x, y, w, h float64, c color.Color) {
	r := image.Rect(round(x), round(y), round(x+w), round(y+h))
	draw.Draw(s.img, r, image.NewUniform(c), image.Point{}, draw.Over)
}

func (s *ImageSurface) FillText(text string, x, y float64, c color.Color) {
	d := font.Drawer{
		Dst:  s.img,
		Src:  image.NewUniform(c),
		Face: s.face,
		Dot:  fixed.P(round(x), round(y)),
	}
	d.DrawString(text)
}

func (s *ImageSurface) MeasureText(text string) float64 {
	return float64(font.MeasureString(s.face, text)) / 64
}

func (s *ImageSurface) Image() image.Image {
	return s.img
}

func round(v float64) int {
	return int(math.Round(v))
}
