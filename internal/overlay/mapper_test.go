package overlay

import (
	"math"
	"testing"

	"firewatch/internal/models"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 0.05
}

func TestFit(t *testing.T) {
	tests := []struct {
		name                  string
		imgW, imgH, cw, ch    float64
		scale, ox, oy, dw, dh float64
	}{
		{"Pillarbox", 640, 480, 800, 400, 0.8333, 133.3, 0, 533.3, 400},
		{"Letterbox", 640, 360, 640, 480, 1, 0, 60, 640, 360},
		{"Exact", 640, 480, 1280, 960, 2, 0, 0, 1280, 960},
		{"Zero Width Canvas", 640, 480, 0, 400, 0, 0, 200, 0, 0},
		{"Zero Height Canvas", 640, 480, 800, 0, 0, 400, 0, 0, 0},
		{"Zero Native", 0, 0, 800, 400, 0, 400, 200, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Fit(tt.imgW, tt.imgH, tt.cw, tt.ch)
			if !approx(l.Scale, tt.scale) {
				t.Errorf("Scale = %v, want %v", l.Scale, tt.scale)
			}
			if !approx(l.OffsetX, tt.ox) || !approx(l.OffsetY, tt.oy) {
				t.Errorf("Offset = (%v, %v), want (%v, %v)", l.OffsetX, l.OffsetY, tt.ox, tt.oy)
			}
			if !approx(l.Width, tt.dw) || !approx(l.Height, tt.dh) {
				t.Errorf("Displayed = %vx%v, want %vx%v", l.Width, l.Height, tt.dw, tt.dh)
			}
			if math.IsNaN(l.Scale) || math.IsInf(l.Scale, 0) {
				t.Errorf("Scale is not finite: %v", l.Scale)
			}
		})
	}
}

func TestMap_Corners(t *testing.T) {
	l := Fit(640, 480, 800, 400)

	x, y := l.Map(0, 0)
	if !approx(x, 133.3) || !approx(y, 0) {
		t.Errorf("Map(0,0) = (%v, %v), want (133.3, 0)", x, y)
	}

	x, y = l.Map(640, 480)
	if !approx(x, 666.7) || !approx(y, 400) {
		t.Errorf("Map(640,480) = (%v, %v), want (666.7, 400)", x, y)
	}
}

func TestMap_DegenerateCollapsesToOffset(t *testing.T) {
	l := Fit(640, 480, 0, 300)
	for _, p := range [][2]float64{{0, 0}, {640, 480}, {-50, 9000}} {
		x, y := l.Map(p[0], p[1])
		if x != l.OffsetX || y != l.OffsetY {
			t.Errorf("Map(%v) = (%v, %v), want offset (%v, %v)", p, x, y, l.OffsetX, l.OffsetY)
		}
	}
}

func TestMapBox_OutOfBoundsTolerated(t *testing.T) {
	l := Fit(100, 100, 200, 200)
	x1, y1, x2, y2 := l.MapBox(models.Box{X1: -10, Y1: -10, X2: 150, Y2: 120})
	if x1 != -20 || y1 != -20 || x2 != 300 || y2 != 240 {
		t.Errorf("MapBox = (%v,%v,%v,%v)", x1, y1, x2, y2)
	}
}
