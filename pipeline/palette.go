package pipeline

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/Tutortoise/ar-wheel-placement/models"
)

const (
	defaultPaletteSize = 16
	goldenAngle        = 137.50776
)

// Palette assigns a stable color per class. Class 0 is pure blue.
type Palette struct {
	colors []colorful.Color
}

func NewPalette(size int) *Palette {
	if size <= 0 {
		size = defaultPaletteSize
	}
	colors := make([]colorful.Color, size)
	for i := range colors {
		hue := math.Mod(240+float64(i)*goldenAngle, 360)
		colors[i] = colorful.Hsv(hue, 1, 1).Clamped()
	}
	return &Palette{colors: colors}
}

func (p *Palette) Color(class int) [4]float64 {
	if class < 0 {
		class = -class
	}
	c := p.colors[class%len(p.colors)]
	return [4]float64{c.R, c.G, c.B, 1}
}

// RenderCommands converts markers, visible or not, into commands in marker order.
func RenderCommands(markers []models.PlacedMarker, palette *Palette) []models.RenderCommand {
	cmds := make([]models.RenderCommand, len(markers))
	for i, m := range markers {
		q := m.Orientation
		cmds[i] = models.RenderCommand{
			MarkerID:    m.ID,
			Position:    [3]float64{m.Position.X, m.Position.Y, m.Position.Z},
			Orientation: [4]float64{q.X, q.Y, q.Z, q.W},
			Rotation:    q.Euler(),
			Scale:       [3]float64{m.Scale.X, m.Scale.Y, m.Scale.Z},
			Color:       palette.Color(m.ClassIndex),
			ClassIndex:  m.ClassIndex,
			Visible:     m.Visible,
		}
	}
	return cmds
}
