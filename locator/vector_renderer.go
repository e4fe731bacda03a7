package locator

import (
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA premultiplies alpha, which canvas expects
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	a := uint32(c.A)
	return color.RGBA{
		R: uint8(uint32(c.R) * a / 255),
		G: uint8(uint32(c.G) * a / 255),
		B: uint8(uint32(c.B) * a / 255),
		A: c.A,
	}
}

// VectorRenderer draws a filter snapshot as vector graphics. One canvas unit
// is one centimeter.
type VectorRenderer struct {
	World          *GridWorld
	Padding        float64 // cm
	ParticleRadius float64 // cm
	Resolution     canvas.Resolution
	Palette        Palette
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer(world *GridWorld) *VectorRenderer {
	return &VectorRenderer{
		World:          world,
		Padding:        10,
		ParticleRadius: 0.8,
		Resolution:     canvas.DPI(72),
		Palette:        DefaultPalette(),
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

func (r *VectorRenderer) size() (float64, float64) {
	b := r.World.Bound()
	return (b.Max[0] - b.Min[0]) + 2*r.Padding, (b.Max[1] - b.Min[1]) + 2*r.Padding
}

// RenderToSVG writes the snapshot as SVG
func (r *VectorRenderer) RenderToSVG(w io.Writer, s Snapshot) error {
	width, height := r.size()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, s, width, height)
	return svgRenderer.Close()
}

// RenderToPNG rasterizes the snapshot and writes it as PNG
func (r *VectorRenderer) RenderToPNG(w io.Writer, s Snapshot) error {
	width, height := r.size()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, s, width, height)
	return png.Encode(w, rast)
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, s Snapshot, width, height float64) {
	b := r.World.Bound()
	toCanvas := func(x, y float64) (float64, float64) {
		return x - b.Min[0] + r.Padding, y - b.Min[1] + r.Padding
	}

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Background)}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	borderStyle := canvas.DefaultStyle
	borderStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	borderStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Obstacle)}
	borderStyle.StrokeWidth = 1.0
	bx, by := toCanvas(b.Min[0], b.Min[1])
	renderer.RenderPath(canvas.Rectangle(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]).Translate(bx, by), borderStyle, canvas.Identity)

	obstacleStyle := canvas.DefaultStyle
	obstacleStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Obstacle)}
	obstacleStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, o := range r.World.Obstacles() {
		ox, oy := toCanvas(o.Min[0], o.Min[1])
		renderer.RenderPath(canvas.Rectangle(o.Max[0]-o.Min[0], o.Max[1]-o.Min[1]).Translate(ox, oy), obstacleStyle, canvas.Identity)
	}

	maxW := 0.0
	for _, p := range s.Particles {
		maxW = math.Max(maxW, p.Weight)
	}
	for _, p := range s.Particles {
		c := r.Palette.Particle
		c.A = 60
		if maxW > 0 {
			c.A = uint8(60 + 195*p.Weight/maxW)
		}
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: nrgbaToRGBA(c)}
		style.Stroke = canvas.Paint{Color: canvas.Transparent}
		px, py := toCanvas(p.X, p.Y)
		renderer.RenderPath(canvas.Circle(r.ParticleRadius).Translate(px, py), style, canvas.Identity)
	}

	anchorStyle := canvas.DefaultStyle
	anchorStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Anchor)}
	anchorStyle.Stroke = canvas.Paint{Color: canvas.Black}
	anchorStyle.StrokeWidth = 0.5
	for _, a := range s.Anchors {
		ax, ay := toCanvas(a.X, a.Y)
		renderer.RenderPath(canvas.Rectangle(6, 6).Translate(ax-3, ay-3), anchorStyle, canvas.Identity)
	}

	if s.Estimate.Valid {
		c := r.Palette.Uncertain
		if s.Estimate.Confident {
			c = r.Palette.Confident
		}
		estStyle := canvas.DefaultStyle
		estStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(c)}
		estStyle.Stroke = canvas.Paint{Color: canvas.Black}
		estStyle.StrokeWidth = 0.5
		ex, ey := toCanvas(s.Estimate.X, s.Estimate.Y)
		renderer.RenderPath(canvas.Circle(4).Translate(ex, ey), estStyle, canvas.Identity)
	}

	agentStyle := canvas.DefaultStyle
	agentStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(r.Palette.Agent)}
	agentStyle.Stroke = canvas.Paint{Color: canvas.Black}
	agentStyle.StrokeWidth = 0.5
	cx, cy := toCanvas(s.Agent.X, s.Agent.Y)
	renderer.RenderPath(agentArrow(cx, cy, 8, s.Agent.Heading), agentStyle, canvas.Identity)
}

// agentArrow returns a closed triangle centered on (cx, cy) pointing along
// heading (degrees, 0 = +Y, clockwise)
func agentArrow(cx, cy, size, heading float64) *canvas.Path {
	rad := heading * math.Pi / 180
	fx, fy := math.Sin(rad), math.Cos(rad) // forward
	sx, sy := fy, -fx                      // starboard
	half := size / 2

	p := &canvas.Path{}
	p.MoveTo(cx+fx*half, cy+fy*half)
	p.LineTo(cx-fx*half+sx*half*0.6, cy-fy*half+sy*half*0.6)
	p.LineTo(cx-fx*half-sx*half*0.6, cy-fy*half-sy*half*0.6)
	p.Close()
	return p
}
