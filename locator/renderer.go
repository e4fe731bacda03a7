package locator

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Palette holds the colors used by both renderers
type Palette struct {
	Background color.NRGBA
	Obstacle   color.NRGBA
	Anchor     color.NRGBA
	Particle   color.NRGBA
	Agent      color.NRGBA
	Confident  color.NRGBA
	Uncertain  color.NRGBA
	Text       color.NRGBA
}

// DefaultPalette returns the standard snapshot colors
func DefaultPalette() Palette {
	return Palette{
		Background: color.NRGBA{240, 240, 240, 255},
		Obstacle:   color.NRGBA{60, 60, 60, 255},
		Anchor:     color.NRGBA{0, 0, 139, 255},     // Dark blue
		Particle:   color.NRGBA{100, 149, 237, 255}, // Cornflower blue
		Agent:      color.NRGBA{255, 0, 0, 255},
		Confident:  color.NRGBA{0, 160, 0, 255},
		Uncertain:  color.NRGBA{255, 140, 0, 255},
		Text:       color.NRGBA{0, 0, 0, 255},
	}
}

// SnapshotRenderer draws a filter snapshot into a raster image
type SnapshotRenderer struct {
	World   *GridWorld
	Scale   float64 // pixels per cm
	Padding int
	Palette Palette
}

// NewSnapshotRenderer creates a raster renderer with default settings
func NewSnapshotRenderer(world *GridWorld) *SnapshotRenderer {
	return &SnapshotRenderer{
		World:   world,
		Scale:   2.0,
		Padding: 24,
		Palette: DefaultPalette(),
	}
}

// Render draws the world, the scored particles, the agent and the estimate.
// World +Y points up in the image.
func (r *SnapshotRenderer) Render(s Snapshot) *image.RGBA {
	b := r.World.Bound()
	width := int(math.Ceil((b.Max[0]-b.Min[0])*r.Scale)) + 2*r.Padding
	height := int(math.Ceil((b.Max[1]-b.Min[1])*r.Scale)) + 2*r.Padding

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(r.Palette.Background), image.Point{}, draw.Src)

	toImage := func(x, y float64) (int, int) {
		px := int((x-b.Min[0])*r.Scale) + r.Padding
		py := int((b.Max[1]-y)*r.Scale) + r.Padding
		return px, py
	}

	// World border
	x0, y0 := toImage(b.Min[0], b.Max[1])
	x1, y1 := toImage(b.Max[0], b.Min[1])
	drawRectOutline(img, x0, y0, x1, y1, toRGBA(r.Palette.Obstacle))

	for _, o := range r.World.Obstacles() {
		ox0, oy0 := toImage(o.Min[0], o.Max[1])
		ox1, oy1 := toImage(o.Max[0], o.Min[1])
		fillRect(img, ox0, oy0, ox1, oy1, toRGBA(r.Palette.Obstacle))
	}

	// Particles, alpha scaled by relative weight
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
		px, py := toImage(p.X, p.Y)
		blendPixel(img, px, py, c)
	}

	for _, a := range s.Anchors {
		ax, ay := toImage(a.X, a.Y)
		drawSquare(img, ax, ay, 8, toRGBA(r.Palette.Anchor))
		drawText(img, ax+6, ay-6, a.ID, toRGBA(r.Palette.Anchor))
	}

	ax, ay := toImage(s.Agent.X, s.Agent.Y)
	drawHeadingTriangle(img, ax, ay, 12, s.Agent.Heading, toRGBA(r.Palette.Agent))

	if s.Estimate.Valid {
		c := r.Palette.Uncertain
		if s.Estimate.Confident {
			c = r.Palette.Confident
		}
		ex, ey := toImage(s.Estimate.X, s.Estimate.Y)
		drawCircle(img, ex, ey, 5, toRGBA(c))
	}

	drawText(img, 4, 14, legendText(s), toRGBA(r.Palette.Text))
	return img
}

// RenderPNG encodes the rendered snapshot as PNG
func (r *SnapshotRenderer) RenderPNG(w io.Writer, s Snapshot) error {
	return png.Encode(w, r.Render(s))
}

// SavePNG writes the rendered snapshot to path
func (r *SnapshotRenderer) SavePNG(path string, s Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := r.RenderPNG(f, s); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

func legendText(s Snapshot) string {
	if !s.Estimate.Valid {
		return fmt.Sprintf("cycle %d  no estimate", s.Cycle)
	}
	state := "searching"
	if s.Estimate.Confident {
		state = "confident"
	}
	return fmt.Sprintf("cycle %d  est (%.0f, %.0f)  %s", s.Cycle, s.Estimate.X, s.Estimate.Y, state)
}

func toRGBA(c color.NRGBA) color.RGBA {
	r, g, b, a := c.RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

func inBounds(img *image.RGBA, x, y int) bool {
	return image.Pt(x, y).In(img.Bounds())
}

// blendPixel alpha-composites c over the existing pixel
func blendPixel(img *image.RGBA, x, y int, c color.NRGBA) {
	if !inBounds(img, x, y) {
		return
	}
	bg := img.RGBAAt(x, y)
	a := float64(c.A) / 255
	img.SetRGBA(x, y, color.RGBA{
		R: uint8(float64(c.R)*a + float64(bg.R)*(1-a)),
		G: uint8(float64(c.G)*a + float64(bg.G)*(1-a)),
		B: uint8(float64(c.B)*a + float64(bg.B)*(1-a)),
		A: 255,
	})
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	draw.Draw(img, image.Rect(x0, y0, x1, y1), image.NewUniform(c), image.Point{}, draw.Src)
}

func drawRectOutline(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	for x := x0; x <= x1; x++ {
		if inBounds(img, x, y0) {
			img.SetRGBA(x, y0, c)
		}
		if inBounds(img, x, y1) {
			img.SetRGBA(x, y1, c)
		}
	}
	for y := y0; y <= y1; y++ {
		if inBounds(img, x0, y) {
			img.SetRGBA(x0, y, c)
		}
		if inBounds(img, x1, y) {
			img.SetRGBA(x1, y, c)
		}
	}
}

func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius && inBounds(img, cx+dx, cy+dy) {
				img.SetRGBA(cx+dx, cy+dy, c)
			}
		}
	}
}

func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	fillRect(img, cx-half, cy-half, cx+half+1, cy+half+1, c)
}

// drawHeadingTriangle draws an isosceles triangle pointing along headingDeg
// (0 = up, clockwise)
func drawHeadingTriangle(img *image.RGBA, cx, cy, size int, headingDeg float64, c color.RGBA) {
	rad := headingDeg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	half := float64(size) / 2
	for dy := -size; dy <= size; dy++ {
		for dx := -size; dx <= size; dx++ {
			// rotate the pixel into the triangle's frame; v runs nose to tail
			u := float64(dx)*cos + float64(dy)*sin
			v := float64(dx)*sin - float64(dy)*cos
			t := (half - v) / (2 * half)
			if v <= half && v >= -half && math.Abs(u) <= t*half && inBounds(img, cx+dx, cy+dy) {
				img.SetRGBA(cx+dx, cy+dy, c)
			}
		}
	}
}

func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
