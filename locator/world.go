package locator

import (
	"fmt"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"golang.org/x/exp/rand"
)

// World is everything the filter needs to know about the environment
type World interface {
	// RandomFreePlace returns a uniformly random position that IsFree
	// accepts. A world with no free space returns its center, which may be
	// occupied.
	RandomFreePlace() (x, y float64)
	IsFree(x, y float64) bool
	// DistancesToAll returns one distance per anchor, in the order given
	DistancesToAll(x, y float64, anchors []Anchor) Reading
	EuclideanDist(x1, y1, x2, y2 float64) float64
	// Beacons returns the anchors used for simulated readings
	Beacons() []Anchor
}

// Anchor is a fixed ranging beacon at a known position (cm)
type Anchor struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z,omitempty"`
}

// Cell codes accepted in a world layout
const (
	CellFree           = '0'
	CellOccupied       = '1'
	CellOccupiedBeacon = '2'
	CellFreeBeacon     = '3'
)

// maxPlacementAttempts bounds rejection sampling in RandomFreePlace
const maxPlacementAttempts = 10000

// obstacle wraps an occupied region for R-tree storage
type obstacle struct {
	bound orb.Bound
	bbox  rtreego.Rect
}

// Bounds implements rtreego.Spatial interface
func (o *obstacle) Bounds() rtreego.Rect {
	return o.bbox
}

// GridWorld is a rectangular environment with occupied cells and obstacles
// held in an R-tree
type GridWorld struct {
	bound     orb.Bound
	cellSize  float64
	obstacles []*obstacle
	tree      *rtreego.Rtree
	beacons   []Anchor
	rng       *rand.Rand
}

// NewGridWorld builds a world from its configuration. Explicit anchors take
// precedence over beacons declared in the layout.
func NewGridWorld(cfg WorldConfig, anchors []Anchor, rng *rand.Rand) (*GridWorld, error) {
	w := &GridWorld{
		tree: rtreego.NewTree(2, 25, 50),
		rng:  rng,
	}

	var layoutBeacons []Anchor
	if len(cfg.Layout) > 0 {
		cols := len(cfg.Layout[0])
		rows := len(cfg.Layout)
		if cols == 0 {
			return nil, fmt.Errorf("world layout row 0 is empty")
		}
		cellSize := cfg.CellSize
		if cellSize <= 0 {
			if cfg.Width <= 0 {
				return nil, fmt.Errorf("world.cellSize or world.width is required with a layout")
			}
			cellSize = cfg.Width / float64(cols)
		}
		w.cellSize = cellSize
		w.bound = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{float64(cols) * cellSize, float64(rows) * cellSize}}

		for row, line := range cfg.Layout {
			if len(line) != cols {
				return nil, fmt.Errorf("world layout row %d has %d cells, expected %d", row, len(line), cols)
			}
			for col := 0; col < cols; col++ {
				x0 := float64(col) * cellSize
				y0 := float64(row) * cellSize
				switch line[col] {
				case CellFree:
				case CellOccupied, CellOccupiedBeacon, CellFreeBeacon:
					if line[col] != CellFreeBeacon {
						if err := w.addObstacle(x0, y0, cellSize, cellSize); err != nil {
							return nil, err
						}
					}
					if line[col] != CellOccupied {
						layoutBeacons = append(layoutBeacons, Anchor{
							ID: fmt.Sprintf("B%d", len(layoutBeacons)),
							X:  x0 + cellSize/2,
							Y:  y0 + cellSize/2,
						})
					}
				default:
					return nil, fmt.Errorf("world layout row %d col %d: unknown cell code %q", row, col, line[col])
				}
			}
		}
	} else {
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return nil, fmt.Errorf("world dimensions must be positive, got %gx%g", cfg.Width, cfg.Height)
		}
		w.cellSize = cfg.CellSize
		w.bound = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{cfg.Width, cfg.Height}}
	}

	for i, r := range cfg.Obstacles {
		if err := w.addObstacle(r.X, r.Y, r.W, r.H); err != nil {
			return nil, fmt.Errorf("obstacles[%d]: %w", i, err)
		}
	}

	if len(anchors) > 0 {
		w.beacons = append([]Anchor(nil), anchors...)
	} else {
		w.beacons = layoutBeacons
	}
	if len(w.beacons) == 0 {
		return nil, fmt.Errorf("world has no anchors: configure anchors or place beacons in the layout")
	}

	return w, nil
}

func (w *GridWorld) addObstacle(x, y, width, height float64) error {
	bbox, err := rtreego.NewRect(rtreego.Point{x, y}, []float64{width, height})
	if err != nil {
		return fmt.Errorf("invalid obstacle %gx%g at (%g, %g): %w", width, height, x, y, err)
	}
	o := &obstacle{
		bound: orb.Bound{Min: orb.Point{x, y}, Max: orb.Point{x + width, y + height}},
		bbox:  bbox,
	}
	w.obstacles = append(w.obstacles, o)
	w.tree.Insert(o)
	return nil
}

// Bound returns the world extent
func (w *GridWorld) Bound() orb.Bound {
	return w.bound
}

// CellSize returns the layout cell size, 0 for worlds without a layout
func (w *GridWorld) CellSize() float64 {
	return w.cellSize
}

// Obstacles returns the occupied regions
func (w *GridWorld) Obstacles() []orb.Bound {
	out := make([]orb.Bound, len(w.obstacles))
	for i, o := range w.obstacles {
		out[i] = o.bound
	}
	return out
}

// IsFree reports whether (x, y) lies inside the world and outside every obstacle
func (w *GridWorld) IsFree(x, y float64) bool {
	pt := orb.Point{x, y}
	if !w.bound.Contains(pt) {
		return false
	}
	if len(w.obstacles) == 0 {
		return true
	}

	const tol = 1e-6
	query, err := rtreego.NewRect(rtreego.Point{x - tol, y - tol}, []float64{2 * tol, 2 * tol})
	if err != nil {
		return false
	}
	for _, item := range w.tree.SearchIntersect(query) {
		if item.(*obstacle).bound.Contains(pt) {
			return false
		}
	}
	return true
}

// RandomFreePlace samples the bounds until a free position is found. A world
// with no reachable free space yields its center even when it is occupied.
func (w *GridWorld) RandomFreePlace() (float64, float64) {
	dx := w.bound.Max[0] - w.bound.Min[0]
	dy := w.bound.Max[1] - w.bound.Min[1]
	for i := 0; i < maxPlacementAttempts; i++ {
		x := w.bound.Min[0] + w.rng.Float64()*dx
		y := w.bound.Min[1] + w.rng.Float64()*dy
		if w.IsFree(x, y) {
			return x, y
		}
	}
	c := w.bound.Center()
	return c[0], c[1]
}

// DistancesToAll returns the planar distance from (x, y) to each anchor
func (w *GridWorld) DistancesToAll(x, y float64, anchors []Anchor) Reading {
	pt := orb.Point{x, y}
	out := make(Reading, len(anchors))
	for i, a := range anchors {
		out[i] = planar.Distance(pt, orb.Point{a.X, a.Y})
	}
	return out
}

// EuclideanDist returns the planar distance between two points
func (w *GridWorld) EuclideanDist(x1, y1, x2, y2 float64) float64 {
	return planar.Distance(orb.Point{x1, y1}, orb.Point{x2, y2})
}

// Beacons returns a copy of the world's anchors
func (w *GridWorld) Beacons() []Anchor {
	return append([]Anchor(nil), w.beacons...)
}
