package sky

import (
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Index answers "which inserted positions lie within the tolerance of p".
// IDs are caller-chosen; Within returns them in ascending order so callers
// that insert with increasing IDs get results in insertion order.
type Index interface {
	Insert(id int, p Position)
	Within(p Position) []int
	Any(p Position) bool
	Len() int
}

// IndexKind selects an Index implementation.
type IndexKind string

const (
	// IndexLinear scans every inserted position. O(n) per query.
	IndexLinear IndexKind = "linear"
	// IndexGrid buckets positions into tolerance-sized cells and only scans
	// the neighbouring cells. Near O(1) per query for sparse catalogs.
	IndexGrid IndexKind = "grid"
)

// NewIndex builds an empty Index of the given kind. A nil metric means Planar.
func NewIndex(kind IndexKind, tol Tolerance, metric Metric) (Index, error) {
	if _, err := NewTolerance(tol.Arcsec(), false); err != nil {
		return nil, err
	}
	if metric == nil {
		metric = Planar
	}
	switch kind {
	case "", IndexLinear:
		return &LinearIndex{tol: tol, metric: metric}, nil
	case IndexGrid:
		return newGridIndex(tol, metric), nil
	default:
		return nil, eris.Errorf("sky: unknown index kind %q", kind)
	}
}

type entry struct {
	id  int
	pos Position
}

// LinearIndex is the nested-loop baseline: every query compares against every
// inserted position.
type LinearIndex struct {
	tol     Tolerance
	metric  Metric
	entries []entry
}

// Insert adds a position.
func (l *LinearIndex) Insert(id int, p Position) {
	l.entries = append(l.entries, entry{id: id, pos: p})
}

// Within returns the IDs of all inserted positions strictly within tolerance.
func (l *LinearIndex) Within(p Position) []int {
	var ids []int
	for _, e := range l.entries {
		if l.metric.Separation(p, e.pos) < l.tol.Arcsec() {
			ids = append(ids, e.id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Any reports whether at least one inserted position is within tolerance.
func (l *LinearIndex) Any(p Position) bool {
	for _, e := range l.entries {
		if l.metric.Separation(p, e.pos) < l.tol.Arcsec() {
			return true
		}
	}
	return false
}

// Len returns the number of inserted positions.
func (l *LinearIndex) Len() int { return len(l.entries) }

type cellKey struct {
	x, y int64
}

const (
	// minGridCell bounds the cell side in degrees so cell indices of any
	// sky coordinate stay far inside int64.
	minGridCell  = 1e-9
	maxCellIndex = 1 << 52
)

// GridIndex buckets positions on a square grid whose cell side equals the
// tolerance in degrees, or minGridCell for smaller tolerances. RA is not
// wrapped at 0/360.
type GridIndex struct {
	tol    Tolerance
	metric Metric
	cell   float64
	cells  map[cellKey][]entry
	n      int
}

func newGridIndex(tol Tolerance, metric Metric) *GridIndex {
	return &GridIndex{
		tol:    tol,
		metric: metric,
		cell:   max(tol.Degrees(), minGridCell),
		cells:  make(map[cellKey][]entry),
	}
}

func (g *GridIndex) key(p Position) cellKey {
	return cellKey{x: g.index(p.RA()), y: g.index(p.Dec())}
}

func (g *GridIndex) index(v float64) int64 {
	return int64(max(-maxCellIndex, min(math.Floor(v/g.cell), maxCellIndex)))
}

// raReach widens the RA search window for metrics where a degree of RA
// shrinks with declination.
func (g *GridIndex) raReach(dec float64) float64 {
	reach := g.tol.Degrees()
	if _, ok := g.metric.(planarMetric); ok {
		return reach
	}
	lat := math.Min(math.Abs(dec)+reach, 89.9)
	return reach / math.Cos(lat*math.Pi/180)
}

// Insert adds a position.
func (g *GridIndex) Insert(id int, p Position) {
	k := g.key(p)
	g.cells[k] = append(g.cells[k], entry{id: id, pos: p})
	g.n++
}

// Within returns the IDs of all inserted positions strictly within tolerance.
func (g *GridIndex) Within(p Position) []int {
	var ids []int
	g.scan(p, func(e entry) bool {
		ids = append(ids, e.id)
		return true
	})
	slices.Sort(ids)
	return ids
}

// Any reports whether at least one inserted position is within tolerance.
func (g *GridIndex) Any(p Position) bool {
	found := false
	g.scan(p, func(entry) bool {
		found = true
		return false
	})
	return found
}

// Len returns the number of inserted positions.
func (g *GridIndex) Len() int { return g.n }

// scan visits every entry within tolerance of p until visit returns false.
func (g *GridIndex) scan(p Position, visit func(entry) bool) {
	// Pad the window so rounding in the degree/arcsecond conversion never
	// drops a boundary candidate; the exact test below decides.
	decReach := g.tol.Degrees() * (1 + 1e-9)
	raReach := g.raReach(p.Dec()) * (1 + 1e-9)
	window := geom.NewBounds(geom.XY).Set(
		p.RA()-raReach, p.Dec()-decReach,
		p.RA()+raReach, p.Dec()+decReach,
	)
	lo := g.key(NewPosition(p.RA()-raReach, p.Dec()-decReach))
	hi := g.key(NewPosition(p.RA()+raReach, p.Dec()+decReach))

	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			for _, e := range g.cells[cellKey{x: x, y: y}] {
				if !window.OverlapsPoint(geom.XY, geom.Coord(e.pos)) {
					continue
				}
				if g.metric.Separation(p, e.pos) >= g.tol.Arcsec() {
					continue
				}
				if !visit(e) {
					return
				}
			}
		}
	}
}
