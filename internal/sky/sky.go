// Package sky holds the positional primitives shared by deduplication and
// counterpart matching: unit conversion, tolerance validation, the proximity
// predicate and the batch proximity query.
package sky

import (
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
)

// ArcsecPerDegree is the number of arcseconds in one degree.
const ArcsecPerDegree = 3600.0

// ErrInvalidTolerance is matched by every *InvalidToleranceError.
var ErrInvalidTolerance = errors.New("invalid tolerance")

// InvalidToleranceError reports a non-positive or non-finite tolerance.
type InvalidToleranceError struct {
	Value float64
}

func (e *InvalidToleranceError) Error() string {
	return fmt.Sprintf("sky: invalid tolerance %v: must be positive and finite", e.Value)
}

// Is reports whether target is ErrInvalidTolerance.
func (e *InvalidToleranceError) Is(target error) bool {
	return target == ErrInvalidTolerance
}

// DegToArcsec converts degrees to arcseconds.
func DegToArcsec(deg float64) float64 {
	return deg * ArcsecPerDegree
}

// ArcsecToDeg converts arcseconds to degrees.
func ArcsecToDeg(arcsec float64) float64 {
	return arcsec / ArcsecPerDegree
}

// Tolerance is a match radius, always held in arcseconds.
type Tolerance float64

// NewTolerance validates value and returns it as a Tolerance. When degrees is
// true value is taken to be in degrees and converted.
func NewTolerance(value float64, degrees bool) (Tolerance, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return 0, &InvalidToleranceError{Value: value}
	}
	if degrees {
		value = DegToArcsec(value)
	}
	return Tolerance(value), nil
}

// Arcsec returns the tolerance in arcseconds.
func (t Tolerance) Arcsec() float64 { return float64(t) }

// Degrees returns the tolerance in degrees.
func (t Tolerance) Degrees() float64 { return ArcsecToDeg(float64(t)) }

// Position is an (RA, DEC) pair in degrees, stored as an XY coordinate.
type Position geom.Coord

// NewPosition builds a Position from RA and DEC in degrees.
func NewPosition(ra, dec float64) Position {
	return Position{ra, dec}
}

// RA returns the right ascension in degrees.
func (p Position) RA() float64 { return geom.Coord(p).X() }

// Dec returns the declination in degrees.
func (p Position) Dec() float64 { return geom.Coord(p).Y() }

// Finite reports whether both coordinates are finite numbers.
func (p Position) Finite() bool {
	return len(p) >= 2 &&
		!math.IsNaN(p[0]) && !math.IsInf(p[0], 0) &&
		!math.IsNaN(p[1]) && !math.IsInf(p[1], 0)
}

func (p Position) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.RA(), p.Dec())
}

// Separation returns the planar separation between p and q in arcseconds.
func Separation(p, q Position) float64 {
	return Planar.Separation(p, q)
}

// IsNear reports whether p and q are strictly closer than tol under the
// planar metric. A separation equal to tol is not a match.
func IsNear(p, q Position, tol Tolerance) bool {
	return Separation(p, q) < tol.Arcsec()
}

// NearestWithin returns the indices of every position in candidates whose
// separation from point is below tol, in candidate order. All candidates are
// evaluated.
func NearestWithin(point Position, candidates []Position, tol Tolerance) []int {
	var out []int
	for i, c := range candidates {
		if IsNear(point, c, tol) {
			out = append(out, i)
		}
	}
	return out
}
