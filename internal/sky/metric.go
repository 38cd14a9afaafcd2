package sky

import (
	"math"

	"github.com/rotisserie/eris"
)

// Metric measures the angular separation between two positions in arcseconds.
type Metric interface {
	Separation(p, q Position) float64
}

// MetricFunc adapts a function to the Metric interface.
type MetricFunc func(p, q Position) float64

// Separation calls f(p, q).
func (f MetricFunc) Separation(p, q Position) float64 { return f(p, q) }

// Planar treats (RA, DEC) as a flat Euclidean plane. It is accurate only for
// arcsecond tolerances over a field a few degrees across and away from the
// poles, which is the regime of the GBS survey.
var Planar Metric = planarMetric{}

// GreatCircle is the haversine angular distance. Use it for fields wide enough
// that the planar approximation breaks down.
var GreatCircle Metric = greatCircleMetric{}

type planarMetric struct{}

func (planarMetric) Separation(p, q Position) float64 {
	dra := p.RA() - q.RA()
	ddec := p.Dec() - q.Dec()
	return DegToArcsec(math.Sqrt(dra*dra + ddec*ddec))
}

type greatCircleMetric struct{}

func (greatCircleMetric) Separation(p, q Position) float64 {
	ra1, dec1 := p.RA()*math.Pi/180, p.Dec()*math.Pi/180
	ra2, dec2 := q.RA()*math.Pi/180, q.Dec()*math.Pi/180
	sdd := math.Sin((dec2 - dec1) / 2)
	sdr := math.Sin((ra2 - ra1) / 2)
	h := sdd*sdd + math.Cos(dec1)*math.Cos(dec2)*sdr*sdr
	if h > 1 {
		h = 1
	}
	rad := 2 * math.Asin(math.Sqrt(h))
	return DegToArcsec(rad * 180 / math.Pi)
}

// MetricByName resolves "planar" (or "") and "great_circle".
func MetricByName(name string) (Metric, error) {
	switch name {
	case "", "planar":
		return Planar, nil
	case "great_circle", "haversine":
		return GreatCircle, nil
	default:
		return nil, eris.Errorf("sky: unknown metric %q", name)
	}
}
