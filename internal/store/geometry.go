package store

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// encodePosition converts an equatorial position to EWKB point bytes, X = RA
// and Y = DEC in degrees.
func encodePosition(ra, dec float64) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{ra, dec})
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode position")
	}
	return data, nil
}

// decodePosition is the inverse of encodePosition.
func decodePosition(data []byte) (ra, dec float64, err error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return 0, 0, eris.Wrap(err, "store: decode position")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("store: decode position: got %T, want point", g)
	}
	return p.X(), p.Y(), nil
}
