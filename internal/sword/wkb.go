package sword

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// SRID of SWORD geometries.
const SRID = 4326

// EncodeWKB converts a reach or node shape to EWKB bytes. Returns nil, nil for
// unsupported or empty shapes.
func EncodeWKB(shape shp.Shape) ([]byte, error) {
	var g geom.T

	switch s := shape.(type) {
	case *shp.Point:
		g = geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(SRID)
	case *shp.PolyLine:
		g = polyLineToMultiLineString(s)
	}

	if g == nil {
		return nil, nil
	}

	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "sword: encode WKB")
	}
	return data, nil
}

// polyLineToMultiLineString converts a shapefile PolyLine, one line string per part.
func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY).SetSRID(SRID)
	for i := int32(0); i < pl.NumParts; i++ {
		start := pl.Parts[i]
		end := int32(len(pl.Points))
		if i+1 < pl.NumParts {
			end = pl.Parts[i+1]
		}

		flat := make([]float64, 0, 2*(end-start))
		for _, p := range pl.Points[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("sword: skipping malformed linestring part", zap.Int32("part", i), zap.Error(err))
		}
	}

	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}
