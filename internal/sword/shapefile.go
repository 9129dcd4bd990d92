// Package sword loads SWORD river reaches from reach shapefiles.
package sword

import (
	"math"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sos-priors/internal/model"
)

// ReachIDField is the attribute holding the SWORD reach identifier.
const ReachIDField = "reach_id"

// Result holds the reaches read from a shapefile in file order.
type Result struct {
	Reaches []model.Reach
	Skipped int
}

// ParseReaches reads a SWORD reach shapefile. Records whose reach id cannot be
// parsed are skipped and counted. Geometries are EWKB with SRID 4326; a record
// with no usable geometry keeps a nil Geometry.
func ParseReaches(shpPath, continent string) (*Result, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "sword: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	idIdx := -1
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, ReachIDField) {
			idIdx = i
			break
		}
	}
	if idIdx < 0 {
		return nil, eris.Errorf("sword: %s has no %s attribute", shpPath, ReachIDField)
	}

	res := &Result{}
	for reader.Next() {
		n, shape := reader.Shape()

		raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(idIdx), "\x00"))
		id, ok := parseReachID(raw)
		if !ok {
			res.Skipped++
			zap.L().Debug("sword: skipping record with bad reach id",
				zap.Int("record", n),
				zap.String("value", raw),
			)
			continue
		}

		wkb, err := EncodeWKB(shape)
		if err != nil {
			return nil, eris.Wrapf(err, "sword: reach %d", id)
		}
		res.Reaches = append(res.Reaches, model.Reach{ReachID: id, Continent: continent, Geometry: wkb})
	}

	if res.Skipped > 0 {
		zap.L().Warn("sword: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", res.Skipped),
		)
	}
	return res, nil
}

// parseReachID accepts integer text and integral decimal text such as
// "74100300011.0".
func parseReachID(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, id > 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
