package geo

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// LoadBoundary reads a national boundary shapefile and returns its largest ring
// as a polygon. Coordinates must be WGS84 (x=lng, y=lat).
func LoadBoundary(path string) (*geom.Polygon, error) {
	if path == "" {
		return nil, eris.New("geo: boundary path is required")
	}

	r, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", path)
	}
	defer r.Close() //nolint:errcheck

	var best []float64
	for r.Next() {
		_, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			continue
		}
		for i := int32(0); i < poly.NumParts; i++ {
			ring := partCoords(poly, i)
			if len(ring) > len(best) {
				best = ring
			}
		}
	}

	if len(best) < 8 {
		return nil, eris.Errorf("geo: no polygon ring in %s", path)
	}

	zap.L().Debug("geo: loaded boundary", zap.String("path", path), zap.Int("points", len(best)/2))
	return geom.NewPolygonFlat(geom.XY, best, []int{len(best)}), nil
}

func partCoords(poly *shp.Polygon, part int32) []float64 {
	start := poly.Parts[part]
	end := int32(len(poly.Points))
	if part+1 < poly.NumParts {
		end = poly.Parts[part+1]
	}
	flat := make([]float64, 0, 2*(end-start))
	for j := start; j < end; j++ {
		flat = append(flat, poly.Points[j].X, poly.Points[j].Y)
	}
	return flat
}
