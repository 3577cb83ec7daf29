package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Tessellator covers a polygon with cells and returns one centroid per cell.
type Tessellator interface {
	Centroids(poly *geom.Polygon) []Point
}

// hexEdgeKM is the average hexagon edge length per resolution, matching the
// H3 index so configured resolutions keep their familiar cell sizes.
var hexEdgeKM = []float64{
	1281.256, 483.057, 182.513, 68.979, 26.072,
	9.854, 3.725, 1.406, 0.531, 0.201, 0.076,
}

// EdgeKM returns the hexagon edge length for a resolution, clamped to the table.
func EdgeKM(resolution int) float64 {
	if resolution < 0 {
		resolution = 0
	}
	if resolution >= len(hexEdgeKM) {
		resolution = len(hexEdgeKM) - 1
	}
	return hexEdgeKM[resolution]
}

// HexGrid is a pointy-top hexagonal tessellation with a fixed edge length.
type HexGrid struct {
	EdgeKM float64
}

// NewHexGrid returns a grid sized for the given resolution.
func NewHexGrid(resolution int) HexGrid {
	return HexGrid{EdgeKM: EdgeKM(resolution)}
}

// Centroids returns the centers of all grid cells whose center falls inside poly.
// Rows are offset by half a cell so neighbouring centers are equidistant.
func (h HexGrid) Centroids(poly *geom.Polygon) []Point {
	box := BoxOf(poly)
	if !box.Valid() || h.EdgeKM <= 0 {
		return nil
	}

	midLat := (box.MinLat + box.MaxLat) / 2
	kmPerDegLat := MetersPerDegree / 1000
	kmPerDegLng := kmPerDegLat * math.Cos(midLat*math.Pi/180)

	dx := math.Sqrt(3) * h.EdgeKM / kmPerDegLng
	dy := 1.5 * h.EdgeKM / kmPerDegLat

	// The grid is anchored on the box center so small polygons still get a cell.
	midLng := (box.MinLng + box.MaxLng) / 2
	rows := int(math.Floor((midLat - box.MinLat) / dy))
	cols := int(math.Floor((midLng-box.MinLng)/dx)) + 1
	latStart := midLat - float64(rows)*dy
	lngStart := midLng - float64(cols)*dx

	var out []Point
	for r := 0; latStart+float64(r)*dy <= box.MaxLat; r++ {
		lat := latStart + float64(r)*dy
		offset := 0.0
		if (r+rows)%2 == 1 {
			offset = dx / 2
		}
		for c := 0; lngStart+offset+float64(c)*dx <= box.MaxLng; c++ {
			p := Point{Lat: lat, Lng: lngStart + offset + float64(c)*dx}
			if Contains(poly, p) {
				out = append(out, p)
			}
		}
	}

	if len(out) == 0 {
		center := Point{Lat: midLat, Lng: midLng}
		if Contains(poly, center) {
			out = append(out, center)
		}
	}
	return out
}
