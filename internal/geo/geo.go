// Package geo plans the spatial coverage of a harvest run: query seeds around a
// city center, a hexagonal sweep of the national polygon, and expansion seeds
// around already discovered pharmacies.
package geo

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
)

// MetersPerDegree is the flat-earth conversion used for short distances.
const MetersPerDegree = 111000.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String formats the point as "lat,lng".
func (p Point) String() string {
	return fmt.Sprintf("%v,%v", p.Lat, p.Lng)
}

// Key rounds the point to 5 decimals (about one meter).
func (p Point) Key() string {
	return fmt.Sprintf("%.5f,%.5f", p.Lat, p.Lng)
}

// DistanceMeters returns the equirectangular distance between two points.
func DistanceMeters(a, b Point) float64 {
	dLat := (a.Lat - b.Lat) * MetersPerDegree
	dLng := (a.Lng - b.Lng) * MetersPerDegree * math.Cos(b.Lat*math.Pi/180)
	return math.Sqrt(dLat*dLat + dLng*dLng)
}

// Box is an axis-aligned lat/lng bounding box.
type Box struct {
	MinLat float64 `json:"minlat" yaml:"minlat" mapstructure:"minlat"`
	MinLng float64 `json:"minlon" yaml:"minlon" mapstructure:"minlon"`
	MaxLat float64 `json:"maxlat" yaml:"maxlat" mapstructure:"maxlat"`
	MaxLng float64 `json:"maxlon" yaml:"maxlon" mapstructure:"maxlon"`
}

// Valid reports whether the box has a positive area.
func (b Box) Valid() bool {
	return b.MaxLat > b.MinLat && b.MaxLng > b.MinLng
}

// Contains reports whether p lies inside the box, edges included.
func (b Box) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Around returns the box spanning ±d degrees around p.
func Around(p Point, d float64) Box {
	return Box{MinLat: p.Lat - d, MinLng: p.Lng - d, MaxLat: p.Lat + d, MaxLng: p.Lng + d}
}

// Polygon converts the box into a closed go-geom polygon (x=lng, y=lat).
func (b Box) Polygon() *geom.Polygon {
	flat := []float64{
		b.MinLng, b.MinLat,
		b.MaxLng, b.MinLat,
		b.MaxLng, b.MaxLat,
		b.MinLng, b.MaxLat,
		b.MinLng, b.MinLat,
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

// BoxOf returns the bounding box of a polygon.
func BoxOf(poly *geom.Polygon) Box {
	b := poly.Bounds()
	return Box{MinLat: b.Min(1), MinLng: b.Min(0), MaxLat: b.Max(1), MaxLng: b.Max(0)}
}

// Contains reports whether p lies inside the polygon's outer ring and outside
// all of its holes. Points on an edge may fall either way.
func Contains(poly *geom.Polygon, p Point) bool {
	rings := poly.Coords()
	if len(rings) == 0 || !inRing(rings[0], p) {
		return false
	}
	for _, hole := range rings[1:] {
		if inRing(hole, p) {
			return false
		}
	}
	return true
}

// inRing is the even-odd ray cast.
func inRing(ring []geom.Coord, p Point) bool {
	in := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].X(), ring[i].Y()
		xj, yj := ring[j].X(), ring[j].Y()
		if (yi > p.Lat) != (yj > p.Lat) && p.Lng < (xj-xi)*(p.Lat-yi)/(yj-yi)+xi {
			in = !in
		}
	}
	return in
}
