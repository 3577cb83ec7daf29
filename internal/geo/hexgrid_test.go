package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeKM_Clamps(t *testing.T) {
	assert.InDelta(t, 3.725, EdgeKM(6), 0.001)
	assert.Equal(t, EdgeKM(0), EdgeKM(-3))
	assert.Equal(t, EdgeKM(10), EdgeKM(99))
}

func TestHexGrid_CentroidsInsidePolygon(t *testing.T) {
	box := Box{MinLat: 41.85, MinLng: 18.40, MaxLat: 43.60, MaxLng: 20.35}
	poly := box.Polygon()

	cells := NewHexGrid(6).Centroids(poly)
	require.NotEmpty(t, cells)
	for _, c := range cells {
		assert.True(t, box.Contains(c), "centroid %s outside box", c)
	}

	coarse := NewHexGrid(5).Centroids(poly)
	assert.Less(t, len(coarse), len(cells))
}

func TestHexGrid_NeighbourSpacing(t *testing.T) {
	poly := Box{MinLat: 42.0, MinLng: 19.0, MaxLat: 42.2, MaxLng: 19.3}.Polygon()
	g := HexGrid{EdgeKM: 2}
	cells := g.Centroids(poly)
	require.GreaterOrEqual(t, len(cells), 2)

	// First two cells share a row, so they sit sqrt(3)*edge apart.
	d := DistanceMeters(cells[0], cells[1])
	assert.InDelta(t, 3464, d, 60)
}

func TestHexGrid_TinyPolygonFallsBackToCenter(t *testing.T) {
	poly := Box{MinLat: 42.0, MinLng: 19.0, MaxLat: 42.0001, MaxLng: 19.0001}.Polygon()
	cells := NewHexGrid(6).Centroids(poly)
	require.Len(t, cells, 1)
	assert.InDelta(t, 42.00005, cells[0].Lat, 1e-9)
}

func TestHexGrid_InvalidInput(t *testing.T) {
	assert.Nil(t, HexGrid{EdgeKM: 0}.Centroids(Box{MinLat: 0, MinLng: 0, MaxLat: 1, MaxLng: 1}.Polygon()))
	assert.Nil(t, NewHexGrid(6).Centroids(Box{}.Polygon()))
}
