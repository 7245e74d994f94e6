package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityTransformIsNoOp(t *testing.T) {
	p := Point{X: 3, Y: -4}
	assert.Equal(t, p, Identity().Transform(p))
}

func TestSimpleAffinePureTranslation(t *testing.T) {
	a := SimpleAffine(5, -2, 0, 1, 1)
	out := a.Transform(Point{X: 1, Y: 1})
	assert.InDelta(t, 6, out.X, 1e-9)
	assert.InDelta(t, -1, out.Y, 1e-9)
}

func TestSimpleAffineRotationQuarterTurn(t *testing.T) {
	a := SimpleAffine(0, 0, math.Pi/2, 1, 1)
	out := a.Transform(Point{X: 1, Y: 0})
	assert.InDelta(t, 0, out.X, 1e-9)
	assert.InDelta(t, 1, out.Y, 1e-9)
}

func TestSimpleAffineScale(t *testing.T) {
	a := SimpleAffine(0, 0, 0, 2, 3)
	out := a.Transform(Point{X: 1, Y: 1})
	assert.InDelta(t, 2, out.X, 1e-9)
	assert.InDelta(t, 3, out.Y, 1e-9)
}

func TestFitAffineRecoversExactTranslation(t *testing.T) {
	from := []Point{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	to := make([]Point, len(from))
	for i, p := range from {
		to[i] = Point{X: p.X + 4, Y: p.Y - 3}
	}
	weights := []float64{1, 1, 1, 1}

	fit, err := FitAffine(from, to, weights)
	require.NoError(t, err)

	for _, p := range from {
		want := Point{X: p.X + 4, Y: p.Y - 3}
		got := fit.Transform(p)
		assert.InDelta(t, want.X, got.X, 1e-6)
		assert.InDelta(t, want.Y, got.Y, 1e-6)
	}
}

func TestFitAffineRecoversExactAffine(t *testing.T) {
	truth := SimpleAffine(2, -1, 0.3, 1.2, 0.9)
	from := []Point{{0, 0}, {1, 0}, {0, 1}, {2, 3}, {-1, 2}}
	to := make([]Point, len(from))
	for i, p := range from {
		to[i] = truth.Transform(p)
	}
	weights := []float64{1, 1, 1, 1, 1}

	fit, err := FitAffine(from, to, weights)
	require.NoError(t, err)

	for _, p := range from {
		want := truth.Transform(p)
		got := fit.Transform(p)
		assert.InDelta(t, want.X, got.X, 1e-5)
		assert.InDelta(t, want.Y, got.Y, 1e-5)
	}
}

func TestFitAffineRejectsTooFewCorrespondences(t *testing.T) {
	_, err := FitAffine([]Point{{0, 0}, {1, 1}}, []Point{{0, 0}, {1, 1}}, []float64{1, 1})
	assert.Error(t, err)
}

func TestFitAffineRejectsMismatchedLengths(t *testing.T) {
	_, err := FitAffine([]Point{{0, 0}, {1, 0}, {0, 1}}, []Point{{0, 0}, {1, 0}}, []float64{1, 1, 1})
	assert.Error(t, err)
}

func TestDelaunayNeighborsOnSquareAreSymmetric(t *testing.T) {
	pts := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	neighbors := DelaunayNeighbors(pts)
	require.Len(t, neighbors, 4)

	for i, list := range neighbors {
		for _, j := range list {
			assert.Contains(t, neighbors[j], i, "neighbour relation must be symmetric")
		}
	}

	for i, list := range neighbors {
		assert.NotEmpty(t, list, "point %d should have at least one neighbour in a 4-point triangulation", i)
	}
}

func TestDelaunayNeighborsFewerThanThreePointsIsEmpty(t *testing.T) {
	neighbors := DelaunayNeighbors([]Point{{0, 0}, {1, 1}})
	require.Len(t, neighbors, 2)
	assert.Empty(t, neighbors[0])
	assert.Empty(t, neighbors[1])
}

func TestDelaunayNeighborsGridIsFullyConnectedComponent(t *testing.T) {
	var pts []Point
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			pts = append(pts, Point{X: float64(x), Y: float64(y)})
		}
	}
	neighbors := DelaunayNeighbors(pts)
	require.Len(t, neighbors, 16)

	visited := make(map[int]bool)
	var stack []int
	stack = append(stack, 0)
	visited[0] = true
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, nb := range neighbors[cur] {
			if !visited[nb] {
				visited[nb] = true
				stack = append(stack, nb)
			}
		}
	}
	assert.Len(t, visited, 16, "a regular grid's triangulation must be a single connected component")
}

func TestDelaunayNeighborsNoSelfLoops(t *testing.T) {
	pts := []Point{{0, 0}, {5, 0}, {2, 5}, {8, 3}, {4, -2}}
	neighbors := DelaunayNeighbors(pts)
	for i, list := range neighbors {
		assert.NotContains(t, list, i)
	}
}
