package geom

import (
	"math"
	"sort"
)

// triangle holds indices into the original points slice, plus the
// super-triangle's synthetic points appended at indices >= len(points).
type triangle struct {
	a, b, c int
}

type edge struct {
	a, b int
}

func (e edge) normalized() edge {
	if e.a > e.b {
		return edge{e.b, e.a}
	}
	return e
}

// DelaunayNeighbors computes the Delaunay triangulation of points via
// the Bowyer-Watson incremental algorithm and returns, for each point
// index, the sorted list of indices it shares a triangulation edge with.
// This is the geometric constraint graph the local cross-entropy stage
// uses to derive each patch's neighbourhood affine suggestion.
//
// Degenerate inputs (fewer than 3 points, or all points collinear) yield
// an empty neighbourhood for every point rather than an error, since a
// patch pool that small or degenerate simply has no geometric constraint
// to offer that frame.
func DelaunayNeighbors(points []Point) [][]int {
	n := len(points)
	neighbors := make([][]int, n)
	if n < 3 {
		return neighbors
	}

	tris := triangulate(points)

	edgeSet := make(map[edge]bool)
	for _, t := range tris {
		if t.a >= n || t.b >= n || t.c >= n {
			continue // drop edges touching the synthetic super-triangle
		}
		edgeSet[edge{t.a, t.b}.normalized()] = true
		edgeSet[edge{t.b, t.c}.normalized()] = true
		edgeSet[edge{t.a, t.c}.normalized()] = true
	}

	adj := make(map[int]map[int]bool, n)
	for e := range edgeSet {
		if adj[e.a] == nil {
			adj[e.a] = map[int]bool{}
		}
		if adj[e.b] == nil {
			adj[e.b] = map[int]bool{}
		}
		adj[e.a][e.b] = true
		adj[e.b][e.a] = true
	}

	for i := 0; i < n; i++ {
		var list []int
		for j := range adj[i] {
			list = append(list, j)
		}
		sort.Ints(list)
		neighbors[i] = list
	}
	return neighbors
}

// triangulate runs Bowyer-Watson over points, returning triangles indexed
// into points plus three synthetic super-triangle vertices appended at
// indices n, n+1, n+2.
func triangulate(points []Point) []triangle {
	n := len(points)
	super, superPts := superTriangle(points)
	all := append(append([]Point{}, points...), superPts...)

	tris := []triangle{super}

	for pi := 0; pi < n; pi++ {
		p := all[pi]

		var bad []triangle
		for _, t := range tris {
			if inCircumcircle(all, t, p) {
				bad = append(bad, t)
			}
		}

		boundary := boundaryEdges(bad)

		var kept []triangle
		badSet := make(map[triangle]bool, len(bad))
		for _, t := range bad {
			badSet[t] = true
		}
		for _, t := range tris {
			if !badSet[t] {
				kept = append(kept, t)
			}
		}

		for _, e := range boundary {
			kept = append(kept, triangle{e.a, e.b, pi})
		}
		tris = kept
	}

	var out []triangle
	for _, t := range tris {
		if t.a == super.a || t.a == super.b || t.a == super.c ||
			t.b == super.a || t.b == super.b || t.b == super.c ||
			t.c == super.a || t.c == super.b || t.c == super.c {
			continue
		}
		out = append(out, t)
	}
	return out
}

// superTriangle returns a triangle, indexed at n/n+1/n+2, large enough to
// contain every point, plus its three synthetic vertex coordinates.
func superTriangle(points []Point) (triangle, []Point) {
	n := len(points)
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := points[0].X, points[0].Y
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	dx, dy := maxX-minX, maxY-minY
	delta := math.Max(dx, dy)
	if delta == 0 {
		delta = 1
	}
	midX, midY := (minX+maxX)/2, (minY+maxY)/2

	pts := []Point{
		{X: midX - 20*delta, Y: midY - delta},
		{X: midX, Y: midY + 20*delta},
		{X: midX + 20*delta, Y: midY - delta},
	}
	return triangle{n, n + 1, n + 2}, pts
}

// inCircumcircle reports whether p lies inside the circumcircle of t.
func inCircumcircle(points []Point, t triangle, p Point) bool {
	a, b, c := points[t.a], points[t.b], points[t.c]

	// Ensure counter-clockwise winding for a consistent determinant sign.
	if cross(a, b, c) < 0 {
		a, c = c, a
	}

	ax, ay := a.X-p.X, a.Y-p.Y
	bx, by := b.X-p.X, b.Y-p.Y
	cx, cy := c.X-p.X, c.Y-p.Y

	det := (ax*ax+ay*ay)*(bx*cy-cx*by) -
		(bx*bx+by*by)*(ax*cy-cx*ay) +
		(cx*cx+cy*cy)*(ax*by-bx*ay)

	return det > 1e-9
}

func cross(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// boundaryEdges returns the edges of bad that are not shared by any other
// triangle in bad — the polygonal hole left behind when bad triangles are
// removed from the triangulation.
func boundaryEdges(bad []triangle) []edge {
	count := make(map[edge]int)
	order := make(map[edge]edge) // normalized -> original orientation
	for _, t := range bad {
		for _, e := range []edge{{t.a, t.b}, {t.b, t.c}, {t.c, t.a}} {
			ne := e.normalized()
			count[ne]++
			order[ne] = e
		}
	}
	var out []edge
	for ne, c := range count {
		if c == 1 {
			out = append(out, order[ne])
		}
	}
	return out
}
