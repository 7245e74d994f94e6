// Package geom provides the small set of planar-geometry primitives the
// cross-entropy optimiser shares between its global and local stages:
// affine transforms fit from weighted point correspondences, and the
// Delaunay neighbourhood graph used to constrain local per-patch
// refinement.
package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Point is a 2-D point in whatever coordinate frame the caller is
// working in (image-plane pixels, or offsets relative to a centroid).
type Point struct {
	X, Y float64
}

// Affine is a 2x3 affine transform: out = A*in + T. It carries no
// projective row; the implied third row is always [0 0 1].
type Affine struct {
	A00, A01 float64
	A10, A11 float64
	Tx, Ty   float64
}

// Identity returns the transform that maps every point to itself.
func Identity() Affine {
	return Affine{A00: 1, A11: 1}
}

// Transform applies the affine transform to p.
func (a Affine) Transform(p Point) Point {
	return Point{
		X: a.A00*p.X + a.A01*p.Y + a.Tx,
		Y: a.A10*p.X + a.A11*p.Y + a.Ty,
	}
}

// TransformRelative applies the transform to p after subtracting origin,
// for callers working in patch-relative coordinates.
func (a Affine) TransformRelative(p, origin Point) Point {
	return a.Transform(Point{X: p.X - origin.X, Y: p.Y - origin.Y})
}

// SimpleAffine builds a translate + rotate + anisotropic-scale transform,
// the 5-parameter family the global cross-entropy stage samples over
// (tx, ty, rotation in radians, scaleX, scaleY).
func SimpleAffine(tx, ty, rotation, scaleX, scaleY float64) Affine {
	cr, sr := math.Cos(rotation), math.Sin(rotation)
	return Affine{
		A00: cr * scaleX, A01: -sr * scaleY, Tx: tx,
		A10: sr * scaleX, A11: cr * scaleY, Ty: ty,
	}
}

// FitAffine solves for the weighted least-squares affine transform
// mapping from[i] -> to[i], weighted by weights[i]: each correspondence
// contributes two rows (x and y) to a 6-unknown normal-equations solve,
// scaled by sqrt(w_i / (2 * sum(w))) so that higher-weight
// correspondences dominate the fit.
//
// Returns an error if the inputs are inconsistent in length or number
// fewer than 3 correspondences (the minimum to fix all 6 unknowns).
func FitAffine(from, to []Point, weights []float64) (Affine, error) {
	n := len(from)
	if n != len(to) || n != len(weights) {
		return Affine{}, fmt.Errorf("geom: FitAffine: from/to/weights length mismatch (%d/%d/%d)", n, len(to), len(weights))
	}
	if n < 3 {
		return Affine{}, fmt.Errorf("geom: FitAffine: need at least 3 correspondences, got %d", n)
	}

	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return Affine{}, fmt.Errorf("geom: FitAffine: total weight must be positive")
	}

	A := mat.NewDense(2*n, 6, nil)
	L := mat.NewDense(2*n, 1, nil)

	for i := 0; i < n; i++ {
		w := math.Sqrt(weights[i] / (2 * total))
		A.Set(2*i, 0, from[i].X*w)
		A.Set(2*i, 1, from[i].Y*w)
		A.Set(2*i, 2, w)
		A.Set(2*i+1, 3, from[i].X*w)
		A.Set(2*i+1, 4, from[i].Y*w)
		A.Set(2*i+1, 5, w)
		L.Set(2*i, 0, to[i].X*w)
		L.Set(2*i+1, 0, to[i].Y*w)
	}

	var x mat.Dense
	if err := x.Solve(A, L); err != nil {
		return Affine{}, fmt.Errorf("geom: FitAffine: %w", err)
	}

	return Affine{
		A00: x.At(0, 0), A01: x.At(1, 0), Tx: x.At(2, 0),
		A10: x.At(3, 0), A11: x.At(4, 0), Ty: x.At(5, 0),
	}, nil
}
