package hord

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// maxDesignAttempts bounds the regeneration of rank-deficient designs.
const maxDesignAttempts = 100

// symmetricLatinHypercube generates npts points in the unit cube such that
// every dimension is stratified into npts levels and point i mirrors point
// npts-1-i through the centre of the cube.
func symmetricLatinHypercube(rng *rand.Rand, npts, dim int) [][]float64 {
	levels := make([][]float64, npts)
	for i := range levels {
		levels[i] = make([]float64, dim)
		levels[i][0] = float64(i + 1)
	}

	middle := npts / 2
	if npts%2 == 1 {
		for j := 0; j < dim; j++ {
			levels[middle][j] = float64(middle + 1)
		}
	}

	for j := 1; j < dim; j++ {
		for i := 0; i < middle; i++ {
			if rng.Float64() < 0.5 {
				levels[i][j] = float64(i + 1)
			} else {
				levels[i][j] = float64(npts - i)
			}
		}

		rng.Shuffle(middle, func(a, b int) {
			levels[a][j], levels[b][j] = levels[b][j], levels[a][j]
		})
	}

	for i := 0; i < middle; i++ {
		for j := 0; j < dim; j++ {
			levels[npts-1-i][j] = float64(npts+1) - levels[i][j]
		}
	}

	points := make([][]float64, npts)
	for i, row := range levels {
		points[i] = make([]float64, dim)
		for j, level := range row {
			if npts == 1 {
				points[i][j] = 0.5
				continue
			}

			points[i][j] = (level - 1) / float64(npts-1)
		}
	}

	return points
}

// tailRank returns the rank of [1 X], the matrix that must have full column
// rank for the RBF linear tail to be determined.
func tailRank(points [][]float64) int {
	if len(points) == 0 {
		return 0
	}

	dim := len(points[0])
	p := mat.NewDense(len(points), dim+1, nil)

	for i, x := range points {
		p.Set(i, 0, 1)
		for k, v := range x {
			p.Set(i, k+1, v)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(p, mat.SVDNone); !ok {
		return 0
	}

	return svd.Rank(1e-10)
}

// initialDesign produces the experimental design for space, snapped through
// the space so that integer dimensions are representable. Designs with at
// least d+1 points are regenerated until the linear tail is identifiable.
func initialDesign(rng *rand.Rand, space Space, npts int) ([][]float64, error) {
	dim := space.Dim()

	for attempt := 0; attempt < maxDesignAttempts; attempt++ {
		points := symmetricLatinHypercube(rng, npts, dim)
		for i := range points {
			points[i] = space.snap(points[i])
		}

		if npts < dim+1 || tailRank(points) == dim+1 {
			return points, nil
		}
	}

	return nil, fmt.Errorf("%w: no full-rank design of %d points in %d dimensions after %d attempts",
		ErrInvalidConfig, npts, dim, maxDesignAttempts)
}
