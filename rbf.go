package hord

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Surrogate approximates the objective from evaluated points. Inputs are in
// unit-cube coordinates. Implementations must be safe for concurrent use.
type Surrogate interface {
	// Add records the observation y at x.
	Add(x []float64, y float64)

	// Predict returns the predicted value at x and, when the model has one,
	// an uncertainty estimate (zero otherwise).
	Predict(x []float64) (mean, variance float64)

	// Len returns the number of observations.
	Len() int
}

// newSurrogate builds the surrogate selected by kind.
// A zero kernelWidth keeps the GP default.
func newSurrogate(kind SurrogateKind, dim int, kernelWidth float64) (Surrogate, error) {
	switch kind {
	case "", SurrogateRBF:
		return newRBFInterpolant(dim), nil
	case SurrogateGP:
		gp := newGaussianProcess()
		if kernelWidth > 0 {
			gp.SetSigma(kernelWidth)
		}

		return gp, nil
	default:
		return nil, fmt.Errorf("%w: unknown surrogate %q", ErrInvalidConfig, kind)
	}
}

// rbfEta regularizes the kernel block so repeated points stay solvable.
const rbfEta = 1e-8

// rbfInterpolant is a cubic radial basis function interpolant with a linear
// polynomial tail:
//
//	s(x) = sum_i lambda_i * ||x - x_i||^3 + c_0 + sum_k c_k * x_k
//
// The coefficients solve
//
//	[ Phi  P ] [ lambda ]   [ f ]
//	[ P^T  0 ] [ c      ] = [ 0 ]
//
// Values above the median are capped at the median before fitting, which
// keeps a few very poor evaluations from flattening the surface around the
// good region.
type rbfInterpolant struct {
	mu sync.RWMutex

	dim int

	X [][]float64
	Y []float64

	dirty  bool
	lambda []float64
	tail   []float64
}

var _ Surrogate = (*rbfInterpolant)(nil)

func newRBFInterpolant(dim int) *rbfInterpolant {
	return &rbfInterpolant{dim: dim}
}

func cubic(r float64) float64 { return r * r * r }

// Add records the observation y at x and marks the model for refitting.
func (r *rbfInterpolant) Add(x []float64, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.X = append(r.X, cloneFloats(x))
	r.Y = append(r.Y, y)
	r.dirty = true
}

// Len returns the number of observations.
func (r *rbfInterpolant) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.X)
}

// Predict evaluates the interpolant at x. Until there are enough points to
// determine the linear tail (d+1), or if the system cannot be solved, it
// returns the mean of the observations. With no observations it returns
// (0, 1).
func (r *rbfInterpolant) Predict(x []float64) (mean, variance float64) {
	r.mu.RLock()
	if r.dirty {
		r.mu.RUnlock()
		r.refit()
		r.mu.RLock()
	}
	defer r.mu.RUnlock()

	if len(r.X) == 0 {
		return 0, 1
	}

	if r.lambda == nil {
		var sum float64
		for _, y := range r.Y {
			sum += y
		}

		return sum / float64(len(r.Y)), 0
	}

	for i, xi := range r.X {
		mean += r.lambda[i] * cubic(distance(x, xi))
	}

	mean += r.tail[0]
	for k := 0; k < r.dim; k++ {
		mean += r.tail[k+1] * x[k]
	}

	return mean, 0
}

// refit solves the interpolation system if observations changed since the
// last fit.
func (r *rbfInterpolant) refit() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dirty {
		return
	}

	r.dirty = false
	r.lambda, r.tail = nil, nil

	n := len(r.X)
	if n < r.dim+1 {
		return
	}

	m := n + r.dim + 1
	a := mat.NewDense(m, m, nil)
	b := mat.NewVecDense(m, nil)

	capAt := median(r.Y)

	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			phi := cubic(distance(r.X[i], r.X[j]))
			a.Set(i, j, phi)
			a.Set(j, i, phi)
		}

		a.Set(i, i, rbfEta)

		a.Set(i, n, 1)
		a.Set(n, i, 1)

		for k := 0; k < r.dim; k++ {
			a.Set(i, n+1+k, r.X[i][k])
			a.Set(n+1+k, i, r.X[i][k])
		}

		y := r.Y[i]
		if y > capAt {
			y = capAt
		}

		b.SetVec(i, y)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		// An ill-conditioned system still yields a usable solution; anything
		// else leaves the model on its mean fallback.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return
		}
	}

	r.lambda = make([]float64, n)
	for i := range r.lambda {
		r.lambda[i] = sol.AtVec(i)
	}

	r.tail = make([]float64, r.dim+1)
	for k := range r.tail {
		r.tail[k] = sol.AtVec(n + k)
	}
}
