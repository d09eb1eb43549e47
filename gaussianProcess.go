package hord

import (
	"math"
	"sync"
)

//////
// Const, vars, types.
//////

// defaultKernelWidth suits inputs scaled to the unit cube.
const defaultKernelWidth = 0.25

// gaussianProcess is a thread-safe kernel regressor used as an alternative
// surrogate. Its variance estimate makes it the natural partner of the
// acquisition functions (UCB, PI, EI, Thompson sampling).
//
// Fields:
// - mu: RWMutex for thread-safe access to all fields
// - X: Observed input points in unit coordinates
// - Y: Observed objective values at each input point
// - sigma: Kernel width parameter controlling the smoothness of interpolation
//
// Memory usage:
// - Grows linearly with number of observations
type gaussianProcess struct {
	mu sync.RWMutex

	X [][]float64

	Y []float64

	sigma float64
}

var _ Surrogate = (*gaussianProcess)(nil)

//////
// Methods.
//////

// rbfKernel measures the similarity between two points, decreasing
// exponentially with squared distance.
//
// Mathematical formula:
//
//	k(x1, x2) = exp(-sum((x1 - x2)^2) / (2 * sigma^2))
//
// Important notes:
// - Panics if input vectors have different lengths
// - Caller must hold gp.mu
func (gp *gaussianProcess) rbfKernel(x1, x2 []float64) float64 {
	if len(x1) != len(x2) {
		panic("input vectors must have the same length")
	}

	d := distance(x1, x2)

	return math.Exp(-d * d / (2 * gp.sigma * gp.sigma))
}

// Predict estimates the objective value and uncertainty at x.
//
// Mathematical details:
// - Mean is the kernel-weighted average of observed values
// - Variance shrinks towards zero near observed points
// - Returns (0, 1) if no observations exist
//
// Performance considerations:
// - O(n^2) time in the number of observations
func (gp *gaussianProcess) Predict(x []float64) (mean, variance float64) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	if len(gp.X) == 0 {
		return 0, 1
	}

	k := make([]float64, len(gp.X))

	var weights, sum float64

	for i := range gp.X {
		k[i] = gp.rbfKernel(x, gp.X[i])

		weights += k[i]
		sum += k[i] * gp.Y[i]
	}

	// Far from every observation fall back to the plain average.
	if weights < 1e-12 {
		for _, y := range gp.Y {
			mean += y
		}

		return mean / float64(len(gp.Y)), 1
	}

	mean = sum / weights

	variance = 1.0

	for i := range gp.X {
		for j := range gp.X {
			variance -= k[i] * k[j] / float64(len(gp.X))
		}
	}

	return mean, math.Max(variance, minVariance)
}

// Add records the observation y at x. The input slice is copied.
func (gp *gaussianProcess) Add(x []float64, y float64) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	gp.X = append(gp.X, cloneFloats(x))
	gp.Y = append(gp.Y, y)
}

// Len returns the number of observations.
func (gp *gaussianProcess) Len() int {
	gp.mu.RLock()
	defer gp.mu.RUnlock()

	return len(gp.X)
}

// SetSigma updates the kernel width. Larger values give smoother predictions.
func (gp *gaussianProcess) SetSigma(sigma float64) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	gp.sigma = sigma
}

//////
// Factory.
//////

// newGaussianProcess creates an empty model with the unit-cube kernel width.
func newGaussianProcess() *gaussianProcess {
	return &gaussianProcess{
		sigma: defaultKernelWidth,
	}
}
