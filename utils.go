package hord

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// errNonFinite marks an objective value that is NaN or infinite.
var errNonFinite = errors.New("objective returned a non-finite value")

//////
// Helper functions.
//////

// Helper function used by PI and EI to compute the cumulative distribution
// function of the standard normal distribution.
func normalCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// Helper function used by EI to compute the probability density function
// of the standard normal distribution.
func normalPDF(x float64) float64 {
	return math.Exp(-x*x/2.0) / math.Sqrt(2.0*math.Pi)
}

// timedEvaluate runs the objective at x and measures its wall time.
//
// Returns:
// - float64: The objective value
// - time.Duration: Execution time of the objective only
// - error: The objective's error, or errNonFinite for NaN/Inf values
//
// Important notes:
//   - A failed evaluation is reported, never penalized: the caller keeps it
//     out of the surrogate so one bad run cannot distort the response surface.
func timedEvaluate(ctx context.Context, p Problem, x []float64) (float64, time.Duration, error) {
	start := time.Now()

	value, err := p.Evaluate(ctx, x)

	duration := time.Since(start)

	if err != nil {
		return value, duration, err
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value, duration, fmt.Errorf("%w: %v", errNonFinite, value)
	}

	return value, duration, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}

// distance is the Euclidean distance between two points of equal length.
func distance(a, b []float64) float64 {
	var sum float64

	for i := range a {
		diff := a[i] - b[i]

		sum += diff * diff
	}

	return math.Sqrt(sum)
}

// minDistance returns the distance from x to the closest of points, or +Inf
// when points is empty.
func minDistance(x []float64, points [][]float64) float64 {
	best := math.Inf(1)

	for _, p := range points {
		if d := distance(x, p); d < best {
			best = d
		}
	}

	return best
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}

	return (sorted[mid-1] + sorted[mid]) / 2
}

// unitScale rescales values into [0, 1] in place. A constant slice maps to
// all ones.
func unitScale(values []float64) {
	lo, hi := math.Inf(1), math.Inf(-1)

	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	span := hi - lo
	for i, v := range values {
		if span <= 0 {
			values[i] = 1
			continue
		}

		values[i] = (v - lo) / span
	}
}

func cloneFloats(x []float64) []float64 {
	if x == nil {
		return nil
	}

	return append([]float64(nil), x...)
}
