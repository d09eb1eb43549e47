package problems

import (
	"context"
	"fmt"
	"math"

	"github.com/thalesfsp/hord"
)

// Ackley bounds, the usual [-15, 20] box around the global minimum.
const (
	ackleyLower = -15.0
	ackleyUpper = 20.0
)

// Ackley is the d-dimensional Ackley function,
//
//	f(x) = -20 exp(-0.2 sqrt(sum x_i^2 / d)) - exp(sum cos(2 pi x_i) / d) + 20 + e
//
// with global minimum 0 at the origin.
type Ackley struct {
	dim     int
	integer map[int]bool
	counter Counter
}

// NewAckley returns an Ackley problem; the listed dimensions are integer.
func NewAckley(dim int, integer ...int) (*Ackley, error) {
	if dim < 1 {
		return nil, fmt.Errorf("ackley: dimension must be positive, got %d", dim)
	}

	a := &Ackley{dim: dim, integer: make(map[int]bool, len(integer))}
	for _, i := range integer {
		if i < 0 || i >= dim {
			return nil, fmt.Errorf("ackley: integer index %d out of range [0, %d)", i, dim)
		}

		a.integer[i] = true
	}

	return a, nil
}

// Space implements hord.Problem.
func (a *Ackley) Space() hord.Space {
	space := make(hord.Space, a.dim)
	for i := range space {
		space[i] = hord.Dimension{
			Name:    fmt.Sprintf("x%d", i),
			Lower:   ackleyLower,
			Upper:   ackleyUpper,
			Integer: a.integer[i],
		}
	}

	return space
}

// Evaluate implements hord.Problem.
func (a *Ackley) Evaluate(ctx context.Context, x []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if len(x) != a.dim {
		return 0, fmt.Errorf("ackley: got %d coordinates, want %d", len(x), a.dim)
	}

	a.counter.Next()

	var sq, cos float64
	for _, v := range x {
		sq += v * v
		cos += math.Cos(2 * math.Pi * v)
	}

	d := float64(a.dim)

	return -20*math.Exp(-0.2*math.Sqrt(sq/d)) - math.Exp(cos/d) + 20 + math.E, nil
}

// Experiments returns the number of evaluations made.
func (a *Ackley) Experiments() int64 { return a.counter.Count() }
