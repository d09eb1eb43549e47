package hord

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// ErrInvalidSpace is returned when a search space is empty or has a
// dimension with unusable bounds.
var ErrInvalidSpace = errors.New("invalid search space")

// Dimension is one coordinate of the search space.
type Dimension struct {
	Name    string  `json:"name"`
	Lower   float64 `json:"lower"`
	Upper   float64 `json:"upper"`
	Integer bool    `json:"integer,omitempty"`
}

// Space is the ordered list of hyperparameters being searched.
//
// Spaces with mixed integer and continuous dimensions are built by appending:
//
//	ints, _ := NewSpace(ParameterRange[int]{Name: "filters", Min: 4, Max: 32})
//	floats, _ := NewSpace(ParameterRange[float64]{Name: "dropout", Min: 0, Max: 0.6})
//	space := append(floats, ints...)
type Space []Dimension

// NewSpace builds a Space from typed ranges. Integer element types yield
// integer dimensions.
func NewSpace[T constraints.Integer | constraints.Float](ranges ...ParameterRange[T]) (Space, error) {
	// T(0.5) truncates to zero only for integer types.
	half := 0.5
	integer := T(half) == T(0)

	space := make(Space, len(ranges))
	for i, r := range ranges {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("x%d", i)
		}

		space[i] = Dimension{
			Name:    name,
			Lower:   float64(r.Min),
			Upper:   float64(r.Max),
			Integer: integer,
		}
	}

	if err := space.Validate(); err != nil {
		return nil, err
	}

	return space, nil
}

// Dim returns the number of dimensions.
func (s Space) Dim() int { return len(s) }

// Validate checks that the space is non-empty and every dimension has finite
// bounds with Lower < Upper. Integer dimensions must contain an integer.
func (s Space) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: no dimensions", ErrInvalidSpace)
	}

	for i, d := range s {
		if math.IsNaN(d.Lower) || math.IsNaN(d.Upper) || math.IsInf(d.Lower, 0) || math.IsInf(d.Upper, 0) {
			return fmt.Errorf("%w: dimension %d (%s) has non-finite bounds", ErrInvalidSpace, i, d.Name)
		}

		if d.Lower >= d.Upper {
			return fmt.Errorf("%w: dimension %d (%s) lower %v >= upper %v", ErrInvalidSpace, i, d.Name, d.Lower, d.Upper)
		}

		if d.Integer && math.Ceil(d.Lower) > math.Floor(d.Upper) {
			return fmt.Errorf("%w: integer dimension %d (%s) has no integer in [%v, %v]", ErrInvalidSpace, i, d.Name, d.Lower, d.Upper)
		}
	}

	return nil
}

// Lower returns the lower bounds.
func (s Space) Lower() []float64 {
	out := make([]float64, len(s))
	for i, d := range s {
		out[i] = d.Lower
	}

	return out
}

// Upper returns the upper bounds.
func (s Space) Upper() []float64 {
	out := make([]float64, len(s))
	for i, d := range s {
		out[i] = d.Upper
	}

	return out
}

// IntegerIndices returns the indices of the integer dimensions.
func (s Space) IntegerIndices() []int {
	var out []int
	for i, d := range s {
		if d.Integer {
			out = append(out, i)
		}
	}

	return out
}

// Names returns the dimension names.
func (s Space) Names() []string {
	out := make([]string, len(s))
	for i, d := range s {
		out[i] = d.Name
	}

	return out
}

// Contains reports whether x lies within bounds and has integral values on
// integer dimensions.
func (s Space) Contains(x []float64) bool {
	if len(x) != len(s) {
		return false
	}

	for i, d := range s {
		if x[i] < d.Lower || x[i] > d.Upper {
			return false
		}

		if d.Integer && x[i] != math.Round(x[i]) {
			return false
		}
	}

	return true
}

// fromUnit maps a point of the unit cube to the space, clamping into bounds
// and rounding integer dimensions.
func (s Space) fromUnit(u []float64) []float64 {
	x := make([]float64, len(s))
	for i, d := range s {
		v := d.Lower + clamp(u[i], 0, 1)*(d.Upper-d.Lower)
		if d.Integer {
			v = math.Round(v)
		}

		x[i] = clamp(v, d.Lower, d.Upper)
	}

	return x
}

// toUnit maps a point of the space to the unit cube.
func (s Space) toUnit(x []float64) []float64 {
	u := make([]float64, len(s))
	for i, d := range s {
		u[i] = clamp((x[i]-d.Lower)/(d.Upper-d.Lower), 0, 1)
	}

	return u
}

// snap rounds a unit-cube point through the space so that integer
// dimensions land on representable values.
func (s Space) snap(u []float64) []float64 {
	return s.toUnit(s.fromUnit(u))
}

//////
// Function adapter.
//////

type funcProblem struct {
	space Space
	fn    ObjectiveFunc
}

func (p funcProblem) Space() Space { return p.space }

func (p funcProblem) Evaluate(ctx context.Context, x []float64) (float64, error) {
	return p.fn(ctx, x)
}

// NewProblem wraps a plain objective function and its space as a Problem.
//
// Usage example:
//
//	space, _ := NewSpace(ParameterRange[float64]{Min: -5, Max: 5})
//	problem := NewProblem(space, func(_ context.Context, x []float64) (float64, error) {
//	    return x[0] * x[0], nil
//	})
func NewProblem(space Space, fn ObjectiveFunc) Problem {
	return funcProblem{space: space, fn: fn}
}
