package hord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidConfig is returned for unusable optimization settings.
	ErrInvalidConfig = errors.New("invalid optimization config")

	// ErrNoSuccessfulEvaluations is returned when the budget was spent but
	// every evaluation failed.
	ErrNoSuccessfulEvaluations = errors.New("no successful evaluations")
)

// maxCandidates caps the default DYCORS candidate count.
const maxCandidates = 5000

//////
// Exported functionalities.
//////

// DefaultConfig returns a default configuration: 50 evaluations on one
// worker, RBF surrogate, DYCORS merit.
func DefaultConfig() OptimizationConfig {
	return OptimizationConfig{
		MaxEvals:  50,
		Workers:   1,
		Surrogate: SurrogateRBF,
		AcqParams: AcquisitionParams{
			BestSoFar: math.MaxFloat64,
			Beta:      2.0,
			Xi:        0.01,
		},
		ProgressChan: nil, // Default to no progress updates.
	}
}

// Optimize minimizes problem with the HORD method: a symmetric Latin
// hypercube design followed by DYCORS candidate search guided by a
// surrogate.
//
// Parameters:
// - ctx: Cancels the run; in-flight evaluations receive the cancellation
// - problem: The objective and its search space
// - config: OptimizationConfig controlling the run
//
// Returns:
//   - *Result: Best point, its value and the full evaluation history. It is
//     returned even alongside an error, holding whatever was evaluated.
//   - error: ErrInvalidSpace/ErrInvalidConfig for bad inputs, ctx.Err() on
//     cancellation, ErrNoSuccessfulEvaluations if nothing succeeded
//
// Usage example:
//
//	space, _ := NewSpace(
//	    ParameterRange[float64]{Name: "x", Min: -5, Max: 5},
//	    ParameterRange[float64]{Name: "y", Min: -5, Max: 5},
//	)
//	problem := NewProblem(space, func(_ context.Context, x []float64) (float64, error) {
//	    return x[0]*x[0] + x[1]*x[1], nil
//	})
//	result, err := Optimize(ctx, problem, DefaultConfig())
//
// How it works:
//  1. Evaluates InitialPoints points of a symmetric Latin hypercube
//  2. Until MaxEvals evaluations were made:
//     - Perturbs the best point into NumCandidates DYCORS candidates
//     - Ranks them with the surrogate (weighted merit or AcquisitionFunc)
//     - Evaluates the Workers best-ranked candidates concurrently
//     - Adds successful results to the surrogate and adapts the step size
//  3. Returns the best point found
func Optimize(ctx context.Context, problem Problem, config OptimizationConfig) (*Result, error) {
	if problem == nil {
		return nil, fmt.Errorf("%w: nil problem", ErrInvalidConfig)
	}

	space := problem.Space()
	if err := space.Validate(); err != nil {
		return nil, err
	}

	config, err := config.resolve(space.Dim())
	if err != nil {
		return nil, err
	}

	o, err := newOptimizer(problem, space, config)
	if err != nil {
		return nil, err
	}

	return o.run(ctx)
}

//////
// Controller.
//////

// resolve validates the config and fills dimension-dependent defaults.
func (c OptimizationConfig) resolve(dim int) (OptimizationConfig, error) {
	if c.MaxEvals < 1 {
		return c, fmt.Errorf("%w: MaxEvals must be positive, got %d", ErrInvalidConfig, c.MaxEvals)
	}

	if c.Workers < 1 {
		return c, fmt.Errorf("%w: Workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	}

	if c.InitialPoints < 0 || c.NumCandidates < 0 {
		return c, fmt.Errorf("%w: InitialPoints and NumCandidates cannot be negative", ErrInvalidConfig)
	}

	if !(c.KernelWidth >= 0) || math.IsInf(c.KernelWidth, 1) {
		return c, fmt.Errorf("%w: KernelWidth must be a finite non-negative number, got %v", ErrInvalidConfig, c.KernelWidth)
	}

	if c.InitialPoints == 0 {
		c.InitialPoints = min(2*(dim+1), c.MaxEvals)
	}

	if c.InitialPoints > c.MaxEvals {
		return c, fmt.Errorf("%w: InitialPoints (%d) exceeds MaxEvals (%d)", ErrInvalidConfig, c.InitialPoints, c.MaxEvals)
	}

	if c.NumCandidates == 0 {
		c.NumCandidates = min(100*dim, maxCandidates)
	}

	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return c, nil
}

// optimizer holds the state of a single run. Proposals and bookkeeping happen
// on the calling goroutine; only objective evaluations run on the pool.
type optimizer struct {
	problem Problem
	space   Space
	config  OptimizationConfig
	log     *slog.Logger

	rng       *rand.Rand
	surrogate Surrogate
	sampler   *dycorsSampler
	dtol      float64

	// visited holds every attempted point in unit coordinates, failures
	// included, so they are not proposed again.
	visited [][]float64

	bestUnit      []float64
	adaptiveEvals int

	result Result
}

func newOptimizer(problem Problem, space Space, config OptimizationConfig) (*optimizer, error) {
	dim := space.Dim()

	surrogate, err := newSurrogate(config.Surrogate, dim, config.KernelWidth)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(config.Seed))

	if config.AcqParams.RandomState == nil {
		config.AcqParams.RandomState = rng
	}

	return &optimizer{
		problem:   problem,
		space:     space,
		config:    config,
		log:       config.Logger,
		rng:       rng,
		surrogate: surrogate,
		sampler:   newDYCORSSampler(rng, dim, config.MaxEvals-config.InitialPoints, config.NumCandidates),
		dtol:      1e-3 * math.Sqrt(float64(dim)),
		result:    Result{BestValue: math.Inf(1)},
	}, nil
}

func (o *optimizer) run(ctx context.Context) (*Result, error) {
	design, err := initialDesign(o.rng, o.space, o.config.InitialPoints)
	if err != nil {
		return nil, err
	}

	o.log.Debug("initial design",
		"points", len(design),
		"dim", o.space.Dim(),
		"max_evals", o.config.MaxEvals,
		"workers", o.config.Workers,
	)

	if err := o.evaluateBatch(ctx, PhaseDesign, design); err != nil {
		return o.finish(err)
	}

	for len(o.result.Evaluations) < o.config.MaxEvals {
		if err := ctx.Err(); err != nil {
			return o.finish(err)
		}

		n := min(o.config.Workers, o.config.MaxEvals-len(o.result.Evaluations))

		if err := o.evaluateBatch(ctx, PhaseAdaptive, o.propose(n)); err != nil {
			return o.finish(err)
		}
	}

	return o.finish(nil)
}

// finish returns a copy of the accumulated result with the terminal error.
func (o *optimizer) finish(err error) (*Result, error) {
	res := o.result
	res.Best = cloneFloats(o.result.Best)
	res.Evaluations = append([]Evaluation(nil), o.result.Evaluations...)

	if err != nil {
		return &res, err
	}

	if res.Best == nil {
		return &res, ErrNoSuccessfulEvaluations
	}

	o.log.Debug("optimization finished",
		"best_value", res.BestValue,
		"evaluations", len(res.Evaluations),
		"failed", res.Failed,
	)

	return &res, nil
}

// evaluateBatch evaluates unit-cube points concurrently, at most Workers at
// a time, then records the results in proposal order.
func (o *optimizer) evaluateBatch(ctx context.Context, phase string, units [][]float64) error {
	type outcome struct {
		value    float64
		duration time.Duration
		err      error
	}

	outcomes := make([]outcome, len(units))
	points := make([][]float64, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)

	for i, u := range units {
		points[i] = o.space.fromUnit(u)

		i := i // per-iteration copy; go directive is 1.21 (pre-1.22 loop semantics)
		g.Go(func() error {
			value, duration, err := timedEvaluate(gctx, o.problem, points[i])
			outcomes[i] = outcome{value: value, duration: duration, err: err}

			// A failed evaluation never cancels its siblings.
			return nil
		})
	}

	_ = g.Wait()

	for i, u := range units {
		o.record(phase, u, Evaluation{
			Phase:    phase,
			Params:   points[i],
			Value:    outcomes[i].value,
			Err:      outcomes[i].err,
			Duration: outcomes[i].duration,
		})
	}

	return ctx.Err()
}

// record folds one evaluation into the run state.
func (o *optimizer) record(phase string, unit []float64, e Evaluation) {
	e.Index = len(o.result.Evaluations) + 1
	o.result.Evaluations = append(o.result.Evaluations, e)
	o.visited = append(o.visited, unit)

	improved := false

	if e.OK() {
		o.surrogate.Add(unit, e.Value)

		best := o.result.BestValue
		improved = o.bestUnit == nil || e.Value < best-1e-3*math.Abs(best)

		if e.Value < best {
			o.result.BestValue = e.Value
			o.result.Best = cloneFloats(e.Params)
			o.bestUnit = cloneFloats(unit)
		}
	} else {
		o.result.Failed++

		o.log.Warn("evaluation failed",
			"index", e.Index,
			"phase", phase,
			"params", e.Params,
			"error", e.Err,
		)
	}

	if phase == PhaseAdaptive {
		o.adaptiveEvals++
		o.sampler.adjust(improved)
	}

	o.sendProgress(e)
}

// propose picks n new points (unit coordinates). Later picks treat earlier
// ones as pending so a batch spreads out.
func (o *optimizer) propose(n int) [][]float64 {
	var pending [][]float64

	if o.bestUnit != nil {
		o.config.AcqParams.BestSoFar = o.result.BestValue
	}

	for len(pending) < n {
		var cands [][]float64
		if o.bestUnit == nil {
			cands = o.sampler.uniform(o.config.NumCandidates)
		} else {
			cands = o.sampler.candidates(o.bestUnit, o.adaptiveEvals)
		}

		avoid := append(append([][]float64(nil), o.visited...), pending...)

		values := make([]float64, len(cands))
		variances := make([]float64, len(cands))
		dists := make([]float64, len(cands))

		for i := range cands {
			cands[i] = o.space.snap(cands[i])
			values[i], variances[i] = o.surrogate.Predict(cands[i])
			dists[i] = minDistance(cands[i], avoid)
		}

		idx := o.rank(values, variances, dists)
		if idx < 0 {
			pending = append(pending, o.fallback(avoid))
			continue
		}

		pending = append(pending, cands[idx])
	}

	return pending
}

// rank returns the index of the most promising candidate, or -1 when every
// candidate is within dtol of a known point.
func (o *optimizer) rank(values, variances, dists []float64) int {
	acq := o.config.AcquisitionFunc
	if acq == nil {
		return dycorsMerit(values, dists, o.sampler.nextWeight(), o.dtol)
	}

	best := -1
	bestScore := math.Inf(1)

	for i := range values {
		if dists[i] < o.dtol {
			continue
		}

		if score := acq(values[i], variances[i], o.config.AcqParams); score < bestScore {
			bestScore = score
			best = i
		}
	}

	return best
}

// fallback draws uniform points until one is not a duplicate. Small integer
// spaces can run out of fresh points; then a duplicate is accepted.
func (o *optimizer) fallback(avoid [][]float64) []float64 {
	var u []float64

	for attempt := 0; attempt < 100; attempt++ {
		u = o.space.snap(o.sampler.uniform(1)[0])
		if minDistance(u, avoid) >= o.dtol {
			return u
		}
	}

	o.log.Debug("search space exhausted, re-evaluating a known point")

	return u
}

// sendProgress publishes an update without blocking.
func (o *optimizer) sendProgress(e Evaluation) {
	if o.config.ProgressChan == nil {
		return
	}

	update := ProgressUpdate{
		Phase:             e.Phase,
		CurrentIteration:  e.Index,
		TotalIterations:   o.config.MaxEvals,
		CurrentParams:     cloneFloats(e.Params),
		CurrentBestParams: cloneFloats(o.result.Best),
		CurrentBestValue:  o.result.BestValue,
		LastValue:         e.Value,
		LastErr:           e.Err,
		LastDuration:      e.Duration,
	}

	select {
	case o.config.ProgressChan <- update:
	default:
		// Skip update if channel is full.
	}
}
