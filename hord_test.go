package hord

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sphere(_ context.Context, x []float64) (float64, error) {
	var sum float64
	for _, v := range x {
		sum += v * v
	}

	return sum, nil
}

func sphereProblem(t *testing.T, dim int) Problem {
	t.Helper()

	ranges := make([]ParameterRange[float64], dim)
	for i := range ranges {
		ranges[i] = ParameterRange[float64]{Min: -5, Max: 5}
	}

	space, err := NewSpace(ranges...)
	require.NoError(t, err)

	return NewProblem(space, sphere)
}

func TestOptimizeSphere(t *testing.T) {
	config := DefaultConfig()
	config.MaxEvals = 60
	config.Seed = 7

	result, err := Optimize(context.Background(), sphereProblem(t, 2), config)
	require.NoError(t, err)

	assert.Len(t, result.Evaluations, 60)
	assert.Len(t, result.Best, 2)
	assert.Zero(t, result.Failed)
	assert.Less(t, result.BestValue, 1.0)

	// The reported best is the minimum over the history.
	lowest := math.Inf(1)
	for _, e := range result.Evaluations {
		lowest = math.Min(lowest, e.Value)
	}

	assert.Equal(t, lowest, result.BestValue)
}

func TestOptimizePhasesAndIndices(t *testing.T) {
	config := DefaultConfig()
	config.MaxEvals = 12
	config.Seed = 3

	result, err := Optimize(context.Background(), sphereProblem(t, 2), config)
	require.NoError(t, err)

	// Default design size is 2*(d+1).
	for i, e := range result.Evaluations {
		assert.Equal(t, i+1, e.Index)

		if i < 6 {
			assert.Equal(t, PhaseDesign, e.Phase)
		} else {
			assert.Equal(t, PhaseAdaptive, e.Phase)
		}
	}
}

func TestOptimizeMixedIntegerSpace(t *testing.T) {
	ints, err := NewSpace(
		ParameterRange[int]{Name: "filters", Min: 1, Max: 20},
		ParameterRange[int]{Name: "layers", Min: 1, Max: 4},
	)
	require.NoError(t, err)

	floats, err := NewSpace(ParameterRange[float64]{Name: "rate", Min: 0, Max: 1})
	require.NoError(t, err)

	space := append(floats, ints...)

	problem := NewProblem(space, func(_ context.Context, x []float64) (float64, error) {
		return math.Abs(x[0]-0.3) + math.Abs(x[1]-7) + math.Abs(x[2]-2), nil
	})

	config := DefaultConfig()
	config.MaxEvals = 40
	config.Seed = 11

	result, err := Optimize(context.Background(), problem, config)
	require.NoError(t, err)

	for _, e := range result.Evaluations {
		assert.True(t, space.Contains(e.Params), "point %v outside space", e.Params)
	}
}

func TestOptimizeProgressChannel(t *testing.T) {
	config := DefaultConfig()
	config.MaxEvals = 10
	config.Seed = 5

	progressChan := make(chan ProgressUpdate, config.MaxEvals)
	config.ProgressChan = progressChan

	_, err := Optimize(context.Background(), sphereProblem(t, 2), config)
	require.NoError(t, err)
	close(progressChan)

	var updates []ProgressUpdate
	for update := range progressChan {
		updates = append(updates, update)
	}

	require.Len(t, updates, 10)

	for i, update := range updates {
		assert.Equal(t, i+1, update.CurrentIteration)
		assert.Equal(t, 10, update.TotalIterations)
		assert.NotNil(t, update.CurrentBestParams)
	}

	// Best value never gets worse.
	for i := 1; i < len(updates); i++ {
		assert.LessOrEqual(t, updates[i].CurrentBestValue, updates[i-1].CurrentBestValue)
	}
}

func TestOptimizeProgressChannelNeverBlocks(t *testing.T) {
	config := DefaultConfig()
	config.MaxEvals = 8
	config.Seed = 5

	// Unbuffered and never read.
	config.ProgressChan = make(chan ProgressUpdate)

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, err := Optimize(context.Background(), sphereProblem(t, 2), config)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("optimization blocked on progress channel")
	}
}

func TestOptimizeFailedEvaluations(t *testing.T) {
	space, err := NewSpace(
		ParameterRange[float64]{Min: -5, Max: 5},
		ParameterRange[float64]{Min: -5, Max: 5},
	)
	require.NoError(t, err)

	errDiverged := errors.New("training diverged")

	problem := NewProblem(space, func(ctx context.Context, x []float64) (float64, error) {
		if x[0] > 2 {
			return 0, errDiverged
		}

		if x[0] < -4 {
			return math.NaN(), nil
		}

		return sphere(ctx, x)
	})

	config := DefaultConfig()
	config.MaxEvals = 40
	config.Seed = 13

	result, err := Optimize(context.Background(), problem, config)
	require.NoError(t, err)

	assert.Positive(t, result.Failed)
	assert.LessOrEqual(t, result.Best[0], 2.0)
	assert.GreaterOrEqual(t, result.Best[0], -4.0)

	failed := 0
	for _, e := range result.Evaluations {
		if !e.OK() {
			failed++
		}
	}

	assert.Equal(t, result.Failed, failed)
}

func TestOptimizeAllFailed(t *testing.T) {
	space, err := NewSpace(ParameterRange[float64]{Min: 0, Max: 1})
	require.NoError(t, err)

	problem := NewProblem(space, func(context.Context, []float64) (float64, error) {
		return 0, errors.New("boom")
	})

	config := DefaultConfig()
	config.MaxEvals = 6

	result, err := Optimize(context.Background(), problem, config)
	require.ErrorIs(t, err, ErrNoSuccessfulEvaluations)

	assert.Nil(t, result.Best)
	assert.Equal(t, 6, result.Failed)
	assert.Len(t, result.Evaluations, 6)
}

func TestOptimizeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	space, err := NewSpace(ParameterRange[float64]{Min: -1, Max: 1})
	require.NoError(t, err)

	var calls int32

	problem := NewProblem(space, func(ctx context.Context, x []float64) (float64, error) {
		if atomic.AddInt32(&calls, 1) == 5 {
			cancel()
		}

		return x[0] * x[0], nil
	})

	config := DefaultConfig()
	config.MaxEvals = 50

	result, err := Optimize(ctx, problem, config)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	assert.Less(t, len(result.Evaluations), 50)
	assert.NotNil(t, result.Best)
}

func TestOptimizeWorkersBound(t *testing.T) {
	var active, peak int32

	space, err := NewSpace(
		ParameterRange[float64]{Min: -5, Max: 5},
		ParameterRange[float64]{Min: -5, Max: 5},
	)
	require.NoError(t, err)

	problem := NewProblem(space, func(ctx context.Context, x []float64) (float64, error) {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)

		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}

		time.Sleep(5 * time.Millisecond)

		return sphere(ctx, x)
	})

	config := DefaultConfig()
	config.MaxEvals = 21
	config.Workers = 3
	config.Seed = 17

	result, err := Optimize(context.Background(), problem, config)
	require.NoError(t, err)

	assert.Len(t, result.Evaluations, 21)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.Greater(t, atomic.LoadInt32(&peak), int32(1))
}

func TestOptimizeGaussianProcessWithAcquisition(t *testing.T) {
	for name, acq := range map[string]AcquisitionFunc{
		"ucb":      UCB,
		"pi":       ProbabilityOfImprovement,
		"ei":       ExpectedImprovement,
		"thompson": ThompsonSampling,
	} {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfig()
			config.MaxEvals = 25
			config.Seed = 19
			config.Surrogate = SurrogateGP
			config.KernelWidth = 0.3
			config.AcquisitionFunc = acq

			result, err := Optimize(context.Background(), sphereProblem(t, 2), config)
			require.NoError(t, err)

			assert.Len(t, result.Evaluations, 25)
			assert.Less(t, result.BestValue, 50.0)
		})
	}
}

func TestOptimizeInvalidInput(t *testing.T) {
	problem := sphereProblem(t, 2)

	tests := map[string]func(*OptimizationConfig){
		"zero evals":        func(c *OptimizationConfig) { c.MaxEvals = 0 },
		"zero workers":      func(c *OptimizationConfig) { c.Workers = 0 },
		"design too large":  func(c *OptimizationConfig) { c.MaxEvals = 5; c.InitialPoints = 6 },
		"unknown surrogate": func(c *OptimizationConfig) { c.Surrogate = "kriging" },
		"negative cands":    func(c *OptimizationConfig) { c.NumCandidates = -1 },
		"negative width":    func(c *OptimizationConfig) { c.KernelWidth = -0.1 },
		"NaN width":         func(c *OptimizationConfig) { c.KernelWidth = math.NaN() },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfig()
			mutate(&config)

			_, err := Optimize(context.Background(), problem, config)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := Optimize(context.Background(), nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Optimize(context.Background(), NewProblem(Space{}, sphere), DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidSpace)
}

func TestOptimizeBudgetSmallerThanDefaultDesign(t *testing.T) {
	config := DefaultConfig()
	config.MaxEvals = 3

	result, err := Optimize(context.Background(), sphereProblem(t, 4), config)
	require.NoError(t, err)

	assert.Len(t, result.Evaluations, 3)
}
