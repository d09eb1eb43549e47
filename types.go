package hord

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/exp/constraints"
)

//////
// Const, vars, types.
//////

// Phases reported in ProgressUpdate and Evaluation.
const (
	// PhaseDesign is the initial experimental design (symmetric Latin
	// hypercube) evaluated before any surrogate guidance.
	PhaseDesign = "InitialDesign"

	// PhaseAdaptive is the surrogate-guided DYCORS phase.
	PhaseAdaptive = "Optimization"
)

// SurrogateKind selects the response surface used to guide the search.
type SurrogateKind string

const (
	// SurrogateRBF is a cubic radial basis function interpolant with a linear
	// tail. This is the HORD default.
	SurrogateRBF SurrogateKind = "rbf"

	// SurrogateGP is a kernel regressor with Gaussian-process style variance,
	// meant to be paired with an AcquisitionFunc.
	SurrogateGP SurrogateKind = "gp"
)

// ProgressUpdate represents the state of the optimization after one
// evaluation finished.
type ProgressUpdate struct {
	// Phase indicates whether we're in the initial design or optimization phase
	Phase string

	// CurrentIteration is the 1-based index of the evaluation that finished
	CurrentIteration int

	// TotalIterations is the evaluation budget (MaxEvals)
	TotalIterations int

	// CurrentParams holds the parameter values that were tested
	CurrentParams []float64

	// CurrentBestParams holds the best parameters found so far. Nil until
	// the first successful evaluation.
	CurrentBestParams []float64

	// CurrentBestValue holds the best objective value found so far
	CurrentBestValue float64

	// LastValue holds the objective value of the last evaluation
	LastValue float64

	// LastErr is non-nil when the last evaluation failed
	LastErr error

	// LastDuration is the wall time of the last evaluation
	LastDuration time.Duration
}

// ParameterRange defines the valid range for a hyperparameter in the
// optimization process.
//
// Type Parameter:
//   - T: The numeric type for this parameter range. Integer types produce
//     integer dimensions, float types continuous ones.
//
// Fields:
// - Name: Optional label used in logs and reports
// - Min: The minimum (inclusive) value for this hyperparameter
// - Max: The maximum (inclusive) value for this hyperparameter
//
// Usage:
//
//	filters := ParameterRange[int]{Name: "filters", Min: 4, Max: 32}
//	dropout := ParameterRange[float64]{Name: "dropout", Min: 0, Max: 0.6}
//
// Validation:
// - Min must be strictly less than Max
type ParameterRange[T constraints.Integer | constraints.Float] struct {
	// Name labels the hyperparameter.
	Name string

	// Min defines the minimum allowed value (inclusive) for this hyperparameter.
	Min T

	// Max defines the maximum allowed value (inclusive) for this hyperparameter.
	Max T
}

// Problem is a black-box objective to be minimized over a Space.
//
// Evaluate receives a point that lies within the declared bounds, with
// integer dimensions already rounded. It may be called concurrently from
// several workers when OptimizationConfig.Workers > 1.
type Problem interface {
	Space() Space
	Evaluate(ctx context.Context, x []float64) (float64, error)
}

// ObjectiveFunc is the signature of a plain objective function.
type ObjectiveFunc func(ctx context.Context, x []float64) (float64, error)

// AcquisitionFunc scores a candidate from the surrogate's prediction.
//
// Parameters:
// - mean: The predicted objective value at a point (lower is better)
// - variance: The predicted variance/uncertainty at that point
// - params: Additional parameters needed by specific acquisition functions
//
// Returns:
// - float64: Acquisition value (lower values indicate more promising points)
//
// Built-in acquisition functions:
// - UCB: Upper Confidence Bound
// - ProbabilityOfImprovement: Probability of finding better value
// - ExpectedImprovement: Expected magnitude of improvement
// - ThompsonSampling: Random sampling from posterior
//
// Implementation notes for custom acquisition functions:
// - Should handle zero variance
// - Should return lower values for more promising points
type AcquisitionFunc func(mean, variance float64, params AcquisitionParams) float64

// AcquisitionParams holds parameters used by the acquisition functions.
type AcquisitionParams struct {
	// Beta controls the exploration-exploitation trade-off in UCB.
	// Typical values range from 0.1 to 5.0, with 2.0 being a good default.
	Beta float64

	// Xi is the minimum improvement over BestSoFar sought by PI and EI.
	// Typical values range from 0.01 to 0.1.
	Xi float64

	// BestSoFar is the best (lowest) objective value seen so far. The
	// optimizer keeps it current; the initial value is ignored.
	BestSoFar float64

	// RandomState is the random number generator used by Thompson Sampling.
	// When nil, the optimizer installs its own seeded generator.
	RandomState *rand.Rand
}

// OptimizationConfig holds all configuration parameters for a HORD run.
//
// Usage example:
//
//	config := DefaultConfig()
//	config.MaxEvals = 100
//	config.Workers = 4
//	config.ProgressChan = progress
//
// Notes:
//   - The total number of objective evaluations is exactly MaxEvals unless
//     the context is cancelled.
//   - Create separate configs for parallel optimizations.
type OptimizationConfig struct {
	// MaxEvals is the total evaluation budget, design included.
	MaxEvals int

	// Workers is the number of objective evaluations run concurrently.
	Workers int

	// InitialPoints is the size of the symmetric Latin hypercube design.
	// Zero means 2*(d+1).
	InitialPoints int

	// NumCandidates is the number of DYCORS candidates generated per proposal.
	// Zero means min(100*d, 5000).
	NumCandidates int

	// Surrogate selects the response surface. Empty means SurrogateRBF.
	Surrogate SurrogateKind

	// KernelWidth is the kernel width of SurrogateGP in unit coordinates.
	// Zero means 0.25.
	KernelWidth float64

	// AcquisitionFunc, when set, replaces the DYCORS weighted-distance merit
	// for ranking candidates.
	AcquisitionFunc AcquisitionFunc

	// AcqParams holds the parameters for the acquisition function.
	AcqParams AcquisitionParams

	// Seed seeds the optimizer's random source. Zero means time based.
	Seed int64

	// ProgressChan is used to send progress updates during optimization.
	// If nil, no updates will be sent. Sends never block; updates are
	// dropped when the channel is full.
	ProgressChan chan<- ProgressUpdate

	// Logger receives debug/warn records. Nil discards them.
	Logger *slog.Logger
}

// Evaluation is one attempted objective evaluation.
type Evaluation struct {
	Index    int
	Phase    string
	Params   []float64
	Value    float64
	Err      error
	Duration time.Duration
}

// OK reports whether the evaluation produced a usable value.
func (e Evaluation) OK() bool {
	return e.Err == nil
}

// Result is the outcome of Optimize.
type Result struct {
	// Best is the best point found. Nil if no evaluation succeeded.
	Best []float64

	// BestValue is the objective value at Best.
	BestValue float64

	// Evaluations lists every attempted evaluation in proposal order.
	Evaluations []Evaluation

	// Failed counts evaluations that returned an error or a non-finite value.
	Failed int
}
