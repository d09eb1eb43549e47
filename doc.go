// Package hord provides derivative-free hyperparameter optimization with the
// HORD method: a radial basis function surrogate steering DYCORS candidate
// search, started from a symmetric Latin hypercube design.
//
// # Features
//
// The package includes the following key features:
//
//   - Surrogate-guided search: a cubic RBF interpolant with linear tail (or a
//     Gaussian-process style kernel regressor) predicts the objective between
//     evaluated points
//   - DYCORS sampling: candidates perturb a shrinking subset of the best
//     point's coordinates, with a step size that adapts to successes and
//     failures
//   - Mixed spaces: integer and continuous hyperparameters in one Space
//   - Concurrent evaluation: a bounded worker pool evaluates batches of
//     proposals
//   - Acquisition functions: Upper Confidence Bound (UCB), Probability of
//     Improvement (PI), Expected Improvement (EI), and Thompson Sampling can
//     replace the DYCORS merit
//   - Progress Monitoring: real-time updates via channels
//   - Failure tolerance: failed evaluations are recorded and kept out of the
//     surrogate
//
// # Quick start
//
//	space, _ := hord.NewSpace(
//	    hord.ParameterRange[float64]{Name: "x", Min: -5, Max: 5},
//	    hord.ParameterRange[float64]{Name: "y", Min: -5, Max: 5},
//	)
//
//	problem := hord.NewProblem(space, func(_ context.Context, x []float64) (float64, error) {
//	    return x[0]*x[0] + x[1]*x[1], nil
//	})
//
//	config := hord.DefaultConfig()
//	config.MaxEvals = 100
//	config.Workers = 4
//
//	result, err := hord.Optimize(ctx, problem, config)
//
// # Acquisition Functions
//
// By default candidates are ranked by the DYCORS merit, cycling the
// surrogate weight through 0.3, 0.5, 0.8 and 0.95. To rank by an acquisition
// function instead, usually with the GP surrogate:
//
//	config := DefaultConfig()
//	config.Surrogate = SurrogateGP
//	config.AcquisitionFunc = ExpectedImprovement
//	config.AcqParams.Xi = 0.01
//
// # Configuration
//
// Recommended settings:
//   - MaxEvals: 50-500 (each evaluation may train a network)
//   - Workers: number of evaluations that fit on the machine at once
//   - InitialPoints: leave at 0 for 2*(d+1)
//
// # Thread Safety
//
//   - Problem.Evaluate is called from up to Workers goroutines at once
//   - Surrogates are safe for concurrent Add/Predict
//   - Progress channel sends never block
package hord
