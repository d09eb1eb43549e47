package hord

import "math"

//////
// Candidate ranking.
// Each function scores a candidate from the surrogate's (mean, variance)
// prediction. Lower scores win, since every problem is a minimization.
//////

// minVariance keeps PI and EI finite for interpolating surrogates.
const minVariance = 1e-12

// UCB implements the (lower) confidence bound acquisition function.
//
// How it works:
// - Combines the predicted mean with the uncertainty (variance)
// - The Beta parameter controls the trade-off between exploration and exploitation
//
// Example:
//
//	params := AcquisitionParams{Beta: 2.0}
//	value := UCB(0.5, 0.2, params)
func UCB(mean, variance float64, params AcquisitionParams) float64 {
	return mean - params.Beta*math.Sqrt(math.Max(variance, 0))
}

// ProbabilityOfImprovement (PI) scores a point by the probability that it
// improves on BestSoFar by at least Xi. The probability is negated so that
// likelier improvements rank first.
//
// When to use:
// - When small, reliable improvements are preferred
// - In problems where being "probably better" matters more than "how much better"
func ProbabilityOfImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(math.Max(variance, minVariance))

	z := (params.BestSoFar - mean - params.Xi) / sigma

	return -normalCDF(z)
}

// ExpectedImprovement (EI) scores a point by the expected amount it improves
// on BestSoFar, negated.
//
// How it works:
// - Combines the probability of improvement with the magnitude of improvement
// - Often provides better exploration than PI
//
// Example:
//
//	params := AcquisitionParams{BestSoFar: 1.0, Xi: 0.01}
//	expected := ExpectedImprovement(0.9, 0.2, params)
func ExpectedImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(math.Max(variance, minVariance))

	improvement := params.BestSoFar - mean - params.Xi
	z := improvement / sigma

	return -(improvement*normalCDF(z) + sigma*normalPDF(z))
}

// ThompsonSampling draws a sample from the predictive distribution.
//
// Warning:
//   - params.RandomState must be set. The optimizer installs its own when
//     the config leaves it nil.
func ThompsonSampling(mean, variance float64, params AcquisitionParams) float64 {
	return mean + math.Sqrt(math.Max(variance, 0))*params.RandomState.NormFloat64()
}

// AcquisitionByName resolves the names accepted in configuration files.
// "dycors" and "" resolve to nil, which selects the DYCORS merit.
func AcquisitionByName(name string) (AcquisitionFunc, bool) {
	switch name {
	case "", "dycors":
		return nil, true
	case "ucb":
		return UCB, true
	case "pi":
		return ProbabilityOfImprovement, true
	case "ei":
		return ExpectedImprovement, true
	case "thompson":
		return ThompsonSampling, true
	default:
		return nil, false
	}
}

// dycorsMerit ranks candidates by the DYCORS weighted score: a blend of the
// scaled surrogate value and the scaled distance to already chosen points.
//
// Parameters:
//   - values: Surrogate predictions for each candidate
//   - dists: Minimum distance from each candidate to evaluated or pending points
//   - weight: Surrogate weight in [0, 1]; 1 is pure exploitation
//   - dtol: Candidates closer than this are disqualified
//
// Returns:
// - int: Index of the winning candidate, or -1 if every candidate was too close
func dycorsMerit(values, dists []float64, weight, dtol float64) int {
	scaledValues := append([]float64(nil), values...)
	unitScale(scaledValues)

	scaledDists := append([]float64(nil), dists...)

	// +Inf distances (no points yet) would collapse the scaling.
	for i, d := range scaledDists {
		if math.IsInf(d, 1) {
			scaledDists[i] = 1
		}
	}

	unitScale(scaledDists)

	best := -1
	bestScore := math.Inf(1)

	for i := range values {
		if dists[i] < dtol {
			continue
		}

		score := weight*scaledValues[i] + (1-weight)*(1-scaledDists[i])
		if score < bestScore {
			bestScore = score
			best = i
		}
	}

	return best
}
