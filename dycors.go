package hord

import (
	"math"
	"math/rand"
)

// DYCORS step-size schedule, in unit-cube coordinates.
const (
	sigmaInit = 0.2
	sigmaMin  = sigmaInit * (1.0 / 64) // six halvings
	succTol   = 3
)

// dycorsWeights is the surrogate-weight cycle; later entries favour the
// surrogate over spreading out.
var dycorsWeights = []float64{0.3, 0.5, 0.8, 0.95}

// dycorsSampler generates candidate points by perturbing a subset of the
// coordinates of the current best point, with a perturbation probability
// that decays over the run and a step size that adapts to consecutive
// successes and failures.
type dycorsSampler struct {
	rng *rand.Rand

	dim           int
	budget        int
	numCandidates int

	sigma     float64
	failTol   int
	failCount int
	succCount int

	weightIdx int
}

func newDYCORSSampler(rng *rand.Rand, dim, budget, numCandidates int) *dycorsSampler {
	return &dycorsSampler{
		rng:           rng,
		dim:           dim,
		budget:        budget,
		numCandidates: numCandidates,
		sigma:         sigmaInit,
		failTol:       max(dim, 5),
	}
}

// perturbProbability is min(20/d, 1) * (1 - ln(k+1)/ln(budget)), floored at
// 1/d so that about one coordinate moves late in the run.
func (s *dycorsSampler) perturbProbability(adaptiveEvals int) float64 {
	p := math.Min(20.0/float64(s.dim), 1.0)

	if s.budget > 1 {
		p *= 1.0 - math.Log(float64(adaptiveEvals+1))/math.Log(float64(s.budget))
	}

	return math.Max(p, 1.0/float64(s.dim))
}

// candidates perturbs center (unit coordinates). Every candidate moves at
// least one coordinate; moves are reflected back into the cube.
func (s *dycorsSampler) candidates(center []float64, adaptiveEvals int) [][]float64 {
	p := s.perturbProbability(adaptiveEvals)

	out := make([][]float64, s.numCandidates)
	for c := range out {
		cand := cloneFloats(center)

		moved := false
		for k := range cand {
			if s.rng.Float64() < p {
				cand[k] = reflect(cand[k] + s.sigma*s.rng.NormFloat64())
				moved = true
			}
		}

		if !moved {
			k := s.rng.Intn(s.dim)
			cand[k] = reflect(cand[k] + s.sigma*s.rng.NormFloat64())
		}

		out[c] = cand
	}

	return out
}

// uniform draws n points uniformly from the unit cube. Used when there is no
// successful point to perturb yet.
func (s *dycorsSampler) uniform(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, s.dim)
		for k := range out[i] {
			out[i][k] = s.rng.Float64()
		}
	}

	return out
}

// adjust updates the step size after an adaptive evaluation.
func (s *dycorsSampler) adjust(improved bool) {
	if improved {
		s.succCount++
		s.failCount = 0
	} else {
		s.failCount++
		s.succCount = 0
	}

	switch {
	case s.failCount >= s.failTol:
		s.failCount = 0
		s.sigma = math.Max(s.sigma/2, sigmaMin)
	case s.succCount >= succTol:
		s.succCount = 0
		s.sigma = math.Min(s.sigma*2, sigmaInit)
	}
}

// nextWeight returns the next surrogate weight of the cycle.
func (s *dycorsSampler) nextWeight() float64 {
	w := dycorsWeights[s.weightIdx%len(dycorsWeights)]
	s.weightIdx++

	return w
}

// reflect folds v back into [0, 1] across the nearest face.
func reflect(v float64) float64 {
	if v < 0 {
		v = -v
	}

	if v > 1 {
		v = 2 - v
	}

	return clamp(v, 0, 1)
}
