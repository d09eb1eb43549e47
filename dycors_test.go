package hord

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDYCORSCandidatesStayInCube(t *testing.T) {
	s := newDYCORSSampler(rand.New(rand.NewSource(1)), 4, 100, 200)
	center := []float64{0.01, 0.99, 0.5, 0.5}

	cands := s.candidates(center, 10)
	assert.Len(t, cands, 200)

	for _, c := range cands {
		moved := false

		for k, v := range c {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)

			if v != center[k] {
				moved = true
			}
		}

		assert.True(t, moved, "candidate equals center")
	}

	// The center is not modified.
	assert.Equal(t, []float64{0.01, 0.99, 0.5, 0.5}, center)
}

func TestDYCORSPerturbProbabilityDecays(t *testing.T) {
	s := newDYCORSSampler(rand.New(rand.NewSource(1)), 40, 200, 10)

	early := s.perturbProbability(0)
	late := s.perturbProbability(199)

	assert.InDelta(t, 0.5, early, 1e-12)
	assert.Less(t, late, early)
	assert.GreaterOrEqual(t, late, 1.0/40)
}

func TestDYCORSAdjustStepSize(t *testing.T) {
	s := newDYCORSSampler(rand.New(rand.NewSource(1)), 2, 100, 10)
	assert.Equal(t, 5, s.failTol)

	for i := 0; i < 5; i++ {
		s.adjust(false)
	}

	assert.InDelta(t, sigmaInit/2, s.sigma, 1e-12)

	for i := 0; i < 3; i++ {
		s.adjust(true)
	}

	assert.InDelta(t, sigmaInit, s.sigma, 1e-12)

	// Never above the initial step.
	for i := 0; i < 3; i++ {
		s.adjust(true)
	}

	assert.InDelta(t, sigmaInit, s.sigma, 1e-12)

	// Never below the minimum step.
	for i := 0; i < 100; i++ {
		s.adjust(false)
	}

	assert.InDelta(t, sigmaMin, s.sigma, 1e-12)
}

func TestDYCORSWeightsCycle(t *testing.T) {
	s := newDYCORSSampler(rand.New(rand.NewSource(1)), 2, 100, 10)

	var got []float64
	for i := 0; i < 6; i++ {
		got = append(got, s.nextWeight())
	}

	assert.Equal(t, []float64{0.3, 0.5, 0.8, 0.95, 0.3, 0.5}, got)
}

func TestReflect(t *testing.T) {
	assert.InDelta(t, 0.2, reflect(-0.2), 1e-12)
	assert.InDelta(t, 0.7, reflect(1.3), 1e-12)
	assert.Equal(t, 0.0, reflect(-3))
	assert.Equal(t, 0.5, reflect(0.5))
}
