package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalesfsp/hord"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "oneshot.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 120, cfg.Run.MaxEvals)
	assert.Equal(t, 4, cfg.Run.Workers)
	assert.Equal(t, ProblemOneShot, cfg.Problem.Kind)
	assert.Equal(t, "./data/fashion", cfg.Problem.OneShot.DataDir)
	assert.Equal(t, 500, cfg.Problem.OneShot.AuxiliarySamples)
	assert.Equal(t, "results/hord.db", cfg.Store.SQLitePath)

	// Omitted keys keep their defaults.
	assert.Equal(t, "train", cfg.Problem.OneShot.TrainKind)
	assert.Equal(t, "t10k", cfg.Problem.OneShot.TestKind)
	assert.Equal(t, 32, cfg.Problem.OneShot.BatchSize)
	assert.Equal(t, 2.0, cfg.Run.Beta)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, Default(), *cfg)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("run:\n  max_eval: 10\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := map[string]string{
		"log level":        "log_level: loud\n",
		"log format":       "log_format: xml\n",
		"max evals":        "run:\n  max_evals: 0\n",
		"workers":          "run:\n  workers: -1\n",
		"initial points":   "run:\n  max_evals: 5\n  initial_points: 6\n",
		"candidates":       "run:\n  num_candidates: -2\n",
		"kernel width":     "run:\n  kernel_width: -0.5\n",
		"surrogate":        "run:\n  surrogate: kriging\n",
		"acquisition":      "run:\n  acquisition: greedy\n",
		"kind":             "problem:\n  kind: rosenbrock\n",
		"ackley dim":       "problem:\n  ackley:\n    dim: 0\n",
		"ackley integer":   "problem:\n  ackley:\n    dim: 2\n    integer: [2]\n",
		"oneshot data dir": "problem:\n  kind: oneshot\n",
		"oneshot folds":    "problem:\n  kind: oneshot\n  oneshot:\n    data_dir: d\n    folds: 0\n",
		"oneshot aux":      "problem:\n  kind: oneshot\n  oneshot:\n    data_dir: d\n    auxiliary_samples: -1\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestOptimization(t *testing.T) {
	cfg, err := Parse([]byte("run:\n  max_evals: 30\n  workers: 3\n  surrogate: gp\n  kernel_width: 0.4\n  acquisition: ucb\n  beta: 1.5\n  seed: 9\n"))
	require.NoError(t, err)

	opt := cfg.Run.Optimization()

	assert.Equal(t, 30, opt.MaxEvals)
	assert.Equal(t, 3, opt.Workers)
	assert.Equal(t, int64(9), opt.Seed)
	assert.Equal(t, hord.SurrogateGP, opt.Surrogate)
	assert.Equal(t, 0.4, opt.KernelWidth)
	assert.Equal(t, 1.5, opt.AcqParams.Beta)
	require.NotNil(t, opt.AcquisitionFunc)

	// UCB with beta 1.5 at mean 1, variance 4.
	assert.InDelta(t, -2.0, opt.AcquisitionFunc(1, 4, opt.AcqParams), 1e-12)

	assert.Nil(t, Default().Run.Optimization().AcquisitionFunc)
}

func TestOneShotProblem(t *testing.T) {
	s := Default().Problem.OneShot
	s.AuxiliarySamples = 10
	s.Seed = 4

	p := s.Problem()

	assert.Equal(t, 5, p.TargetClasses)
	assert.Equal(t, 1, p.ExamplesPerClass)
	assert.Equal(t, 10, p.AuxiliarySamples)
	assert.Equal(t, int64(4), p.Seed)
}
