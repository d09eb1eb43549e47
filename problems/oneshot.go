package problems

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/thalesfsp/hord"
	"github.com/thalesfsp/hord/internal/convnet"
	"github.com/thalesfsp/hord/internal/mnist"
)

// ErrInvalidOneShot is returned for unusable one-shot settings.
var ErrInvalidOneShot = errors.New("invalid one-shot config")

// Evaluator trains a model with the given hyperparameters and returns its
// accuracy on test. convnet.Runner is the production implementation.
type Evaluator interface {
	Evaluate(ctx context.Context, hp convnet.Hyperparams, train, test mnist.Dataset) (float64, error)
}

// OneShotConfig controls how each experiment samples and scores data.
type OneShotConfig struct {
	// TargetClasses is the number of classes sampled per fold.
	TargetClasses int

	// ExamplesPerClass is the number of labeled training examples per class.
	ExamplesPerClass int

	// Folds is the number of independent splits averaged per experiment.
	Folds int

	// AuxiliarySamples adds that many random examples of the non-target
	// classes to each training set. Zero trains on the one-shot examples only.
	AuxiliarySamples int

	// MaxTestExamples caps the test examples scored per fold. Zero scores all.
	MaxTestExamples int

	// BatchSize is the training mini-batch size.
	BatchSize int

	// Seed seeds split sampling and network training. Zero means time based.
	Seed int64
}

// DefaultOneShotConfig returns 5-way, 1-shot, 3-fold settings.
func DefaultOneShotConfig() OneShotConfig {
	return OneShotConfig{
		TargetClasses:    5,
		ExamplesPerClass: 1,
		Folds:            3,
		MaxTestExamples:  1000,
		BatchSize:        32,
	}
}

// Hyperparameter order in the search space.
const (
	dimLearningRate = iota
	dimDropout
	dimFilters1
	dimFilters2
	dimDense
	dimEpochs
)

// OneShot is the one-shot image classification objective. Each evaluation
// decodes a hyperparameter vector, then for every fold samples a fresh
// split, trains a network on the labeled examples and scores it on the test
// examples of the target classes. The objective is 1 - mean accuracy.
type OneShot struct {
	cfg    OneShotConfig
	train  mnist.Dataset
	test   mnist.Dataset
	runner Evaluator
	log    *slog.Logger
	space  hord.Space

	counter Counter
	seed    int64
}

// NewOneShot validates cfg and builds the problem. A nil logger discards.
func NewOneShot(train, test mnist.Dataset, runner Evaluator, cfg OneShotConfig, log *slog.Logger) (*OneShot, error) {
	switch {
	case runner == nil:
		return nil, fmt.Errorf("%w: nil evaluator", ErrInvalidOneShot)
	case cfg.TargetClasses < 1 || cfg.ExamplesPerClass < 1 || cfg.Folds < 1 || cfg.BatchSize < 1:
		return nil, fmt.Errorf("%w: target classes, examples per class, folds and batch size must be positive", ErrInvalidOneShot)
	case cfg.AuxiliarySamples < 0 || cfg.MaxTestExamples < 0:
		return nil, fmt.Errorf("%w: auxiliary samples and max test examples cannot be negative", ErrInvalidOneShot)
	case train.Len() == 0 || test.Len() == 0:
		return nil, fmt.Errorf("%w: empty dataset", ErrInvalidOneShot)
	}

	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	continuous, err := hord.NewSpace(
		hord.ParameterRange[float64]{Name: "log10_learning_rate", Min: -4, Max: -1},
		hord.ParameterRange[float64]{Name: "dropout", Min: 0, Max: 0.6},
	)
	if err != nil {
		return nil, err
	}

	discrete, err := hord.NewSpace(
		hord.ParameterRange[int]{Name: "filters1", Min: 4, Max: 32},
		hord.ParameterRange[int]{Name: "filters2", Min: 8, Max: 64},
		hord.ParameterRange[int]{Name: "dense", Min: 16, Max: 256},
		hord.ParameterRange[int]{Name: "epochs", Min: 5, Max: 50},
	)
	if err != nil {
		return nil, err
	}

	return &OneShot{
		cfg:    cfg,
		train:  train,
		test:   test,
		runner: runner,
		log:    log,
		space:  append(continuous, discrete...),
		seed:   seed,
	}, nil
}

// Space implements hord.Problem.
func (p *OneShot) Space() hord.Space { return p.space }

// Decode maps a point of the space to network hyperparameters.
func (p *OneShot) Decode(x []float64) convnet.Hyperparams {
	return convnet.Hyperparams{
		LearningRate: math.Pow(10, x[dimLearningRate]),
		Dropout:      x[dimDropout],
		Filters1:     int(math.Round(x[dimFilters1])),
		Filters2:     int(math.Round(x[dimFilters2])),
		Dense:        int(math.Round(x[dimDense])),
		Epochs:       int(math.Round(x[dimEpochs])),
		BatchSize:    p.cfg.BatchSize,
	}
}

// Evaluate implements hord.Problem.
func (p *OneShot) Evaluate(ctx context.Context, x []float64) (float64, error) {
	if len(x) != p.space.Dim() {
		return 0, fmt.Errorf("oneshot: got %d coordinates, want %d", len(x), p.space.Dim())
	}

	id := p.counter.Next()
	hp := p.Decode(x)
	start := time.Now()

	rng := rand.New(rand.NewSource(p.experimentSeed(x)))

	var total float64

	for fold := 0; fold < p.cfg.Folds; fold++ {
		split, err := mnist.SplitOneShot(p.train, p.test, p.cfg.TargetClasses, p.cfg.ExamplesPerClass, rng)
		if err != nil {
			return 0, fmt.Errorf("experiment %d fold %d: %w", id, fold, err)
		}

		train := split.Labeled
		if p.cfg.AuxiliarySamples > 0 {
			train = train.Concat(mnist.Sample(split.Auxiliary, p.cfg.AuxiliarySamples, rng))
		}

		test := split.Test
		if p.cfg.MaxTestExamples > 0 {
			test = mnist.Sample(test, p.cfg.MaxTestExamples, rng)
		}

		hp.Seed = rng.Int63()

		acc, err := p.runner.Evaluate(ctx, hp, train, test)
		if err != nil {
			return 0, fmt.Errorf("experiment %d fold %d: %w", id, fold, err)
		}

		p.log.Debug("fold finished",
			"experiment", id,
			"fold", fold,
			"classes", split.TargetClasses,
			"accuracy", acc,
		)

		total += acc
	}

	accuracy := total / float64(p.cfg.Folds)

	p.log.Info("experiment finished",
		"experiment", id,
		"learning_rate", hp.LearningRate,
		"dropout", hp.Dropout,
		"filters1", hp.Filters1,
		"filters2", hp.Filters2,
		"dense", hp.Dense,
		"epochs", hp.Epochs,
		"accuracy", accuracy,
		"duration", time.Since(start),
	)

	return 1 - accuracy, nil
}

// experimentSeed mixes the configured seed with the point, so an
// experiment's splits and training do not depend on which worker ran it or
// when.
func (p *OneShot) experimentSeed(x []float64) int64 {
	h := fnv.New64a()

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(p.seed))
	h.Write(buf[:])

	for _, v := range x {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	return int64(h.Sum64())
}

// Experiments returns the number of experiments started.
func (p *OneShot) Experiments() int64 { return p.counter.Count() }
