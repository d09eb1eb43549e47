// Package convnet builds, trains and scores the small convolutional network
// used by the one-shot objective.
//
// Architecture:
//
//	conv 3x3 (Filters1) -> ReLU -> maxpool 2x2
//	conv 3x3 (Filters2) -> ReLU -> maxpool 2x2
//	flatten -> dense (Dense) -> ReLU -> dropout -> dense (classes) -> softmax
package convnet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/thalesfsp/hord/internal/mnist"
)

var dt = tensor.Float64

var (
	// ErrInvalidHyperparams is returned for hyperparameters the network
	// cannot be built with.
	ErrInvalidHyperparams = errors.New("convnet: invalid hyperparameters")

	// ErrDiverged is returned when the training loss becomes NaN or infinite.
	ErrDiverged = errors.New("convnet: training diverged")
)

// Hyperparams configures one network and its training run.
type Hyperparams struct {
	LearningRate float64
	Dropout      float64
	Filters1     int
	Filters2     int
	Dense        int
	Epochs       int
	BatchSize    int

	// Seed drives weight initialization and batch shuffling. Dropout masks
	// draw from gorgonia's own source.
	Seed int64
}

// Validate reports hyperparameters that cannot build or train a network.
func (h Hyperparams) Validate() error {
	switch {
	case h.LearningRate <= 0 || math.IsNaN(h.LearningRate):
		return fmt.Errorf("%w: learning rate %v", ErrInvalidHyperparams, h.LearningRate)
	case h.Dropout < 0 || h.Dropout >= 1:
		return fmt.Errorf("%w: dropout %v not in [0, 1)", ErrInvalidHyperparams, h.Dropout)
	case h.Filters1 < 1 || h.Filters2 < 1 || h.Dense < 1:
		return fmt.Errorf("%w: layer sizes %d/%d/%d", ErrInvalidHyperparams, h.Filters1, h.Filters2, h.Dense)
	case h.Epochs < 1 || h.BatchSize < 1:
		return fmt.Errorf("%w: epochs %d, batch size %d", ErrInvalidHyperparams, h.Epochs, h.BatchSize)
	}

	return nil
}

// Runner trains a fresh network per call and reports its test accuracy.
type Runner struct {
	// Classes is the number of output units. Zero means mnist.NumClasses.
	Classes int

	// EvalBatch is the batch size of the evaluation graph. Zero means 100.
	EvalBatch int
}

// Evaluate trains a network with hp on train and returns its accuracy on
// test. Labels must lie in [0, Classes).
func (r Runner) Evaluate(ctx context.Context, hp Hyperparams, train, test mnist.Dataset) (float64, error) {
	if err := hp.Validate(); err != nil {
		return 0, err
	}

	if train.Len() == 0 || test.Len() == 0 {
		return 0, fmt.Errorf("convnet: empty dataset (train %d, test %d)", train.Len(), test.Len())
	}

	if train.Rows < 4 || train.Cols < 4 {
		return 0, fmt.Errorf("convnet: images of %dx%d are too small for two pooling layers", train.Rows, train.Cols)
	}

	classes := r.Classes
	if classes == 0 {
		classes = mnist.NumClasses
	}

	weights, err := fit(ctx, hp, train, classes)
	if err != nil {
		return 0, err
	}

	evalBatch := r.EvalBatch
	if evalBatch == 0 {
		evalBatch = 100
	}

	return score(ctx, hp, weights, test, classes, evalBatch)
}

//////
// Graph construction.
//////

type model struct {
	w0, w1, w2, w3 *G.Node
	out            *G.Node
}

func (m *model) learnables() G.Nodes {
	return G.Nodes{m.w0, m.w1, m.w2, m.w3}
}

// newModel declares the weights on g. With init nil they are Glorot
// initialized from rng, otherwise they take the given values in learnables
// order.
func newModel(g *G.ExprGraph, hp Hyperparams, rows, cols, classes int, init []G.Value, rng *rand.Rand) *model {
	flat := hp.Filters2 * (rows / 4) * (cols / 4)

	weight := func(i int, name string, shape ...int) *G.Node {
		var v G.Value
		if init != nil {
			v = init[i]
		} else {
			v = glorot(rng, shape...)
		}

		return G.NewTensor(g, dt, len(shape), G.WithShape(shape...), G.WithName(name), G.WithValue(v))
	}

	return &model{
		w0: weight(0, "w0", hp.Filters1, 1, 3, 3),
		w1: weight(1, "w1", hp.Filters2, hp.Filters1, 3, 3),
		w2: weight(2, "w2", flat, hp.Dense),
		w3: weight(3, "w3", hp.Dense, classes),
	}
}

// fwd wires the forward pass from x (batch, 1, rows, cols). A zero dropout
// omits the dropout op, which is how the evaluation graph is built.
func (m *model) fwd(x *G.Node, dropout float64) error {
	var err error

	layer := x
	for i, w := range []*G.Node{m.w0, m.w1} {
		if layer, err = G.Conv2d(layer, w, tensor.Shape{3, 3}, []int{1, 1}, []int{1, 1}, []int{1, 1}); err != nil {
			return fmt.Errorf("layer %d convolution: %w", i, err)
		}

		if layer, err = G.Rectify(layer); err != nil {
			return fmt.Errorf("layer %d activation: %w", i, err)
		}

		if layer, err = G.MaxPool2D(layer, tensor.Shape{2, 2}, []int{0, 0}, []int{2, 2}); err != nil {
			return fmt.Errorf("layer %d pooling: %w", i, err)
		}
	}

	s := layer.Shape()
	if layer, err = G.Reshape(layer, tensor.Shape{s[0], s[1] * s[2] * s[3]}); err != nil {
		return fmt.Errorf("flatten: %w", err)
	}

	if layer, err = G.Mul(layer, m.w2); err != nil {
		return fmt.Errorf("dense: %w", err)
	}

	if layer, err = G.Rectify(layer); err != nil {
		return fmt.Errorf("dense activation: %w", err)
	}

	if dropout > 0 {
		if layer, err = G.Dropout(layer, dropout); err != nil {
			return fmt.Errorf("dropout: %w", err)
		}
	}

	if layer, err = G.Mul(layer, m.w3); err != nil {
		return fmt.Errorf("output: %w", err)
	}

	if m.out, err = G.SoftMax(layer); err != nil {
		return fmt.Errorf("softmax: %w", err)
	}

	return nil
}

//////
// Training and scoring.
//////

// fit trains a new network and returns its learned weights.
func fit(ctx context.Context, hp Hyperparams, train mnist.Dataset, classes int) ([]G.Value, error) {
	bs := min(hp.BatchSize, train.Len())

	g := G.NewGraph()
	x := G.NewTensor(g, dt, 4, G.WithShape(bs, 1, train.Rows, train.Cols), G.WithName("x"))
	y := G.NewMatrix(g, dt, G.WithShape(bs, classes), G.WithName("y"))

	rng := rand.New(rand.NewSource(hp.Seed))

	m := newModel(g, hp, train.Rows, train.Cols, classes, nil, rng)
	if err := m.fwd(x, hp.Dropout); err != nil {
		return nil, err
	}

	losses := G.Must(G.HadamardProd(G.Must(G.Log(m.out)), y))
	cost := G.Must(G.Neg(G.Must(G.Mean(losses))))

	var costVal G.Value
	G.Read(cost, &costVal)

	if _, err := G.Grad(cost, m.learnables()...); err != nil {
		return nil, fmt.Errorf("gradient: %w", err)
	}

	vm := G.NewTapeMachine(g, G.BindDualValues(m.learnables()...))
	defer vm.Close()

	solver := G.NewAdamSolver(G.WithLearnRate(hp.LearningRate), G.WithBatchSize(float64(bs)))

	batches := (train.Len() + bs - 1) / bs

	for epoch := 0; epoch < hp.Epochs; epoch++ {
		perm := rng.Perm(train.Len())

		for b := 0; b < batches; b++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			xVal, yVal := batch(train, perm, b*bs, bs, classes)

			if err := G.Let(x, xVal); err != nil {
				return nil, err
			}

			if err := G.Let(y, yVal); err != nil {
				return nil, err
			}

			if err := vm.RunAll(); err != nil {
				return nil, fmt.Errorf("epoch %d batch %d: %w", epoch, b, err)
			}

			if err := solver.Step(G.NodesToValueGrads(m.learnables())); err != nil {
				return nil, fmt.Errorf("epoch %d batch %d solver: %w", epoch, b, err)
			}

			vm.Reset()
		}

		if c, ok := costVal.Data().(float64); ok && (math.IsNaN(c) || math.IsInf(c, 0)) {
			return nil, fmt.Errorf("%w at epoch %d", ErrDiverged, epoch)
		}
	}

	weights := make([]G.Value, 0, 4)
	for _, n := range m.learnables() {
		weights = append(weights, n.Value())
	}

	return weights, nil
}

// score runs the trained weights over test on a dropout-free graph.
func score(ctx context.Context, hp Hyperparams, weights []G.Value, test mnist.Dataset, classes, evalBatch int) (float64, error) {
	bs := min(evalBatch, test.Len())

	g := G.NewGraph()
	x := G.NewTensor(g, dt, 4, G.WithShape(bs, 1, test.Rows, test.Cols), G.WithName("x"))

	m := newModel(g, hp, test.Rows, test.Cols, classes, weights, nil)
	if err := m.fwd(x, 0); err != nil {
		return 0, err
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	order := make([]int, test.Len())
	for i := range order {
		order[i] = i
	}

	correct := 0

	for start := 0; start < test.Len(); start += bs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		xVal, _ := batch(test, order, start, bs, classes)

		if err := G.Let(x, xVal); err != nil {
			return 0, err
		}

		if err := vm.RunAll(); err != nil {
			return 0, fmt.Errorf("evaluate batch at %d: %w", start, err)
		}

		probs, ok := m.out.Value().Data().([]float64)
		if !ok {
			return 0, fmt.Errorf("convnet: unexpected output type %T", m.out.Value().Data())
		}

		// The last batch is padded by wrapping around; only score real rows.
		for row := 0; row < bs && start+row < test.Len(); row++ {
			if argmax(probs[row*classes:(row+1)*classes]) == test.Labels[start+row] {
				correct++
			}
		}

		vm.Reset()
	}

	return float64(correct) / float64(test.Len()), nil
}

// glorot draws a Glorot-normal tensor: N(0, 2/(fanIn+fanOut)), where the
// fans of a convolution kernel include its receptive field.
func glorot(rng *rand.Rand, shape ...int) *tensor.Dense {
	receptive := 1
	for _, d := range shape[2:] {
		receptive *= d
	}

	fanIn, fanOut := shape[1]*receptive, shape[0]*receptive
	if len(shape) == 2 {
		fanIn, fanOut = shape[0], shape[1]
	}

	std := math.Sqrt(2 / float64(fanIn+fanOut))

	size := 1
	for _, d := range shape {
		size *= d
	}

	data := make([]float64, size)
	for i := range data {
		data[i] = rng.NormFloat64() * std
	}

	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// batch assembles bs examples starting at order[start], wrapping around so
// every batch is full.
func batch(ds mnist.Dataset, order []int, start, bs, classes int) (*tensor.Dense, *tensor.Dense) {
	size := ds.Rows * ds.Cols

	xs := make([]float64, 0, bs*size)
	ys := make([]float64, bs*classes)

	for i := 0; i < bs; i++ {
		j := order[(start+i)%len(order)]

		xs = append(xs, ds.Images[j]...)

		if l := ds.Labels[j]; l >= 0 && l < classes {
			ys[i*classes+l] = 1
		}
	}

	xVal := tensor.New(tensor.WithShape(bs, 1, ds.Rows, ds.Cols), tensor.WithBacking(xs))
	yVal := tensor.New(tensor.WithShape(bs, classes), tensor.WithBacking(ys))

	return xVal, yVal
}

func argmax(xs []float64) int {
	best := 0
	for i, v := range xs {
		if v > xs[best] {
			best = i
		}
	}

	return best
}
