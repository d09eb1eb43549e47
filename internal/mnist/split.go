package mnist

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

var (
	// ErrNotEnoughClasses is returned when more target classes are requested
	// than the training data contains.
	ErrNotEnoughClasses = errors.New("mnist: not enough classes")

	// ErrNotEnoughExamples is returned when a target class has fewer
	// examples than requested.
	ErrNotEnoughExamples = errors.New("mnist: not enough examples in class")
)

// Split is a one-shot learning partition of a dataset.
type Split struct {
	// TargetClasses are the sampled classes, in sampling order.
	TargetClasses []int

	// Labeled holds ExamplesPerClass random training examples of each
	// target class, grouped by class in TargetClasses order.
	Labeled Dataset

	// Test holds every test example whose label is a target class.
	Test Dataset

	// Unlabeled holds the remaining training examples of the target classes.
	Unlabeled Dataset

	// Auxiliary holds all training examples of the other classes.
	Auxiliary Dataset
}

// SplitOneShot samples numTargetClasses classes present in train and
// examplesPerClass labeled examples of each.
func SplitOneShot(train, test Dataset, numTargetClasses, examplesPerClass int, rng *rand.Rand) (Split, error) {
	if numTargetClasses < 1 || examplesPerClass < 1 {
		return Split{}, fmt.Errorf("mnist: target classes (%d) and examples per class (%d) must be positive",
			numTargetClasses, examplesPerClass)
	}

	byClass := make(map[int][]int)
	for i, l := range train.Labels {
		byClass[l] = append(byClass[l], i)
	}

	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}

	sort.Ints(classes)

	if numTargetClasses > len(classes) {
		return Split{}, fmt.Errorf("%w: requested %d, have %d", ErrNotEnoughClasses, numTargetClasses, len(classes))
	}

	perm := rng.Perm(len(classes))
	targets := make([]int, numTargetClasses)
	isTarget := make(map[int]bool, numTargetClasses)

	for i := range targets {
		targets[i] = classes[perm[i]]
		isTarget[targets[i]] = true
	}

	var labeled, unlabeled []int

	for _, c := range targets {
		idx := byClass[c]
		if len(idx) < examplesPerClass {
			return Split{}, fmt.Errorf("%w: class %d has %d, requested %d", ErrNotEnoughExamples, c, len(idx), examplesPerClass)
		}

		picked := make(map[int]bool, examplesPerClass)
		for _, p := range rng.Perm(len(idx))[:examplesPerClass] {
			picked[p] = true
			labeled = append(labeled, idx[p])
		}

		for p, i := range idx {
			if !picked[p] {
				unlabeled = append(unlabeled, i)
			}
		}
	}

	var auxiliary []int
	for i, l := range train.Labels {
		if !isTarget[l] {
			auxiliary = append(auxiliary, i)
		}
	}

	var testIdx []int
	for i, l := range test.Labels {
		if isTarget[l] {
			testIdx = append(testIdx, i)
		}
	}

	return Split{
		TargetClasses: targets,
		Labeled:       train.Subset(labeled),
		Test:          test.Subset(testIdx),
		Unlabeled:     train.Subset(unlabeled),
		Auxiliary:     train.Subset(auxiliary),
	}, nil
}

// Sample returns n examples of d drawn without replacement, or all of d in
// random order when n >= d.Len().
func Sample(d Dataset, n int, rng *rand.Rand) Dataset {
	perm := rng.Perm(d.Len())
	if n < len(perm) {
		perm = perm[:n]
	}

	return d.Subset(perm)
}
