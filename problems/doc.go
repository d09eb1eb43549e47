// Package problems holds the objective functions searched by the hord
// optimizer: an analytic Ackley toy that exercises the pipeline in
// milliseconds, and the one-shot image classification prototype whose
// objective trains a convolutional network per evaluation.
package problems
