// Package config loads hord experiment files.
//
// An experiment file names the problem to optimize, the optimizer budget
// and where results are kept:
//
//	log_level: info
//	log_format: text
//	run:
//	  max_evals: 100
//	  workers: 4
//	  surrogate: rbf
//	  acquisition: dycors
//	problem:
//	  kind: oneshot
//	  oneshot:
//	    data_dir: ./data/fashion
//	    target_classes: 5
//	    folds: 3
//	store:
//	  sqlite_path: hord.db
//	  report_dir: runs
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thalesfsp/hord"
	"github.com/thalesfsp/hord/problems"
)

// ErrInvalid is returned for experiment files that fail validation.
var ErrInvalid = errors.New("invalid config")

// Problem kinds.
const (
	ProblemAckley  = "ackley"
	ProblemOneShot = "oneshot"
)

// Config is a parsed experiment file.
type Config struct {
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`
	Run       RunConfig     `yaml:"run"`
	Problem   ProblemConfig `yaml:"problem"`
	Store     StoreConfig   `yaml:"store"`
}

// RunConfig is the optimizer budget and strategy.
type RunConfig struct {
	MaxEvals      int     `yaml:"max_evals" json:"max_evals"`
	Workers       int     `yaml:"workers" json:"workers"`
	InitialPoints int     `yaml:"initial_points" json:"initial_points"`
	NumCandidates int     `yaml:"num_candidates" json:"num_candidates"`
	Seed          int64   `yaml:"seed" json:"seed"`
	Surrogate     string  `yaml:"surrogate" json:"surrogate"`
	KernelWidth   float64 `yaml:"kernel_width" json:"kernel_width"`
	Acquisition   string  `yaml:"acquisition" json:"acquisition"`
	Beta          float64 `yaml:"beta" json:"beta"`
	Xi            float64 `yaml:"xi" json:"xi"`
}

// ProblemConfig selects and configures the objective.
type ProblemConfig struct {
	Kind    string          `yaml:"kind"`
	Ackley  AckleyConfig    `yaml:"ackley"`
	OneShot OneShotSettings `yaml:"oneshot"`
}

// AckleyConfig configures the analytic test problem.
type AckleyConfig struct {
	Dim     int   `yaml:"dim"`
	Integer []int `yaml:"integer"`
}

// OneShotSettings configures the one-shot classification problem and the
// dataset it reads.
type OneShotSettings struct {
	DataDir          string `yaml:"data_dir"`
	TrainKind        string `yaml:"train_kind"`
	TestKind         string `yaml:"test_kind"`
	TargetClasses    int    `yaml:"target_classes"`
	ExamplesPerClass int    `yaml:"examples_per_class"`
	Folds            int    `yaml:"folds"`
	AuxiliarySamples int    `yaml:"auxiliary_samples"`
	MaxTestExamples  int    `yaml:"max_test_examples"`
	BatchSize        int    `yaml:"batch_size"`
	Seed             int64  `yaml:"seed"`
}

// StoreConfig says where evaluations and reports are written. Empty paths
// disable the corresponding output.
type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	ReportDir  string `yaml:"report_dir"`
}

// Default returns the settings used for keys an experiment file omits.
func Default() Config {
	opt := hord.DefaultConfig()
	one := problems.DefaultOneShotConfig()

	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Run: RunConfig{
			MaxEvals:    opt.MaxEvals,
			Workers:     opt.Workers,
			Surrogate:   string(opt.Surrogate),
			Acquisition: "dycors",
			Beta:        opt.AcqParams.Beta,
			Xi:          opt.AcqParams.Xi,
		},
		Problem: ProblemConfig{
			Kind:   ProblemAckley,
			Ackley: AckleyConfig{Dim: 10},
			OneShot: OneShotSettings{
				TrainKind:        "train",
				TestKind:         "t10k",
				TargetClasses:    one.TargetClasses,
				ExamplesPerClass: one.ExamplesPerClass,
				Folds:            one.Folds,
				MaxTestExamples:  one.MaxTestExamples,
				BatchSize:        one.BatchSize,
			},
		},
		Store: StoreConfig{
			SQLitePath: "hord.db",
			ReportDir:  "runs",
		},
	}
}

// Load reads and validates an experiment file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes YAML over Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log_level %q (must be debug, info, warn, or error)", ErrInvalid, c.LogLevel)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log_format %q (must be json or text)", ErrInvalid, c.LogFormat)
	}

	if err := c.Run.validate(); err != nil {
		return err
	}

	return c.Problem.validate()
}

func (r RunConfig) validate() error {
	switch {
	case r.MaxEvals < 1:
		return fmt.Errorf("%w: run.max_evals must be positive", ErrInvalid)
	case r.Workers < 1:
		return fmt.Errorf("%w: run.workers must be positive", ErrInvalid)
	case r.InitialPoints < 0 || r.InitialPoints > r.MaxEvals:
		return fmt.Errorf("%w: run.initial_points must be in [0, max_evals]", ErrInvalid)
	case r.NumCandidates < 0:
		return fmt.Errorf("%w: run.num_candidates cannot be negative", ErrInvalid)
	case r.KernelWidth < 0:
		return fmt.Errorf("%w: run.kernel_width cannot be negative", ErrInvalid)
	}

	switch hord.SurrogateKind(r.Surrogate) {
	case hord.SurrogateRBF, hord.SurrogateGP:
	default:
		return fmt.Errorf("%w: run.surrogate %q (must be rbf or gp)", ErrInvalid, r.Surrogate)
	}

	if _, ok := hord.AcquisitionByName(r.Acquisition); !ok {
		return fmt.Errorf("%w: run.acquisition %q (must be dycors, ucb, pi, ei or thompson)", ErrInvalid, r.Acquisition)
	}

	return nil
}

func (p ProblemConfig) validate() error {
	switch p.Kind {
	case ProblemAckley:
		if p.Ackley.Dim < 1 {
			return fmt.Errorf("%w: problem.ackley.dim must be positive", ErrInvalid)
		}

		for _, i := range p.Ackley.Integer {
			if i < 0 || i >= p.Ackley.Dim {
				return fmt.Errorf("%w: problem.ackley.integer index %d out of range", ErrInvalid, i)
			}
		}
	case ProblemOneShot:
		o := p.OneShot

		switch {
		case strings.TrimSpace(o.DataDir) == "":
			return fmt.Errorf("%w: problem.oneshot.data_dir is required", ErrInvalid)
		case o.TrainKind == "" || o.TestKind == "":
			return fmt.Errorf("%w: problem.oneshot.train_kind and test_kind are required", ErrInvalid)
		case o.TargetClasses < 1 || o.ExamplesPerClass < 1 || o.Folds < 1 || o.BatchSize < 1:
			return fmt.Errorf("%w: problem.oneshot target_classes, examples_per_class, folds and batch_size must be positive", ErrInvalid)
		case o.AuxiliarySamples < 0 || o.MaxTestExamples < 0:
			return fmt.Errorf("%w: problem.oneshot auxiliary_samples and max_test_examples cannot be negative", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: problem.kind %q (must be ackley or oneshot)", ErrInvalid, p.Kind)
	}

	return nil
}

// Optimization converts the run section into optimizer settings.
func (r RunConfig) Optimization() hord.OptimizationConfig {
	opt := hord.DefaultConfig()
	opt.MaxEvals = r.MaxEvals
	opt.Workers = r.Workers
	opt.InitialPoints = r.InitialPoints
	opt.NumCandidates = r.NumCandidates
	opt.Seed = r.Seed
	opt.Surrogate = hord.SurrogateKind(r.Surrogate)
	opt.KernelWidth = r.KernelWidth
	opt.AcquisitionFunc, _ = hord.AcquisitionByName(r.Acquisition)
	opt.AcqParams.Beta = r.Beta
	opt.AcqParams.Xi = r.Xi

	return opt
}

// Problem converts the settings into the one-shot problem configuration.
func (o OneShotSettings) Problem() problems.OneShotConfig {
	return problems.OneShotConfig{
		TargetClasses:    o.TargetClasses,
		ExamplesPerClass: o.ExamplesPerClass,
		Folds:            o.Folds,
		AuxiliarySamples: o.AuxiliarySamples,
		MaxTestExamples:  o.MaxTestExamples,
		BatchSize:        o.BatchSize,
		Seed:             o.Seed,
	}
}
