package cli

import (
	"fmt"
	"log/slog"

	"github.com/thalesfsp/hord"
	"github.com/thalesfsp/hord/internal/config"
	"github.com/thalesfsp/hord/internal/convnet"
	"github.com/thalesfsp/hord/internal/mnist"
	"github.com/thalesfsp/hord/problems"
)

// buildProblem constructs the objective named by the config.
func buildProblem(p config.ProblemConfig, log *slog.Logger) (hord.Problem, error) {
	switch p.Kind {
	case config.ProblemAckley:
		return problems.NewAckley(p.Ackley.Dim, p.Ackley.Integer...)
	case config.ProblemOneShot:
		o := p.OneShot
		opts := mnist.Options{Normalize: true}

		train, err := mnist.Load(o.DataDir, o.TrainKind, opts)
		if err != nil {
			return nil, fmt.Errorf("load training data: %w", err)
		}

		test, err := mnist.Load(o.DataDir, o.TestKind, opts)
		if err != nil {
			return nil, fmt.Errorf("load test data: %w", err)
		}

		log.Info("dataset loaded", "dir", o.DataDir, "train", train.Len(), "test", test.Len())

		return problems.NewOneShot(train, test, convnet.Runner{}, o.Problem(), log)
	default:
		return nil, fmt.Errorf("%w: unknown problem kind %q", config.ErrInvalid, p.Kind)
	}
}
