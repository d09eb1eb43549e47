// Package store persists optimization runs: every evaluation goes to a
// SQLite log and each finished run gets a JSON report.
package store

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/thalesfsp/hord"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Run summarizes one call to the optimizer.
type Run struct {
	ID        string     `json:"id"`
	Problem   string     `json:"problem"`
	Status    string     `json:"status"`
	MaxEvals  int        `json:"max_evals"`
	Workers   int        `json:"workers"`
	BestValue *float64   `json:"best_value,omitempty"`
	Failed    int        `json:"failed"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// EvaluationRecord is the stored form of a hord.Evaluation. Value is nil
// when the evaluation failed.
type EvaluationRecord struct {
	RunID      string    `json:"run_id,omitempty"`
	Index      int       `json:"index"`
	Phase      string    `json:"phase"`
	Params     []float64 `json:"params"`
	Value      *float64  `json:"value,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// NewEvaluationRecord converts e for storage under runID.
func NewEvaluationRecord(runID string, e hord.Evaluation) EvaluationRecord {
	r := EvaluationRecord{
		RunID:      runID,
		Index:      e.Index,
		Phase:      e.Phase,
		Params:     e.Params,
		DurationMS: e.Duration.Milliseconds(),
	}

	if e.Err != nil {
		r.Error = e.Err.Error()
	} else {
		r.Value = finite(e.Value)
	}

	return r
}

// finite returns a pointer to v, or nil for NaN and infinities, which JSON
// cannot carry.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}

	return &v
}
