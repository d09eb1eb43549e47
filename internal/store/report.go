package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/thalesfsp/hord"
)

// Report is the JSON document written for every finished run.
type Report struct {
	Run         Run                `json:"run"`
	Space       []hord.Dimension   `json:"space"`
	Settings    any                `json:"settings,omitempty"`
	Best        map[string]float64 `json:"best,omitempty"`
	Evaluations []EvaluationRecord `json:"evaluations"`
	Error       string             `json:"error,omitempty"`
}

// NewReport assembles the report of a run. result may be partial or nil.
func NewReport(run Run, space hord.Space, settings any, result *hord.Result, runErr error) Report {
	r := Report{
		Run:         run,
		Space:       space,
		Settings:    settings,
		Evaluations: []EvaluationRecord{},
	}

	if runErr != nil {
		r.Error = runErr.Error()
	}

	if result == nil {
		return r
	}

	if result.Best != nil {
		r.Best = make(map[string]float64, len(result.Best))
		for i, name := range space.Names() {
			r.Best[name] = result.Best[i]
		}
	}

	for _, e := range result.Evaluations {
		rec := NewEvaluationRecord("", e)
		r.Evaluations = append(r.Evaluations, rec)
	}

	return r
}

// ReportStore writes run reports as <dir>/<started>_<run id>.json.
type ReportStore struct {
	dir string
}

// NewReportStore returns a store rooted at dir.
func NewReportStore(dir string) *ReportStore {
	return &ReportStore{dir: dir}
}

// Save writes report and returns its path. The file appears atomically.
func (s *ReportStore) Save(report Report) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("report: mkdir %s: %w", s.dir, err)
	}

	ts := report.Run.StartedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	name := fmt.Sprintf("%s_%s.json", ts.UTC().Format("20060102T150405Z"), report.Run.ID)
	path := filepath.Join(s.dir, name)

	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: marshal: %w", err)
	}

	// tmp then rename
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return "", fmt.Errorf("report: write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("report: rename %s: %w", path, err)
	}

	return path, nil
}

// LoadReport reads a report written by Save.
func LoadReport(path string) (Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("report: read %s: %w", path, err)
	}

	var r Report
	if err := json.Unmarshal(b, &r); err != nil {
		return Report{}, fmt.Errorf("report: decode %s: %w", path, err)
	}

	return r, nil
}
