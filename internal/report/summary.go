package report

import "time"

// Stage statuses.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// StageResult captures the outcome of a single stage run.
type StageResult struct {
	Sample     string        `json:"sample"`
	Stage      string        `json:"stage"`
	Dir        string        `json:"dir"`
	Command    string        `json:"command"`
	Status     string        `json:"status"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	ExitCode   int           `json:"exit_code"`
	Statistics int           `json:"statistics"`
	NoMatch    bool          `json:"no_match,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Summary aggregates the stage results of one invocation.
type Summary struct {
	Sample      string        `json:"sample"`
	Document    string        `json:"document"`
	TotalStages int           `json:"total_stages"`
	Passed      int           `json:"passed"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Duration    time.Duration `json:"-"`
	DurationMS  int64         `json:"duration_ms"`
	ExitCode    int           `json:"exit_code"`
}

// Summarize counts results by status.
func Summarize(sample, document string, results []StageResult, elapsed time.Duration, exitCode int) Summary {
	s := Summary{
		Sample:      sample,
		Document:    document,
		TotalStages: len(results),
		Duration:    elapsed,
		DurationMS:  elapsed.Milliseconds(),
		ExitCode:    exitCode,
	}
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}
