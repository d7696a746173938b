// Package result folds per-case verdicts into a single submission outcome.
package result

import "codejudge/internal/judge/execution"

// Status is the persisted submission status.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAccepted     Status = "accepted"
	StatusWrong        Status = "wrong"
	StatusError        Status = "error"
	StatusCompileError Status = "compile_error"
	// StatusTimeout is reserved; time-limit verdicts are reported as StatusWrong.
	StatusTimeout Status = "timeout"
)

// Final reports whether the status is terminal.
func (s Status) Final() bool {
	switch s {
	case StatusAccepted, StatusWrong, StatusError, StatusCompileError, StatusTimeout:
		return true
	default:
		return false
	}
}

// Outcome is the aggregated result of one evaluation.
type Outcome struct {
	Status       Status  `json:"status"`
	Passed       int     `json:"passed"`
	Total        int     `json:"total"`
	Runtime      float64 `json:"runtime"` // seconds, max over matched cases
	Memory       int64   `json:"memory"`  // KB, max over matched cases
	ErrorMessage string  `json:"error_message,omitempty"`
}

// Accepted reports whether every case matched.
func (o Outcome) Accepted() bool { return o.Status == StatusAccepted }

// Aggregate is pure. Compile failure anywhere outranks every other verdict;
// otherwise the first non-matched verdict in order decides the status.
func Aggregate(verdicts []execution.Verdict) Outcome {
	out := Outcome{Total: len(verdicts)}

	var firstFailure *execution.Verdict
	var firstCompile *execution.Verdict
	for i := range verdicts {
		v := &verdicts[i]
		if v.Matched() {
			out.Passed++
			if v.Time > out.Runtime {
				out.Runtime = v.Time
			}
			if v.Memory > out.Memory {
				out.Memory = v.Memory
			}
			continue
		}
		if firstFailure == nil {
			firstFailure = v
		}
		if firstCompile == nil && v.CompileFailed() {
			firstCompile = v
		}
	}

	switch {
	case firstFailure == nil:
		out.Status = StatusAccepted
	case firstCompile != nil:
		out.Status = StatusCompileError
		out.Passed = 0
		out.Runtime = 0
		out.Memory = 0
		out.ErrorMessage = firstCompile.CompileOutput
		if out.ErrorMessage == "" {
			out.ErrorMessage = firstCompile.Stderr
		}
	case firstFailure.RuntimeFailed():
		out.Status = StatusError
		out.ErrorMessage = firstFailure.Stderr
	default:
		out.Status = StatusWrong
	}
	return out
}
