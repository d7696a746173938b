package execution

import (
	"context"
	"errors"
)

// Judge0 status ids.
const (
	StatusInQueue             = 1
	StatusProcessing          = 2
	StatusAccepted            = 3
	StatusWrongAnswer         = 4
	StatusTimeLimitExceeded   = 5
	StatusCompilationError    = 6
	StatusRuntimeErrorMinimum = 7
)

var (
	// ErrDispatch means the batch was not accepted as a whole.
	ErrDispatch = errors.New("execution: dispatch failed")
	// ErrPoll means a status query could not be completed.
	ErrPoll = errors.New("execution: poll failed")
	// ErrUnsupportedLanguage means the language has no execution id.
	ErrUnsupportedLanguage = errors.New("execution: unsupported language")
)

// Client talks to a Judge0-compatible execution cluster.
type Client interface {
	// DispatchBatch submits one job per test case and returns a token per case, in order.
	DispatchBatch(ctx context.Context, cases []TestCase, source string, languageID int) ([]Token, error)
	// PollBatch fetches the current state of every token, in token order.
	PollBatch(ctx context.Context, tokens []Token) ([]Verdict, error)
	// LanguageID maps a normalized language name to the cluster's language id.
	LanguageID(language string) (int, error)
}

// TestCase is one stdin/expected-output pair.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// Token is the opaque handle returned for a dispatched job.
type Token string

// Verdict is the per-case outcome reported by the cluster.
type Verdict struct {
	Token          Token   `json:"token"`
	StatusCode     int     `json:"status_id"`
	Description    string  `json:"description"`
	Stdout         string  `json:"stdout"`
	ExpectedOutput string  `json:"expected_output"`
	Stderr         string  `json:"stderr"`
	CompileOutput  string  `json:"compile_output"`
	Time           float64 `json:"time"`   // seconds
	Memory         int64   `json:"memory"` // KB
}

// Resolved reports whether the job has left the queue.
func (v Verdict) Resolved() bool {
	return v.StatusCode > StatusProcessing
}

// Matched reports that the output equalled the expected output.
func (v Verdict) Matched() bool { return v.StatusCode == StatusAccepted }

// CompileFailed reports a compilation error for this case.
func (v Verdict) CompileFailed() bool { return v.StatusCode == StatusCompilationError }

// RuntimeFailed covers every runtime error status, signals included.
func (v Verdict) RuntimeFailed() bool { return v.StatusCode >= StatusRuntimeErrorMinimum }

// AllResolved reports whether every verdict is past the in-progress states.
func AllResolved(verdicts []Verdict) bool {
	for _, v := range verdicts {
		if !v.Resolved() {
			return false
		}
	}
	return true
}
