package service_test

import (
	"context"
	"fmt"
	"sync"

	"codejudge/internal/judge/execution"
	"codejudge/internal/judge/result"
	problemRepo "codejudge/internal/problem/repository"
	"codejudge/internal/submit/repository"
)

// scriptedExecutor returns one scripted poll response per call, repeating the last.
type scriptedExecutor struct {
	mu          sync.Mutex
	dispatchErr error
	pollErr     error
	polls       [][]execution.Verdict
	dispatched  [][]execution.TestCase
	pollCalls   int
}

func (e *scriptedExecutor) DispatchBatch(ctx context.Context, cases []execution.TestCase, source string, languageID int) ([]execution.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dispatchErr != nil {
		return nil, e.dispatchErr
	}
	e.dispatched = append(e.dispatched, cases)
	tokens := make([]execution.Token, len(cases))
	for i := range cases {
		tokens[i] = execution.Token(fmt.Sprintf("tok-%d", i))
	}
	return tokens, nil
}

func (e *scriptedExecutor) PollBatch(ctx context.Context, tokens []execution.Token) ([]execution.Verdict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pollCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.pollErr != nil {
		return nil, e.pollErr
	}
	idx := e.pollCalls - 1
	if idx >= len(e.polls) {
		idx = len(e.polls) - 1
	}
	return append([]execution.Verdict(nil), e.polls[idx]...), nil
}

func (e *scriptedExecutor) LanguageID(language string) (int, error) {
	id, ok := execution.DefaultLanguageIDs()[language]
	if !ok {
		return 0, execution.ErrUnsupportedLanguage
	}
	return id, nil
}

func verdict(code int) execution.Verdict {
	v := execution.Verdict{StatusCode: code, Time: 0.01, Memory: 512}
	switch code {
	case execution.StatusCompilationError:
		v.CompileOutput = "main.cpp:1: error"
	case execution.StatusRuntimeErrorMinimum:
		v.Stderr = "segfault"
	}
	return v
}

func verdicts(codes ...int) []execution.Verdict {
	out := make([]execution.Verdict, len(codes))
	for i, c := range codes {
		out[i] = verdict(c)
	}
	return out
}

type fakeTestCases struct {
	hidden  map[int64][]execution.TestCase
	visible map[int64][]execution.TestCase
	err     error
}

func (f *fakeTestCases) GetHiddenTestCases(ctx context.Context, problemID int64) ([]execution.TestCase, error) {
	return f.lookup(f.hidden, problemID)
}

func (f *fakeTestCases) GetVisibleTestCases(ctx context.Context, problemID int64) ([]execution.TestCase, error) {
	return f.lookup(f.visible, problemID)
}

func (f *fakeTestCases) lookup(m map[int64][]execution.TestCase, problemID int64) ([]execution.TestCase, error) {
	if f.err != nil {
		return nil, f.err
	}
	cases, ok := m[problemID]
	if !ok {
		return nil, problemRepo.ErrProblemNotFound
	}
	return cases, nil
}

func cases(n int) []execution.TestCase {
	out := make([]execution.TestCase, n)
	for i := range out {
		out[i] = execution.TestCase{Input: fmt.Sprint(i), ExpectedOutput: fmt.Sprint(i)}
	}
	return out
}

type fakeSubmissions struct {
	mu       sync.Mutex
	records  map[string]*repository.Submission
	order    []string
	onCreate func()
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{records: map[string]*repository.Submission{}}
}

func (f *fakeSubmissions) Create(ctx context.Context, submission *repository.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *submission
	f.records[submission.ID] = &copied
	f.order = append(f.order, submission.ID)
	if f.onCreate != nil {
		f.onCreate()
	}
	return nil
}

func (f *fakeSubmissions) MarkResolved(ctx context.Context, submissionID string, outcome result.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[submissionID]
	if !ok || rec.Status != result.StatusPending {
		return repository.ErrSubmissionNotPending
	}
	rec.Status = outcome.Status
	rec.PassedTestCases = outcome.Passed
	rec.TotalTestCases = outcome.Total
	rec.Runtime = outcome.Runtime
	rec.Memory = outcome.Memory
	rec.ErrorMessage = outcome.ErrorMessage
	return nil
}

func (f *fakeSubmissions) GetByID(ctx context.Context, submissionID string) (*repository.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[submissionID]
	if !ok {
		return nil, repository.ErrSubmissionNotFound
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeSubmissions) ListByUserAndProblem(ctx context.Context, userID, problemID int64, limit int) ([]repository.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Submission
	for i := len(f.order) - 1; i >= 0; i-- {
		rec := f.records[f.order[i]]
		if rec.UserID == userID && rec.ProblemID == problemID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeSubmissions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeSubmissions) only() *repository.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.order) != 1 {
		return nil
	}
	copied := *f.records[f.order[0]]
	return &copied
}

type fakeSolved struct {
	mu     sync.Mutex
	solved map[[2]int64]bool
	adds   int
}

func newFakeSolved() *fakeSolved {
	return &fakeSolved{solved: map[[2]int64]bool{}}
}

func (f *fakeSolved) HasSolved(ctx context.Context, userID, problemID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.solved[[2]int64{userID, problemID}], nil
}

func (f *fakeSolved) AddSolved(ctx context.Context, userID, problemID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds++
	key := [2]int64{userID, problemID}
	if f.solved[key] {
		return false, nil
	}
	f.solved[key] = true
	return true, nil
}

func (f *fakeSolved) ListSolved(ctx context.Context, userID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, 0)
	for key := range f.solved {
		if key[0] == userID {
			out = append(out, key[1])
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []repository.ResultEvent
	err    error
}

func (p *recordingPublisher) PublishResult(ctx context.Context, event repository.ResultEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type recordingArchive struct {
	mu      sync.Mutex
	sources map[string]string
	err     error
}

func (a *recordingArchive) Archive(ctx context.Context, submissionID, source string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	if a.sources == nil {
		a.sources = map[string]string{}
	}
	a.sources[submissionID] = source
	return repository.SourceObjectKey(submissionID), nil
}
