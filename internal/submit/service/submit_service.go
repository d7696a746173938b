package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codejudge/internal/judge/execution"
	"codejudge/internal/judge/result"
	problemRepo "codejudge/internal/problem/repository"
	"codejudge/internal/submit/repository"
	userRepo "codejudge/internal/user/repository"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPollInterval    = time.Second
	defaultMaxPollAttempts = 30
	defaultMaxCodeBytes    = 64 * 1024
	defaultListLimit       = 50
)

// Cooldown grants at most one submission per user per window.
type Cooldown interface {
	CheckAndLock(ctx context.Context, userID int64) (bool, error)
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration
	Judge   time.Duration
	MQ      time.Duration
	Storage time.Duration
}

// Config holds submit service dependencies and settings.
type Config struct {
	SubmissionRepo repository.SubmissionRepository
	TestCaseRepo   problemRepo.TestCaseRepository
	SolvedRepo     userRepo.SolvedRepository
	Executor       execution.Client
	Cooldown       Cooldown

	// Optional side channels; failures there are logged, never returned.
	Publisher repository.ResultPublisher
	Archive   repository.SourceArchive

	MaxCodeBytes    int
	PollInterval    time.Duration
	MaxPollAttempts int
	ListLimit       int
	Timeouts        TimeoutConfig
}

// SubmitService runs the submit and run pipelines against the execution cluster.
type SubmitService struct {
	submissionRepo repository.SubmissionRepository
	testCaseRepo   problemRepo.TestCaseRepository
	solvedRepo     userRepo.SolvedRepository
	executor       execution.Client
	cooldown       Cooldown
	publisher      repository.ResultPublisher
	archive        repository.SourceArchive

	maxCodeBytes    int
	pollInterval    time.Duration
	maxPollAttempts int
	listLimit       int
	timeouts        TimeoutConfig
}

// SubmitInput describes a submission request.
type SubmitInput struct {
	UserID     int64
	ProblemID  int64
	Language   string
	SourceCode string
}

// RunInput describes a run against the visible cases.
type RunInput = SubmitInput

// SubmitResult is the summary returned to the submitter. It never carries stderr.
type SubmitResult struct {
	SubmissionID    string        `json:"submission_id"`
	Accepted        bool          `json:"accepted"`
	Status          result.Status `json:"status"`
	TotalTestCases  int           `json:"total_test_cases"`
	PassedTestCases int           `json:"passed_test_cases"`
	Runtime         float64       `json:"runtime"`
	Memory          int64         `json:"memory"`
}

// RunResult carries the per-case verdicts of a run.
type RunResult struct {
	Success         bool                `json:"success"`
	Status          result.Status       `json:"status"`
	PassedTestCases int                 `json:"passed_test_cases"`
	TotalTestCases  int                 `json:"total_test_cases"`
	Runtime         float64             `json:"runtime"`
	Memory          int64               `json:"memory"`
	ErrorMessage    string              `json:"error_message,omitempty"`
	TestCases       []execution.Verdict `json:"test_cases"`
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.TestCaseRepo == nil {
		return nil, fmt.Errorf("test case repository is required")
	}
	if cfg.SolvedRepo == nil {
		return nil, fmt.Errorf("solved repository is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("execution client is required")
	}
	if cfg.Cooldown == nil {
		return nil, fmt.Errorf("cooldown is required")
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPollAttempts
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = defaultListLimit
	}
	return &SubmitService{
		submissionRepo:  cfg.SubmissionRepo,
		testCaseRepo:    cfg.TestCaseRepo,
		solvedRepo:      cfg.SolvedRepo,
		executor:        cfg.Executor,
		cooldown:        cfg.Cooldown,
		publisher:       cfg.Publisher,
		archive:         cfg.Archive,
		maxCodeBytes:    cfg.MaxCodeBytes,
		pollInterval:    cfg.PollInterval,
		maxPollAttempts: cfg.MaxPollAttempts,
		listLimit:       cfg.ListLimit,
		timeouts:        cfg.Timeouts,
	}, nil
}

// Submit judges the source against the hidden cases and records the outcome.
func (s *SubmitService) Submit(ctx context.Context, input SubmitInput) (SubmitResult, error) {
	language, languageID, err := s.prepare(input)
	if err != nil {
		return SubmitResult{}, err
	}

	cases, err := s.loadCases(ctx, input.ProblemID, true)
	if err != nil {
		return SubmitResult{}, err
	}

	acquired, err := s.cooldown.CheckAndLock(ctx, input.UserID)
	if err != nil {
		return SubmitResult{}, err
	}
	if !acquired {
		return SubmitResult{}, appErr.New(appErr.SubmitTooFrequently)
	}

	// The client may go away now; evaluation still runs to a recorded outcome.
	ctx = context.WithoutCancel(ctx)

	submission := &repository.Submission{
		ID:             uuid.NewString(),
		UserID:         input.UserID,
		ProblemID:      input.ProblemID,
		Language:       language,
		SourceCode:     input.SourceCode,
		Status:         result.StatusPending,
		TotalTestCases: len(cases),
	}
	if err := s.createSubmission(ctx, submission); err != nil {
		return SubmitResult{}, err
	}
	fields := []zap.Field{
		zap.String("submission_id", submission.ID),
		zap.Int64("problem_id", submission.ProblemID),
		zap.Int64("user_id", submission.UserID),
	}
	logger.Info(ctx, "submission created", append(fields, zap.String("language", language), zap.Int("cases", len(cases)))...)
	s.archiveSource(ctx, submission.ID, submission.SourceCode)

	verdicts, err := s.execute(ctx, cases, input.SourceCode, languageID)
	if err != nil {
		logger.Warn(ctx, "submission left pending", append(fields, zap.Error(err))...)
		return SubmitResult{}, err
	}

	outcome := result.Aggregate(verdicts)
	if err := s.markResolved(ctx, submission.ID, outcome); err != nil {
		return SubmitResult{}, err
	}
	logger.Info(ctx, "submission resolved", append(fields,
		zap.String("status", string(outcome.Status)),
		zap.Int("passed", outcome.Passed),
		zap.Int("total", outcome.Total),
	)...)

	firstSolve := false
	if outcome.Accepted() {
		firstSolve, err = s.recordSolved(ctx, input.UserID, input.ProblemID)
		if err != nil {
			return SubmitResult{}, err
		}
	}

	s.publishResult(ctx, repository.ResultEvent{
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		ProblemID:    submission.ProblemID,
		Language:     language,
		Outcome:      outcome,
		FirstSolve:   firstSolve,
		ResolvedAt:   time.Now().Unix(),
	})

	return SubmitResult{
		SubmissionID:    submission.ID,
		Accepted:        outcome.Accepted(),
		Status:          outcome.Status,
		TotalTestCases:  outcome.Total,
		PassedTestCases: outcome.Passed,
		Runtime:         outcome.Runtime,
		Memory:          outcome.Memory,
	}, nil
}

// Run judges the source against the visible cases without recording anything.
func (s *SubmitService) Run(ctx context.Context, input RunInput) (RunResult, error) {
	_, languageID, err := s.prepare(input)
	if err != nil {
		return RunResult{}, err
	}
	cases, err := s.loadCases(ctx, input.ProblemID, false)
	if err != nil {
		return RunResult{}, err
	}
	verdicts, err := s.execute(ctx, cases, input.SourceCode, languageID)
	if err != nil {
		return RunResult{}, err
	}
	outcome := result.Aggregate(verdicts)
	logger.Info(ctx, "run finished",
		zap.Int64("problem_id", input.ProblemID),
		zap.Int64("user_id", input.UserID),
		zap.String("status", string(outcome.Status)),
	)
	return RunResult{
		Success:         outcome.Accepted(),
		Status:          outcome.Status,
		PassedTestCases: outcome.Passed,
		TotalTestCases:  outcome.Total,
		Runtime:         outcome.Runtime,
		Memory:          outcome.Memory,
		ErrorMessage:    outcome.ErrorMessage,
		TestCases:       verdicts,
	}, nil
}

// ListSubmissions returns the user's submissions for one problem, newest first.
func (s *SubmitService) ListSubmissions(ctx context.Context, userID, problemID int64) ([]repository.Submission, error) {
	if userID <= 0 {
		return nil, appErr.ValidationError("user_id", "required")
	}
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	submissions, err := s.submissionRepo.ListByUserAndProblem(ctxDB, userID, problemID, s.listLimit)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	return submissions, nil
}

// GetSubmission returns one of the user's own submissions. Other users' records read as missing.
func (s *SubmitService) GetSubmission(ctx context.Context, userID int64, submissionID string) (*repository.Submission, error) {
	if userID <= 0 {
		return nil, appErr.ValidationError("user_id", "required")
	}
	if strings.TrimSpace(submissionID) == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	submission, err := s.submissionRepo.GetByID(ctxDB, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	if submission.UserID != userID {
		return nil, appErr.New(appErr.SubmissionNotFound)
	}
	return submission, nil
}

// ListSolved returns the ids of every problem the user has solved.
func (s *SubmitService) ListSolved(ctx context.Context, userID int64) ([]int64, error) {
	if userID <= 0 {
		return nil, appErr.ValidationError("user_id", "required")
	}
	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	solved, err := s.solvedRepo.ListSolved(ctxDB, userID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list solved problems failed")
	}
	return solved, nil
}

// prepare validates the input and resolves the execution language id.
func (s *SubmitService) prepare(input SubmitInput) (string, int, error) {
	if input.UserID <= 0 {
		return "", 0, appErr.ValidationError("user_id", "required")
	}
	if input.ProblemID <= 0 {
		return "", 0, appErr.ValidationError("problem_id", "required")
	}
	if strings.TrimSpace(input.Language) == "" {
		return "", 0, appErr.ValidationError("language", "required")
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return "", 0, appErr.ValidationError("source_code", "required")
	}
	if len(input.SourceCode) > s.maxCodeBytes {
		return "", 0, appErr.New(appErr.CodeTooLarge).WithDetail("max_bytes", s.maxCodeBytes)
	}

	language := execution.NormalizeLanguage(input.Language)
	languageID, err := s.executor.LanguageID(language)
	if err != nil {
		return "", 0, appErr.Wrapf(err, appErr.LanguageNotSupported, "language %q is not supported", input.Language)
	}
	return language, languageID, nil
}

func (s *SubmitService) loadCases(ctx context.Context, problemID int64, hidden bool) ([]execution.TestCase, error) {
	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()

	var (
		cases []execution.TestCase
		err   error
	)
	if hidden {
		cases, err = s.testCaseRepo.GetHiddenTestCases(ctxDB, problemID)
	} else {
		cases, err = s.testCaseRepo.GetVisibleTestCases(ctxDB, problemID)
	}
	if err != nil {
		if errors.Is(err, problemRepo.ErrProblemNotFound) {
			return nil, appErr.New(appErr.ProblemNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load test cases failed")
	}
	if len(cases) == 0 {
		return nil, appErr.New(appErr.ProblemNotSubmittable).WithMessage("problem has no test cases")
	}
	return cases, nil
}

func (s *SubmitService) createSubmission(ctx context.Context, submission *repository.Submission) error {
	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	if err := s.submissionRepo.Create(ctxDB, submission); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}
	return nil
}

func (s *SubmitService) markResolved(ctx context.Context, submissionID string, outcome result.Outcome) error {
	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	if err := s.submissionRepo.MarkResolved(ctxDB, submissionID, outcome); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "record submission outcome failed")
	}
	return nil
}

// recordSolved reports whether this acceptance is the user's first for the problem.
func (s *SubmitService) recordSolved(ctx context.Context, userID, problemID int64) (bool, error) {
	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	solved, err := s.solvedRepo.HasSolved(ctxDB, userID, problemID)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "check solved problems failed")
	}
	if solved {
		return false, nil
	}
	added, err := s.solvedRepo.AddSolved(ctxDB, userID, problemID)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "record solved problem failed")
	}
	return added, nil
}

// execute dispatches every case and polls until all verdicts are final.
func (s *SubmitService) execute(ctx context.Context, cases []execution.TestCase, source string, languageID int) ([]execution.Verdict, error) {
	ctxDispatch, cancel := withTimeout(ctx, s.timeouts.Judge)
	tokens, err := s.executor.DispatchBatch(ctxDispatch, cases, source, languageID)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, interrupted(ctx)
		}
		return nil, appErr.Wrapf(err, appErr.JudgeUnavailable, "dispatch to execution cluster failed")
	}
	return s.awaitVerdicts(ctx, tokens)
}

func (s *SubmitService) awaitVerdicts(ctx context.Context, tokens []execution.Token) ([]execution.Verdict, error) {
	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= s.maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, interrupted(ctx)
		case <-timer.C:
		}

		ctxPoll, cancel := withTimeout(ctx, s.timeouts.Judge)
		verdicts, err := s.executor.PollBatch(ctxPoll, tokens)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, interrupted(ctx)
			}
			return nil, appErr.Wrapf(err, appErr.JudgeUnavailable, "poll execution cluster failed")
		}
		if execution.AllResolved(verdicts) {
			return verdicts, nil
		}
		logger.Debug(ctx, "verdicts pending", zap.Int("attempt", attempt), zap.Int("tokens", len(tokens)))
		timer.Reset(s.pollInterval)
	}
	return nil, appErr.Newf(appErr.JudgeTimeout, "verdicts not ready after %d polls", s.maxPollAttempts)
}

// interrupted reports a caller that went away; it is not a judge failure.
func interrupted(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return appErr.Wrapf(ctx.Err(), appErr.Timeout, "request deadline exceeded")
	}
	return appErr.Wrapf(ctx.Err(), appErr.RequestCanceled, "request canceled")
}

func (s *SubmitService) archiveSource(ctx context.Context, submissionID, source string) {
	if s.archive == nil {
		return
	}
	ctxStorage, cancel := withTimeout(ctx, s.timeouts.Storage)
	defer cancel()
	if _, err := s.archive.Archive(ctxStorage, submissionID, source); err != nil {
		logger.Warn(ctx, "archive source failed", zap.String("submission_id", submissionID), zap.Error(err))
	}
}

func (s *SubmitService) publishResult(ctx context.Context, event repository.ResultEvent) {
	if s.publisher == nil {
		return
	}
	ctxMQ, cancel := withTimeout(ctx, s.timeouts.MQ)
	defer cancel()
	if err := s.publisher.PublishResult(ctxMQ, event); err != nil {
		logger.Warn(ctx, "publish result event failed", zap.String("submission_id", event.SubmissionID), zap.Error(err))
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
