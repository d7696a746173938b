package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"codejudge/internal/common/cache"
	gatewayService "codejudge/internal/gateway/service"
	"codejudge/internal/judge/execution"
	"codejudge/internal/judge/result"
	"codejudge/internal/submit/service"
	appErr "codejudge/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testUser    int64 = 42
	testProblem int64 = 7
)

type harness struct {
	svc         *service.SubmitService
	executor    *scriptedExecutor
	submissions *fakeSubmissions
	solved      *fakeSolved
	publisher   *recordingPublisher
	archive     *recordingArchive
	testCases   *fakeTestCases
	redis       *miniredis.Miniredis
}

func newHarness(t *testing.T, executor *scriptedExecutor) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rc, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	h := &harness{
		executor:    executor,
		submissions: newFakeSubmissions(),
		solved:      newFakeSolved(),
		publisher:   &recordingPublisher{},
		archive:     &recordingArchive{},
		redis:       mr,
	}
	h.testCases = &fakeTestCases{
		hidden: map[int64][]execution.TestCase{
			testProblem: cases(3),
			8:           nil,
		},
		visible: map[int64][]execution.TestCase{
			testProblem: cases(2),
		},
	}
	svc, err := service.NewSubmitService(service.Config{
		SubmissionRepo:  h.submissions,
		TestCaseRepo:    h.testCases,
		SolvedRepo:      h.solved,
		Executor:        executor,
		Cooldown:        gatewayService.NewCooldownService(rc, gatewayService.DefaultCooldown, time.Second),
		Publisher:       h.publisher,
		Archive:         h.archive,
		MaxCodeBytes:    1024,
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 5,
	})
	if err != nil {
		t.Fatalf("new submit service: %v", err)
	}
	h.svc = svc
	return h
}

func submitInput() service.SubmitInput {
	return service.SubmitInput{
		UserID:     testUser,
		ProblemID:  testProblem,
		Language:   "cpp",
		SourceCode: "int main(){return 0;}",
	}
}

func TestSubmitAllMatchedIsAccepted(t *testing.T) {
	executor := &scriptedExecutor{polls: [][]execution.Verdict{
		verdicts(execution.StatusInQueue, execution.StatusProcessing, execution.StatusInQueue),
		verdicts(execution.StatusAccepted, execution.StatusAccepted, execution.StatusAccepted),
	}}
	h := newHarness(t, executor)

	res, err := h.svc.Submit(context.Background(), submitInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Accepted || res.Status != result.StatusAccepted || res.PassedTestCases != 3 || res.TotalTestCases != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if executor.pollCalls != 2 {
		t.Fatalf("expected 2 polls, got %d", executor.pollCalls)
	}
	rec := h.submissions.only()
	if rec == nil || rec.Status != result.StatusAccepted || rec.Language != execution.LanguageCPP {
		t.Fatalf("unexpected record %+v", rec)
	}
	if ok, _ := h.solved.HasSolved(context.Background(), testUser, testProblem); !ok {
		t.Fatalf("expected problem in solved set")
	}
	if len(h.publisher.events) != 1 || !h.publisher.events[0].FirstSolve {
		t.Fatalf("expected one first-solve event, got %+v", h.publisher.events)
	}
	if h.archive.sources[res.SubmissionID] != submitInput().SourceCode {
		t.Fatalf("source was not archived")
	}
}

func TestSubmitWrongOutput(t *testing.T) {
	executor := &scriptedExecutor{polls: [][]execution.Verdict{
		verdicts(execution.StatusAccepted, execution.StatusWrongAnswer, execution.StatusAccepted),
	}}
	h := newHarness(t, executor)

	res, err := h.svc.Submit(context.Background(), submitInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Accepted || res.Status != result.StatusWrong || res.PassedTestCases != 2 || res.TotalTestCases != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	rec := h.submissions.only()
	if rec.ErrorMessage != "" {
		t.Fatalf("expected no error message, got %q", rec.ErrorMessage)
	}
	if len(h.solved.solved) != 0 {
		t.Fatalf("wrong answer must not mark problem solved")
	}
}

func TestSubmitCompileFailureZeroesPassed(t *testing.T) {
	executor := &scriptedExecutor{polls: [][]execution.Verdict{
		verdicts(execution.StatusCompilationError, execution.StatusAccepted, execution.StatusAccepted),
	}}
	h := newHarness(t, executor)

	res, err := h.svc.Submit(context.Background(), submitInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Status != result.StatusCompileError || res.PassedTestCases != 0 || res.Runtime != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if rec := h.submissions.only(); rec.ErrorMessage != "main.cpp:1: error" {
		t.Fatalf("expected compile output recorded, got %q", rec.ErrorMessage)
	}
}

func TestSubmitCooldownRejectsSecondSubmission(t *testing.T) {
	executor := &scriptedExecutor{polls: [][]execution.Verdict{
		verdicts(execution.StatusAccepted, execution.StatusAccepted, execution.StatusAccepted),
	}}
	h := newHarness(t, executor)
	ctx := context.Background()

	if _, err := h.svc.Submit(ctx, submitInput()); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := h.svc.Submit(ctx, submitInput())
	if appErr.GetCode(err) != appErr.SubmitTooFrequently {
		t.Fatalf("expected SubmitTooFrequently, got %v", err)
	}
	if appErr.GetCode(err).HTTPStatus() != 429 {
		t.Fatalf("expected 429")
	}
	if h.submissions.count() != 1 {
		t.Fatalf("rejected submit must not create a record, have %d", h.submissions.count())
	}

	h.redis.FastForward(11 * time.Second)
	if _, err := h.svc.Submit(ctx, submitInput()); err != nil {
		t.Fatalf("submit after cooldown: %v", err)
	}
}

func TestSubmitSolvedSetIsIdempotent(t *testing.T) {
	executor := &scriptedExecutor{polls: [][]execution.Verdict{
		verdicts(execution.StatusAccepted, execution.StatusAccepted, execution.StatusAccepted),
	}}
	h := newHarness(t, executor)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := h.svc.Submit(ctx, submitInput()); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		h.redis.FastForward(11 * time.Second)
	}
	solved, err := h.svc.ListSolved(ctx, testUser)
	if err != nil {
		t.Fatalf("list solved: %v", err)
	}
	if len(solved) != 1 || solved[0] != testProblem {
		t.Fatalf("expected problem once in solved set, got %v", solved)
	}
	if h.solved.adds != 1 {
		t.Fatalf("expected a single insert, got %d", h.solved.adds)
	}
	if h.publisher.events[1].FirstSolve {
		t.Fatalf("second acceptance must not be a first solve")
	}
}

func TestSubmitDispatchFailureLeavesPending(t *testing.T) {
	executor := &scriptedExecutor{dispatchErr: execution.ErrDispatch}
	h := newHarness(t, executor)

	_, err := h.svc.Submit(context.Background(), submitInput())
	if appErr.GetCode(err) != appErr.JudgeUnavailable {
		t.Fatalf("expected JudgeUnavailable, got %v", err)
	}
	if !errors.Is(err, execution.ErrDispatch) {
		t.Fatalf("expected ErrDispatch in chain")
	}
	if rec := h.submissions.only(); rec == nil || rec.Status != result.StatusPending {
		t.Fatalf("expected pending record, got %+v", rec)
	}
	if len(h.publisher.events) != 0 {
		t.Fatalf("no event expected for unresolved submission")
	}
}

func TestSubmitPollFailure(t *testing.T) {
	executor := &scriptedExecutor{pollErr: execution.ErrPoll}
	h := newHarness(t, executor)

	_, err := h.svc.Submit(context.Background(), submitInput())
	if appErr.GetCode(err) != appErr.JudgeUnavailable {
		t.Fatalf("expected JudgeUnavailable, got %v", err)
	}
	if executor.pollCalls != 1 {
		t.Fatalf("poll must not be retried, got %d calls", executor.pollCalls)
	}
}

func TestSubmitPollTimeout(t *testing.T) {
	executor := &scriptedExecutor{polls: [][]execution.Verdict{
		verdicts(execution.StatusProcessing, execution.StatusAccepted, execution.StatusAccepted),
	}}
	h := newHarness(t, executor)

	_, err := h.svc.Submit(context.Background(), submitInput())
	if appErr.GetCode(err) != appErr.JudgeTimeout {
		t.Fatalf("expected JudgeTimeout, got %v", err)
	}
	if executor.pollCalls != 5 {
		t.Fatalf("expected 5 polls, got %d", executor.pollCalls)
	}
	if rec := h.submissions.only(); rec.Status != result.StatusPending {
		t.Fatalf("expected pending record, got %s", rec.Status)
	}
}

func TestSubmitContinuesAfterClientCancel(t *testing.T) {
	executor := &scriptedExecutor{polls: [][]execution.Verdict{
		verdicts(execution.StatusProcessing, execution.StatusProcessing, execution.StatusProcessing),
		verdicts(execution.StatusAccepted, execution.StatusAccepted, execution.StatusAccepted),
	}}
	h := newHarness(t, executor)
	ctx, cancel := context.WithCancel(context.Background())
	h.submissions.onCreate = cancel

	res, err := h.svc.Submit(ctx, submitInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Status != result.StatusAccepted {
		t.Fatalf("expected accepted, got %s", res.Status)
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, &scriptedExecutor{})
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*service.SubmitInput)
		code   appErr.ErrorCode
	}{
		{"missing user", func(in *service.SubmitInput) { in.UserID = 0 }, appErr.ValidationFailed},
		{"missing problem", func(in *service.SubmitInput) { in.ProblemID = 0 }, appErr.ValidationFailed},
		{"blank language", func(in *service.SubmitInput) { in.Language = "  " }, appErr.ValidationFailed},
		{"blank source", func(in *service.SubmitInput) { in.SourceCode = "\n" }, appErr.ValidationFailed},
		{"too large", func(in *service.SubmitInput) { in.SourceCode = string(make([]byte, 2048)) + "x" }, appErr.CodeTooLarge},
		{"unknown language", func(in *service.SubmitInput) { in.Language = "cobol" }, appErr.LanguageNotSupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := submitInput()
			tt.mutate(&in)
			_, err := h.svc.Submit(ctx, in)
			if appErr.GetCode(err) != tt.code {
				t.Fatalf("expected %d, got %v", tt.code, err)
			}
		})
	}
	if h.submissions.count() != 0 {
		t.Fatalf("invalid input must not create records")
	}
	// Rejected inputs never took the cooldown.
	if h.redis.Exists("cooldown:42") {
		t.Fatalf("cooldown taken by invalid submission")
	}
}

func TestSubmitUnknownProblem(t *testing.T) {
	h := newHarness(t, &scriptedExecutor{})
	in := submitInput()
	in.ProblemID = 99

	_, err := h.svc.Submit(context.Background(), in)
	if appErr.GetCode(err) != appErr.ProblemNotFound {
		t.Fatalf("expected ProblemNotFound, got %v", err)
	}
	if h.submissions.count() != 0 {
		t.Fatalf("missing problem must not create a record")
	}
}

func TestSubmitStoreFailureLeavesCooldownFree(t *testing.T) {
	executor := &scriptedExecutor{polls: [][]execution.Verdict{
		verdicts(execution.StatusAccepted, execution.StatusAccepted, execution.StatusAccepted),
	}}
	h := newHarness(t, executor)
	h.testCases.err = errors.New("conn reset")

	_, err := h.svc.Submit(context.Background(), submitInput())
	if appErr.GetCode(err) != appErr.DatabaseError {
		t.Fatalf("expected DatabaseError, got %v", err)
	}
	if h.redis.Exists("cooldown:42") {
		t.Fatalf("cooldown taken although no submission was created")
	}

	h.testCases.err = nil
	if _, err := h.svc.Submit(context.Background(), submitInput()); err != nil {
		t.Fatalf("retry after store recovery: %v", err)
	}
}

func TestSubmitProblemWithoutHiddenCases(t *testing.T) {
	h := newHarness(t, &scriptedExecutor{})
	in := submitInput()
	in.ProblemID = 8

	_, err := h.svc.Submit(context.Background(), in)
	if appErr.GetCode(err) != appErr.ProblemNotSubmittable {
		t.Fatalf("expected ProblemNotSubmittable, got %v", err)
	}
}

func TestSubmitSideChannelFailuresAreIgnored(t *testing.T) {
	executor := &scriptedExecutor{polls: [][]execution.Verdict{
		verdicts(execution.StatusAccepted, execution.StatusAccepted, execution.StatusAccepted),
	}}
	h := newHarness(t, executor)
	h.publisher.err = errors.New("broker down")
	h.archive.err = errors.New("bucket gone")

	if _, err := h.svc.Submit(context.Background(), submitInput()); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestRunUsesVisibleCasesWithoutRecord(t *testing.T) {
	executor := &scriptedExecutor{polls: [][]execution.Verdict{
		{verdict(execution.StatusAccepted), verdict(execution.StatusRuntimeErrorMinimum)},
	}}
	h := newHarness(t, executor)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := h.svc.Run(ctx, submitInput())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if res.Success || res.Status != result.StatusError || res.ErrorMessage != "segfault" {
			t.Fatalf("unexpected run result %+v", res)
		}
		if len(res.TestCases) != 2 || res.TotalTestCases != 2 || res.PassedTestCases != 1 {
			t.Fatalf("unexpected run cases %+v", res)
		}
	}
	if len(executor.dispatched[0]) != 2 {
		t.Fatalf("expected visible cases dispatched, got %d", len(executor.dispatched[0]))
	}
	if h.submissions.count() != 0 {
		t.Fatalf("run must not create records")
	}
}

func TestRunReportsClientCancel(t *testing.T) {
	executor := &scriptedExecutor{polls: [][]execution.Verdict{
		verdicts(execution.StatusProcessing, execution.StatusProcessing),
	}}
	h := newHarness(t, executor)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.Run(ctx, submitInput())
	if appErr.GetCode(err) != appErr.RequestCanceled {
		t.Fatalf("expected RequestCanceled, got %v", err)
	}
	if appErr.RequestCanceled.HTTPStatus() == appErr.JudgeTimeout.HTTPStatus() {
		t.Fatalf("cancel must not be reported as a judge timeout")
	}
}

func TestGetSubmissionIsOwnerScoped(t *testing.T) {
	executor := &scriptedExecutor{polls: [][]execution.Verdict{
		verdicts(execution.StatusAccepted, execution.StatusAccepted, execution.StatusAccepted),
	}}
	h := newHarness(t, executor)
	ctx := context.Background()
	res, err := h.svc.Submit(ctx, submitInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	got, err := h.svc.GetSubmission(ctx, testUser, res.SubmissionID)
	if err != nil {
		t.Fatalf("get own submission: %v", err)
	}
	if got.Status != result.StatusAccepted || got.PassedTestCases != 3 {
		t.Fatalf("unexpected submission %+v", got)
	}
	if _, err := h.svc.GetSubmission(ctx, testUser+1, res.SubmissionID); appErr.GetCode(err) != appErr.SubmissionNotFound {
		t.Fatalf("expected SubmissionNotFound for another user, got %v", err)
	}
	if _, err := h.svc.GetSubmission(ctx, testUser, "missing"); appErr.GetCode(err) != appErr.SubmissionNotFound {
		t.Fatalf("expected SubmissionNotFound, got %v", err)
	}
	if _, err := h.svc.GetSubmission(ctx, testUser, " "); appErr.GetCode(err) != appErr.ValidationFailed {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}

func TestListSubmissions(t *testing.T) {
	executor := &scriptedExecutor{polls: [][]execution.Verdict{
		verdicts(execution.StatusAccepted, execution.StatusWrongAnswer, execution.StatusAccepted),
	}}
	h := newHarness(t, executor)
	ctx := context.Background()
	if _, err := h.svc.Submit(ctx, submitInput()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	list, err := h.svc.ListSubmissions(ctx, testUser, testProblem)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Status != result.StatusWrong {
		t.Fatalf("unexpected list %+v", list)
	}
	if _, err := h.svc.ListSubmissions(ctx, testUser, 0); appErr.GetCode(err) != appErr.ValidationFailed {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}

func TestNewSubmitServiceRequiresDependencies(t *testing.T) {
	if _, err := service.NewSubmitService(service.Config{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
}
