package execution_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codejudge/internal/judge/execution"
)

func newClient(t *testing.T, handler http.HandlerFunc) *execution.Judge0Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := execution.NewJudge0Client(execution.Judge0Config{
		BaseURL:      srv.URL + "/",
		RapidAPIKey:  "key",
		RapidAPIHost: "judge0.example",
	}, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestDispatchBatchSendsCasesInOrder(t *testing.T) {
	var got struct {
		Submissions []struct {
			SourceCode     string `json:"source_code"`
			LanguageID     int    `json:"language_id"`
			Stdin          string `json:"stdin"`
			ExpectedOutput string `json:"expected_output"`
		} `json:"submissions"`
	}
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/submissions/batch" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("base64_encoded") != "false" {
			t.Errorf("expected base64_encoded=false")
		}
		if r.Header.Get("X-RapidAPI-Key") != "key" || r.Header.Get("X-RapidAPI-Host") != "judge0.example" {
			t.Errorf("missing rapidapi headers")
		}
		if r.Header.Get("X-Auth-Token") != "" {
			t.Errorf("empty auth token must not be sent")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`[{"token":"t1"},{"token":"t2"}]`))
	})

	cases := []execution.TestCase{{Input: "1", ExpectedOutput: "2"}, {Input: "3", ExpectedOutput: "4"}}
	tokens, err := client.DispatchBatch(context.Background(), cases, "print(x)", 63)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != "t1" || tokens[1] != "t2" {
		t.Fatalf("unexpected tokens %v", tokens)
	}
	if len(got.Submissions) != 2 || got.Submissions[1].Stdin != "3" || got.Submissions[1].ExpectedOutput != "4" {
		t.Fatalf("unexpected request body %+v", got)
	}
	if got.Submissions[0].LanguageID != 63 || got.Submissions[0].SourceCode != "print(x)" {
		t.Fatalf("unexpected submission %+v", got.Submissions[0])
	}
}

func TestDispatchBatchIsAllOrNothing(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`},
		{name: "entry rejected", status: http.StatusCreated, body: `[{"token":"t1"},{"language_id":["is not valid"]}]`},
		{name: "token count mismatch", status: http.StatusCreated, body: `[{"token":"t1"}]`},
		{name: "garbage", status: http.StatusCreated, body: `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			cases := []execution.TestCase{{Input: "1"}, {Input: "2"}}
			tokens, err := client.DispatchBatch(context.Background(), cases, "src", 54)
			if !errors.Is(err, execution.ErrDispatch) {
				t.Fatalf("expected ErrDispatch, got %v", err)
			}
			if tokens != nil {
				t.Fatalf("expected no tokens, got %v", tokens)
			}
		})
	}
}

func TestPollBatchKeepsTokenOrder(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("tokens") != "a,b" || q.Get("fields") != "*" || q.Get("base64_encoded") != "false" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"submissions":[
			{"token":"b","status":{"id":6,"description":"Compilation Error"},"compile_output":"main.cpp:1: error","time":null,"memory":null},
			{"token":"a","status_id":3,"status":{"id":3,"description":"Accepted"},"stdout":"2\n","time":"0.012","memory":3100}
		]}`))
	})

	verdicts, err := client.PollBatch(context.Background(), []execution.Token{"a", "b"})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(verdicts) != 2 {
		t.Fatalf("expected 2 verdicts, got %d", len(verdicts))
	}
	a, b := verdicts[0], verdicts[1]
	if a.Token != "a" || a.StatusCode != execution.StatusAccepted || a.Time != 0.012 || a.Memory != 3100 {
		t.Fatalf("unexpected first verdict %+v", a)
	}
	if b.Token != "b" || !b.CompileFailed() || !strings.Contains(b.CompileOutput, "error") {
		t.Fatalf("unexpected second verdict %+v", b)
	}
	if b.Description != "Compilation Error" {
		t.Fatalf("expected description from status object, got %q", b.Description)
	}
	if !execution.AllResolved(verdicts) {
		t.Fatalf("expected all resolved")
	}
}

func TestPollBatchFailures(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	if _, err := client.PollBatch(context.Background(), []execution.Token{"a"}); !errors.Is(err, execution.ErrPoll) {
		t.Fatalf("expected ErrPoll, got %v", err)
	}

	missing := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"submissions":[{"token":"x","status_id":3}]}`))
	})
	if _, err := missing.PollBatch(context.Background(), []execution.Token{"a"}); !errors.Is(err, execution.ErrPoll) {
		t.Fatalf("expected ErrPoll for missing token, got %v", err)
	}
}

func TestVerdictResolved(t *testing.T) {
	for code := 1; code <= 2; code++ {
		if (execution.Verdict{StatusCode: code}).Resolved() {
			t.Fatalf("status %d must be in progress", code)
		}
	}
	for _, code := range []int{3, 4, 5, 6, 7, 11, 14} {
		if !(execution.Verdict{StatusCode: code}).Resolved() {
			t.Fatalf("status %d must be resolved", code)
		}
	}
}

func TestLanguageID(t *testing.T) {
	client, err := execution.NewJudge0Client(execution.Judge0Config{
		BaseURL:     "http://judge0.local",
		LanguageIDs: map[string]int{"java": 91},
	}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	tests := []struct {
		lang string
		want int
	}{
		{"c++", 54},
		{"CPP", 54},
		{" JavaScript ", 63},
		{"java", 91},
	}
	for _, tt := range tests {
		got, err := client.LanguageID(tt.lang)
		if err != nil || got != tt.want {
			t.Fatalf("LanguageID(%q) = %d, %v; want %d", tt.lang, got, err, tt.want)
		}
	}
	if _, err := client.LanguageID("cobol"); !errors.Is(err, execution.ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	if got := execution.NormalizeLanguage(" Cpp "); got != execution.LanguageCPP {
		t.Fatalf("expected c++, got %q", got)
	}
	if got := execution.NormalizeLanguage("Python"); got != "python" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}
