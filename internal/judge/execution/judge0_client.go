package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxResponseBytes = 8 << 20

// Judge0Config configures the HTTP client for a Judge0 deployment.
type Judge0Config struct {
	BaseURL string `yaml:"baseURL"`
	// RapidAPIKey/RapidAPIHost are sent when the cluster is reached through RapidAPI.
	RapidAPIKey  string `yaml:"rapidAPIKey"`
	RapidAPIHost string `yaml:"rapidAPIHost"`
	// AuthToken is sent as X-Auth-Token for self-hosted clusters.
	AuthToken      string         `yaml:"authToken"`
	RequestTimeout time.Duration  `yaml:"requestTimeout"`
	LanguageIDs    map[string]int `yaml:"languageIDs"`
}

// Judge0Client implements Client over the Judge0 batch endpoints.
type Judge0Client struct {
	baseURL   string
	headers   map[string]string
	http      *http.Client
	languages languageTable
}

// NewJudge0Client builds a client; httpClient may be nil.
func NewJudge0Client(cfg Judge0Config, httpClient *http.Client) (*Judge0Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("judge0 base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid judge0 base url: %w", err)
	}
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	headers := map[string]string{
		"X-RapidAPI-Key":  cfg.RapidAPIKey,
		"X-RapidAPI-Host": cfg.RapidAPIHost,
		"X-Auth-Token":    cfg.AuthToken,
	}
	return &Judge0Client{
		baseURL:   base,
		headers:   headers,
		http:      httpClient,
		languages: newLanguageTable(cfg.LanguageIDs),
	}, nil
}

// LanguageID maps a normalized language name to its Judge0 id.
func (c *Judge0Client) LanguageID(language string) (int, error) {
	return c.languages.lookup(language)
}

type batchSubmission struct {
	SourceCode     string `json:"source_code"`
	LanguageID     int    `json:"language_id"`
	Stdin          string `json:"stdin"`
	ExpectedOutput string `json:"expected_output"`
}

type batchRequest struct {
	Submissions []batchSubmission `json:"submissions"`
}

type tokenEntry struct {
	Token string `json:"token"`
}

// DispatchBatch is all-or-nothing: any entry without a token fails the whole batch.
func (c *Judge0Client) DispatchBatch(ctx context.Context, cases []TestCase, source string, languageID int) ([]Token, error) {
	if len(cases) == 0 {
		return nil, fmt.Errorf("%w: no test cases", ErrDispatch)
	}
	req := batchRequest{Submissions: make([]batchSubmission, 0, len(cases))}
	for _, tc := range cases {
		req.Submissions = append(req.Submissions, batchSubmission{
			SourceCode:     source,
			LanguageID:     languageID,
			Stdin:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrDispatch, err)
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "/submissions/batch?base64_encoded=false", body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrDispatch, status, truncate(respBody))
	}

	var entries []tokenEntry
	if err := json.Unmarshal(respBody, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrDispatch, err)
	}
	if len(entries) != len(cases) {
		return nil, fmt.Errorf("%w: got %d tokens for %d cases", ErrDispatch, len(entries), len(cases))
	}
	tokens := make([]Token, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Token) == "" {
			return nil, fmt.Errorf("%w: case %d rejected: %s", ErrDispatch, i, truncate(respBody))
		}
		tokens = append(tokens, Token(e.Token))
	}
	return tokens, nil
}

type pollStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type pollEntry struct {
	Token          string      `json:"token"`
	StatusID       int         `json:"status_id"`
	Status         *pollStatus `json:"status"`
	Stdout         *string     `json:"stdout"`
	ExpectedOutput *string     `json:"expected_output"`
	Stderr         *string     `json:"stderr"`
	CompileOutput  *string     `json:"compile_output"`
	Time           flexFloat   `json:"time"`
	Memory         flexFloat   `json:"memory"`
}

type pollResponse struct {
	Submissions []*pollEntry `json:"submissions"`
}

// PollBatch returns verdicts in the order of tokens regardless of response order.
func (c *Judge0Client) PollBatch(ctx context.Context, tokens []Token) ([]Verdict, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = url.QueryEscape(string(t))
	}
	path := "/submissions/batch?tokens=" + strings.Join(parts, ",") + "&base64_encoded=false&fields=*"

	status, respBody, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoll, err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrPoll, status, truncate(respBody))
	}

	var resp pollResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrPoll, err)
	}

	byToken := make(map[Token]*pollEntry, len(resp.Submissions))
	for i, e := range resp.Submissions {
		if e == nil {
			continue
		}
		if e.Token == "" && i < len(tokens) {
			e.Token = string(tokens[i])
		}
		byToken[Token(e.Token)] = e
	}

	verdicts := make([]Verdict, len(tokens))
	for i, t := range tokens {
		e, ok := byToken[t]
		if !ok {
			return nil, fmt.Errorf("%w: token %s missing from response", ErrPoll, t)
		}
		verdicts[i] = e.toVerdict(t)
	}
	return verdicts, nil
}

func (e *pollEntry) toVerdict(token Token) Verdict {
	v := Verdict{
		Token:          token,
		StatusCode:     e.StatusID,
		Stdout:         deref(e.Stdout),
		ExpectedOutput: deref(e.ExpectedOutput),
		Stderr:         deref(e.Stderr),
		CompileOutput:  deref(e.CompileOutput),
		Time:           float64(e.Time),
		Memory:         int64(e.Memory),
	}
	if e.Status != nil {
		if v.StatusCode == 0 {
			v.StatusCode = e.Status.ID
		}
		v.Description = e.Status.Description
	}
	return v
}

func (c *Judge0Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body failed: %w", err)
	}
	return resp.StatusCode, data, nil
}

// flexFloat accepts numbers, numeric strings and null. Judge0 reports time as "0.012".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

var _ Client = (*Judge0Client)(nil)
