package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/code-battle-backend/internal/catalog"
)

var ErrMissingAPIKey = errors.New("judge0 api key is not set")
var ErrUnexpectedStatus = errors.New("judge0 returned unexpected status")
var ErrShortBatch = errors.New("judge0 returned fewer submissions than requested")

// Judge0 status ids.
const (
	StatusInQueue    = 1
	StatusProcessing = 2
	StatusAccepted   = 3
)

const submissionFields = "token,status,stdout,stderr,compile_output,message"

type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description,omitempty"`
}

type Verdict struct {
	Token         string `json:"token,omitempty"`
	Status        Status `json:"status"`
	Stdout        string `json:"stdout,omitempty"`
	Stderr        string `json:"stderr,omitempty"`
	CompileOutput string `json:"compile_output,omitempty"`
	Message       string `json:"message,omitempty"`
}

func (v Verdict) Passed() bool { return v.Status.ID == StatusAccepted }

func (v Verdict) pending() bool {
	return v.Status.ID == StatusInQueue || v.Status.ID == StatusProcessing
}

// Grader runs code against test cases and returns one verdict per case, in order.
type Grader interface {
	Grade(ctx context.Context, code string, cases []catalog.TestCase) ([]Verdict, error)
}

type Config struct {
	BaseURL      string
	Host         string
	APIKey       string
	LanguageID   int
	PollInterval time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger.With(zap.String("component", "judge"))}, nil
}

type submission struct {
	SourceCode     string `json:"source_code"`
	LanguageID     int    `json:"language_id"`
	Stdin          string `json:"stdin"`
	ExpectedOutput string `json:"expected_output"`
}

type batchRequest struct {
	Submissions []submission `json:"submissions"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type batchResponse struct {
	Submissions []Verdict `json:"submissions"`
}

func (c *Client) Grade(ctx context.Context, code string, cases []catalog.TestCase) ([]Verdict, error) {
	if len(cases) == 0 {
		return nil, nil
	}

	tokens, err := c.submit(ctx, code, cases)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		verdicts, err := c.fetch(ctx, tokens)
		if err != nil {
			return nil, err
		}
		if !anyPending(verdicts) {
			c.logger.Debug("batch graded", zap.Int("cases", len(verdicts)), zap.Int("polls", attempt))
			return verdicts, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for judge0: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) submit(ctx context.Context, code string, cases []catalog.TestCase) ([]string, error) {
	req := batchRequest{Submissions: make([]submission, 0, len(cases))}
	for _, tc := range cases {
		req.Submissions = append(req.Submissions, submission{
			SourceCode:     code,
			LanguageID:     c.cfg.LanguageID,
			Stdin:          string(tc.Input),
			ExpectedOutput: string(tc.Expected),
		})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var tokens []tokenResponse
	if err := c.do(ctx, http.MethodPost, "/submissions/batch?base64_encoded=false", bytes.NewReader(body), &tokens); err != nil {
		return nil, fmt.Errorf("submit batch: %w", err)
	}
	if len(tokens) != len(cases) {
		return nil, fmt.Errorf("submit batch: %w (%d of %d)", ErrShortBatch, len(tokens), len(cases))
	}

	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Token
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, tokens []string) ([]Verdict, error) {
	q := url.Values{}
	q.Set("tokens", strings.Join(tokens, ","))
	q.Set("base64_encoded", "false")
	q.Set("fields", submissionFields)

	var resp batchResponse
	if err := c.do(ctx, http.MethodGet, "/submissions/batch?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}
	if len(resp.Submissions) != len(tokens) {
		return nil, fmt.Errorf("fetch batch: %w (%d of %d)", ErrShortBatch, len(resp.Submissions), len(tokens))
	}
	return orderByToken(tokens, resp.Submissions), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	if c.cfg.Host != "" {
		req.Header.Set("X-RapidAPI-Host", c.cfg.Host)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// orderByToken keeps verdicts aligned with submission order even if the
// service answers out of order. Verdicts without a token keep their position.
func orderByToken(tokens []string, verdicts []Verdict) []Verdict {
	byToken := make(map[string]Verdict, len(verdicts))
	for _, v := range verdicts {
		if v.Token != "" {
			byToken[v.Token] = v
		}
	}
	out := make([]Verdict, len(tokens))
	for i, t := range tokens {
		if v, ok := byToken[t]; ok {
			out[i] = v
			continue
		}
		out[i] = verdicts[i]
	}
	return out
}

func anyPending(verdicts []Verdict) bool {
	for _, v := range verdicts {
		if v.pending() {
			return true
		}
	}
	return false
}

func PassFlags(verdicts []Verdict) []bool {
	out := make([]bool, len(verdicts))
	for i, v := range verdicts {
		out[i] = v.Passed()
	}
	return out
}
