package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/yungbote/biopath-backend/internal/observability"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

// CallOptions tunes one oracle call. AllowSearch permits search-grounded
// reasoning (used for hierarchy and sibling building, disabled for name
// normalization and coarse assignment).
type CallOptions struct {
	AllowSearch     bool
	Temperature     *float64
	TopP            *float64
	MaxOutputTokens int
	// Stage labels the call in logs and metrics.
	Stage string
}

// Client is the classification oracle session. Implementations permit one
// in-flight call at a time system-wide.
type Client interface {
	GenerateJSON(ctx context.Context, system string, user string, opts CallOptions) (map[string]any, error)
}

type client struct {
	log     *logger.Logger
	baseURL string
	apiKey  string
	model   string

	httpClient *http.Client

	maxRetries     int
	retryDelayBase time.Duration

	defaultTemperature float64
	defaultTopP        float64
	defaultMaxTokens   int

	// One outstanding oracle call at a time: the oracle carries cumulative
	// context expectations within a run and most deployments are
	// rate-limited.
	mu sync.Mutex

	callCount int
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("GEMINI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("GEMINI_MODEL"))
	if model == "" {
		model = "gemini-3-flash-preview"
	}

	timeoutSec := 180
	if v := strings.TrimSpace(os.Getenv("GEMINI_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 3
	if v := strings.TrimSpace(os.Getenv("GEMINI_MAX_RETRIES")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	retryDelayBase := 1500 * time.Millisecond
	if v := strings.TrimSpace(os.Getenv("GEMINI_RETRY_DELAY_MS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			retryDelayBase = time.Duration(parsed) * time.Millisecond
		}
	}

	temp := 0.3
	if v := strings.TrimSpace(os.Getenv("GEMINI_TEMPERATURE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			temp = f
		}
	}
	topP := 0.5
	if v := strings.TrimSpace(os.Getenv("GEMINI_TOP_P")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			topP = f
		}
	}
	maxTokens := 8192
	if v := strings.TrimSpace(os.Getenv("GEMINI_MAX_OUTPUT_TOKENS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			maxTokens = parsed
		}
	}

	return &client{
		log:                log.With("service", "GeminiClient"),
		baseURL:            baseURL,
		apiKey:             apiKey,
		model:              model,
		httpClient:         &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries:         maxRetries,
		retryDelayBase:     retryDelayBase,
		defaultTemperature: temp,
		defaultTopP:        topP,
		defaultMaxTokens:   maxTokens,
	}, nil
}

type generateRequest struct {
	SystemInstruction *content         `json:"system_instruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
	Tools             []map[string]any `json:"tools,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *client) GenerateJSON(ctx context.Context, system, user string, opts CallOptions) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.callCount++
	stage := strings.TrimSpace(opts.Stage)
	if stage == "" {
		stage = "unlabeled"
	}
	log := c.log.With("stage", stage, "call", c.callCount)

	temp := c.defaultTemperature
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}
	topP := c.defaultTopP
	if opts.TopP != nil {
		topP = *opts.TopP
	}
	maxTokens := c.defaultMaxTokens
	if opts.MaxOutputTokens > 0 {
		maxTokens = opts.MaxOutputTokens
	}

	req := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: user}}}},
		GenerationConfig: generationConfig{
			Temperature:     temp,
			TopP:            topP,
			MaxOutputTokens: maxTokens,
		},
	}
	if strings.TrimSpace(system) != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}
	if opts.AllowSearch {
		req.Tools = []map[string]any{{"google_search": map[string]any{}}}
	} else {
		// Structured output and search tools are mutually exclusive on the
		// API; with search off we can force JSON at the decoder level.
		req.GenerationConfig.ResponseMimeType = "application/json"
	}

	start := time.Now()
	text, err := c.doWithRetries(ctx, log, req)
	if err != nil {
		observability.RecordOracleCall(ctx, stage, time.Since(start), true)
		return nil, err
	}

	parsed, perr := ExtractJSON(text)
	observability.RecordOracleCall(ctx, stage, time.Since(start), perr != nil)
	if perr != nil {
		log.Warn("oracle returned non-JSON payload", "error", perr)
		return nil, perr
	}
	return parsed, nil
}

func (c *client) doWithRetries(ctx context.Context, log *logger.Logger, req generateRequest) (string, error) {
	var lastErr error
	attempts := c.maxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		text, retryable, err := c.doOnce(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable || attempt == attempts {
			break
		}
		delay := time.Duration(attempt) * c.retryDelayBase
		log.Warn("oracle call failed, retrying", "attempt", attempt, "delay", delay.String(), "error", err)
		select {
		case <-ctx.Done():
			return "", &UnavailableError{Reason: "context cancelled", Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
	// A shape violation stays a ProtocolError: callers have deterministic
	// fallbacks for it and must not treat it as an outage.
	var pe *ProtocolError
	if errors.As(lastErr, &pe) {
		return "", lastErr
	}
	if _, ok := lastErr.(*UnavailableError); ok {
		return "", lastErr
	}
	return "", &UnavailableError{Reason: "retries exhausted", Err: lastErr}
}

func (c *client) doOnce(ctx context.Context, req generateRequest) (text string, retryable bool, err error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", false, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", true, &UnavailableError{Reason: "transport", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, &UnavailableError{Status: resp.StatusCode, Reason: "read body", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retry, &UnavailableError{
			Status: resp.StatusCode,
			Reason: strings.TrimSpace(shorten(string(raw), 300)),
		}
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", false, &ProtocolError{Reason: "response envelope is not JSON", Raw: shorten(string(raw), 300)}
	}
	if out.Error != nil {
		retry := out.Error.Code == http.StatusTooManyRequests || out.Error.Code >= 500
		return "", retry, &UnavailableError{Status: out.Error.Code, Reason: out.Error.Message}
	}
	if len(out.Candidates) == 0 {
		return "", false, &ProtocolError{Reason: "no candidates in response", Raw: shorten(string(raw), 300)}
	}

	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	result := strings.TrimSpace(b.String())
	if result == "" {
		return "", false, &ProtocolError{Reason: "empty candidate text"}
	}
	return result, false, nil
}

// ExtractJSON pulls a JSON object out of model text that may be wrapped in
// markdown fences or surrounded by prose.
func ExtractJSON(text string) (map[string]any, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err == nil {
		return out, nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, &ProtocolError{Reason: "no JSON object in oracle output", Raw: shorten(s, 300)}
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return nil, &ProtocolError{Reason: "oracle output is not parseable JSON", Raw: shorten(s, 300)}
	}
	return out, nil
}

func shorten(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	// Back up to a rune boundary so multi-byte names survive the cut.
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
