package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoJobID       = errors.New("inference service did not return an event_id")
	ErrRemoteService = errors.New("inference service reported an error")
	ErrPollTimeout   = errors.New("inference polling exhausted all attempts")
)

const (
	submitPath = "/gradio_api/call/predict"

	defaultMaxAttempts  = 60
	defaultPollInterval = 2000 * time.Millisecond
	defaultRetryBackoff = 3000 * time.Millisecond
)

// dataArrayPattern captures a bracketed JSON array following a "data:"
// marker in the streamed status body. The status channel is SSE-shaped
// text, not JSON, and the array regularly arrives escaped or
// double-encoded, so it is matched as text rather than parsed as a
// stream.
var dataArrayPattern = regexp.MustCompile(`data:\s*(\[.*\])`)

var unicodeEscapePattern = regexp.MustCompile(`\\u([0-9a-fA-F]{4})`)

// RawPayload is the model output as recovered from the status channel,
// before normalization. Elements are strings or decoded JSON values.
type RawPayload []interface{}

// JobHandle identifies one in-flight inference submission
type JobHandle struct {
	EventID string
}

// InferenceClient talks to the remote rhetorical-role classification
// service: one submission call, then a bounded poll of its status
// channel.
type InferenceClient struct {
	baseURL      string
	httpClient   *http.Client
	maxAttempts  int
	pollInterval time.Duration
	retryBackoff time.Duration
}

// InferenceOption is a functional option for InferenceClient
type InferenceOption func(*InferenceClient)

// WithHTTPClient sets the HTTP client used for all requests
func WithHTTPClient(c *http.Client) InferenceOption {
	return func(ic *InferenceClient) {
		ic.httpClient = c
	}
}

// WithPollInterval sets the wait before each poll attempt
func WithPollInterval(d time.Duration) InferenceOption {
	return func(ic *InferenceClient) {
		ic.pollInterval = d
	}
}

// WithRetryBackoff sets the wait before the single transport retry
func WithRetryBackoff(d time.Duration) InferenceOption {
	return func(ic *InferenceClient) {
		ic.retryBackoff = d
	}
}

// WithMaxAttempts sets the poll attempt cap
func WithMaxAttempts(n int) InferenceOption {
	return func(ic *InferenceClient) {
		ic.maxAttempts = n
	}
}

// NewInferenceClient creates a new inference client
func NewInferenceClient(baseURL string, opts ...InferenceOption) *InferenceClient {
	ic := &InferenceClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		maxAttempts:  defaultMaxAttempts,
		pollInterval: defaultPollInterval,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(ic)
	}
	return ic
}

type submitRequest struct {
	Data []interface{} `json:"data"`
}

type submitResponse struct {
	EventID string `json:"event_id"`
}

// Submit sends the document text for classification and returns the
// job handle issued by the service. Without an event_id there is no
// status endpoint to poll, so its absence is a hard failure.
func (ic *InferenceClient) Submit(ctx context.Context, text string) (*JobHandle, error) {
	body, err := json.Marshal(submitRequest{Data: []interface{}{text, nil}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", ic.baseURL+submitPath, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ic.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit document: %w", err)
	}
	defer resp.Body.Close()

	var sub submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJobID, err)
	}
	if sub.EventID == "" {
		return nil, ErrNoJobID
	}

	return &JobHandle{EventID: sub.EventID}, nil
}

// AwaitResult polls the per-job status channel until a result array
// appears, the service signals an error, or the attempt cap runs out.
// A malformed intermediate poll never aborts the job; only the
// explicit error marker or full exhaustion is terminal.
func (ic *InferenceClient) AwaitResult(ctx context.Context, handle *JobHandle) (RawPayload, error) {
	statusURL := fmt.Sprintf("%s%s/%s", ic.baseURL, submitPath, handle.EventID)

	for attempt := 0; attempt < ic.maxAttempts; attempt++ {
		if err := wait(ctx, ic.pollInterval); err != nil {
			return nil, err
		}

		text, err := ic.readStatus(ctx, statusURL)
		if err != nil {
			// One immediate retry per attempt; a second transport
			// failure just yields the attempt, it does not fail the job.
			if err := wait(ctx, ic.retryBackoff); err != nil {
				return nil, err
			}
			text, err = ic.readStatus(ctx, statusURL)
			if err != nil {
				continue
			}
		}

		if strings.Contains(text, "event: error") {
			return nil, fmt.Errorf("%w: %s", ErrRemoteService, strings.TrimSpace(text))
		}

		matches := dataArrayPattern.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			// Not ready yet.
			continue
		}
		captured := matches[len(matches)-1][1]

		return decodePayload(captured), nil
	}

	return nil, ErrPollTimeout
}

// readStatus issues one GET against the status endpoint and returns
// the raw body text
func (ic *InferenceClient) readStatus(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}

	resp, err := ic.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(body), nil
}

// decodePayload turns the captured data array text into a RawPayload.
// The capture is parsed as-is first: a clean data line is valid JSON
// whose escapes belong to the encoding. Only when that fails is the
// text unescaped and parsed again, and when even that fails the
// unescaped string itself becomes the sole payload element so the
// normalizer still gets a chance at it.
func decodePayload(captured string) RawPayload {
	var parsed interface{}
	if err := json.Unmarshal([]byte(captured), &parsed); err == nil {
		return wrapPayload(parsed)
	}

	unescaped := unescapeStatusText(captured)
	if err := json.Unmarshal([]byte(unescaped), &parsed); err == nil {
		return wrapPayload(parsed)
	}

	return RawPayload{unescaped}
}

func wrapPayload(parsed interface{}) RawPayload {
	if arr, ok := parsed.([]interface{}); ok {
		return RawPayload(arr)
	}
	return RawPayload{parsed}
}

// unescapeStatusText resolves the escape sequences the status channel
// leaves in its data lines
func unescapeStatusText(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = unicodeEscapePattern.ReplaceAllStringFunc(s, func(match string) string {
		code, err := strconv.ParseUint(match[2:], 16, 32)
		if err != nil {
			return match
		}
		return string(rune(code))
	})
	return s
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
