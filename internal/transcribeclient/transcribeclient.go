// Package transcribeclient is the external transcription contract:
// it posts one local audio chunk to a remote transcription endpoint and
// returns timed segments. Retries are handled internally with jittered
// exponential backoff; callers see only transient-exhausted or permanent
// failures.
package transcribeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/streamscribe/streamscribe/internal/apierr"
	"github.com/streamscribe/streamscribe/internal/lang"
	"github.com/streamscribe/streamscribe/internal/types"
)

// Result is the normalized transcription response for one chunk.
type Result struct {
	Segments []types.Segment
	Language string
}

// Client transcribes one local audio chunk.
type Client interface {
	// Transcribe sends localAudioPath to the remote endpoint, tagging the
	// request with chunkDurationSeconds and chunkIndex so the endpoint can
	// reproduce idempotent results for (chunkIndex, path content).
	Transcribe(ctx context.Context, localAudioPath string, chunkDurationSeconds float64, chunkIndex int) (Result, error)
}

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second
	maxResponseSize   = 10 * 1024 * 1024
)

// httpDoer abstracts the HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient implements Client against an HTTP multipart endpoint:
// POST file + chunkDurationSeconds + chunkIndex, receive
// {segments[]{start,end,text}, language}.
type HTTPClient struct {
	httpClient httpDoer
	baseURL    string
	apiKey     string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient overrides the HTTP client used, for testing.
func WithHTTPClient(c httpDoer) Option {
	return func(t *HTTPClient) { t.httpClient = c }
}

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) Option {
	return func(t *HTTPClient) {
		if n >= 0 {
			t.maxRetries = n
		}
	}
}

// WithRetryDelays overrides the base and max backoff delays.
func WithRetryDelays(base, max time.Duration) Option {
	return func(t *HTTPClient) {
		if base > 0 {
			t.baseDelay = base
		}
		if max > 0 {
			t.maxDelay = max
		}
	}
}

// NewHTTPClient builds an HTTPClient against baseURL, authenticating with
// apiKey via a bearer token.
func NewHTTPClient(baseURL, apiKey string, opts ...Option) *HTTPClient {
	t := &HTTPClient{
		httpClient: http.DefaultClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ Client = (*HTTPClient)(nil)

// Transcribe implements Client.
func (t *HTTPClient) Transcribe(ctx context.Context, localAudioPath string, chunkDurationSeconds float64, chunkIndex int) (Result, error) {
	cfg := apierr.RetryConfig{MaxRetries: t.maxRetries, BaseDelay: t.baseDelay, MaxDelay: t.maxDelay}

	return apierr.RetryWithBackoff(ctx, cfg, func() (Result, error) {
		return t.transcribeOnce(ctx, localAudioPath, chunkDurationSeconds, chunkIndex)
	}, isRetryableError)
}

func (t *HTTPClient) transcribeOnce(ctx context.Context, localAudioPath string, chunkDurationSeconds float64, chunkIndex int) (Result, error) {
	// #nosec G304 -- path comes from our own temp-file staging, not user input
	file, err := os.Open(localAudioPath)
	if err != nil {
		return Result{}, types.NewChunkError(types.KindValidationError, chunkIndex, "open chunk audio", err)
	}
	defer func() { _ = file.Close() }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(localAudioPath))
	if err != nil {
		return Result{}, fmt.Errorf("build multipart request: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return Result{}, fmt.Errorf("copy chunk audio into request: %w", err)
	}
	_ = writer.WriteField("chunkDurationSeconds", strconv.FormatFloat(chunkDurationSeconds, 'f', -1, 64))
	_ = writer.WriteField("chunkIndex", strconv.Itoa(chunkIndex))
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("finalize multipart request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/transcriptions", &body)
	if err != nil {
		return Result{}, fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", apierr.ErrTimeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	limited := io.LimitReader(resp.Body, maxResponseSize)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return Result{}, fmt.Errorf("read transcription response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return Result{}, classifyHTTPError(resp.StatusCode, respBody)
	}

	return parseResponse(respBody, chunkIndex)
}

type apiResponse struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Language string `json:"language"`
}

func parseResponse(body []byte, chunkIndex int) (Result, error) {
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, types.NewChunkError(types.KindValidationError, chunkIndex, "parse transcription response", err)
	}

	segments := make([]types.Segment, len(parsed.Segments))
	for i, s := range parsed.Segments {
		segments[i] = types.Segment{Start: s.Start, End: s.End, Text: s.Text}
	}

	tag, err := lang.Parse(parsed.Language)
	if err != nil {
		// The language is informational; a service returning an odd tag
		// must not fail the chunk.
		tag = lang.Normalize(parsed.Language)
	}
	return Result{Segments: segments, Language: tag}, nil
}

func classifyHTTPError(statusCode int, body []byte) error {
	msg := string(body)
	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", msg, apierr.ErrRateLimit)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", msg, apierr.ErrAuthFailed)
	case statusCode == http.StatusPaymentRequired:
		return fmt.Errorf("%s: %w", msg, apierr.ErrQuotaExceeded)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w", msg, apierr.ErrTimeout)
	case statusCode >= 400 && statusCode < 500:
		return fmt.Errorf("%s: %w", msg, apierr.ErrBadRequest)
	default:
		return fmt.Errorf("%w: status %d: %s", apierr.ErrTimeout, statusCode, msg)
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, apierr.ErrAuthFailed) ||
		errors.Is(err, apierr.ErrQuotaExceeded) || errors.Is(err, apierr.ErrBadRequest) {
		return false
	}
	return errors.Is(err, apierr.ErrRateLimit) || errors.Is(err, apierr.ErrTimeout)
}
