// Package remote calls the generation service that produces the downloadable
// MIDI artifact.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/cbegin/patternplay-go/internal/pattern"
)

// ErrGenerationRequestFailed covers transport failures and non-2xx replies.
var ErrGenerationRequestFailed = errors.New("generation request failed")

const (
	DefaultBaseURL = "http://localhost:5000"
	DefaultTimeout = 30 * time.Second
	DefaultGenre   = "pop"
	// maxArtifactBytes is the largest artifact accepted. Bigger replies fail.
	maxArtifactBytes = 16 << 20
)

// Request is what the service is asked to generate. Genre is passed through
// untouched; the service decides what it means.
type Request struct {
	Params pattern.Params
	Genre  string
}

// Query encodes r as the service expects it.
func (r Request) Query() url.Values {
	q := url.Values{}
	q.Set("key", r.Params.Key)
	q.Set("scale", string(r.Params.Scale))
	q.Set("tempo", strconv.Itoa(r.Params.Tempo))
	q.Set("octave", strconv.Itoa(r.Params.Octave))
	q.Set("enableChords", strconv.FormatBool(r.Params.EnableChords))
	q.Set("enableDrums", strconv.FormatBool(r.Params.EnableDrums))
	genre := r.Genre
	if genre == "" {
		genre = DefaultGenre
	}
	q.Set("genre", genre)
	return q
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

type Option func(*Client)

// WithTimeout bounds each request. Non-positive values keep DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient = &http.Client{Timeout: c.timeout}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Generate posts req to {base}/generate and returns the artifact bytes. Every
// failure wraps ErrGenerationRequestFailed.
func (c *Client) Generate(ctx context.Context, req Request) ([]byte, error) {
	span := sentry.StartSpan(ctx, "remote.generate")
	defer span.Finish()
	span.SetData("key", req.Params.Key)
	span.SetData("tempo", req.Params.Tempo)

	endpoint := c.baseURL + "/generate?" + req.Query().Encode()
	httpReq, err := http.NewRequestWithContext(span.Context(), http.MethodPost, endpoint, nil)
	if err != nil {
		span.Status = sentry.SpanStatusInvalidArgument
		return nil, fmt.Errorf("%w: %v", ErrGenerationRequestFailed, err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.Status = sentry.SpanStatusUnavailable
		return nil, fmt.Errorf("%w: %v", ErrGenerationRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.Status = sentry.SpanStatusInternalError
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrGenerationRequestFailed, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes+1))
	if err != nil {
		span.Status = sentry.SpanStatusDataLoss
		return nil, fmt.Errorf("%w: read body: %v", ErrGenerationRequestFailed, err)
	}
	if len(body) > maxArtifactBytes {
		span.Status = sentry.SpanStatusResourceExhausted
		return nil, fmt.Errorf("%w: artifact exceeds %d bytes", ErrGenerationRequestFailed, maxArtifactBytes)
	}
	span.Status = sentry.SpanStatusOK
	return body, nil
}
