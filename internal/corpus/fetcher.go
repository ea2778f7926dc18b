package corpus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	retry "github.com/sethvargo/go-retry"
	"golang.org/x/net/html/charset"

	"github.com/ppiankov/fabula/internal/util"
	"github.com/ppiankov/fabula/internal/worker"
)

var (
	// ErrDisallowed is returned when robots.txt forbids fetching a document
	ErrDisallowed = errors.New("fetching disallowed by robots.txt")
	// ErrTooLarge is returned when a document exceeds the configured size limit
	ErrTooLarge = errors.New("document exceeds size limit")
)

// fetchBackoffBase is the first retry delay; tests shorten it
var fetchBackoffBase = time.Second

const maxFetchAttempts = 3

// Fetcher downloads remote documents politely: robots.txt is honoured,
// requests are spaced per host and transient failures are retried.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker
	limiter    *worker.Limiter
}

// FetchResult contains the fetched document and metadata
type FetchResult struct {
	Body        string // Decoded to UTF-8
	ContentType string
	FinalURL    string
}

// NewFetcher creates a fetcher. A nil robots checker skips robots.txt checks.
func NewFetcher(client *http.Client, userAgent string, maxBytes int64, robots *util.RobotsChecker) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}
	return &Fetcher{
		httpClient: client,
		userAgent:  userAgent,
		maxBytes:   maxBytes,
		robots:     robots,
		// One request per second per host
		limiter: worker.NewLimiter(60, 1),
	}
}

// Fetch retrieves one document
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	if f.robots != nil {
		allowed, delay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
		}
		if delay > 0 {
			if err := worker.Sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	if err := f.limiter.WaitURL(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain,text/html;q=0.9,*/*;q=0.5")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	contentType := resp.Header.Get("Content-Type")

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		// Read one byte past the limit to tell "exactly at" from "over"
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if f.maxBytes > 0 && int64(len(raw)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, rawURL, f.maxBytes)
	}

	decoded, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	text, err := io.ReadAll(decoded)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}

	return &FetchResult{
		Body:        string(text),
		ContentType: contentType,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// FetchWithRetry retries transient failures (network errors, 429 and 5xx)
// with Fibonacci backoff. Robots refusals and client errors fail immediately.
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error) {
	var result *FetchResult
	backoff := retry.WithMaxRetries(maxFetchAttempts-1, retry.NewFibonacci(fetchBackoffBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := f.Fetch(ctx, rawURL)
		if err != nil {
			if isTransient(err) && ctx.Err() == nil {
				return retry.RetryableError(err)
			}
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// StatusError reports a non-2xx response
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

func isTransient(err error) bool {
	if errors.Is(err, ErrDisallowed) || errors.Is(err, ErrTooLarge) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}
