package judge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/fabula/internal/cache"
	"github.com/ppiankov/fabula/internal/worker"
)

// Defaults for the call policy
const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = time.Second
)

// Outcome is the typed result of one judge call
type Outcome struct {
	Raw      string  // Answer text; FallbackVerdict when Fallback is set
	Verdict  Verdict // Parsed answer
	Attempts int     // Calls actually made to the judge (0 on a cache hit)
	Err      error   // Last error when every attempt failed
	Fallback bool    // Sentinel substituted after exhausting attempts
	Cached   bool    // Answer served from the verdict cache
}

// Score returns the contradiction score of the outcome
func (o Outcome) Score() float64 {
	return o.Verdict.Score()
}

// Caller invokes a Judge under the shared call policy
type Caller struct {
	judge       Judge
	key         string // Rate gate bucket and cache namespace
	limiter     *worker.Limiter
	cache       cache.Cache
	cacheTTL    time.Duration
	callTimeout time.Duration
	maxAttempts int
	backoffBase time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// CallerOption configures a Caller
type CallerOption func(*Caller)

// WithLimiter gates every attempt through the shared limiter
func WithLimiter(l *worker.Limiter) CallerOption {
	return func(c *Caller) {
		c.limiter = l
	}
}

// WithCache serves and stores successful verdicts. A zero ttl uses the cache default.
func WithCache(cc cache.Cache, ttl time.Duration) CallerOption {
	return func(c *Caller) {
		c.cache = cc
		c.cacheTTL = ttl
	}
}

// WithMaxAttempts sets the number of attempts per call (minimum 1)
func WithMaxAttempts(n int) CallerOption {
	return func(c *Caller) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay before the second attempt; it doubles afterwards
func WithBackoff(base time.Duration) CallerOption {
	return func(c *Caller) {
		if base >= 0 {
			c.backoffBase = base
		}
	}
}

// WithCallTimeout bounds each individual attempt
func WithCallTimeout(d time.Duration) CallerOption {
	return func(c *Caller) {
		c.callTimeout = d
	}
}

// WithLogger sets the logger used for retry and fallback messages
func WithLogger(l *slog.Logger) CallerOption {
	return func(c *Caller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCaller wraps j. key identifies the judge (provider and model) for rate
// limiting and cache namespacing.
func NewCaller(j Judge, key string, opts ...CallerOption) *Caller {
	c := &Caller{
		judge:       j,
		key:         key,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
		sleep:       worker.Sleep,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// gate takes a token from the limiter, logging when the call has to wait
func (c *Caller) gate(ctx context.Context) error {
	if c.limiter == nil || c.limiter.Allow(c.key) {
		return nil
	}
	c.logger.Debug("judge rate limited, waiting", "judge", c.key)
	return c.limiter.Wait(ctx, c.key)
}

// Call judges one prompt. It never fails: when every attempt errors, or ctx
// ends first, the outcome carries the NEUTRAL sentinel and the last error.
func (c *Caller) Call(ctx context.Context, prompt string) Outcome {
	var cacheKey string
	if c.cache != nil {
		cacheKey = cache.CacheKey(c.key, prompt)
		if raw, ok := c.cache.Get(cacheKey); ok {
			return Outcome{
				Raw:     string(raw),
				Verdict: ParseVerdict(string(raw)),
				Cached:  true,
			}
		}
	}

	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.gate(ctx); err != nil {
			lastErr = fmt.Errorf("rate gate: %w", err)
			break
		}

		attempts++
		raw, err := c.attempt(ctx, prompt)
		if err == nil {
			if c.cache != nil {
				if err := c.cache.Set(cacheKey, []byte(raw), c.cacheTTL); err != nil {
					c.logger.Warn("cache verdict failed", "error", err)
				}
			}
			return Outcome{
				Raw:      raw,
				Verdict:  ParseVerdict(raw),
				Attempts: attempts,
			}
		}

		lastErr = err
		c.logger.Debug("judge attempt failed",
			"judge", c.key,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"error", err,
		)

		if attempt < c.maxAttempts {
			delay := c.backoffBase << (attempt - 1)
			if err := c.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
	}

	c.logger.Warn("judge call failed, using fallback verdict",
		"judge", c.key,
		"attempts", attempts,
		"fallback", FallbackVerdict,
		"error", lastErr,
	)

	return Outcome{
		Raw:      FallbackVerdict,
		Verdict:  ParseVerdict(FallbackVerdict),
		Attempts: attempts,
		Err:      lastErr,
		Fallback: true,
	}
}

func (c *Caller) attempt(ctx context.Context, prompt string) (string, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	return c.judge.Judge(ctx, prompt)
}
