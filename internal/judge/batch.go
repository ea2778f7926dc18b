package judge

import (
	"context"
	"sync/atomic"

	"github.com/ppiankov/fabula/internal/worker"
)

// DefaultConcurrency is the default number of judge workers
const DefaultConcurrency = 3

// ProgressFunc receives the number of completed calls out of total
type ProgressFunc func(done, total int)

// Batcher fans prompts out to a Caller over a bounded worker pool
type Batcher struct {
	caller      *Caller
	concurrency int
	progress    ProgressFunc
}

// NewBatcher creates a batcher with the given pool size (non-positive uses the default)
func NewBatcher(caller *Caller, concurrency int) *Batcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Batcher{
		caller:      caller,
		concurrency: concurrency,
	}
}

// OnProgress registers a callback invoked after every completed call.
// It may be called from several goroutines at once.
func (b *Batcher) OnProgress(fn ProgressFunc) *Batcher {
	b.progress = fn
	return b
}

// Run judges every prompt and returns outcomes aligned with prompts:
// outcome i always belongs to prompt i, whatever order calls finish in.
func (b *Batcher) Run(ctx context.Context, prompts []string) []Outcome {
	total := len(prompts)
	var done atomic.Int64

	outcomes, ran := worker.RunIndexed(ctx, b.concurrency, total, func(ctx context.Context, i int) Outcome {
		out := b.caller.Call(ctx, prompts[i])
		n := done.Add(1)
		if b.progress != nil {
			b.progress(int(n), total)
		}
		return out
	})

	// Jobs the pool never started (ctx ended) still owe a verdict
	for i := range outcomes {
		if !ran[i] {
			outcomes[i] = Outcome{
				Raw:      FallbackVerdict,
				Verdict:  ParseVerdict(FallbackVerdict),
				Err:      ctx.Err(),
				Fallback: true,
			}
		}
	}

	return outcomes
}

// Scores extracts the contradiction score of each outcome
func Scores(outcomes []Outcome) []float64 {
	scores := make([]float64, len(outcomes))
	for i, o := range outcomes {
		scores[i] = o.Score()
	}
	return scores
}

// Stats summarizes a batch
type Stats struct {
	Calls     int // Outcomes produced
	Attempts  int // Judge invocations, including retries
	Cached    int
	Fallbacks int
}

// Summarize counts cache hits, attempts and fallbacks across outcomes
func Summarize(outcomes []Outcome) Stats {
	s := Stats{Calls: len(outcomes)}
	for _, o := range outcomes {
		s.Attempts += o.Attempts
		if o.Cached {
			s.Cached++
		}
		if o.Fallback {
			s.Fallbacks++
		}
	}
	return s
}
