package cli

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// progressReporter prints judge batch progress with throughput and ETA.
// Update is safe for concurrent use.
type progressReporter struct {
	mu       sync.Mutex
	w        io.Writer
	start    time.Time
	every    time.Duration
	last     time.Time
	lastDone int
	now      func() time.Time
}

// newProgressReporter leaves the clock stopped until the first Update, so
// index building before the judge batch is not counted as judge time
func newProgressReporter(w io.Writer, every time.Duration) *progressReporter {
	return &progressReporter{
		w:     w,
		every: every,
		now:   time.Now,
	}
}

// Update records done of total calls and prints at most once per interval,
// plus once on completion
func (p *progressReporter) Update(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.start.IsZero() {
		p.start = now
		p.last = now
	}
	if done <= p.lastDone {
		return
	}
	if done < total && now.Sub(p.last) < p.every {
		return
	}

	p.last = now
	p.lastDone = done
	_, _ = fmt.Fprintln(p.w, formatProgress(done, total, now.Sub(p.start)))
}

// formatProgress renders "  judged 30/120 (25%) · 0.20/s · ETA 7m30s"
func formatProgress(done, total int, elapsed time.Duration) string {
	pct := 0
	if total > 0 {
		pct = done * 100 / total
	}
	line := fmt.Sprintf("  judged %d/%d (%d%%)", done, total, pct)

	secs := elapsed.Seconds()
	if secs <= 0 || done == 0 {
		return line
	}
	rate := float64(done) / secs
	line += fmt.Sprintf(" · %.2f/s", rate)

	if remaining := total - done; remaining > 0 {
		eta := time.Duration(float64(remaining) / rate * float64(time.Second))
		line += fmt.Sprintf(" · ETA %s", eta.Round(time.Second))
	}
	return line
}
