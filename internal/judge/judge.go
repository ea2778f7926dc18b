// Package judge turns (claim, evidence) prompts into contradiction scores.
//
// A Judge is any text-in/text-out model. The Caller wraps one with a shared
// rate gate, bounded retries and a verdict cache, and never returns an error:
// a call that cannot be completed degrades to the NEUTRAL sentinel. The
// Batcher fans prompts out over a bounded pool and returns outcomes in
// submission order.
package judge

import "context"

// Judge answers a single prompt with a raw verdict string
type Judge interface {
	Judge(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to the Judge interface
type Func func(ctx context.Context, prompt string) (string, error)

// Judge calls f
func (f Func) Judge(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
