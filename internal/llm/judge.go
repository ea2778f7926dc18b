package llm

import (
	"context"
	"fmt"
	"strings"
)

// judgeSystem steers every provider toward one-word answers
const judgeSystem = "You answer with exactly one word."

// Judge exposes a Provider through the judge contract: one prompt in, the
// raw answer text out. Transport errors are returned unchanged so the caller
// can retry them.
type Judge struct {
	provider Provider
}

// NewJudge wraps provider
func NewJudge(provider Provider) *Judge {
	return &Judge{provider: provider}
}

// Name returns the underlying provider name
func (j *Judge) Name() string {
	return j.provider.Name()
}

// Judge sends prompt and returns the trimmed answer
func (j *Judge) Judge(ctx context.Context, prompt string) (string, error) {
	resp, err := j.provider.Complete(ctx, CompletionRequest{
		Prompt: prompt,
		System: judgeSystem,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", j.provider.Name(), err)
	}
	return strings.TrimSpace(resp.Text), nil
}
