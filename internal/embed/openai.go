package embed

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/fabula/internal/model"
	"github.com/ppiankov/fabula/internal/util"
)

// OpenAI embeds through the OpenAI embeddings endpoint (or a compatible gateway).
// Inputs are split into batches that are sent concurrently, up to a limit.
type OpenAI struct {
	client      *openai.Client
	model       string
	batchSize   int
	concurrency int
}

// NewOpenAI creates an OpenAI embedder
func NewOpenAI(cfg model.EmbeddingConfig, httpCfg model.HTTPConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required for embeddings")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = util.NewHTTPClient(httpCfg.Timeout, httpCfg.HTTPProxy, httpCfg.HTTPSProxy)

	e := &OpenAI{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
	}
	if e.model == "" {
		e.model = string(openai.SmallEmbedding3)
	}
	if e.batchSize <= 0 {
		e.batchSize = 128
	}
	if e.concurrency <= 0 {
		e.concurrency = 1
	}
	return e, nil
}

// Name returns the embedder name
func (e *OpenAI) Name() string {
	return "openai/" + e.model
}

// Embed embeds texts in batches and reassembles them in input order
func (e *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]
		offset := start

		g.Go(func() error {
			resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: batch,
				Model: openai.EmbeddingModel(e.model),
			})
			if err != nil {
				return fmt.Errorf("OpenAI embeddings (batch at %d): %w", offset, err)
			}
			if len(resp.Data) != len(batch) {
				return fmt.Errorf("%w: sent %d, got %d", ErrCountMismatch, len(batch), len(resp.Data))
			}
			for _, d := range resp.Data {
				if d.Index < 0 || d.Index >= len(batch) {
					return fmt.Errorf("embedding index %d out of range for batch of %d", d.Index, len(batch))
				}
				out[offset+d.Index] = NormalizeL2(d.Embedding)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
