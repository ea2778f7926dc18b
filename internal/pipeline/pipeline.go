// Package pipeline wires claim splitting, evidence retrieval, judging,
// aggregation and classification into training and inference runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/fabula/internal/cache"
	"github.com/ppiankov/fabula/internal/chunk"
	"github.com/ppiankov/fabula/internal/classify"
	"github.com/ppiankov/fabula/internal/corpus"
	"github.com/ppiankov/fabula/internal/embed"
	"github.com/ppiankov/fabula/internal/extract"
	"github.com/ppiankov/fabula/internal/index"
	"github.com/ppiankov/fabula/internal/judge"
	"github.com/ppiankov/fabula/internal/model"
	"github.com/ppiankov/fabula/internal/score"
	"github.com/ppiankov/fabula/internal/worker"
)

var (
	// ErrNoClaims marks an example whose backstory split into zero claims
	ErrNoClaims = errors.New("backstory produced no claims")
	// ErrNoEvidence marks an example for which no passages were retrieved
	ErrNoEvidence = errors.New("no evidence retrieved")
	// ErrEmptyDocument is returned by IndexFor when a document yields no passages
	ErrEmptyDocument = errors.New("document produced no passages")
)

// Pipeline orchestrates feature extraction, training and inference.
// One Evidence Index is built per distinct document and reused for the
// lifetime of the Pipeline.
type Pipeline struct {
	config   *model.Config
	embedder embed.Embedder
	judge    judge.Judge
	judgeKey string
	loader   *corpus.Loader
	chunker  *chunk.Chunker
	limiter  *worker.Limiter
	cache    cache.Cache
	progress judge.ProgressFunc
	logger   *slog.Logger

	caller *judge.Caller

	mu      sync.Mutex
	indexes map[string]*index.Index
	empty   map[string]error
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger shared by the pipeline and its judge caller
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLoader replaces the document loader built from config.Documents
func WithLoader(l *corpus.Loader) Option {
	return func(p *Pipeline) {
		p.loader = l
	}
}

// WithChunker replaces the chunker built from config.Chunking
func WithChunker(c *chunk.Chunker) Option {
	return func(p *Pipeline) {
		p.chunker = c
	}
}

// WithLimiter replaces the judge rate gate built from config.Judge
func WithLimiter(l *worker.Limiter) Option {
	return func(p *Pipeline) {
		p.limiter = l
	}
}

// WithCache enables the verdict cache
func WithCache(c cache.Cache) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithProgress registers a callback for judge batch progress
func WithProgress(fn judge.ProgressFunc) Option {
	return func(p *Pipeline) {
		p.progress = fn
	}
}

// WithJudgeKey sets the rate gate bucket and cache namespace of the judge.
// Defaults to "<provider>/<model>" from config.Judge.
func WithJudgeKey(key string) Option {
	return func(p *Pipeline) {
		if key != "" {
			p.judgeKey = key
		}
	}
}

// New creates a pipeline. The embedder and judge are owned by the caller.
func New(cfg *model.Config, embedder embed.Embedder, j judge.Judge, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}

	p := &Pipeline{
		config:   cfg,
		embedder: embedder,
		judge:    j,
		judgeKey: cfg.Judge.Provider + "/" + cfg.Judge.Model,
		logger:   slog.New(slog.DiscardHandler),
		indexes:  make(map[string]*index.Index),
		empty:    make(map[string]error),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.loader == nil {
		p.loader = corpus.NewLoader(cfg.Documents, corpus.WithLogger(p.logger))
	}
	if p.chunker == nil {
		p.chunker = chunk.New(cfg.Chunking.MaxTokens, cfg.Chunking.Overlap)
	}
	if p.limiter == nil {
		p.limiter = worker.NewLimiter(cfg.Judge.RequestsPerMinute, 1)
	}

	callerOpts := []judge.CallerOption{
		judge.WithLimiter(p.limiter),
		judge.WithMaxAttempts(cfg.Judge.MaxAttempts),
		judge.WithBackoff(cfg.Judge.BackoffBase),
		judge.WithCallTimeout(cfg.Judge.Timeout),
		judge.WithLogger(p.logger),
	}
	if p.cache != nil {
		callerOpts = append(callerOpts, judge.WithCache(p.cache, 0))
	}
	p.caller = judge.NewCaller(j, p.judgeKey, callerOpts...)

	return p
}

// EmbedderName returns the name of the injected embedder
func (p *Pipeline) EmbedderName() string {
	return p.embedder.Name()
}

// JudgeKey returns the judge identifier used for rate limiting and caching
func (p *Pipeline) JudgeKey() string {
	return p.judgeKey
}

// IndexFor returns the Evidence Index of the document a book name resolves
// to, building it on first use (load, chunk, embed, add).
func (p *Pipeline) IndexFor(ctx context.Context, book string) (*index.Index, error) {
	name, err := p.loader.Resolve(book)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.indexes[name]; ok {
		return idx, nil
	}
	if err, ok := p.empty[name]; ok {
		return nil, err
	}

	start := time.Now()
	text, err := p.loader.Load(ctx, name)
	if err != nil {
		return nil, err
	}

	passages := p.chunker.Chunk(text)
	if len(passages) == 0 {
		err := fmt.Errorf("%w: %s", ErrEmptyDocument, name)
		p.empty[name] = err
		return nil, err
	}

	vectors, err := p.embedder.Embed(ctx, passages)
	if err != nil {
		return nil, fmt.Errorf("embed passages of %s: %w", name, err)
	}
	if len(vectors) != len(passages) {
		return nil, fmt.Errorf("%w: %d passages, %d vectors", embed.ErrCountMismatch, len(passages), len(vectors))
	}

	idx, err := index.New(len(vectors[0]))
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", name, err)
	}
	if err := idx.Add(vectors, passages); err != nil {
		return nil, fmt.Errorf("index %s: %w", name, err)
	}

	p.indexes[name] = idx
	p.logger.Info("evidence index built",
		"document", name,
		"passages", idx.Len(),
		"dim", idx.Dim(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return idx, nil
}

// ExampleResult holds the features computed for one example
type ExampleResult struct {
	Example  model.Example
	Claims   []model.Claim
	Evidence []model.Evidence
	Scores   []float64 // Aligned with Evidence
	Features model.FeatureVector
	Err      error // ErrNoClaims or ErrNoEvidence for degenerate examples
}

// Degenerate reports whether no feature vector could be computed
func (r ExampleResult) Degenerate() bool {
	return r.Err != nil
}

// FeatureSet is the output of Features
type FeatureSet struct {
	Results []ExampleResult // Aligned with the input examples
	Judge   judge.Stats
}

// Degenerate counts results without features
func (fs *FeatureSet) Degenerate() int {
	n := 0
	for _, r := range fs.Results {
		if r.Degenerate() {
			n++
		}
	}
	return n
}

// span is the half-open range of prompts owned by one example
type span struct {
	start, end int
}

// Features computes one feature vector per example.
//
// Prompts for every (claim, evidence) pair across all examples are judged in
// a single bounded batch, then recombined per example in submission order.
// Degenerate examples carry ErrNoClaims or ErrNoEvidence. Configuration
// failures (unknown book, embedding or dimensionality errors) abort the run.
func (p *Pipeline) Features(ctx context.Context, examples []model.Example) (*FeatureSet, error) {
	results := make([]ExampleResult, len(examples))
	spans := make([]span, len(examples))
	var prompts []string

	for i, ex := range examples {
		results[i].Example = ex
		spans[i] = span{start: len(prompts), end: len(prompts)}

		claims := extract.SplitClaims(ex.Backstory)
		results[i].Claims = claims
		if len(claims) == 0 {
			results[i].Err = ErrNoClaims
			p.logger.Warn("example has no claims", "id", ex.ID)
			continue
		}

		evidence, err := p.retrieve(ctx, ex.Book, claims)
		if err != nil {
			if errors.Is(err, ErrEmptyDocument) {
				results[i].Err = fmt.Errorf("%w: %w", ErrNoEvidence, err)
				p.logger.Warn("example has no evidence", "id", ex.ID, "book", ex.Book)
				continue
			}
			return nil, fmt.Errorf("example %s: %w", ex.ID, err)
		}
		if len(evidence) == 0 {
			results[i].Err = ErrNoEvidence
			p.logger.Warn("example has no evidence", "id", ex.ID, "book", ex.Book)
			continue
		}

		results[i].Evidence = evidence
		for _, ev := range evidence {
			prompts = append(prompts, judge.BuildPrompt(ev.Claim.Text, ev.Passage.Text))
		}
		spans[i].end = len(prompts)
	}

	p.logger.Info("judging evidence", "examples", len(examples), "prompts", len(prompts))

	outcomes := judge.NewBatcher(p.caller, p.config.Judge.Concurrency).
		OnProgress(p.progress).
		Run(ctx, prompts)

	for i := range results {
		if results[i].Degenerate() {
			continue
		}
		scores := judge.Scores(outcomes[spans[i].start:spans[i].end])
		fv, err := score.Aggregate(scores)
		if err != nil {
			results[i].Err = fmt.Errorf("%w: %w", ErrNoEvidence, err)
			continue
		}
		results[i].Scores = scores
		results[i].Features = fv
	}

	return &FeatureSet{
		Results: results,
		Judge:   judge.Summarize(outcomes),
	}, nil
}

// retrieve embeds the claims and returns the top-k passages for each, in claim order
func (p *Pipeline) retrieve(ctx context.Context, book string, claims []model.Claim) ([]model.Evidence, error) {
	idx, err := p.IndexFor(ctx, book)
	if err != nil {
		return nil, err
	}

	vectors, err := p.embedder.Embed(ctx, extract.ClaimTexts(claims))
	if err != nil {
		return nil, fmt.Errorf("embed claims: %w", err)
	}
	if len(vectors) != len(claims) {
		return nil, fmt.Errorf("%w: %d claims, %d vectors", embed.ErrCountMismatch, len(claims), len(vectors))
	}

	var evidence []model.Evidence
	for i, claim := range claims {
		hits, err := idx.SearchScored(vectors[i], p.config.Retrieval.TopK)
		if err != nil {
			return nil, fmt.Errorf("search claim %d: %w", claim.Position, err)
		}
		for _, h := range hits {
			evidence = append(evidence, model.Evidence{
				Claim:      claim,
				Passage:    h.Passage,
				Similarity: h.Similarity,
			})
		}
	}
	return evidence, nil
}

// TrainResult describes a training run
type TrainResult struct {
	Summary model.TrainingSummary
	Report  *classify.Report
	Results []ExampleResult
}

// Train computes features for the examples and fits the classifier once.
// Degenerate and unlabelled examples are skipped.
func (p *Pipeline) Train(ctx context.Context, examples []model.Example) (*classify.Model, *TrainResult, error) {
	fs, err := p.Features(ctx, examples)
	if err != nil {
		return nil, nil, err
	}

	for _, r := range fs.Results {
		if r.Degenerate() {
			p.logger.Warn("skipping degenerate example", "id", r.Example.ID, "reason", r.Err)
		}
	}

	m, res, err := Fit(fs.Results, classify.OptionsFromConfig(p.config.Classifier))
	if err != nil {
		return nil, nil, err
	}
	res.Summary.JudgeCalls = fs.Judge.Calls
	res.Summary.JudgeFallbacks = fs.Judge.Fallbacks
	return m, res, nil
}

// Fit trains a classifier on the labelled, non-degenerate results. It is
// shared by Train and by re-fitting from stored features.
func Fit(results []ExampleResult, opts classify.Options) (*classify.Model, *TrainResult, error) {
	var (
		features []model.FeatureVector
		labels   []int
	)
	for _, r := range results {
		if r.Degenerate() || !r.Example.HasLabel {
			continue
		}
		features = append(features, r.Features)
		labels = append(labels, r.Example.Target())
	}

	m, report, err := classify.Train(features, labels, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("train classifier: %w", err)
	}

	return m, &TrainResult{
		Summary: model.TrainingSummary{
			TrainedAt:          time.Now().UTC(),
			Examples:           len(results),
			Skipped:            len(results) - len(features),
			TrainSize:          report.TrainSize,
			ValidationSize:     report.ValidationSize,
			ValidationAccuracy: report.ValidationAccuracy,
			Validated:          report.Validated,
		},
		Report:  report,
		Results: results,
	}, nil
}

// Infer computes features and applies m. Degenerate examples receive the
// neutral default feature vector so every example gets a prediction.
func (p *Pipeline) Infer(ctx context.Context, m *classify.Model, examples []model.Example) ([]model.Prediction, *FeatureSet, error) {
	if m == nil {
		return nil, nil, classify.ErrModelNotFound
	}

	fs, err := p.Features(ctx, examples)
	if err != nil {
		return nil, nil, err
	}

	for _, r := range fs.Results {
		if r.Degenerate() {
			p.logger.Warn("using neutral features for degenerate example", "id", r.Example.ID, "reason", r.Err)
		}
	}

	return Predict(m, fs.Results), fs, nil
}

// Predict applies m to each result in order
func Predict(m *classify.Model, results []ExampleResult) []model.Prediction {
	predictions := make([]model.Prediction, len(results))
	for i, r := range results {
		fv := r.Features
		if r.Degenerate() {
			fv = model.NeutralFeatures()
		}
		predictions[i] = model.Prediction{
			ID:          r.Example.ID,
			Label:       m.Predict(fv),
			Probability: m.PredictProba(fv),
			Features:    fv,
			Degenerate:  r.Degenerate(),
		}
	}
	return predictions
}
