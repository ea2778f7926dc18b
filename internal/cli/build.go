package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"github.com/ppiankov/fabula/internal/cache"
	"github.com/ppiankov/fabula/internal/corpus"
	"github.com/ppiankov/fabula/internal/embed"
	"github.com/ppiankov/fabula/internal/llm"
	"github.com/ppiankov/fabula/internal/model"
	"github.com/ppiankov/fabula/internal/pipeline"
	"github.com/ppiankov/fabula/internal/store"
	"github.com/ppiankov/fabula/internal/util"
)

// judgeCheckTimeout bounds the judge preflight when no judge timeout is configured
const judgeCheckTimeout = 30 * time.Second

// newPipeline wires the configured embedder, judge provider, document
// loader and verdict cache into a pipeline. The judge provider is checked
// before any document is loaded or embedded.
func newPipeline(ctx context.Context, cfg *model.Config, logger *slog.Logger, progress *progressReporter) (*pipeline.Pipeline, error) {
	if len(cfg.Documents) == 0 {
		return nil, fmt.Errorf("no documents configured: add a documents section to the config file or pass --doc name=path")
	}

	embedder, err := embed.New(cfg.Embedding, cfg.HTTP)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	llmCfg := llm.ConfigFromModel(cfg.Judge, cfg.HTTP)
	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("judge: %w", err)
	}
	if err := checkJudge(ctx, provider, cfg.Judge.Timeout); err != nil {
		return nil, err
	}

	client := util.NewHTTPClient(cfg.HTTP.Timeout, cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy)
	robots := util.NewRobotsChecker(cfg.HTTP.UserAgent, client)
	fetcher := corpus.NewFetcher(client, cfg.HTTP.UserAgent, cfg.HTTP.MaxBodyBytes, robots)
	loader := corpus.NewLoader(cfg.Documents, corpus.WithFetcher(fetcher), corpus.WithLogger(logger))

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithLoader(loader),
		pipeline.WithJudgeKey(llm.Key(llmCfg)),
	}
	if cfg.Cache.Enabled {
		opts = append(opts, pipeline.WithCache(cache.New(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)))
	}
	if progress != nil {
		opts = append(opts, pipeline.WithProgress(progress.Update))
	}

	return pipeline.New(cfg, embedder, llm.NewJudge(provider), opts...), nil
}

// checkJudge fails fast when the judge provider is misconfigured or unreachable
func checkJudge(ctx context.Context, provider llm.Provider, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = judgeCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !provider.IsAvailable(ctx) {
		return fmt.Errorf("%w: %s is not reachable or not configured (check the API key, base URL and model)",
			ErrJudgeUnavailable, provider.Name())
	}
	return nil
}

// ErrJudgeUnavailable is returned when the judge preflight fails
var ErrJudgeUnavailable = errors.New("judge unavailable")

// openStore opens the feature store, or returns nil when it is disabled
func openStore(cfg *model.Config) (*store.Store, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	s, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open feature store: %w", err)
	}
	return s, nil
}

// storeRows converts pipeline results into feature store rows.
// Degenerate results are stored with the neutral default features.
func storeRows(results []pipeline.ExampleResult) []store.Row {
	rows := make([]store.Row, len(results))
	for i, r := range results {
		fv := r.Features
		if r.Degenerate() {
			fv = model.NeutralFeatures()
		}
		rows[i] = store.Row{
			Example:    r.Example,
			Features:   fv,
			Degenerate: r.Degenerate(),
		}
	}
	return rows
}

// errStoredDegenerate marks rows that were degenerate when they were stored
var errStoredDegenerate = errors.New("degenerate example")

// resultsFromRows converts stored rows back into pipeline results
func resultsFromRows(rows []store.Row) []pipeline.ExampleResult {
	results := make([]pipeline.ExampleResult, len(rows))
	for i, row := range rows {
		results[i] = pipeline.ExampleResult{
			Example:  row.Example,
			Features: row.Features,
		}
		if row.Degenerate {
			results[i].Err = errStoredDegenerate
		}
	}
	return results
}

// acquireModelLock takes an exclusive lock next to the model artifact so two
// training runs cannot write the same file at once
func acquireModelLock(modelPath string, timeout time.Duration) (func(), error) {
	lockPath := modelPath + ".lock"
	l := flock.New(lockPath)
	deadline := time.Now().Add(timeout)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return func() {}, fmt.Errorf("cannot acquire model lock: %w", err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return func() {}, fmt.Errorf("another run is writing %s (lock: %s)", modelPath, lockPath)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
