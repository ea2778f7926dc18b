package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/ppiankov/fabula/internal/classify"
	"github.com/ppiankov/fabula/internal/llm"
	"github.com/ppiankov/fabula/internal/model"
	"github.com/ppiankov/fabula/internal/pipeline"
	"github.com/ppiankov/fabula/internal/store"
)

func TestDecodeConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `judge:
  provider: anthropic
  model: claude-3-5-haiku-20241022
  timeout: 45s
retrieval:
  top_k: 7
documents:
  castaways: books/castaways.txt
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FABULA_JUDGE_CONCURRENCY", "5")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	v := viper.New()
	if err := configureViper(v, path); err != nil {
		t.Fatalf("configureViper failed: %v", err)
	}
	cfg, err := decodeConfig(v, map[string]string{"monte cristo": "books/monte.txt"})
	if err != nil {
		t.Fatalf("decodeConfig failed: %v", err)
	}

	if cfg.Judge.Provider != "anthropic" || cfg.Judge.Timeout != 45*time.Second {
		t.Errorf("file values not applied: %+v", cfg.Judge)
	}
	if cfg.Judge.Concurrency != 5 {
		t.Errorf("expected env concurrency 5, got %d", cfg.Judge.Concurrency)
	}
	if cfg.Judge.APIKey != "sk-ant-test" {
		t.Errorf("expected API key from environment, got %q", cfg.Judge.APIKey)
	}
	if cfg.Retrieval.TopK != 7 {
		t.Errorf("expected top_k 7, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Chunking.MaxTokens != model.DefaultConfig().Chunking.MaxTokens {
		t.Errorf("expected default chunking, got %+v", cfg.Chunking)
	}
	if cfg.Documents["castaways"] != "books/castaways.txt" || cfg.Documents["monte cristo"] != "books/monte.txt" {
		t.Errorf("unexpected documents: %v", cfg.Documents)
	}
}

func TestConfigureViper_MissingExplicitFile(t *testing.T) {
	v := viper.New()
	if err := configureViper(v, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestExecute_UnreadableConfigAborts(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("judge: [broken\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	storePath := filepath.Join(dir, "fabula.db")

	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfgFile = ""
		configErr = nil
	})

	tests := []struct {
		name string
		args []string
	}{
		{"broken yaml", []string{"--config", broken, "config", "show"}},
		{"missing file", []string{"--config", filepath.Join(dir, "nope.yaml"), "--store", storePath, "runs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetArgs(tt.args)
			err := Execute()
			if err == nil {
				t.Fatal("expected the command to fail on an unreadable config")
			}
			if !strings.Contains(err.Error(), "read config") {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	if _, err := os.Stat(storePath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("feature store should not be opened, stat err = %v", err)
	}
}

func TestRunInfer_MissingModelStopsEarly(t *testing.T) {
	dir := t.TempDir()
	saved := modelPath
	t.Cleanup(func() { modelPath = saved })
	modelPath = filepath.Join(dir, "absent.json")

	err := runInfer(inferCmd, []string{filepath.Join(dir, "no-such-test.csv")})
	if !errors.Is(err, classify.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound before the dataset is read, got %v", err)
	}
}

// stubProvider reports a fixed availability
type stubProvider struct {
	available bool
	checked   bool
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Text: "NEUTRAL"}, nil
}

func (p *stubProvider) IsAvailable(ctx context.Context) bool {
	p.checked = true
	if _, ok := ctx.Deadline(); !ok {
		return false
	}
	return p.available
}

func TestCheckJudge(t *testing.T) {
	up := &stubProvider{available: true}
	if err := checkJudge(context.Background(), up, 0); err != nil {
		t.Errorf("expected reachable judge to pass, got %v", err)
	}

	down := &stubProvider{}
	err := checkJudge(context.Background(), down, time.Second)
	if !errors.Is(err, ErrJudgeUnavailable) {
		t.Fatalf("expected ErrJudgeUnavailable, got %v", err)
	}
	if !down.checked {
		t.Error("expected the provider to be asked")
	}
	if !strings.Contains(err.Error(), "stub") {
		t.Errorf("error should name the provider: %v", err)
	}
}

func TestApplyEnvKeys(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY":  "sk-openai",
		"OLLAMA_BASE_URL": "http://ollama:11434",
	}
	getenv := func(k string) string { return env[k] }

	cfg := model.DefaultConfig()
	cfg.Embedding.Provider = "ollama"
	applyEnvKeys(cfg, getenv)

	if cfg.Judge.APIKey != "sk-openai" {
		t.Errorf("expected judge key from env, got %q", cfg.Judge.APIKey)
	}
	if cfg.Embedding.BaseURL != "http://ollama:11434" {
		t.Errorf("expected ollama base URL from env, got %q", cfg.Embedding.BaseURL)
	}

	cfg.Judge.APIKey = "from-config"
	applyEnvKeys(cfg, getenv)
	if cfg.Judge.APIKey != "from-config" {
		t.Errorf("configured key must win, got %q", cfg.Judge.APIKey)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".fabula", "config.yaml")
	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("writeDefaultConfig failed: %v", err)
	}

	v := viper.New()
	if err := configureViper(v, path); err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	cfg, err := decodeConfig(v, nil)
	if err != nil {
		t.Fatalf("decodeConfig failed: %v", err)
	}
	if cfg.Judge.RequestsPerMinute != 12 || cfg.Judge.BackoffBase != time.Second {
		t.Errorf("unexpected round-tripped judge config: %+v", cfg.Judge)
	}

	if err := writeDefaultConfig(path); err == nil {
		t.Error("expected error when config already exists")
	}
}

func TestRedact(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Judge.APIKey = "sk-1234567890abcdef"
	out := redact(cfg)

	if out.Judge.APIKey != "sk-1****cdef" {
		t.Errorf("unexpected masked key: %q", out.Judge.APIKey)
	}
	if cfg.Judge.APIKey != "sk-1234567890abcdef" {
		t.Error("redact must not modify the original config")
	}
	if mask("short") != "****" || mask("") != "" {
		t.Error("unexpected mask for short or empty secrets")
	}
}

func TestFormatProgress(t *testing.T) {
	got := formatProgress(30, 120, 150*time.Second)
	want := "  judged 30/120 (25%) · 0.20/s · ETA 7m30s"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if got := formatProgress(0, 10, 0); got != "  judged 0/10 (0%)" {
		t.Errorf("unexpected initial progress: %q", got)
	}
	if got := formatProgress(10, 10, 5*time.Second); strings.Contains(got, "ETA") {
		t.Errorf("completed progress should have no ETA: %q", got)
	}
}

func TestProgressReporter_Throttles(t *testing.T) {
	var buf bytes.Buffer
	clock := time.Unix(0, 0)
	p := &progressReporter{w: &buf, every: time.Minute, now: func() time.Time { return clock }}

	for i := 1; i <= 9; i++ {
		clock = clock.Add(time.Second)
		p.Update(i, 10)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output inside the interval, got %q", buf.String())
	}

	clock = clock.Add(time.Second)
	p.Update(10, 10)
	if lines := strings.Count(buf.String(), "\n"); lines != 1 {
		t.Errorf("expected completion line, got %q", buf.String())
	}
}

func TestProgressReporter_ClockStartsAtFirstUpdate(t *testing.T) {
	var buf bytes.Buffer
	clock := time.Unix(0, 0)
	p := newProgressReporter(&buf, 0)
	p.now = func() time.Time { return clock }

	// Index building happens before the first judge call completes
	clock = clock.Add(time.Hour)
	p.Update(1, 4)
	clock = clock.Add(10 * time.Second)
	p.Update(2, 4)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 progress lines, got %q", buf.String())
	}
	if !strings.Contains(lines[1], "0.20/s") || !strings.Contains(lines[1], "ETA 10s") {
		t.Errorf("throughput should ignore time before the first update, got %q", lines[1])
	}
}

func TestAcquireModelLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")

	unlock, err := acquireModelLock(path, time.Second)
	if err != nil {
		t.Fatalf("acquireModelLock failed: %v", err)
	}

	if _, err := acquireModelLock(path, 300*time.Millisecond); err == nil {
		t.Error("expected second lock to time out")
	}

	unlock()
	unlock2, err := acquireModelLock(path, time.Second)
	if err != nil {
		t.Fatalf("expected lock after release: %v", err)
	}
	unlock2()
}

func TestRefitFromStore(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewStore(filepath.Join(dir, "fabula.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = s.Close() }()

	var results []pipeline.ExampleResult
	for i := 0; i < 20; i++ {
		f := float64(i) / 40
		results = append(results,
			pipeline.ExampleResult{
				Example:  model.Example{ID: "c", Book: "b", Label: "consistent", HasLabel: true},
				Features: model.FeatureVector{MaxScore: f, MeanScore: f / 2},
			},
			pipeline.ExampleResult{
				Example:  model.Example{ID: "x", Book: "b", Label: "contradict", HasLabel: true},
				Features: model.FeatureVector{MaxScore: 1.0, MeanScore: 0.6 + f/2, ContradictionCount: 1 + i%3},
			},
		)
	}
	results = append(results, pipeline.ExampleResult{
		Example: model.Example{ID: "d", Book: "b", Label: "consistent", HasLabel: true},
		Err:     pipeline.ErrNoClaims,
	})

	run, err := s.SaveRun(store.KindTrain, "openai/gpt-4o-mini", "hashing/384", storeRows(results))
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if _, err := s.SaveRun(store.KindInfer, "openai/gpt-4o-mini", "hashing/384", storeRows(results[:2])); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	modelFile := filepath.Join(dir, "model.json")
	got, summary, err := refit(s, "latest", model.DefaultConfig().Classifier, modelFile)
	if err != nil {
		t.Fatalf("refit failed: %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("expected latest training run %s, got %s", run.ID, got.ID)
	}
	if summary.Examples != 41 || summary.Skipped != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	m, err := classify.LoadFile(modelFile)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if m.Predict(model.FeatureVector{MaxScore: 1.0, MeanScore: 0.8, ContradictionCount: 2}) != model.LabelInconsistent {
		t.Error("expected refitted model to flag strong contradictions")
	}

	if _, _, err := refit(s, "missing", model.DefaultConfig().Classifier, modelFile); !errors.Is(err, store.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	runs := []store.Run{{ID: "abc", Kind: store.KindTrain, Judge: "openai/gpt-4o-mini", Embedder: "hashing/384", CreatedAt: time.Now()}}
	if err := printRuns(&buf, runs); err != nil {
		t.Fatalf("printRuns failed: %v", err)
	}
	if !strings.Contains(buf.String(), "RUN") || !strings.Contains(buf.String(), "openai/gpt-4o-mini") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}
