package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/fabula/internal/classify"
	"github.com/ppiankov/fabula/internal/dataset"
	"github.com/ppiankov/fabula/internal/store"
)

var outPath string

// inferCmd represents the infer command
var inferCmd = &cobra.Command{
	Use:   "infer <test.csv>",
	Short: "Predict consistency labels with a trained classifier",
	Long: `Infer applies a trained classifier to a CSV of backstories and writes an
id,label CSV where 1 means consistent and 0 inconsistent.

The classifier artifact is checked before anything else runs: no documents are
loaded and no judge calls are made without it.

Example:
  fabula infer test.csv
  fabula infer test.csv --model models/fabula.json --out results.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runInfer,
}

func init() {
	rootCmd.AddCommand(inferCmd)

	inferCmd.Flags().StringVar(&modelPath, "model", defaultModelPath, "classifier artifact produced by 'fabula train'")
	inferCmd.Flags().StringVar(&outPath, "out", "results.csv", "output CSV path")
	inferCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "overall run timeout (0 = none); pending judge calls degrade to NEUTRAL when it expires")
}

func runInfer(cmd *cobra.Command, args []string) error {
	if err := classify.Exists(modelPath); err != nil {
		return fmt.Errorf("%w (run 'fabula train' first)", err)
	}
	m, err := classify.LoadFile(modelPath)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	examples, err := dataset.ReadFile(args[0])
	if err != nil {
		return err
	}

	printBanner("Fabula Inference")
	fmt.Fprintf(os.Stderr, "  Dataset:      %s (%d examples)\n", args[0], len(examples))
	fmt.Fprintf(os.Stderr, "  Judge:        %s/%s\n", cfg.Judge.Provider, cfg.Judge.Model)
	fmt.Fprintf(os.Stderr, "  Model:        %s\n", modelPath)
	fmt.Fprintf(os.Stderr, "  Output:       %s\n", outPath)
	fmt.Fprintf(os.Stderr, "\n")

	ctx, cancel := runContext(cmd.Context(), runTimeout)
	defer cancel()

	p, err := newPipeline(ctx, cfg, logger, newProgressReporter(os.Stderr, 10*time.Second))
	if err != nil {
		return err
	}

	predictions, fs, err := p.Infer(ctx, m, examples)
	if err != nil {
		return fmt.Errorf("inference failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Judged %d pairs (%d fell back to NEUTRAL)\n", fs.Judge.Calls, fs.Judge.Fallbacks)
	if n := fs.Degenerate(); n > 0 {
		fmt.Fprintf(os.Stderr, "✓ %d examples used neutral default features\n", n)
	}

	if err := dataset.WritePredictionsFile(outPath, predictions); err != nil {
		return err
	}

	consistent := 0
	for _, pr := range predictions {
		consistent += pr.Label
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote %d predictions to %s (%d consistent, %d inconsistent)\n",
		len(predictions), outPath, consistent, len(predictions)-consistent)

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	if s != nil {
		defer func() { _ = s.Close() }()
		run, err := s.SaveRun(store.KindInfer, p.JudgeKey(), p.EmbedderName(), storeRows(fs.Results))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Stored features as run %s\n", run.ID)
	}

	return nil
}
