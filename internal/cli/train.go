package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/fabula/internal/dataset"
	"github.com/ppiankov/fabula/internal/store"
)

const defaultModelPath = "fabula-model.json"

var (
	modelPath   string
	runTimeout  time.Duration
	lockTimeout time.Duration
)

// trainCmd represents the train command
var trainCmd = &cobra.Command{
	Use:   "train <train.csv>",
	Short: "Judge a labelled dataset and fit the consistency classifier",
	Long: `Train reads a labelled CSV (id, book_name, content, label), builds one
evidence index per referenced novel, judges every (claim, passage) pair and
fits the consistency classifier on the pooled scores.

Features are recorded in the feature store so the classifier can later be
re-fitted with 'fabula refit' without judging again.

Example:
  fabula train train.csv
  fabula train train.csv --model models/fabula.json --doc castaways=books/castaways.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVar(&modelPath, "model", defaultModelPath, "output path of the classifier artifact")
	trainCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "overall run timeout (0 = none); pending judge calls degrade to NEUTRAL when it expires")
	trainCmd.Flags().DurationVar(&lockTimeout, "lock-timeout", 10*time.Second, "how long to wait for another run writing the same model")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	unlock, err := acquireModelLock(modelPath, lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	examples, err := dataset.ReadFile(args[0])
	if err != nil {
		return err
	}

	printBanner("Fabula Training")
	fmt.Fprintf(os.Stderr, "  Dataset:      %s (%d examples)\n", args[0], len(examples))
	fmt.Fprintf(os.Stderr, "  Judge:        %s/%s\n", cfg.Judge.Provider, cfg.Judge.Model)
	fmt.Fprintf(os.Stderr, "  Embeddings:   %s\n", cfg.Embedding.Provider)
	fmt.Fprintf(os.Stderr, "  Model:        %s\n", modelPath)
	fmt.Fprintf(os.Stderr, "\n")

	ctx, cancel := runContext(cmd.Context(), runTimeout)
	defer cancel()

	p, err := newPipeline(ctx, cfg, logger, newProgressReporter(os.Stderr, 10*time.Second))
	if err != nil {
		return err
	}

	m, res, err := p.Train(ctx, examples)
	if err != nil {
		return fmt.Errorf("train failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Judged %d pairs (%d fell back to NEUTRAL)\n", res.Summary.JudgeCalls, res.Summary.JudgeFallbacks)

	if err := m.SaveFile(modelPath); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Saved classifier to %s\n", modelPath)

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	if s != nil {
		defer func() { _ = s.Close() }()
		run, err := s.SaveRun(store.KindTrain, p.JudgeKey(), p.EmbedderName(), storeRows(res.Results))
		if err != nil {
			return err
		}
		res.Summary.RunID = run.ID
		fmt.Fprintf(os.Stderr, "✓ Stored features as run %s\n", run.ID)
	}

	printTrainingSummary(res.Summary.Examples, res.Summary.Skipped, res.Summary.TrainSize,
		res.Summary.ValidationSize, res.Summary.ValidationAccuracy, res.Summary.Validated)
	return nil
}

func runContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if timeout > 0 {
		return context.WithTimeout(parent, timeout)
	}
	return context.WithCancel(parent)
}

func printBanner(title string) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  %s\n", title)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func printTrainingSummary(examples, skipped, trainSize, valSize int, valAccuracy float64, validated bool) {
	printBanner("Training Complete")
	fmt.Fprintf(os.Stderr, "  Examples:     %d (%d skipped)\n", examples, skipped)
	fmt.Fprintf(os.Stderr, "  Train rows:   %d\n", trainSize)
	if validated {
		fmt.Fprintf(os.Stderr, "  Validation:   %d rows, accuracy %.4f\n", valSize, valAccuracy)
	} else {
		fmt.Fprintf(os.Stderr, "  Validation:   skipped (too few rows per class)\n")
	}
	fmt.Fprintf(os.Stderr, "\n")
}
