package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/fabula/internal/classify"
	"github.com/ppiankov/fabula/internal/model"
	"github.com/ppiankov/fabula/internal/pipeline"
	"github.com/ppiankov/fabula/internal/store"
)

var refitRun string

// refitCmd represents the refit command
var refitCmd = &cobra.Command{
	Use:   "refit",
	Short: "Re-fit the classifier from stored training features",
	Long: `Refit trains a new classifier from the features a previous 'fabula train'
run stored, without loading novels or calling the judge. Use it after changing
classifier settings such as the validation split or regularization.

Example:
  fabula refit
  fabula refit --run 2f1c... --model models/fabula.json`,
	Args: cobra.NoArgs,
	RunE: runRefit,
}

// runsCmd represents the runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs recorded in the feature store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("feature store disabled (store.path is empty)")
		}
		defer func() { _ = s.Close() }()

		runs, err := s.ListRuns()
		if err != nil {
			return err
		}
		return printRuns(os.Stdout, runs)
	},
}

func init() {
	rootCmd.AddCommand(refitCmd)
	rootCmd.AddCommand(runsCmd)

	refitCmd.Flags().StringVar(&refitRun, "run", "latest", "training run ID to re-fit from")
	refitCmd.Flags().StringVar(&modelPath, "model", defaultModelPath, "output path of the classifier artifact")
	refitCmd.Flags().DurationVar(&lockTimeout, "lock-timeout", 10*time.Second, "how long to wait for another run writing the same model")
}

func runRefit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("feature store disabled (store.path is empty)")
	}
	defer func() { _ = s.Close() }()

	unlock, err := acquireModelLock(modelPath, lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	run, summary, err := refit(s, refitRun, cfg.Classifier, modelPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "✓ Loaded features of run %s (%s)\n", run.ID, run.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(os.Stderr, "✓ Saved classifier to %s\n", modelPath)
	printTrainingSummary(summary.Examples, summary.Skipped, summary.TrainSize,
		summary.ValidationSize, summary.ValidationAccuracy, summary.Validated)
	return nil
}

// refit trains from the stored rows of runID ("latest" picks the newest
// training run) and writes the classifier to path
func refit(s *store.Store, runID string, classifierCfg model.ClassifierConfig, path string) (store.Run, model.TrainingSummary, error) {
	var (
		run store.Run
		err error
	)
	if runID == "" || runID == "latest" {
		run, err = s.LatestRun(store.KindTrain)
	} else {
		run, err = s.GetRun(runID)
	}
	if err != nil {
		return store.Run{}, model.TrainingSummary{}, fmt.Errorf("run %s: %w", runID, err)
	}
	if run.Kind != store.KindTrain {
		return store.Run{}, model.TrainingSummary{}, fmt.Errorf("run %s is an %s run, not a training run", run.ID, run.Kind)
	}

	rows, err := s.LoadRows(run.ID)
	if err != nil {
		return store.Run{}, model.TrainingSummary{}, err
	}

	m, res, err := pipeline.Fit(resultsFromRows(rows), classify.OptionsFromConfig(classifierCfg))
	if err != nil {
		return store.Run{}, model.TrainingSummary{}, err
	}
	if err := m.SaveFile(path); err != nil {
		return store.Run{}, model.TrainingSummary{}, err
	}

	res.Summary.RunID = run.ID
	return run, res.Summary, nil
}

func printRuns(w io.Writer, runs []store.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tKIND\tJUDGE\tEMBEDDER\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Kind, r.Judge, r.Embedder, r.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
