package evalcmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/config"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/engines"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/eval/dataset"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/eval/metrics"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/eval/results"
	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command that scores the OCR pipeline against a dataset
func NewRunCmd() *cobra.Command {
	var datasetPath string
	var outputDir string
	var outputJSON string
	var sampleSize int
	var concurrency int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run OCR over a dataset and score the output",
		Long: `Runs every dataset record through the same multi-round OCR pipeline the server uses
and compares the produced rows (term / meaning / example) against the reference rows.

Datasets are JSONL or Parquet files of {id, images, expected} records. Image entries
may be data URLs or file paths relative to the dataset file.`,
		Example: `  # Evaluate 10 records with the default provider
  classcard eval run --dataset ./testdata/pages.jsonl --sample 10

  # Evaluate a parquet dataset with OpenAI, four records at a time
  classcard eval run --dataset pages.parquet --provider openai --concurrency 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(datasetPath); os.IsNotExist(err) {
				return fmt.Errorf("dataset file not found: %s", datasetPath)
			}

			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}

			svc, release, err := engines.NewService(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()

			loader := dataset.NewLoader(datasetPath)
			records, err := loader.LoadSample(sampleSize)
			if err != nil {
				return fmt.Errorf("failed to load dataset: %w", err)
			}
			slog.Info("Dataset loaded", "records", len(records), "concurrency", concurrency)

			evalResults, runErr := Evaluate(cmd.Context(), svc, records, loader.Dir(), concurrency)

			agg := metrics.AggregateEvaluationResults(evalResults, svc.Provider().Name(), svc.Provider().Model())
			agg.PrintSummary(cmd.OutOrStdout())

			path, err := results.SaveToYAML(outputDir, results.EvalConfig{
				Provider:        svc.Provider().Name(),
				Model:           svc.Provider().Model(),
				Prompt:          cfg.SystemPrompt,
				MaxRounds:       cfg.MaxRounds,
				MaxOutputTokens: cfg.MaxOutputTokens,
				DatasetPath:     datasetPath,
				SampleSize:      len(records),
			}, evalResults)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nEvaluation results saved to: %s\n", path)

			if outputJSON != "" {
				if err := agg.SaveToJSON(outputJSON); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Aggregate metrics saved to: %s\n", outputJSON)
			}

			return runErr
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "", "Path to a JSONL or Parquet dataset (required)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "evals", "Directory for the YAML report")
	cmd.Flags().StringVar(&outputJSON, "output-json", "", "Optional path for aggregate metrics as JSON")
	cmd.Flags().IntVar(&sampleSize, "sample", 10, "Number of records to evaluate (0 or less for all)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "Records processed in parallel")
	config.AddFlags(cmd.Flags())

	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}
