package cmd

import (
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/evalcmd"
	"github.com/spf13/cobra"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "OCR accuracy evaluation tools",
		Long: `Evaluation tools for measuring how closely the extracted rows match reference rows.

Datasets are JSONL or Parquet files; results are written as YAML reports.`,
	}

	cmd.AddCommand(evalcmd.NewRunCmd())

	return cmd
}
