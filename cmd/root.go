package cmd

import (
	"github.com/joho/godotenv"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classcard",
		Short: "Turn vocabulary page photos into spreadsheet-ready rows with a multimodal LLM",
		Long: `classcard sends photos of vocabulary pages to a multimodal LLM and returns
tab separated term / meaning / example rows ready to paste into a spreadsheet
or flashcard tool.

Long pages are handled by asking the model to continue whenever its output is
cut off by the token ceiling.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			v := viper.New()
			v.AutomaticEnv()
			v.SetDefault("log_level", "info")
			v.SetDefault("log_format", "text")
			for key, flag := range map[string]string{"log_level": "log-level", "log_format": "log-format", "log_file": "log-file"} {
				if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
					return err
				}
			}

			_, err := logging.Setup(logging.Options{
				Level:  v.GetString("log_level"),
				Format: v.GetString("log_format"),
				File:   v.GetString("log_file"),
			})
			return err
		},
	}

	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	cmd.PersistentFlags().String("log-file", "", "Also write logs to this file, rotated by size")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newOCRCmd())
	cmd.AddCommand(newEvalCmd())

	return cmd
}
