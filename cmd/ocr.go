package cmd

import (
	"fmt"
	"log/slog"

	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/config"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/dataurl"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/engines"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/uploader"
	"github.com/spf13/cobra"
)

func newOCRCmd() *cobra.Command {
	var server string
	var copyResult bool

	cmd := &cobra.Command{
		Use:   "ocr FILE...",
		Short: "Extract rows from image files",
		Long: `Encodes the given images as data URLs and extracts their rows.

With --server the images are posted to a running classcard server; otherwise
the provider configured in the environment is called directly.`,
		Example: `  # Run against the configured provider
  classcard ocr page1.jpg page2.jpg

  # Use a running server and copy the result to the clipboard
  classcard ocr --server http://localhost:8888 --copy page.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := uploader.SelectImages(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no image files among %d argument(s)", len(args))
			}

			dataURLs := make([]string, 0, len(paths))
			for _, p := range paths {
				u, err := uploader.EncodeFile(p)
				if err != nil {
					return err
				}
				dataURLs = append(dataURLs, u)
			}

			var text string
			var runErr error
			if server != "" {
				text, runErr = uploader.NewClient(server, nil).Submit(cmd.Context(), dataURLs)
			} else {
				text, runErr = runLocal(cmd, dataURLs)
			}

			fmt.Fprintln(cmd.OutOrStdout(), uploader.Display(text, runErr))
			if runErr != nil {
				return runErr
			}

			if copyResult {
				copied, err := uploader.Copy(text)
				if err != nil {
					return err
				}
				if copied {
					slog.Info("Result copied to clipboard")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Base URL of a running classcard server")
	cmd.Flags().BoolVar(&copyResult, "copy", false, "Copy the result to the clipboard")
	config.AddFlags(cmd.Flags())

	return cmd
}

func runLocal(cmd *cobra.Command, dataURLs []string) (string, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return "", err
	}

	svc, release, err := engines.NewService(cmd.Context(), cfg)
	if err != nil {
		return "", err
	}
	defer release()

	images := make([]dataurl.Image, 0, len(dataURLs))
	for _, u := range dataURLs {
		img, err := dataurl.Parse(u)
		if err != nil {
			return "", err
		}
		images = append(images, img)
	}

	result, err := svc.Extract(cmd.Context(), images)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}
