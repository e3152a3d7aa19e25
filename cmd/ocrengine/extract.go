package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

func newExtractCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <image-file|url>",
		Short: "Extract text from one image and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := optionsFromFlags(cmd)
			if err != nil {
				return err
			}
			contentType, _ := cmd.Flags().GetString("content-type")
			textOnly, _ := cmd.Flags().GetBool("text")

			ctx := cmd.Context()
			e, err := newEngine(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			var result *ocr.Result
			if isURL(args[0]) {
				result = e.service.ExtractFromURL(ctx, args[0], contentType, opts)
			} else {
				image, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", args[0], err)
				}
				result = e.service.ExtractText(ctx, &ocr.Request{Image: image, ContentType: contentType, Options: opts})
			}

			out := cmd.OutOrStdout()
			if textOnly {
				_, err := fmt.Fprintln(out, result.Text)
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	addOptionFlags(cmd)
	cmd.Flags().Bool("text", false, "print only the extracted text")
	return cmd
}
