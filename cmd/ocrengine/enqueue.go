package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/ocr-engine/internal/queue"
	"github.com/adverant/nexus/ocr-engine/internal/storage"
)

func newEnqueueCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <image-file|url>",
		Short: "Submit an async extraction job and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := optionsFromFlags(cmd)
			if err != nil {
				return err
			}
			contentType, _ := cmd.Flags().GetString("content-type")
			jobID, _ := cmd.Flags().GetString("job-id")

			payload := &queue.ExtractPayload{
				JobID:    jobID,
				MimeType: contentType,
				Options:  opts,
			}
			if isURL(args[0]) {
				payload.ImageURL = args[0]
			} else {
				image, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", args[0], err)
				}
				payload.Image = image
			}

			ctx := cmd.Context()
			pcfg := queue.ProducerConfig{
				RedisURL:  c.cfg.Queue.RedisURL,
				Retention: c.cfg.Queue.Retention,
			}
			if c.cfg.Database.URL != "" {
				db, err := storage.NewPostgresClient(c.cfg.Database.URL)
				if err != nil {
					return fmt.Errorf("failed to initialize job tracking: %w", err)
				}
				defer db.Close()
				pcfg.Tracker = db
			}

			producer, err := queue.NewProducer(pcfg)
			if err != nil {
				return err
			}
			defer producer.Close()

			id, err := producer.Enqueue(ctx, payload)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}
	addOptionFlags(cmd)
	cmd.Flags().String("job-id", "", "job id (uuid); generated when empty")
	return cmd
}
