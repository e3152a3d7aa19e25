package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/ocr-engine/internal/storage"
)

func newStatusCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print provider statuses and health, or one job's status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			jobID, _ := cmd.Flags().GetString("job")

			var v interface{}
			if jobID != "" {
				if c.cfg.Database.URL == "" {
					return fmt.Errorf("job lookup needs database.url (DATABASE_URL)")
				}
				db, err := storage.NewPostgresClient(c.cfg.Database.URL)
				if err != nil {
					return err
				}
				defer db.Close()

				job, err := db.GetJob(ctx, jobID)
				if err != nil {
					return err
				}
				v = job
			} else {
				e, err := newEngine(ctx, c.cfg)
				if err != nil {
					return err
				}
				defer e.Close()

				v = e.service.HealthCheck(ctx)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
	cmd.Flags().String("job", "", "print the stored status of this job id")
	return cmd
}
