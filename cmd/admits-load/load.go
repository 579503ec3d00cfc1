package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/okian/admitcast/internal/adapters/repository"
	"github.com/okian/admitcast/pkg/logger"
	"github.com/okian/admitcast/pkg/metrics"
)

const defaultBatchSize = 500

func loadCmd() *cobra.Command {
	var (
		csvPath   string
		batchSize int
		quiet     bool
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load historical records from a CSV file",
		Long: `Load reads a CSV export with the columns university_id, gre_score,
ielts_score, toefl_score, technical_papers_count,
total_work_experience_in_months and application_status.

Rows with an invalid institution id or standardized score, or without any
English test score, are skipped and reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logger.Named("load")

			f, err := os.Open(csvPath)
			if err != nil {
				return fmt.Errorf("failed to open csv: %w", err)
			}
			defer f.Close()

			records, skipped, err := repository.ReadCSV(f)
			if err != nil {
				return err
			}
			for _, s := range skipped {
				log.Warn(ctx, "skipped row", logger.Int("line", s.Line), logger.String("reason", s.Reason))
			}
			metrics.RecordRecordsLoaded("skipped", len(skipped))

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var progress func(int)
			if !quiet {
				bar := progressbar.NewOptions(len(records),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionShowCount(),
					progressbar.OptionShowElapsedTimeOnFinish(),
					progressbar.OptionSetWidth(40),
					progressbar.OptionSetDescription("Loading records"),
					progressbar.OptionOnCompletion(func() {
						_, _ = fmt.Fprintln(cmd.ErrOrStderr())
					}),
				)
				progress = func(n int) { _ = bar.Add(n) }
			}

			if err := repository.InsertBatches(ctx, store, records, batchSize, progress); err != nil {
				return err
			}

			log.Info(ctx, "load complete",
				logger.String("csv", csvPath),
				logger.Int("loaded", len(records)),
				logger.Int("skipped", len(skipped)),
				logger.Int("total", store.Count(ctx)),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "path to the CSV file")
	cmd.Flags().IntVar(&batchSize, "batch-size", defaultBatchSize, "records per insert transaction")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "disable the progress bar")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}
