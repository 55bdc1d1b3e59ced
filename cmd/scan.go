package cmd

import (
	"context"
	"fmt"
	"time"

	"photo-library/core/record"
	"photo-library/core/stream"
	"photo-library/feature/library/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	scanShow    int
	scanTimeout time.Duration
)

// scanCmd runs a single full load and reports what it found.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Load the library once and report it",
	Long: `Streams every configured source into the library, logging each batch,
and prints the newest photos once the load has finished.

Examples:
  # Load and show the 10 newest photos
  scan

  # Show the 50 newest, giving up after a minute
  scan --show 50 --timeout 1m`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanShow, "show", 10, "Number of photos to print after the load")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 10*time.Minute, "Maximum duration of the load")
	RootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	l := rt.logger

	var (
		loadErrors int
		success    bool
	)
	progress := stream.ConsumerFuncs{
		Batch: func(records []record.Record, first bool) {
			l.Debug("Batch received", zap.Int("records", len(records)), zap.Bool("first", first))
		},
		Progress: func(current, total int) {
			l.Info("Load progress", zap.Int("current", current), zap.Int("total", total))
		},
		Error: func(message string) {
			loadErrors++
			l.Error("Source failed", zap.String("error", message))
		},
		Finished: func(ok bool) {
			success = ok
		},
	}

	svc, err := rt.library(ctx, progress)
	if err != nil {
		return err
	}
	if store := svc.Store(); store != nil {
		if err := store.Prepare(ctx); err != nil {
			return err
		}
	}
	svc.Start(ctx)
	defer svc.Close()

	started := time.Now()
	if _, err := svc.Load(ctx); err != nil {
		return err
	}
	if err := svc.WaitLoaded(ctx); err != nil {
		return fmt.Errorf("load did not finish: %w", err)
	}

	st, err := svc.Status(ctx)
	if err != nil {
		return err
	}
	l.Info("Scan finished",
		zap.Bool("success", success),
		zap.Int("photos", st.Count),
		zap.Int("errors", loadErrors),
		zap.Strings("sources", st.Sources),
		zap.Duration("took", time.Since(started)),
	)

	view, err := svc.Page(ctx, 0, scanShow)
	if err != nil {
		return err
	}
	for _, rec := range view.Records {
		p, _ := models.FromRecord(rec)
		fmt.Printf("%s  %-6s  %10d  %s\n", rec.Timestamp.Format(time.RFC3339), rec.SourceTag, p.Size, rec.Identity)
	}
	if !success {
		return fmt.Errorf("load finished with %d source errors", loadErrors)
	}
	return nil
}
