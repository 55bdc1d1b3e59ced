package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"photo-library/core/reconcile"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	applyReconcile   bool
	yesConfirm       bool
	reconcileTimeout time.Duration
)

// reconcileCmd loads the library, then diffs it against a fresh snapshot.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Report (and optionally apply) the changes a refresh would make",
	Long: `Loads the library, fetches a fresh snapshot of every source and reports
the removals, insertions, moves and in-place changes between the two.

Applying the patch evicts the thumbnails of removed and modified photos.

Examples:
  # Report only
  reconcile

  # Apply with interactive confirmation
  reconcile --apply

  # Apply non-interactively
  reconcile --apply --yes`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&applyReconcile, "apply", false, "Apply the patch after reporting it")
	reconcileCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm destructive actions (non-interactive)")
	reconcileCmd.Flags().DurationVar(&reconcileTimeout, "timeout", 10*time.Minute, "Maximum duration of the run")
	RootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	l := rt.logger

	svc, err := rt.library(ctx, nil)
	if err != nil {
		return err
	}
	if store := svc.Store(); store != nil {
		if err := store.Prepare(ctx); err != nil {
			return fmt.Errorf("failed to prepare schema: %w", err)
		}
	}
	svc.Start(ctx)
	defer svc.Close()

	l.Info("Loading library...")
	if _, err := svc.Load(ctx); err != nil {
		return err
	}
	if err := svc.WaitLoaded(ctx); err != nil {
		return fmt.Errorf("load did not finish: %w", err)
	}

	l.Info("Planning refresh...")
	patch, err := svc.Plan(ctx)
	if err != nil {
		return fmt.Errorf("failed to plan refresh: %w", err)
	}
	printReconcileReport(l, patch)

	if !applyReconcile {
		l.Info("No actions requested. Use --apply to patch the library.")
		return nil
	}
	if patch.Empty() {
		l.Info("No actions required.")
		return nil
	}
	if !confirmDestructiveAction() {
		l.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	applied, err := svc.RefreshWait(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh: %w", err)
	}
	if applied.Empty() {
		l.Info("Library already current, nothing applied.")
		return nil
	}

	st, err := svc.Status(ctx)
	if err != nil {
		return err
	}
	s := applied.Summary()
	l.Info("Refresh applied",
		zap.Int("removed", s.Removed),
		zap.Int("inserted", s.Inserted),
		zap.Int("photos", st.Count),
		zap.Int("stashed", st.Stashed),
	)
	return nil
}

// printReconcileReport prints a formatted patch report using logger.
func printReconcileReport(l *zap.Logger, patch reconcile.Patch) {
	s := patch.Summary()

	l.Info("Reconciliation report",
		zap.Int("removed", s.Removed),
		zap.Int("inserted", s.Inserted),
		zap.Int("changed", s.Changed),
		zap.Int("moved", s.Moved),
		zap.Bool("reset", s.Reset),
	)

	// Show a sample of each operation (max 5 for logger)
	const maxShow = 5
	for i, rm := range patch.Removed {
		if i == maxShow {
			l.Info("Additional removals not shown", zap.Int("count", len(patch.Removed)-maxShow))
			break
		}
		if _, moved := patch.Moved[rm.Identity]; moved {
			continue
		}
		l.Info("Sample removal", zap.String("path", rm.Identity))
	}
	for i, ins := range patch.Inserted {
		if i == maxShow {
			l.Info("Additional insertions not shown", zap.Int("count", len(patch.Inserted)-maxShow))
			break
		}
		if fields, moved := patch.Moved[ins.Record.Identity]; moved {
			l.Info("Sample move", zap.String("path", ins.Record.Identity), zap.Int("index", ins.Index), zap.Strings("fields", fields))
			continue
		}
		l.Info("Sample insertion", zap.String("path", ins.Record.Identity), zap.Int("index", ins.Index))
	}
	for i, ch := range patch.Changed {
		if i == maxShow {
			l.Info("Additional changes not shown", zap.Int("count", len(patch.Changed)-maxShow))
			break
		}
		l.Info("Sample change", zap.String("path", ch.Record.Identity), zap.Strings("fields", ch.Fields))
	}
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction() bool {
	if yesConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Print("\n⚠️  Type 'yes' to confirm destructive actions: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(response)
	return response == "yes"
}
