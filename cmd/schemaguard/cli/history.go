package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/faucetdb/schemaguard/internal/drift"
	"github.com/faucetdb/schemaguard/internal/pipeline"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect schema snapshots and drift",
		Long:  "List the schema snapshots recorded by validation runs and compare them for drift.",
	}

	cmd.AddCommand(newHistoryTablesCmd())
	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryDriftCmd())

	return cmd
}

// ---------- history tables ----------

func newHistoryTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables with recorded snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			repo, err := pipeline.OpenHistory(e.deps())
			if err != nil {
				return err
			}
			tables, err := repo.HistoryTables(ctx)
			if err != nil {
				return fmt.Errorf("list history tables: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(tables) == 0 {
				fmt.Fprintln(out, "No snapshots recorded yet. Run 'schemaguard validate' first.")
				return nil
			}
			for _, t := range tables {
				fmt.Fprintln(out, t)
			}
			return nil
		},
	}
}

// ---------- history list ----------

func newHistoryListCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list <table>",
		Aliases: []string{"ls"},
		Short:   "List recent snapshots of a table, newest first",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd, args[0], limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of snapshots")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runHistoryList(cmd *cobra.Command, table string, limit int, jsonOutput bool) error {
	if limit < 1 {
		return fmt.Errorf("--limit must be positive")
	}

	ctx := context.Background()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	repo, err := pipeline.OpenHistory(e.deps())
	if err != nil {
		return err
	}
	snaps, err := repo.LoadRecentSnapshots(ctx, table, limit)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, snaps)
	}
	if len(snaps) == 0 {
		fmt.Fprintf(out, "No snapshots recorded for %q.\n", table)
		return nil
	}

	fmt.Fprintf(out, "%-28s %-20s %-8s %s\n", "KEY", "TAKEN", "COLUMNS", "FILE")
	for _, s := range snaps {
		fmt.Fprintf(out, "%-28s %-20s %-8d %s\n", s.Key, s.TakenAt.Local().Format(time.DateTime), len(s.Columns), s.SourceFile)
	}
	return nil
}

// ---------- history drift ----------

func newHistoryDriftCmd() *cobra.Command {
	var (
		from           string
		to             string
		jsonOutput     bool
		failOnBreaking bool
	)

	cmd := &cobra.Command{
		Use:   "drift <table>",
		Short: "Compare two snapshots of a table",
		Long: `Compare two snapshots of a table and classify every change as additive
(new column) or breaking (removed or retyped column). Without --from and --to
the two most recent snapshots are compared.`,
		Example: `  schemaguard history drift customers
  schemaguard history drift customers --from <key> --to <key>  # keys from 'history list'
  schemaguard history drift customers --fail-on-breaking  # exit non-zero for CI`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryDrift(cmd, args[0], from, to, jsonOutput, failOnBreaking)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Key of the older snapshot")
	cmd.Flags().StringVar(&to, "to", "", "Key of the newer snapshot")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&failOnBreaking, "fail-on-breaking", false, "Exit with an error when breaking changes are found")

	return cmd
}

func runHistoryDrift(cmd *cobra.Command, table, from, to string, jsonOutput, failOnBreaking bool) error {
	ctx := context.Background()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	repo, err := pipeline.OpenHistory(e.deps())
	if err != nil {
		return err
	}
	older, newer, err := repo.SnapshotPair(ctx, table, from, to)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	if older == nil {
		return fmt.Errorf("at least two snapshots of %q are needed to compute drift", table)
	}

	diff := drift.DiffSnapshots(*older, *newer)
	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := writeJSON(out, diff); err != nil {
			return err
		}
	} else {
		printSnapshotDiff(out, diff)
	}

	if failOnBreaking && diff.HasBreaking {
		return fmt.Errorf("%d breaking change(s) in %q", diff.BreakingCount, table)
	}
	return nil
}

func printSnapshotDiff(w io.Writer, d drift.SnapshotDiff) {
	fmt.Fprintf(w, "%s: %s -> %s\n", headingStyle.Render(d.TableID), d.FromKey, d.ToKey)
	if !d.HasDrift {
		fmt.Fprintln(w, successStyle.Render("  no drift"))
		return
	}

	status := warningStyle.Render("DRIFT")
	if d.HasBreaking {
		status = failureStyle.Render("BREAKING")
	}
	fmt.Fprintf(w, "  %s (%d additive, %d breaking)\n", status, d.AdditiveCount, d.BreakingCount)

	items := append([]drift.Item(nil), d.Items...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Type == drift.ChangeBreaking && items[j].Type != drift.ChangeBreaking
	})
	for _, item := range items {
		marker := successStyle.Render("+")
		if item.Type == drift.ChangeBreaking {
			marker = failureStyle.Render("!")
		}
		fmt.Fprintf(w, "    %s %s\n", marker, strings.TrimSpace(item.Description))
	}
}
