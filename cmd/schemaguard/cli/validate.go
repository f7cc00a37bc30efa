package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/pipeline"
	"github.com/faucetdb/schemaguard/internal/tabular"
)

// ---------- validate ----------

func newValidateCmd() *cobra.Command {
	var (
		table       string
		sheetTables []string
		source      string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a data file against a reference table",
		Long: `Validate a CSV, TSV, XLSX or JSON file against the tables of a reference source.

Every sheet is matched to a target table. Without --table or --sheet-table the
most similar table is chosen when it scores high enough; otherwise you are
asked to pick one (or the candidates are printed when not on a terminal).
Each completed sheet records a schema snapshot used for drift detection.`,
		Example: `  schemaguard validate customers.csv --table customers
  schemaguard validate export.xlsx --sheet-table Orders=orders --sheet-table Lines=order_lines
  schemaguard validate data.json --source warehouse --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := parseSheetTables(sheetTables)
			if err != nil {
				return err
			}
			req := pipeline.Request{Path: args[0], Table: table, SheetTables: mapping}
			return runValidate(cmd, req, source, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "Target table for every sheet")
	cmd.Flags().StringArrayVar(&sheetTables, "sheet-table", nil, "Target table for one sheet, as sheet=table (repeatable)")
	cmd.Flags().StringVarP(&source, "source", "s", "", "Reference source name (optional with a single source)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full report as JSON")

	return cmd
}

// parseSheetTables turns sheet=table pairs into a map.
func parseSheetTables(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		sheet, table, ok := strings.Cut(p, "=")
		sheet, table = strings.TrimSpace(sheet), strings.TrimSpace(table)
		if !ok || sheet == "" || table == "" {
			return nil, fmt.Errorf("invalid --sheet-table %q: expected sheet=table", p)
		}
		out[sheet] = table
	}
	return out, nil
}

func runValidate(cmd *cobra.Command, req pipeline.Request, source string, jsonOutput bool) error {
	if _, err := tabular.CheckSupported(req.Path); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	svc, err := pipeline.Open(ctx, e.deps(), source)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer svc.Close()
	if !svc.EnrichmentEnabled() {
		e.log.Debug("enrichment endpoint not configured; reports carry local status only")
	}

	report, err := svc.Validate(ctx, req)
	if amb, ok := pipeline.AsAmbiguous(err); ok {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			printCandidates(cmd, amb)
			return fmt.Errorf("%w; rerun with --table or --sheet-table", amb)
		}
		chosen, perr := chooseTables(amb)
		if perr != nil {
			return fmt.Errorf("table selection: %w", perr)
		}
		if req.SheetTables == nil {
			req.SheetTables = make(map[string]string, len(chosen))
		}
		for sheet, table := range chosen {
			req.SheetTables[sheet] = table
		}
		report, err = svc.Validate(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("validate %s (%s): %w", req.Path, errs.Kind(err), err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, report)
	}
	printReport(out, report)
	return nil
}

func printCandidates(cmd *cobra.Command, amb *pipeline.AmbiguousTableSelection) {
	w := cmd.ErrOrStderr()
	for _, sc := range amb.Sheets {
		fmt.Fprintf(w, "Candidates for %s:\n", sheetLabel(sc.Sheet))
		if len(sc.Candidates) == 0 {
			fmt.Fprintln(w, "  (none)")
		}
		for _, c := range sc.Candidates {
			fmt.Fprintf(w, "  %-30s %.2f\n", c.TableID, c.Score)
		}
	}
}

// ---------- sheets ----------

func newSheetsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sheets <file>",
		Short: "List the sheets of a workbook",
		Long:  "List sheet names in workbook order. Files without sheets report a single unnamed sheet.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := tabular.SheetNames(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, names)
			}
			for _, n := range names {
				if n == "" {
					n = model.CSVSheetKey
				}
				fmt.Fprintln(out, n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
