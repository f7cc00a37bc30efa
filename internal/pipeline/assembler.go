package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/extract"
	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/tabular"
)

// Request describes one file validation run.
type Request struct {
	// Path is the source file.
	Path string
	// Table is the user-provided target table for every sheet.
	Table string
	// SheetTables overrides Table per sheet, keyed by sheet name (or
	// model.CSVSheetKey for non-sheeted sources).
	SheetTables map[string]string
}

func (r Request) tableFor(sheet string) string {
	if t := r.SheetTables[sheet]; t != "" {
		return t
	}
	return r.Table
}

// Assembler runs the sheet pipelines of a file and merges their reports.
type Assembler struct {
	svc *ServiceContext
}

// NewAssembler returns an Assembler bound to svc.
func NewAssembler(svc *ServiceContext) *Assembler {
	return &Assembler{svc: svc}
}

// Run validates the file at req.Path. A missing file or an unsupported
// format fails before any stage runs. When a sheet has no target table and
// none can be chosen automatically, Run returns *AmbiguousTableSelection
// without running any sheet. Sheet failures never fail the run; they are
// reported in their SheetReport.
func (a *Assembler) Run(ctx context.Context, req Request) (*model.FileReport, error) {
	svc := a.svc
	runID := uuid.NewString()
	log := svc.Logger.With("run_id", runID, "file", req.Path)

	if _, err := tabular.CheckSupported(req.Path); err != nil {
		return nil, err
	}

	wb, err := tabular.Load(ctx, req.Path, svc.Load)
	if err != nil {
		return nil, err
	}

	names := sheetNames(wb)
	tables, inferred, err := a.resolveTables(ctx, wb, names, req)
	if err != nil {
		return nil, err
	}

	log.Infow("validation started", "sheets", len(names))
	start := time.Now()

	reports := make([]model.SheetReport, len(wb.Sheets))
	var g errgroup.Group
	g.SetLimit(svc.Workers)
	for i := range wb.Sheets {
		g.Go(func() error {
			run := &sheetRun{
				svc:   svc,
				log:   log.With("sheet", names[i], "table", tables[i]),
				sheet: wb.Sheets[i],
				file:  wb.SourceName,
				name:  names[i],
				table: tables[i],
			}
			reports[i] = run.run(ctx)
			return nil
		})
	}
	g.Wait()

	report := &model.FileReport{
		SourceFileName:          wb.SourceName,
		ProcessedAt:             svc.now().UTC(),
		UserProvidedTargetTable: req.Table,
		InferredTargetTable:     firstTable(inferred),
		Sheeted:                 wb.Sheeted(),
		Sheets:                  reports,
	}

	failed := 0
	for i := range reports {
		if reports[i].Failed() {
			failed++
		}
	}
	log.Infow("validation finished", "sheets", len(reports), "failed", failed, "duration", time.Since(start))
	return report, nil
}

// resolveTables picks the target table of every sheet. Sheets without a
// table get the best recommendation when it scores at least
// AutoSelectScore; the rest are returned as an AmbiguousTableSelection.
// inferred holds only the automatically selected tables, indexed like tables.
func (a *Assembler) resolveTables(ctx context.Context, wb *tabular.Workbook, names []string, req Request) (tables, inferred []string, err error) {
	svc := a.svc
	tables = make([]string, len(wb.Sheets))
	inferred = make([]string, len(wb.Sheets))
	var pending []SheetCandidates

	for i, sh := range wb.Sheets {
		tables[i] = req.tableFor(names[i])
		if tables[i] != "" || sh.Err != nil || sh.Dataset == nil {
			continue
		}
		fs, err := extract.Extract(sh.Dataset)
		if err != nil {
			// Left for the extraction stage to report.
			continue
		}
		recs, err := svc.Repo.Recommend(ctx, fs, DefaultCandidates)
		if err != nil {
			return nil, nil, errs.Wrap(err, "recommend target table")
		}
		if len(recs) > 0 && recs[0].Score >= svc.AutoSelectScore {
			tables[i] = recs[0].TableID
			inferred[i] = recs[0].TableID
			svc.Logger.Infow("target table selected", "sheet", names[i], "table", recs[0].TableID, "score", recs[0].Score)
			continue
		}
		pending = append(pending, SheetCandidates{Sheet: names[i], Candidates: recs})
	}

	if len(pending) > 0 {
		return nil, nil, &AmbiguousTableSelection{File: wb.SourceName, Sheets: pending}
	}
	return tables, inferred, nil
}

// sheetNames returns the report key of every sheet in native order.
func sheetNames(wb *tabular.Workbook) []string {
	names := make([]string, len(wb.Sheets))
	for i, sh := range wb.Sheets {
		names[i] = sh.Name
		if !wb.Sheeted() {
			names[i] = model.CSVSheetKey
		}
	}
	return names
}

func firstTable(tables []string) string {
	for _, t := range tables {
		if t != "" {
			return t
		}
	}
	return ""
}

// Validate is a shorthand for NewAssembler(svc).Run.
func (s *ServiceContext) Validate(ctx context.Context, req Request) (*model.FileReport, error) {
	return NewAssembler(s).Run(ctx, req)
}
