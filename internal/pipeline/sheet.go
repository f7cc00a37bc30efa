package pipeline

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/faucetdb/schemaguard/internal/compare"
	"github.com/faucetdb/schemaguard/internal/drift"
	"github.com/faucetdb/schemaguard/internal/enrich"
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/extract"
	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/tabular"
	"github.com/faucetdb/schemaguard/internal/validate"
)

// sheetRun is the state of one sheet moving through
// Extracting -> Comparing -> Validating -> Enriching -> Complete | Failed.
type sheetRun struct {
	svc   *ServiceContext
	log   *zap.SugaredLogger
	sheet tabular.Sheet
	file  string
	name  string
	table string
	stage model.Stage

	fs      *model.FileSchema // as extracted
	mapped  *model.FileSchema // after naming reconciliation
	ds      *tabular.Dataset  // after naming reconciliation
	db      *model.TableSchema
	history []model.SchemaSnapshot
	report  model.SheetReport
}

type stage struct {
	name model.Stage
	fn   func(context.Context) error
}

func (r *sheetRun) run(ctx context.Context) model.SheetReport {
	r.report = model.SheetReport{FileName: r.file, SheetName: r.name, TableID: r.table}

	stages := []stage{
		{model.StageExtracting, r.extract},
		{model.StageComparing, r.compare},
		{model.StageValidating, r.validate},
		{model.StageEnriching, r.enrich},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return r.fail(errs.Mark(errs.Wrapf(err, "cancelled before %s", st.name), errs.ErrCancelled))
		}
		r.stage = st.name
		if err := r.guard(ctx, st); err != nil {
			return r.fail(err)
		}
	}

	r.stage = model.StageComplete
	r.report.Stage = model.StageComplete
	r.report.ValidatedAt = r.svc.now().UTC()
	r.persist(context.WithoutCancel(ctx))

	r.log.Infow("sheet validated",
		"status", r.report.Status,
		"rows", r.report.TotalRowsChecked,
		"type_violations", len(r.report.TypeViolations),
		"quality_violations", len(r.report.QualityViolations),
	)
	return r.report
}

// guard runs one stage and turns a panic into a stage error.
func (r *sheetRun) guard(ctx context.Context, st stage) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorw("stage panicked", "stage", st.name, "panic", p, "stack", string(debug.Stack()))
			err = errs.Newf("%s stage panicked: %v", st.name, p)
		}
	}()
	return st.fn(ctx)
}

// fail replaces the report with the minimal failure report.
func (r *sheetRun) fail(err error) model.SheetReport {
	r.log.Warnw("sheet failed", "stage", r.stage, "kind", errs.Kind(err), "error", err)
	r.stage = model.StageFailed
	r.report = model.SheetReport{
		FileName:    r.file,
		SheetName:   r.name,
		TableID:     r.table,
		Stage:       model.StageFailed,
		Status:      model.StatusError,
		ValidatedAt: r.svc.now().UTC(),
		Err:         err.Error(),
		ErrKind:     errs.Kind(err),
	}
	return r.report
}

func (r *sheetRun) extract(_ context.Context) error {
	if r.sheet.Err != nil {
		return r.sheet.Err
	}
	if r.sheet.Dataset == nil {
		return errs.Wrapf(errs.ErrExtraction, "sheet %q has no data", r.name)
	}
	fs, err := extract.Extract(r.sheet.Dataset)
	if err != nil {
		return err
	}
	r.fs = fs
	return nil
}

func (r *sheetRun) compare(ctx context.Context) error {
	if r.table == "" {
		return errs.Wrapf(errs.ErrAmbiguousTable, "no target table for sheet %q", r.name)
	}
	db, err := r.svc.Repo.GetSchema(ctx, r.table)
	if err != nil {
		return err
	}
	r.db = db

	raw := compare.Compare(r.fs, db)
	if len(raw.ExtraInFile) == 0 || len(raw.MissingFromFile) == 0 {
		r.report.Comparison = raw
		return nil
	}

	resp, err := r.svc.Gateway.ReconcileNames(ctx, enrich.ReconcileRequest{
		RawComparison:  raw,
		FileSchema:     r.fs,
		DbSchema:       db,
		TableID:        r.table,
		SourceFileName: r.file,
	})
	if err != nil {
		r.log.Infow("naming reconciliation unavailable", "kind", errs.Kind(errs.Mark(err, errs.ErrComparisonDegraded)))
		r.report.Comparison = compare.Degrade(raw, unavailableReason(err))
		return nil
	}
	r.report.Comparison = compare.Reconcile(raw, resp.NamingMismatches, resp.Recommendation)
	return nil
}

func (r *sheetRun) validate(ctx context.Context) error {
	r.ds = r.sheet.Dataset.Rename(r.report.Comparison.NamingMismatches)
	mapped, err := extract.Extract(r.ds)
	if err != nil {
		return err
	}
	r.mapped = mapped

	v := validate.New(r.svc.Policy, r.svc.Repo, r.log)
	r.report.TotalRowsChecked = r.ds.Rows()
	r.report.TypeViolations = v.ValidateTypes(r.ds, r.db)
	r.report.QualityViolations = v.RunChecks(ctx, r.ds, r.db)

	history, err := r.svc.Repo.LoadRecentSnapshots(ctx, r.table, r.svc.HistoryDepth)
	if err != nil {
		r.log.Warnw("snapshot history unavailable", "kind", errs.Kind(err), "error", err)
		history = nil
	}
	r.history = history
	r.report.Drift = drift.DetectDrift(r.mapped, history)
	r.report.Status = localStatus(&r.report)
	return nil
}

func (r *sheetRun) enrich(ctx context.Context) error {
	gw := r.svc.Gateway

	rules, err := gw.SuggestRules(ctx, enrich.RulesRequest{TableID: r.table, FileSchema: r.mapped})
	switch {
	case err == nil:
		r.report.DynamicRules = rules
	case errs.Is(err, enrich.ErrDisabled):
		r.report.DynamicRules = []model.DynamicRule{}
	default:
		r.report.DynamicRules = model.FailedRulesPlaceholder()
	}

	high, medium, low := r.report.SeverityCounts()
	resp, err := gw.Analyze(ctx, enrich.AnalysisRequest{
		TableID:           r.table,
		SchemaAnalysis:    r.report.Comparison,
		ViolationsSummary: enrich.SummarizeViolations(r.report.TypeViolations, r.report.QualityViolations),
		HistoricalSchemas: records(r.history),
	})
	if err != nil {
		status := model.StatusError
		if errs.Is(err, enrich.ErrDisabled) {
			status = model.StatusUnknown
		}
		r.report.Enrichment = model.UnavailableEnrichment(status, unavailableReason(err), high, medium, low)
		return nil
	}

	r.report.Enrichment = resp.Enrichment()
	if r.report.Drift.AnalysisNote == "" {
		r.report.Drift.AnalysisNote = r.report.Enrichment.SchemaDrift.AnalysisNote
	}
	return nil
}

// persist records the mapped file schema as the newest snapshot of the
// table. A failure only costs future drift detection.
func (r *sheetRun) persist(ctx context.Context) {
	snap, err := r.svc.Repo.SaveSnapshot(ctx, r.table, r.mapped)
	if err != nil {
		r.log.Warnw("snapshot not saved", "kind", errs.Kind(err), "error", err)
		return
	}
	r.log.Debugw("snapshot saved", "key", snap.Key)
}

// localStatus derives the sheet status from locally computed results.
func localStatus(rep *model.SheetReport) string {
	high, medium, low := rep.SeverityCounts()
	switch {
	case high > 0:
		return model.StatusFailed
	case medium > 0 || low > 0,
		len(rep.Comparison.MissingFromFile) > 0,
		len(rep.Comparison.ExtraInFile) > 0,
		!rep.Drift.Empty():
		return model.StatusWarning
	default:
		return model.StatusPassed
	}
}

func records(history []model.SchemaSnapshot) []model.SnapshotRecord {
	out := make([]model.SnapshotRecord, len(history))
	for i, s := range history {
		out[i] = model.SnapshotRecord{Columns: s.Columns}
	}
	return out
}

func unavailableReason(err error) string {
	if errs.Is(err, enrich.ErrDisabled) {
		return "enrichment not configured"
	}
	if errs.Is(err, errs.ErrRateLimited) {
		return "enrichment rate limited"
	}
	return "enrichment service unavailable"
}
