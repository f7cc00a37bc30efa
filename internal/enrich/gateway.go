// Package enrich is the boundary to the remote reasoning service that
// reconciles column names and writes the narrative parts of a report.
//
// Calls are synchronous request/response. Any failure, including an answer
// that is not valid JSON or does not match the expected shape, is returned
// as an error marked errs.ErrEnrichmentUnavailable; callers degrade instead
// of aborting.
package enrich

import (
	"context"
	"encoding/json"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

// Gateway is the enrichment service contract.
type Gateway interface {
	// ReconcileNames proposes file column to table column renames for the
	// columns an exact-name comparison could not match.
	ReconcileNames(ctx context.Context, req ReconcileRequest) (*ReconcileResponse, error)

	// Analyze produces the final analysis merged into a sheet report.
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error)

	// SuggestRules proposes additional validation rules for a file schema.
	SuggestRules(ctx context.Context, req RulesRequest) ([]model.DynamicRule, error)
}

// ReconcileRequest carries the raw comparison to reconcile.
type ReconcileRequest struct {
	RawComparison  model.ComparisonResult `json:"raw_comparison"`
	FileSchema     *model.FileSchema      `json:"file_schema"`
	DbSchema       *model.TableSchema     `json:"db_schema"`
	TableID        string                 `json:"table_id"`
	SourceFileName string                 `json:"source_file_name"`
}

// ReconcileResponse maps file columns to table columns.
type ReconcileResponse struct {
	NamingMismatches map[string]string `json:"naming_mismatches"`
	Recommendation   []string          `json:"recommendation"`
}

// TypeMismatchItem is one line of the type mismatch summary.
type TypeMismatchItem struct {
	Column   string        `json:"column"`
	Expected model.TypeTag `json:"expected"`
	Found    model.TypeTag `json:"found"`
}

// QualityIssueItem is one line of the data quality summary.
type QualityIssueItem struct {
	Column   string          `json:"column"`
	Check    model.CheckKind `json:"check"`
	Count    int             `json:"count"`
	Severity model.Severity  `json:"severity"`
}

// ViolationsSummary condenses local validation results for the analysis call.
type ViolationsSummary struct {
	TypeMismatchSummary     []TypeMismatchItem `json:"type_mismatch_summary"`
	DataQualityIssueSummary []QualityIssueItem `json:"data_quality_issue_summary"`
}

// SummarizeViolations builds the violations summary in violation order.
func SummarizeViolations(types []model.TypeViolation, quality []model.QualityViolation) ViolationsSummary {
	s := ViolationsSummary{
		TypeMismatchSummary:     make([]TypeMismatchItem, 0, len(types)),
		DataQualityIssueSummary: make([]QualityIssueItem, 0, len(quality)),
	}
	for _, v := range types {
		s.TypeMismatchSummary = append(s.TypeMismatchSummary, TypeMismatchItem{
			Column:   v.Column,
			Expected: v.ExpectedType,
			Found:    v.FoundType,
		})
	}
	for _, v := range quality {
		s.DataQualityIssueSummary = append(s.DataQualityIssueSummary, QualityIssueItem{
			Column:   v.Column,
			Check:    v.Check,
			Count:    v.Count,
			Severity: v.Severity,
		})
	}
	return s
}

// AnalysisRequest carries everything the final analysis is based on.
type AnalysisRequest struct {
	TableID           string                 `json:"table_id"`
	SchemaAnalysis    model.ComparisonResult `json:"schema_analysis"`
	ViolationsSummary ViolationsSummary      `json:"violations_summary"`
	HistoricalSchemas []model.SnapshotRecord `json:"historical_schemas"`
}

// AnalysisResponse is the final analysis. Narrative fields stay raw JSON.
type AnalysisResponse struct {
	ValidationSummary      model.ValidationSummary      `json:"validation_summary"`
	DataQualityScore       json.RawMessage              `json:"data_quality_score"`
	TriagePlan             json.RawMessage              `json:"triage_plan"`
	AppendUpsertSuggestion model.AppendUpsertSuggestion `json:"append_upsert_suggestion"`
	SchemaDrift            model.DriftReport            `json:"schema_drift"`
	RootCauseAnalysis      json.RawMessage              `json:"root_cause_analysis"`
	OverallAnalysis        json.RawMessage              `json:"overall_analysis"`
}

// Enrichment converts the response into the report payload.
func (r *AnalysisResponse) Enrichment() model.Enrichment {
	return model.Enrichment{
		Available:              true,
		ValidationSummary:      r.ValidationSummary,
		DataQualityScore:       r.DataQualityScore,
		TriagePlan:             r.TriagePlan,
		AppendUpsertSuggestion: r.AppendUpsertSuggestion,
		SchemaDrift:            r.SchemaDrift,
		RootCauseAnalysis:      r.RootCauseAnalysis,
		OverallAnalysis:        r.OverallAnalysis,
	}
}

// RulesRequest asks for dynamic validation rules for one file schema.
type RulesRequest struct {
	TableID    string            `json:"table_id"`
	FileSchema *model.FileSchema `json:"file_schema"`
}

// ErrDisabled is returned by Disabled. It is marked
// errs.ErrEnrichmentUnavailable.
var ErrDisabled = errs.Mark(errs.New("enrichment is not configured"), errs.ErrEnrichmentUnavailable)

// Disabled is the Gateway used when no endpoint is configured. Every call
// fails with ErrDisabled.
type Disabled struct{}

func (Disabled) ReconcileNames(context.Context, ReconcileRequest) (*ReconcileResponse, error) {
	return nil, ErrDisabled
}

func (Disabled) Analyze(context.Context, AnalysisRequest) (*AnalysisResponse, error) {
	return nil, ErrDisabled
}

func (Disabled) SuggestRules(context.Context, RulesRequest) ([]model.DynamicRule, error) {
	return nil, ErrDisabled
}
