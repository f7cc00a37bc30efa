package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Stage is a state of the per-sheet pipeline.
type Stage string

const (
	StageExtracting Stage = "extracting"
	StageComparing  Stage = "comparing"
	StageValidating Stage = "validating"
	StageEnriching  Stage = "enriching"
	StageComplete   Stage = "complete"
	StageFailed     Stage = "failed"
)

// Terminal reports whether no further transitions are possible from s.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// Report status values. StatusError marks a failed sheet; the others are
// derived from locally computed violations.
const (
	StatusPassed  = "Passed"
	StatusWarning = "Warning"
	StatusFailed  = "Failed"
	StatusError   = "Error"
	StatusUnknown = "Unknown"
)

// CSVSheetKey identifies the single report of a non-sheeted source.
const CSVSheetKey = "csv_data"

// ValidationSummary is the headline verdict of a sheet.
type ValidationSummary struct {
	Status               string `json:"status"`
	Details              string `json:"details,omitempty"`
	HighSeverityIssues   int    `json:"high_severity_issues"`
	MediumSeverityIssues int    `json:"medium_severity_issues"`
	LowSeverityIssues    int    `json:"low_severity_issues"`
}

// AppendUpsertSuggestion recommends how to load the file into the table.
type AppendUpsertSuggestion struct {
	Strategy string `json:"strategy"`
	Details  string `json:"details"`
}

// Enrichment is the payload merged from the final-analysis call. Narrative
// fields are kept as raw JSON because their shape is owned by the remote
// service. Available is false when the payload is the unavailable sentinel.
type Enrichment struct {
	Available              bool                   `json:"-"`
	ValidationSummary      ValidationSummary      `json:"validation_summary"`
	DataQualityScore       json.RawMessage        `json:"data_quality_score"`
	TriagePlan             json.RawMessage        `json:"triage_plan"`
	AppendUpsertSuggestion AppendUpsertSuggestion `json:"append_upsert_suggestion"`
	SchemaDrift            DriftReport            `json:"schema_drift"`
	RootCauseAnalysis      json.RawMessage        `json:"root_cause_analysis"`
	OverallAnalysis        json.RawMessage        `json:"overall_analysis"`
}

// UnavailableEnrichment returns the explicit sentinel used when the
// final-analysis call could not be made or its answer could not be used.
// Severity counts are still filled from local data.
func UnavailableEnrichment(status, details string, high, medium, low int) Enrichment {
	return Enrichment{
		Available: false,
		ValidationSummary: ValidationSummary{
			Status:               status,
			Details:              details,
			HighSeverityIssues:   high,
			MediumSeverityIssues: medium,
			LowSeverityIssues:    low,
		},
		DataQualityScore:  json.RawMessage(`{}`),
		TriagePlan:        json.RawMessage(`[]`),
		RootCauseAnalysis: json.RawMessage(`""`),
		OverallAnalysis:   json.RawMessage(`""`),
	}
}

// DynamicRule is a validation rule proposed by the enrichment service.
type DynamicRule struct {
	Column    string `json:"column,omitempty"`
	Rule      string `json:"rule,omitempty"`
	Rationale string `json:"rationale,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FailedRulesPlaceholder is reported when no dynamic rules could be produced.
func FailedRulesPlaceholder() []DynamicRule {
	return []DynamicRule{{Error: "Failed to generate dynamic rules"}}
}

// SheetReport is the terminal result of one sheet pipeline. It is either a
// full report (StageComplete) or a minimal failure report (StageFailed); it
// is never emitted partially populated.
type SheetReport struct {
	FileName          string
	SheetName         string
	TableID           string
	Stage             Stage
	Status            string
	TotalRowsChecked  int
	ValidatedAt       time.Time
	Comparison        ComparisonResult
	TypeViolations    []TypeViolation
	QualityViolations []QualityViolation
	DynamicRules      []DynamicRule
	Drift             DriftReport
	Enrichment        Enrichment
	Err               string
	ErrKind           string
}

// Failed reports whether the sheet pipeline ended in StageFailed.
func (r *SheetReport) Failed() bool {
	return r.Stage == StageFailed
}

// SeverityCounts tallies type and quality violations by severity.
func (r *SheetReport) SeverityCounts() (high, medium, low int) {
	count := func(s Severity) {
		switch s {
		case SeverityHigh:
			high++
		case SeverityMedium:
			medium++
		default:
			low++
		}
	}
	for _, v := range r.TypeViolations {
		count(v.Severity)
	}
	for _, v := range r.QualityViolations {
		count(v.Severity)
	}
	return high, medium, low
}

type failedSheetJSON struct {
	FileName          string            `json:"file_name"`
	SheetName         string            `json:"sheet_name"`
	ValidatedAt       string            `json:"validated_at"`
	Status            string            `json:"status"`
	ValidationSummary ValidationSummary `json:"validation_summary"`
	Error             string            `json:"error"`
	ErrorKind         string            `json:"error_kind,omitempty"`
}

type completeSheetJSON struct {
	FileName               string                 `json:"file_name"`
	SheetName              string                 `json:"sheet_name"`
	TargetTable            string                 `json:"target_table"`
	Status                 string                 `json:"status"`
	SchemaMismatch         ComparisonResult       `json:"schema_mismatch"`
	TotalRowsChecked       int                    `json:"total_rows_checked"`
	ValidatedAt            string                 `json:"validated_at"`
	DataTypeMismatch       []TypeViolation        `json:"data_type_mismatch"`
	DataQualityIssues      []QualityViolation     `json:"data_quality_issues"`
	DynamicValidationRules []DynamicRule          `json:"dynamic_validation_rules"`
	ValidationSummary      ValidationSummary      `json:"validation_summary"`
	DataQualityScore       json.RawMessage        `json:"data_quality_score"`
	TriagePlan             json.RawMessage        `json:"triage_plan"`
	AppendUpsertSuggestion AppendUpsertSuggestion `json:"append_upsert_suggestion"`
	SchemaDrift            DriftReport            `json:"schema_drift"`
	RootCauseAnalysis      json.RawMessage        `json:"root_cause_analysis"`
	OverallAnalysis        json.RawMessage        `json:"overall_analysis"`
}

func (r SheetReport) toFailedJSON() failedSheetJSON {
	return failedSheetJSON{
		FileName:    r.FileName,
		SheetName:   r.SheetName,
		ValidatedAt: formatTime(r.ValidatedAt),
		Status:      StatusError,
		ValidationSummary: ValidationSummary{
			Status:  StatusError,
			Details: r.Err,
		},
		Error:     r.Err,
		ErrorKind: r.ErrKind,
	}
}

func (r SheetReport) toCompleteJSON() completeSheetJSON {
	drift := r.Drift
	if drift.Differences == nil {
		drift.Differences = []DriftDifference{}
	}
	return completeSheetJSON{
		FileName:               r.FileName,
		SheetName:              r.SheetName,
		TargetTable:            r.TableID,
		Status:                 r.Status,
		SchemaMismatch:         r.Comparison,
		TotalRowsChecked:       r.TotalRowsChecked,
		ValidatedAt:            formatTime(r.ValidatedAt),
		DataTypeMismatch:       nonNil(r.TypeViolations),
		DataQualityIssues:      nonNil(r.QualityViolations),
		DynamicValidationRules: nonNil(r.DynamicRules),
		ValidationSummary:      r.Enrichment.ValidationSummary,
		DataQualityScore:       rawOr(r.Enrichment.DataQualityScore, `{}`),
		TriagePlan:             rawOr(r.Enrichment.TriagePlan, `[]`),
		AppendUpsertSuggestion: r.Enrichment.AppendUpsertSuggestion,
		SchemaDrift:            drift,
		RootCauseAnalysis:      rawOr(r.Enrichment.RootCauseAnalysis, `""`),
		OverallAnalysis:        rawOr(r.Enrichment.OverallAnalysis, `""`),
	}
}

// MarshalJSON renders the sheet in its report shape with a fixed key order.
// A failed sheet always carries status "Error".
func (r SheetReport) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(r.toFailedJSON())
	}
	return json.Marshal(r.toCompleteJSON())
}

// FileReport groups the sheet reports of one source file. Sheets are kept in
// the source's native sheet order.
type FileReport struct {
	SourceFileName          string
	ProcessedAt             time.Time
	UserProvidedTargetTable string
	InferredTargetTable     string
	Sheeted                 bool
	Sheets                  []SheetReport
}

type fileEnvelopeJSON struct {
	SourceFileName          string  `json:"source_file_name"`
	ProcessedAt             string  `json:"processed_at"`
	UserProvidedTargetTable *string `json:"user_provided_target_table"`
	InferredTargetTable     *string `json:"inferred_target_table"`
}

type sheetedFileJSON struct {
	fileEnvelopeJSON
	SheetValidationResults orderedSheets `json:"sheet_validation_results"`
}

// flatCompleteJSON merges the envelope with a single complete sheet.
// SchemaMismatch shadows the embedded sheet's field so it is promoted to the
// envelope.
type flatCompleteJSON struct {
	fileEnvelopeJSON
	SchemaMismatch ComparisonResult `json:"schema_mismatch"`
	completeSheetJSON
}

type flatFailedJSON struct {
	fileEnvelopeJSON
	failedSheetJSON
}

// MarshalJSON renders the file report. Sheeted sources nest sheet reports
// under sheet_validation_results; a single flat source is merged with its
// envelope.
func (f FileReport) MarshalJSON() ([]byte, error) {
	env := fileEnvelopeJSON{
		SourceFileName:          f.SourceFileName,
		ProcessedAt:             formatTime(f.ProcessedAt),
		UserProvidedTargetTable: optional(f.UserProvidedTargetTable),
		InferredTargetTable:     optional(f.InferredTargetTable),
	}

	if !f.Sheeted && len(f.Sheets) == 1 {
		sheet := f.Sheets[0]
		if sheet.Failed() {
			return json.Marshal(flatFailedJSON{fileEnvelopeJSON: env, failedSheetJSON: sheet.toFailedJSON()})
		}
		return json.Marshal(flatCompleteJSON{
			fileEnvelopeJSON:  env,
			SchemaMismatch:    sheet.Comparison,
			completeSheetJSON: sheet.toCompleteJSON(),
		})
	}

	return json.Marshal(sheetedFileJSON{
		fileEnvelopeJSON:       env,
		SheetValidationResults: orderedSheets(f.Sheets),
	})
}

// orderedSheets encodes sheet reports as a JSON object whose keys keep slice
// order instead of being sorted.
type orderedSheets []SheetReport

func (o orderedSheets) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key := s.SheetName
		if key == "" {
			key = CSVSheetKey
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func rawOr(raw json.RawMessage, fallback string) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage(fallback)
	}
	return raw
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
