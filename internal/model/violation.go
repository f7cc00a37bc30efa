package model

import "encoding/json"

// Severity ranks how urgently a violation needs attention.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// CheckKind names a data-quality check.
type CheckKind string

const (
	CheckNullability CheckKind = "nullability"
	CheckUniqueness  CheckKind = "uniqueness"
	CheckDomain      CheckKind = "domain"
	CheckMaxLength   CheckKind = "max_length"
)

// ComparisonResult is the structural diff between a file schema and a
// reference schema. MissingFromFile follows reference column order and
// ExtraInFile follows file column order.
type ComparisonResult struct {
	MissingFromFile  []string
	ExtraInFile      []string
	NamingMismatches map[string]string
	ContextNote      string
	Recommendations  []string
	Degraded         bool
}

type comparisonJSON struct {
	ColumnsMissingFromFile []string          `json:"columns_missing_from_file"`
	ColumnsExtraInFile     []string          `json:"columns_extra_in_file"`
	NamingMismatches       map[string]string `json:"naming_mismatches"`
	Analysis               comparisonNote    `json:"analysis"`
}

type comparisonNote struct {
	Context        string   `json:"context"`
	Recommendation []string `json:"recommendation"`
}

// MarshalJSON renders the comparison in its report shape. Nil slices and maps
// are emitted as empty collections.
func (c ComparisonResult) MarshalJSON() ([]byte, error) {
	out := comparisonJSON{
		ColumnsMissingFromFile: nonNilStrings(c.MissingFromFile),
		ColumnsExtraInFile:     nonNilStrings(c.ExtraInFile),
		NamingMismatches:       c.NamingMismatches,
		Analysis: comparisonNote{
			Context:        c.ContextNote,
			Recommendation: nonNilStrings(c.Recommendations),
		},
	}
	if out.NamingMismatches == nil {
		out.NamingMismatches = map[string]string{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the report shape back.
func (c *ComparisonResult) UnmarshalJSON(data []byte) error {
	var in comparisonJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = ComparisonResult{
		MissingFromFile:  in.ColumnsMissingFromFile,
		ExtraInFile:      in.ColumnsExtraInFile,
		NamingMismatches: in.NamingMismatches,
		ContextNote:      in.Analysis.Context,
		Recommendations:  in.Analysis.Recommendation,
	}
	return nil
}

// TypeViolation reports that a column's values disagree with its declared
// type. At most one is produced per column per run.
type TypeViolation struct {
	Column                string   `json:"column"`
	ExpectedType          TypeTag  `json:"expected_type"`
	FoundType             TypeTag  `json:"found_type"`
	Severity              Severity `json:"severity"`
	OffendingCount        int      `json:"offending_count"`
	SampleOffendingValues []string `json:"sample_offending_values"`
	SuggestedFixHint      string   `json:"suggested_fix"`
}

// QualityViolation reports one failed data-quality check on one column.
type QualityViolation struct {
	Column             string    `json:"column"`
	Check              CheckKind `json:"check"`
	Count              int       `json:"count"`
	Severity           Severity  `json:"severity"`
	BusinessImpactHint string    `json:"business_impact"`
	SuggestedFixHint   string    `json:"suggested_fix"`
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
