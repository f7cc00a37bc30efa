package validate

import (
	"fmt"

	"github.com/faucetdb/schemaguard/internal/extract"
	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/tabular"
)

type compat int

const (
	compatible compat = iota
	narrower
	unparseable
)

// classify places one non-null value in the compatibility table for the
// declared type.
func classify(value string, declared model.TypeTag) compat {
	switch declared {
	case model.TypeInteger:
		switch {
		case extract.IsIntegral(value):
			return compatible
		case extract.IsFloat(value):
			return narrower
		default:
			return unparseable
		}
	case model.TypeFloat:
		if extract.IsFloat(value) {
			return compatible
		}
		return unparseable
	case model.TypeBoolean:
		if extract.IsBoolLike(value) {
			return compatible
		}
		return unparseable
	case model.TypeDatetime:
		if extract.IsDatetime(value) {
			return compatible
		}
		return unparseable
	default:
		return compatible
	}
}

// ValidateTypes returns at most one violation per declared column present in
// ds, in declaration order. Severity is high when any value cannot be parsed
// as the declared type and medium when every value parses but some only fit
// a wider type. Only a bounded, distinct sample of offending values is kept.
// The result depends only on its inputs.
func (v *Validator) ValidateTypes(ds *tabular.Dataset, db *model.TableSchema) []model.TypeViolation {
	violations := []model.TypeViolation{}
	for i := range db.Columns {
		col := &db.Columns[i]
		series, ok := ds.Column(col.Name)
		if !ok {
			continue
		}

		var violation *model.TypeViolation
		err := isolate(func() error {
			violation = v.checkType(series, col)
			return nil
		})
		if err != nil {
			v.checkFailed(col.Name, "type", err)
			continue
		}
		if violation != nil {
			violations = append(violations, *violation)
		}
	}
	return violations
}

func (v *Validator) checkType(series *tabular.Series, col *model.Column) *model.TypeViolation {
	declared := col.DeclaredType
	if declared == model.TypeString || declared == model.TypeUnknown || declared == "" {
		return nil
	}

	var (
		offending  int
		worst      = compatible
		samples    []string
		sampleSeen = map[string]bool{}
	)
	for _, val := range series.Values {
		if !val.Valid {
			continue
		}
		c := classify(val.String, declared)
		if c == compatible {
			continue
		}
		offending++
		if c > worst {
			worst = c
		}
		if len(samples) < v.policy.SampleSize && !sampleSeen[val.String] {
			sampleSeen[val.String] = true
			samples = append(samples, val.String)
		}
	}
	if offending == 0 {
		return nil
	}

	found := extract.InferSeries(series)
	violation := &model.TypeViolation{
		Column:                col.Name,
		ExpectedType:          declared,
		FoundType:             found,
		OffendingCount:        offending,
		SampleOffendingValues: samples,
	}
	if worst == unparseable {
		violation.Severity = model.SeverityHigh
		violation.SuggestedFixHint = fmt.Sprintf(
			"correct or null the %d value(s) that cannot be parsed as %s before loading into %s (%s)",
			offending, declared, col.Name, col.Type)
	} else {
		violation.Severity = model.SeverityMedium
		violation.SuggestedFixHint = fmt.Sprintf(
			"%d value(s) are %s but %s is declared %s; round them or widen the column type",
			offending, found, col.Name, declared)
	}
	return violation
}
