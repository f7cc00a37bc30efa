package validate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/extract"
	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/tabular"
)

type qualityCheck struct {
	kind model.CheckKind
	run  func(ctx context.Context, ds *tabular.Dataset, s *tabular.Series, col *model.Column, db *model.TableSchema) (*model.QualityViolation, error)
}

func (v *Validator) checks() []qualityCheck {
	return []qualityCheck{
		{model.CheckNullability, v.checkNullability},
		{model.CheckUniqueness, v.checkUniqueness},
		{model.CheckDomain, v.checkDomain},
		{model.CheckMaxLength, v.checkMaxLength},
	}
}

// RunChecks applies the fixed check set to every declared column present in
// ds. Violations are ordered by declaration order, then by check. Each check
// is isolated: an error or panic in one check is logged and contributes no
// violation, and the remaining checks still run.
func (v *Validator) RunChecks(ctx context.Context, ds *tabular.Dataset, db *model.TableSchema) []model.QualityViolation {
	violations := []model.QualityViolation{}
	checks := v.checks()

	for i := range db.Columns {
		col := &db.Columns[i]
		series, ok := ds.Column(col.Name)
		if !ok {
			continue
		}
		for _, check := range checks {
			var violation *model.QualityViolation
			err := isolate(func() error {
				var err error
				violation, err = check.run(ctx, ds, series, col, db)
				return err
			})
			if err != nil {
				v.checkFailed(col.Name, string(check.kind), err)
				continue
			}
			if violation != nil {
				violations = append(violations, *violation)
			}
		}
	}
	return violations
}

func (v *Validator) checkNullability(_ context.Context, _ *tabular.Dataset, s *tabular.Series, col *model.Column, db *model.TableSchema) (*model.QualityViolation, error) {
	if !db.HasConstraint(col, model.ConstraintNotNull) {
		return nil, nil
	}
	nulls := s.NullCount()
	if nulls == 0 {
		return nil, nil
	}
	return &model.QualityViolation{
		Column:             col.Name,
		Check:              model.CheckNullability,
		Count:              nulls,
		Severity:           FractionSeverity(nulls, len(s.Values), v.policy.NullHighFraction, v.policy.NullMediumFraction),
		BusinessImpactHint: fmt.Sprintf("%d row(s) will be rejected by the NOT NULL constraint on %s", nulls, col.Name),
		SuggestedFixHint:   "fill missing values from the source system or apply an agreed default before loading",
	}, nil
}

// checkUniqueness reports duplicate values of a single-column key. Members
// of a composite primary key are not unique on their own: the key is checked
// as a tuple and reported once, on its first column.
func (v *Validator) checkUniqueness(_ context.Context, ds *tabular.Dataset, s *tabular.Series, col *model.Column, db *model.TableSchema) (*model.QualityViolation, error) {
	isPK := db.HasConstraint(col, model.ConstraintPrimaryKey)
	if isPK && len(db.PrimaryKey) > 1 {
		if col.Name == db.PrimaryKey[0] {
			return v.checkCompositeKey(ds, db)
		}
		isPK = false
	}
	if !isPK && !db.HasConstraint(col, model.ConstraintUnique) {
		return nil, nil
	}

	numeric := col.DeclaredType.IsNumeric()
	seen := make(map[string]struct{}, len(s.Values))
	dups := 0
	for _, val := range s.Values {
		if !val.Valid {
			continue
		}
		key := canonical(val.String, numeric)
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	if dups == 0 {
		return nil, nil
	}

	severity := v.policy.UniqueDuplicateSeverity
	constraint := "unique"
	if isPK {
		severity = v.policy.PrimaryKeyDuplicateSeverity
		constraint = "primary key"
	}
	return &model.QualityViolation{
		Column:             col.Name,
		Check:              model.CheckUniqueness,
		Count:              dups,
		Severity:           severity,
		BusinessImpactHint: fmt.Sprintf("%d duplicate value(s) violate the %s on %s; an append will fail or double-count records", dups, constraint, col.Name),
		SuggestedFixHint:   "deduplicate the file on this column or load with an upsert keyed on it",
	}, nil
}

// checkCompositeKey counts rows repeating a full primary-key tuple. Rows with
// a null key member are left to the nullability check. The check is skipped
// when a key column is missing from the file.
func (v *Validator) checkCompositeKey(ds *tabular.Dataset, db *model.TableSchema) (*model.QualityViolation, error) {
	members := make([]*tabular.Series, len(db.PrimaryKey))
	numeric := make([]bool, len(db.PrimaryKey))
	for i, name := range db.PrimaryKey {
		series, ok := ds.Column(name)
		if !ok {
			return nil, nil
		}
		members[i] = series
		if col, ok := db.Column(name); ok {
			numeric[i] = col.DeclaredType.IsNumeric()
		}
	}

	rows := len(members[0].Values)
	seen := make(map[string]struct{}, rows)
	dups := 0
	var key strings.Builder
rowLoop:
	for r := 0; r < rows; r++ {
		key.Reset()
		for i, series := range members {
			val := series.Values[r]
			if !val.Valid {
				continue rowLoop
			}
			if i > 0 {
				key.WriteByte(0)
			}
			key.WriteString(canonical(val.String, numeric[i]))
		}
		k := key.String()
		if _, ok := seen[k]; ok {
			dups++
			continue
		}
		seen[k] = struct{}{}
	}
	if dups == 0 {
		return nil, nil
	}

	keyName := "(" + strings.Join(db.PrimaryKey, ", ") + ")"
	return &model.QualityViolation{
		Column:             db.PrimaryKey[0],
		Check:              model.CheckUniqueness,
		Count:              dups,
		Severity:           v.policy.PrimaryKeyDuplicateSeverity,
		BusinessImpactHint: fmt.Sprintf("%d row(s) repeat the primary key %s; an append will fail or double-count records", dups, keyName),
		SuggestedFixHint:   fmt.Sprintf("deduplicate the file on %s or load with an upsert keyed on it", keyName),
	}, nil
}

func (v *Validator) checkDomain(ctx context.Context, _ *tabular.Dataset, s *tabular.Series, col *model.Column, db *model.TableSchema) (*model.QualityViolation, error) {
	var (
		allowed map[string]struct{}
		source  string
	)
	// Enum members are compared verbatim; referenced values are normalized.
	numeric := col.DeclaredType.IsNumeric() && !db.HasConstraint(col, model.ConstraintEnum)

	switch {
	case db.HasConstraint(col, model.ConstraintEnum):
		allowed = make(map[string]struct{}, len(col.EnumValues))
		for _, e := range col.EnumValues {
			allowed[e] = struct{}{}
		}
		source = "the declared enum values"
	case db.HasConstraint(col, model.ConstraintForeignKey):
		fk, _ := db.ForeignKeyFor(col.Name)
		if v.ref == nil {
			return nil, errs.Newf("no reference reader for foreign key to %s.%s", fk.ReferencedTable, fk.ReferencedColumn)
		}
		values, err := v.ref.DistinctValues(ctx, fk.ReferencedTable, fk.ReferencedColumn, v.policy.ReferenceLookupLimit)
		if err != nil {
			return nil, errs.Wrapf(err, "read %s.%s", fk.ReferencedTable, fk.ReferencedColumn)
		}
		if len(values) >= v.policy.ReferenceLookupLimit {
			return nil, errs.Newf("%s.%s has more than %d distinct values", fk.ReferencedTable, fk.ReferencedColumn, v.policy.ReferenceLookupLimit)
		}
		allowed = make(map[string]struct{}, len(values))
		for _, val := range values {
			allowed[canonical(val, numeric)] = struct{}{}
		}
		source = fmt.Sprintf("%s.%s", fk.ReferencedTable, fk.ReferencedColumn)
	default:
		return nil, nil
	}

	outside := 0
	for _, val := range s.Values {
		if !val.Valid {
			continue
		}
		if _, ok := allowed[canonical(val.String, numeric)]; !ok {
			outside++
		}
	}
	if outside == 0 {
		return nil, nil
	}
	return &model.QualityViolation{
		Column:             col.Name,
		Check:              model.CheckDomain,
		Count:              outside,
		Severity:           FractionSeverity(outside, len(s.Values), v.policy.DomainHighFraction, v.policy.DomainMediumFraction),
		BusinessImpactHint: fmt.Sprintf("%d value(s) of %s are not present in %s and will break lookups or joins", outside, col.Name, source),
		SuggestedFixHint:   fmt.Sprintf("map the values onto %s or add the missing reference entries first", source),
	}, nil
}

func (v *Validator) checkMaxLength(_ context.Context, _ *tabular.Dataset, s *tabular.Series, col *model.Column, db *model.TableSchema) (*model.QualityViolation, error) {
	if !db.HasConstraint(col, model.ConstraintMaxLength) {
		return nil, nil
	}
	limit := int(*col.MaxLength)
	over := 0
	for _, val := range s.Values {
		if val.Valid && utf8.RuneCountInString(val.String) > limit {
			over++
		}
	}
	if over == 0 {
		return nil, nil
	}
	return &model.QualityViolation{
		Column:             col.Name,
		Check:              model.CheckMaxLength,
		Count:              over,
		Severity:           v.policy.MaxLengthSeverity,
		BusinessImpactHint: fmt.Sprintf("%d value(s) exceed the %d character limit of %s and will be truncated or rejected", over, limit, col.Name),
		SuggestedFixHint:   "trim the values or widen the column",
	}, nil
}

// canonical normalizes numeric text so "7", "7.0" and "7.00" compare equal.
func canonical(s string, numeric bool) string {
	if !numeric {
		return s
	}
	if f, ok := extract.ParseFloat(s); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return s
}
