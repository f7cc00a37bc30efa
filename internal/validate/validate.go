// Package validate checks mapped datasets against declared table schemas:
// value types (types.go) and declarative data-quality checks (quality.go).
package validate

import (
	"context"

	"go.uber.org/zap"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/logger"
	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/tabular"
)

// ReferenceReader performs live reads against the reference database.
type ReferenceReader interface {
	// DistinctValues returns up to limit distinct non-null values of
	// table.column rendered as strings.
	DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error)
}

// Validator runs type and quality validation under one policy.
type Validator struct {
	policy Policy
	ref    ReferenceReader
	logger *zap.SugaredLogger
}

// New creates a Validator. ref may be nil, in which case checks that need a
// live read are skipped.
func New(policy Policy, ref ReferenceReader, log *zap.SugaredLogger) *Validator {
	return &Validator{
		policy: policy.WithDefaults(),
		ref:    ref,
		logger: logger.OrNop(log),
	}
}

// ValidateTypes checks every declared column present in ds against its
// declared type. See Validator.ValidateTypes.
func ValidateTypes(ds *tabular.Dataset, db *model.TableSchema, policy Policy) []model.TypeViolation {
	return New(policy, nil, nil).ValidateTypes(ds, db)
}

// RunChecks runs the data-quality checks for every declared column present
// in ds. See Validator.RunChecks.
func RunChecks(ctx context.Context, ds *tabular.Dataset, db *model.TableSchema, ref ReferenceReader, policy Policy) []model.QualityViolation {
	return New(policy, ref, nil).RunChecks(ctx, ds, db)
}

// isolate runs fn and converts a panic into a ValidationCheckFailure.
func isolate(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Newf("panic: %v", r)
		}
	}()
	return fn()
}

func (v *Validator) checkFailed(column, check string, err error) {
	v.logger.Warnw("validation check skipped",
		"column", column,
		"check", check,
		"kind", errs.Kind(errs.Mark(err, errs.ErrValidationCheck)),
		"error", err,
	)
}
