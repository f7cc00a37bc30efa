// Package extract derives the observed schema of a loaded dataset.
package extract

import (
	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/tabular"
)

const (
	maxSamples  = 5
	maxDistinct = 10000
)

// Extract builds the FileSchema of ds. Each column gets the narrowest type
// that accommodates all of its non-null values; all-null columns are
// unknown. A dataset without columns is an extraction error.
func Extract(ds *tabular.Dataset) (*model.FileSchema, error) {
	if ds == nil {
		return nil, errs.Wrap(errs.ErrExtraction, "no dataset")
	}
	if len(ds.Columns) == 0 {
		return nil, errs.Wrapf(errs.ErrExtraction, "%s: dataset has no columns", ds.SourceName)
	}

	fs := &model.FileSchema{
		SourceName: ds.SourceName,
		TotalRows:  ds.Rows(),
		Columns:    make([]model.ColumnSpec, 0, len(ds.Columns)),
	}
	if ds.SheetName != "" {
		name := ds.SheetName
		fs.SheetName = &name
	}

	seen := make(map[string]bool, len(ds.Columns))
	for i := range ds.Columns {
		col := &ds.Columns[i]
		if seen[col.Name] {
			return nil, errs.Wrapf(errs.ErrExtraction, "%s: duplicate column %q", ds.SourceName, col.Name)
		}
		seen[col.Name] = true
		fs.Columns = append(fs.Columns, inferColumn(col))
	}
	return fs, nil
}

// InferSeries returns the observed type of a single series.
func InferSeries(s *tabular.Series) model.TypeTag {
	t := model.TypeUnknown
	for _, v := range s.Values {
		if !v.Valid {
			continue
		}
		t = model.Join(t, InferValue(v.String))
		if t == model.TypeString {
			break
		}
	}
	return t
}

func inferColumn(s *tabular.Series) model.ColumnSpec {
	stats := &model.SampleStats{}
	distinct := make(map[string]struct{})
	observed := model.TypeUnknown

	for _, v := range s.Values {
		if !v.Valid {
			stats.NullCount++
			continue
		}
		if observed != model.TypeString {
			observed = model.Join(observed, InferValue(v.String))
		}
		if len(distinct) < maxDistinct {
			if _, dup := distinct[v.String]; !dup {
				distinct[v.String] = struct{}{}
				if len(stats.Samples) < maxSamples {
					stats.Samples = append(stats.Samples, v.String)
				}
			}
		}
	}
	stats.DistinctCount = len(distinct)

	return model.ColumnSpec{
		Name:         s.Name,
		ObservedType: observed,
		Nullable:     stats.NullCount > 0,
		Stats:        stats,
	}
}
