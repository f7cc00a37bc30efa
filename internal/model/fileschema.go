package model

// FileSchema is the observed schema of one sheet (or one flat file). It is
// created once per sheet per run and never mutated afterwards.
type FileSchema struct {
	SourceName string       `json:"source_name"`
	SheetName  *string      `json:"sheet_name"`
	TotalRows  int          `json:"total_rows"`
	Columns    []ColumnSpec `json:"columns"`
}

// ColumnSpec is one observed column.
type ColumnSpec struct {
	Name         string       `json:"name"`
	ObservedType TypeTag      `json:"observed_type"`
	Nullable     bool         `json:"nullable"`
	Stats        *SampleStats `json:"sample_stats,omitempty"`
}

// SampleStats summarizes the values seen while inferring a column's type.
type SampleStats struct {
	NullCount     int      `json:"null_count"`
	DistinctCount int      `json:"distinct_count"`
	Samples       []string `json:"samples,omitempty"`
}

// Column returns the observed column with the given exact name.
func (f *FileSchema) Column(name string) (*ColumnSpec, bool) {
	for i := range f.Columns {
		if f.Columns[i].Name == name {
			return &f.Columns[i], true
		}
	}
	return nil, false
}

// ColumnNames returns the observed column names in file order.
func (f *FileSchema) ColumnNames() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnTypes returns the column name to observed type mapping that is
// persisted in schema snapshots.
func (f *FileSchema) ColumnTypes() map[string]TypeTag {
	types := make(map[string]TypeTag, len(f.Columns))
	for _, c := range f.Columns {
		types[c.Name] = c.ObservedType
	}
	return types
}
