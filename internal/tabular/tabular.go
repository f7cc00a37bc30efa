// Package tabular loads column-oriented source files (CSV, TSV, XLSX, JSON
// records) into in-memory datasets, one per sheet.
package tabular

import (
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/faucetdb/schemaguard/internal/errs"
)

// Format identifies a supported source format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

var extensions = map[string]Format{
	".csv":  FormatCSV,
	".tsv":  FormatTSV,
	".xlsx": FormatXLSX,
	".xlsm": FormatXLSX,
	".json": FormatJSON,
}

// SupportedExtensions returns the accepted file extensions, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensions))
	for ext := range extensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Sheeted reports whether the format carries named sheets.
func (f Format) Sheeted() bool {
	return f == FormatXLSX
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := extensions[ext]
	if !ok {
		return "", errs.Wrapf(errs.ErrUnsupportedFormat, "extension %q", ext)
	}
	return f, nil
}

// CheckSupported verifies that path exists, is a regular file, and has a
// supported extension. It runs before any pipeline stage.
func CheckSupported(path string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errs.NewNotFoundError("file %s", path)
		}
		return "", errs.Wrapf(err, "stat %s", path)
	}
	if info.IsDir() {
		return "", errs.Wrapf(errs.ErrUnsupportedFormat, "%s is a directory", path)
	}
	return DetectFormat(path)
}

// Options controls how source files are read.
type Options struct {
	// MaxRows caps the number of data rows read per sheet. Zero means no cap.
	MaxRows int
	// NullTokens are cell values treated as null after trimming whitespace.
	// Nil uses DefaultNullTokens.
	NullTokens []string
}

// DefaultNullTokens are the cell values read as null by default.
var DefaultNullTokens = []string{"", "NA", "N/A", "NULL", "null", "NaN", "nan", "None", "#N/A"}

func (o Options) nullSet() map[string]struct{} {
	tokens := o.NullTokens
	if tokens == nil {
		tokens = DefaultNullTokens
	}
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// Workbook is a loaded source file.
type Workbook struct {
	SourceName string
	Format     Format
	Sheets     []Sheet
}

// Sheeted reports whether the workbook came from a format with named sheets.
func (w *Workbook) Sheeted() bool {
	return w.Format.Sheeted()
}

// Sheet is one sheet of a workbook in native order. Err is set when the
// sheet could not be parsed; sibling sheets are unaffected.
type Sheet struct {
	Name    string
	Dataset *Dataset
	Err     error
}

// Dataset is a column-major table of nullable string cells.
type Dataset struct {
	SourceName string
	SheetName  string
	Columns    []Series
}

// Series is one named column of a Dataset.
type Series struct {
	Name   string
	Values []sql.NullString
}

// NullCount returns the number of null cells.
func (s *Series) NullCount() int {
	n := 0
	for _, v := range s.Values {
		if !v.Valid {
			n++
		}
	}
	return n
}

// Rows returns the number of data rows.
func (d *Dataset) Rows() int {
	if len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Values)
}

// Column returns the series with the given exact name.
func (d *Dataset) Column(name string) (*Series, bool) {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i], true
		}
	}
	return nil, false
}

// Rename returns a copy of d whose columns are renamed by mapping
// (old name to new name). Cell slices are shared; d is left unchanged.
// A rename that would collide with an existing column name is skipped.
func (d *Dataset) Rename(mapping map[string]string) *Dataset {
	out := &Dataset{SourceName: d.SourceName, SheetName: d.SheetName, Columns: make([]Series, len(d.Columns))}
	taken := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		taken[c.Name] = true
	}
	for i, c := range d.Columns {
		out.Columns[i] = c
		to, ok := mapping[c.Name]
		if !ok || to == c.Name || taken[to] {
			continue
		}
		taken[to] = true
		delete(taken, c.Name)
		out.Columns[i].Name = to
	}
	return out
}

// FromRecords builds a Dataset from a header row and data rows. Short rows
// are padded with nulls. Header names are made unique with a ".N" suffix and
// blank headers become "Unnamed: <index>".
func FromRecords(source, sheet string, header []string, records [][]string, opts Options) (*Dataset, error) {
	if len(header) == 0 {
		return nil, errs.Wrapf(errs.ErrExtraction, "%s: no header row", label(source, sheet))
	}

	names := uniqueHeaders(header)
	nulls := opts.nullSet()
	if opts.MaxRows > 0 && len(records) > opts.MaxRows {
		records = records[:opts.MaxRows]
	}

	ds := &Dataset{SourceName: source, SheetName: sheet, Columns: make([]Series, len(names))}
	for i, name := range names {
		ds.Columns[i] = Series{Name: name, Values: make([]sql.NullString, len(records))}
	}
	for r, rec := range records {
		if len(rec) > len(names) {
			return nil, errs.Wrapf(errs.ErrExtraction,
				"%s: row %d has %d fields, header has %d", label(source, sheet), r+2, len(rec), len(names))
		}
		for c := range names {
			if c >= len(rec) {
				continue
			}
			ds.Columns[c].Values[r] = cell(rec[c], nulls)
		}
	}
	return ds, nil
}

func cell(raw string, nulls map[string]struct{}) sql.NullString {
	v := strings.TrimSpace(raw)
	if _, isNull := nulls[v]; isNull {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func uniqueHeaders(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, h := range header {
		base := strings.TrimSpace(h)
		if base == "" {
			base = "Unnamed: " + strconv.Itoa(i)
		}
		name := base
		for n := 1; used[name]; n++ {
			name = base + "." + strconv.Itoa(n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func label(source, sheet string) string {
	if sheet == "" {
		return source
	}
	return source + "[" + sheet + "]"
}
