package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/faucetdb/schemaguard/internal/errs"
)

// Load reads the file at path into a Workbook. Missing files and unsupported
// extensions fail before anything is parsed. A sheet that cannot be parsed
// is returned with its Err set instead of failing the whole workbook.
func Load(ctx context.Context, path string, opts Options) (*Workbook, error) {
	format, err := CheckSupported(path)
	if err != nil {
		return nil, err
	}

	source := filepath.Base(path)
	wb := &Workbook{SourceName: source, Format: format}

	switch format {
	case FormatXLSX:
		sheets, err := loadXLSX(ctx, path, source, opts)
		if err != nil {
			return nil, err
		}
		wb.Sheets = sheets
	case FormatCSV, FormatTSV:
		ds, err := loadDelimited(path, source, format, opts)
		wb.Sheets = []Sheet{{Dataset: ds, Err: err}}
	case FormatJSON:
		ds, err := loadJSONRecords(path, source, opts)
		wb.Sheets = []Sheet{{Dataset: ds, Err: err}}
	}
	return wb, nil
}

// SheetNames lists the sheets of the file at path in native order. Formats
// without sheets report a single unnamed sheet.
func SheetNames(path string) ([]string, error) {
	format, err := CheckSupported(path)
	if err != nil {
		return nil, err
	}
	if !format.Sheeted() {
		return []string{""}, nil
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrExtraction, "open workbook: %v", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

func loadDelimited(path, source string, format Format, opts Options) (*Dataset, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrapf(err, "open %s", source)
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	if format == FormatTSV {
		r.Comma = '\t'
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, errs.Wrapf(errs.ErrExtraction, "%s: file is empty", source)
	}
	if err != nil {
		return nil, errs.Wrapf(errs.ErrExtraction, "%s: %v", source, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrapf(errs.ErrExtraction, "%s: %v", source, err)
		}
		records = append(records, rec)
		if opts.MaxRows > 0 && len(records) >= opts.MaxRows {
			break
		}
	}
	return FromRecords(source, "", header, records, opts)
}

func loadXLSX(ctx context.Context, path, source string, opts Options) ([]Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrExtraction, "open workbook %s: %v", source, err)
	}
	defer f.Close()

	names := f.GetSheetList()
	sheets := make([]Sheet, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sheet := Sheet{Name: name}
		rows, err := f.GetRows(name)
		switch {
		case err != nil:
			sheet.Err = errs.Wrapf(errs.ErrExtraction, "%s: %v", label(source, name), err)
		case len(rows) == 0:
			sheet.Err = errs.Wrapf(errs.ErrExtraction, "%s: sheet is empty", label(source, name))
		default:
			sheet.Dataset, sheet.Err = FromRecords(source, name, rows[0], rows[1:], opts)
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}

// loadJSONRecords reads a top-level array of flat objects. Column order is
// the order in which keys are first seen.
func loadJSONRecords(path, source string, opts Options) (*Dataset, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrapf(err, "open %s", source)
	}
	defer fh.Close()

	dec := json.NewDecoder(fh)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, errs.Wrapf(errs.ErrExtraction, "%s: %v", source, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, errs.Wrapf(errs.ErrExtraction, "%s: expected a JSON array of records", source)
	}

	var header []string
	index := map[string]int{}
	var rows []map[string]string

	for dec.More() {
		keys, row, err := decodeRecord(dec)
		if err != nil {
			return nil, errs.Wrapf(errs.ErrExtraction, "%s: record %d: %v", source, len(rows)+1, err)
		}
		for _, k := range keys {
			if _, ok := index[k]; !ok {
				index[k] = len(header)
				header = append(header, k)
			}
		}
		rows = append(rows, row)
		if opts.MaxRows > 0 && len(rows) >= opts.MaxRows {
			break
		}
	}

	records := make([][]string, len(rows))
	for i, row := range rows {
		rec := make([]string, len(header))
		for k, v := range row {
			rec[index[k]] = v
		}
		records[i] = rec
	}
	return FromRecords(source, "", header, records, opts)
}

// decodeRecord reads one flat object from the token stream, keeping keys in
// document order.
func decodeRecord(dec *json.Decoder) ([]string, map[string]string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, errs.Newf("expected object, got %v", tok)
	}

	var keys []string
	values := map[string]string{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := kt.(string)
		if !ok {
			return nil, nil, errs.Newf("expected key, got %v", kt)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		if _, dup := values[key]; !dup {
			keys = append(keys, key)
		}
		values[key] = jsonCell(raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}

func jsonCell(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return ""
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}
