package tabular

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/faucetdb/schemaguard/internal/errs"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCheckSupported(t *testing.T) {
	_, err := CheckSupported(filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, errs.Is(err, errs.ErrNotFound))

	_, err = CheckSupported(writeFile(t, "report.pdf", "%PDF"))
	assert.True(t, errs.Is(err, errs.ErrUnsupportedFormat))

	format, err := CheckSupported(writeFile(t, "orders.CSV", "id\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, format)
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "orders.csv", "\ufeffid,email,id\n1,a@x.io,9\n,NULL\n")

	wb, err := Load(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1)
	assert.False(t, wb.Sheeted())

	sheet := wb.Sheets[0]
	require.NoError(t, sheet.Err)
	ds := sheet.Dataset
	assert.Equal(t, "orders.csv", ds.SourceName)
	assert.Equal(t, 2, ds.Rows())

	names := []string{ds.Columns[0].Name, ds.Columns[1].Name, ds.Columns[2].Name}
	assert.Equal(t, []string{"id", "email", "id.1"}, names)

	id, ok := ds.Column("id")
	require.True(t, ok)
	assert.True(t, id.Values[0].Valid)
	assert.False(t, id.Values[1].Valid)
	assert.Equal(t, 1, id.NullCount())

	email, _ := ds.Column("email")
	assert.False(t, email.Values[1].Valid, "NULL token should read as null")

	dup, _ := ds.Column("id.1")
	assert.False(t, dup.Values[1].Valid, "short rows are padded with nulls")
}

func TestLoadCSVTooManyFields(t *testing.T) {
	path := writeFile(t, "bad.csv", "a,b\n1,2,3\n")

	wb, err := Load(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.True(t, errs.Is(wb.Sheets[0].Err, errs.ErrExtraction))
}

func TestLoadEmptyCSV(t *testing.T) {
	wb, err := Load(context.Background(), writeFile(t, "empty.csv", ""), Options{})
	require.NoError(t, err)
	assert.True(t, errs.Is(wb.Sheets[0].Err, errs.ErrExtraction))
}

func TestLoadJSONRecords(t *testing.T) {
	path := writeFile(t, "rows.json", `[{"b": 1, "a": "x"}, {"a": null, "c": true}]`)

	wb, err := Load(context.Background(), path, Options{})
	require.NoError(t, err)
	ds := wb.Sheets[0].Dataset
	require.NotNil(t, ds, "err: %v", wb.Sheets[0].Err)

	assert.Equal(t, "b", ds.Columns[0].Name)
	assert.Equal(t, "a", ds.Columns[1].Name)
	assert.Equal(t, "c", ds.Columns[2].Name)

	b, _ := ds.Column("b")
	assert.Equal(t, "1", b.Values[0].String)
	assert.False(t, b.Values[1].Valid)

	c, _ := ds.Column("c")
	assert.Equal(t, "true", c.Values[1].String)
}

func TestLoadXLSXKeepsSheetOrder(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Zeta"))
	_, err := f.NewSheet("Alpha")
	require.NoError(t, err)
	_, err = f.NewSheet("Blank")
	require.NoError(t, err)

	require.NoError(t, f.SetSheetRow("Zeta", "A1", &[]interface{}{"id", "amount"}))
	require.NoError(t, f.SetSheetRow("Zeta", "A2", &[]interface{}{1, 9.5}))
	require.NoError(t, f.SetSheetRow("Alpha", "A1", &[]interface{}{"code"}))
	require.NoError(t, f.SetSheetRow("Alpha", "A2", &[]interface{}{"X1"}))

	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	names, err := SheetNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zeta", "Alpha", "Blank"}, names)

	wb, err := Load(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 3)
	assert.True(t, wb.Sheeted())

	assert.Equal(t, "Zeta", wb.Sheets[0].Name)
	require.NoError(t, wb.Sheets[0].Err)
	assert.Equal(t, 1, wb.Sheets[0].Dataset.Rows())

	assert.Equal(t, "Alpha", wb.Sheets[1].Name)
	require.NoError(t, wb.Sheets[1].Err)

	assert.True(t, errs.Is(wb.Sheets[2].Err, errs.ErrExtraction), "empty sheet fails on its own")
}

func TestRename(t *testing.T) {
	ds, err := FromRecords("f.csv", "", []string{"ID", "mail", "email"}, [][]string{{"1", "a", "b"}}, Options{})
	require.NoError(t, err)

	renamed := ds.Rename(map[string]string{"ID": "id", "mail": "email"})
	assert.Equal(t, "id", renamed.Columns[0].Name)
	assert.Equal(t, "mail", renamed.Columns[1].Name, "collision with an existing column is skipped")
	assert.Equal(t, "ID", ds.Columns[0].Name, "source dataset is not mutated")
}

func TestMaxRows(t *testing.T) {
	path := writeFile(t, "many.csv", "n\n1\n2\n3\n4\n")
	wb, err := Load(context.Background(), path, Options{MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, wb.Sheets[0].Dataset.Rows())
}
