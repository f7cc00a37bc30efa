package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/tabular"
)

func dataset(t *testing.T, header []string, rows ...[]string) *tabular.Dataset {
	t.Helper()
	ds, err := tabular.FromRecords("orders.csv", "", header, rows, tabular.Options{})
	require.NoError(t, err)
	return ds
}

func TestInferValue(t *testing.T) {
	tests := map[string]model.TypeTag{
		"42":                   model.TypeInteger,
		"-7":                   model.TypeInteger,
		"1":                    model.TypeInteger,
		"3.14":                 model.TypeFloat,
		"1e3":                  model.TypeFloat,
		"true":                 model.TypeBoolean,
		"No":                   model.TypeBoolean,
		"2025-01-15":           model.TypeDatetime,
		"2025-01-15T10:00:00Z": model.TypeDatetime,
		"inf":                  model.TypeString,
		"0x1F":                 model.TypeString,
		"hello":                model.TypeString,
	}
	for in, want := range tests {
		assert.Equal(t, want, InferValue(in), "InferValue(%q)", in)
	}
}

func TestExtract(t *testing.T) {
	ds := dataset(t,
		[]string{"id", "amount", "paid", "created", "note", "empty"},
		[]string{"1", "10", "true", "2025-01-01", "x", ""},
		[]string{"2", "10.5", "false", "2025-01-02", "42", ""},
		[]string{"", "7", "yes", "", "", ""},
	)

	fs, err := Extract(ds)
	require.NoError(t, err)
	assert.Equal(t, 3, fs.TotalRows)
	assert.Nil(t, fs.SheetName)

	want := []struct {
		name     string
		typ      model.TypeTag
		nullable bool
	}{
		{"id", model.TypeInteger, true},
		{"amount", model.TypeFloat, false},
		{"paid", model.TypeBoolean, false},
		{"created", model.TypeDatetime, true},
		{"note", model.TypeString, true},
		{"empty", model.TypeUnknown, true},
	}
	require.Len(t, fs.Columns, len(want))
	for i, w := range want {
		c := fs.Columns[i]
		assert.Equal(t, w.name, c.Name)
		assert.Equal(t, w.typ, c.ObservedType, "column %s", c.Name)
		assert.Equal(t, w.nullable, c.Nullable, "column %s", c.Name)
	}

	id, ok := fs.Column("id")
	require.True(t, ok)
	assert.Equal(t, 1, id.Stats.NullCount)
	assert.Equal(t, 2, id.Stats.DistinctCount)
	assert.Equal(t, []string{"1", "2"}, id.Stats.Samples)
}

func TestExtractNumericFailsOnOneBadValue(t *testing.T) {
	ds := dataset(t, []string{"qty"}, []string{"1"}, []string{"2"}, []string{"three"})
	fs, err := Extract(ds)
	require.NoError(t, err)
	assert.Equal(t, model.TypeString, fs.Columns[0].ObservedType)
}

func TestExtractSheetName(t *testing.T) {
	ds, err := tabular.FromRecords("book.xlsx", "Q1", []string{"a"}, [][]string{{"1"}}, tabular.Options{})
	require.NoError(t, err)
	fs, err := Extract(ds)
	require.NoError(t, err)
	require.NotNil(t, fs.SheetName)
	assert.Equal(t, "Q1", *fs.SheetName)
}

func TestExtractNoColumns(t *testing.T) {
	_, err := Extract(&tabular.Dataset{SourceName: "empty.csv"})
	assert.True(t, errs.Is(err, errs.ErrExtraction))

	_, err = Extract(nil)
	assert.True(t, errs.Is(err, errs.ErrExtraction))
}

func TestIsIntegral(t *testing.T) {
	assert.True(t, IsIntegral("3"))
	assert.True(t, IsIntegral("3.0"))
	assert.False(t, IsIntegral("3.5"))
	assert.False(t, IsIntegral("abc"))
}
