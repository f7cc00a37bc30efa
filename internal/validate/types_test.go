package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/tabular"
)

func dataset(t *testing.T, header []string, rows ...[]string) *tabular.Dataset {
	t.Helper()
	ds, err := tabular.FromRecords("orders.csv", "", header, rows, tabular.Options{})
	require.NoError(t, err)
	return ds
}

func TestValidateTypesSeverity(t *testing.T) {
	db := &model.TableSchema{Name: "orders", Columns: []model.Column{
		{Name: "qty", Type: "int", DeclaredType: model.TypeInteger},
		{Name: "price", Type: "numeric", DeclaredType: model.TypeFloat},
		{Name: "weight", Type: "int", DeclaredType: model.TypeInteger},
		{Name: "active", Type: "boolean", DeclaredType: model.TypeBoolean},
		{Name: "shipped", Type: "timestamp", DeclaredType: model.TypeDatetime},
		{Name: "note", Type: "text", DeclaredType: model.TypeString},
		{Name: "absent", Type: "int", DeclaredType: model.TypeInteger},
	}}
	ds := dataset(t,
		[]string{"qty", "price", "weight", "active", "shipped", "note"},
		[]string{"1", "9.99", "2.5", "true", "2025-01-01", "x"},
		[]string{"two", "10", "3.0", "1", "soon", "7"},
		[]string{"three", "abc", "4.75", "maybe", "", ""},
	)

	got := ValidateTypes(ds, db, DefaultPolicy())
	require.Len(t, got, 5)

	assert.Equal(t, "qty", got[0].Column)
	assert.Equal(t, model.SeverityHigh, got[0].Severity)
	assert.Equal(t, model.TypeInteger, got[0].ExpectedType)
	assert.Equal(t, model.TypeString, got[0].FoundType)
	assert.Equal(t, []string{"two", "three"}, got[0].SampleOffendingValues)
	assert.Equal(t, 2, got[0].OffendingCount)

	assert.Equal(t, "price", got[1].Column)
	assert.Equal(t, model.SeverityHigh, got[1].Severity)

	// all values parse as numbers but some are not integral
	assert.Equal(t, "weight", got[2].Column)
	assert.Equal(t, model.SeverityMedium, got[2].Severity)
	assert.Equal(t, model.TypeFloat, got[2].FoundType)
	assert.Equal(t, []string{"2.5", "4.75"}, got[2].SampleOffendingValues)

	assert.Equal(t, "active", got[3].Column)
	assert.Equal(t, []string{"maybe"}, got[3].SampleOffendingValues)

	assert.Equal(t, "shipped", got[4].Column)
	assert.Equal(t, []string{"soon"}, got[4].SampleOffendingValues)
}

func TestValidateTypesIdempotent(t *testing.T) {
	db := &model.TableSchema{Columns: []model.Column{
		{Name: "a", DeclaredType: model.TypeInteger},
		{Name: "b", DeclaredType: model.TypeFloat},
	}}
	ds := dataset(t, []string{"b", "a"}, []string{"x", "1.5"}, []string{"y", "q"})

	first := ValidateTypes(ds, db, DefaultPolicy())
	second := ValidateTypes(ds, db, DefaultPolicy())
	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].Column, "violations follow declaration order")
}

func TestValidateTypesSampleBounded(t *testing.T) {
	db := &model.TableSchema{Columns: []model.Column{{Name: "n", DeclaredType: model.TypeInteger}}}
	var rows [][]string
	for _, v := range []string{"a", "b", "a", "c", "d", "e", "f", "g"} {
		rows = append(rows, []string{v})
	}
	ds := dataset(t, []string{"n"}, rows...)

	got := ValidateTypes(ds, db, Policy{SampleSize: 3})
	require.Len(t, got, 1)
	assert.Equal(t, []string{"a", "b", "c"}, got[0].SampleOffendingValues)
	assert.Equal(t, 8, got[0].OffendingCount)
}

func TestValidateTypesNullsIgnored(t *testing.T) {
	db := &model.TableSchema{Columns: []model.Column{
		{Name: "id", DeclaredType: model.TypeInteger, Nullable: false},
		{Name: "email", DeclaredType: model.TypeString},
	}}
	ds := dataset(t, []string{"id", "email"}, []string{"", "a@example.com"})
	assert.Empty(t, ValidateTypes(ds, db, DefaultPolicy()))
}
