package validate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/model"
)

type fakeRef struct {
	values map[string][]string
	err    error
	calls  int
}

func (f *fakeRef) DistinctValues(_ context.Context, table, column string, _ int) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.values[table+"."+column], nil
}

func TestRunChecksNullability(t *testing.T) {
	db := &model.TableSchema{Name: "users", Columns: []model.Column{
		{Name: "id", DeclaredType: model.TypeInteger, Nullable: false},
		{Name: "email", DeclaredType: model.TypeString, Nullable: true},
	}}
	ds := dataset(t, []string{"id", "email"}, []string{"", "a@example.com"})

	got := RunChecks(context.Background(), ds, db, nil, DefaultPolicy())
	require.Len(t, got, 1)
	assert.Equal(t, "id", got[0].Column)
	assert.Equal(t, model.CheckNullability, got[0].Check)
	assert.Equal(t, 1, got[0].Count)
	assert.Equal(t, model.SeverityHigh, got[0].Severity)
	assert.NotEmpty(t, got[0].BusinessImpactHint)
}

func TestNullSeverityThresholds(t *testing.T) {
	db := &model.TableSchema{Columns: []model.Column{{Name: "id", DeclaredType: model.TypeInteger}}}
	rows := make([][]string, 0, 20)
	for i := 0; i < 20; i++ {
		rows = append(rows, []string{"1"})
	}
	rows[0][0] = ""
	ds := dataset(t, []string{"id"}, rows...)

	got := RunChecks(context.Background(), ds, db, nil, DefaultPolicy())
	require.Len(t, got, 1)
	assert.Equal(t, model.SeverityMedium, got[0].Severity, "one null in twenty rows hits the medium threshold")

	got = RunChecks(context.Background(), ds, db, nil, Policy{NullMediumFraction: 0.1})
	require.Len(t, got, 1)
	assert.Equal(t, model.SeverityLow, got[0].Severity)
}

func TestRunChecksUniqueness(t *testing.T) {
	db := &model.TableSchema{Columns: []model.Column{
		{Name: "id", DeclaredType: model.TypeInteger, Nullable: false, IsPrimaryKey: true},
		{Name: "code", DeclaredType: model.TypeString, Nullable: true, IsUnique: true},
	}}
	ds := dataset(t, []string{"id", "code"},
		[]string{"1", "a"},
		[]string{"1.0", "a"},
		[]string{"2", ""},
		[]string{"2", ""},
	)

	got := RunChecks(context.Background(), ds, db, nil, DefaultPolicy())
	require.Len(t, got, 2)
	assert.Equal(t, model.QualityViolation{
		Column: "id", Check: model.CheckUniqueness, Count: 2, Severity: model.SeverityHigh,
		BusinessImpactHint: got[0].BusinessImpactHint, SuggestedFixHint: got[0].SuggestedFixHint,
	}, got[0])
	assert.Equal(t, "code", got[1].Column)
	assert.Equal(t, 1, got[1].Count, "nulls are not duplicates")
	assert.Equal(t, model.SeverityMedium, got[1].Severity)
}

func TestRunChecksCompositePrimaryKey(t *testing.T) {
	db := &model.TableSchema{
		Name: "order_lines",
		Columns: []model.Column{
			{Name: "order_id", DeclaredType: model.TypeInteger, IsPrimaryKey: true},
			{Name: "line_no", DeclaredType: model.TypeInteger, IsPrimaryKey: true},
			{Name: "sku", DeclaredType: model.TypeString, Nullable: true},
		},
		PrimaryKey: []string{"order_id", "line_no"},
	}

	distinct := dataset(t, []string{"order_id", "line_no", "sku"},
		[]string{"1", "1", "a"},
		[]string{"1", "2", "b"},
		[]string{"2", "1", "c"},
	)
	assert.Empty(t, RunChecks(context.Background(), distinct, db, nil, DefaultPolicy()),
		"repeated values of a single key member are not duplicates")

	repeated := dataset(t, []string{"order_id", "line_no", "sku"},
		[]string{"1", "1", "a"},
		[]string{"1", "2", "b"},
		[]string{"1.0", "2", "c"},
	)
	got := RunChecks(context.Background(), repeated, db, nil, DefaultPolicy())
	require.Len(t, got, 1)
	assert.Equal(t, "order_id", got[0].Column)
	assert.Equal(t, model.CheckUniqueness, got[0].Check)
	assert.Equal(t, 1, got[0].Count)
	assert.Equal(t, model.SeverityHigh, got[0].Severity)
	assert.Contains(t, got[0].BusinessImpactHint, "(order_id, line_no)")

	// a key member missing from the file leaves the tuple unchecked
	partial := dataset(t, []string{"order_id"}, []string{"1"}, []string{"1"})
	assert.Empty(t, RunChecks(context.Background(), partial, db, nil, DefaultPolicy()))
}

func TestRunChecksEnumDomain(t *testing.T) {
	db := &model.TableSchema{Columns: []model.Column{
		{Name: "status", DeclaredType: model.TypeString, Nullable: true, EnumValues: []string{"open", "closed"}},
	}}
	ds := dataset(t, []string{"status"}, []string{"open"}, []string{"Closed"}, []string{""})

	got := RunChecks(context.Background(), ds, db, nil, DefaultPolicy())
	require.Len(t, got, 1)
	assert.Equal(t, model.CheckDomain, got[0].Check)
	assert.Equal(t, 1, got[0].Count)
}

func TestRunChecksForeignKeyDomain(t *testing.T) {
	db := &model.TableSchema{
		Columns:     []model.Column{{Name: "customer_id", DeclaredType: model.TypeInteger, Nullable: true}},
		ForeignKeys: []model.ForeignKey{{ColumnName: "customer_id", ReferencedTable: "customers", ReferencedColumn: "id"}},
	}
	ds := dataset(t, []string{"customer_id"}, []string{"1"}, []string{"2.0"}, []string{"99"})
	ref := &fakeRef{values: map[string][]string{"customers.id": {"1", "2", "3"}}}

	got := RunChecks(context.Background(), ds, db, ref, DefaultPolicy())
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Count)
	assert.Equal(t, model.SeverityHigh, got[0].Severity)
	assert.Equal(t, 1, ref.calls)
}

func TestRunChecksIsolatesFailures(t *testing.T) {
	db := &model.TableSchema{
		Columns: []model.Column{
			{Name: "customer_id", DeclaredType: model.TypeInteger, Nullable: false},
		},
		ForeignKeys: []model.ForeignKey{{ColumnName: "customer_id", ReferencedTable: "customers", ReferencedColumn: "id"}},
	}
	ds := dataset(t, []string{"customer_id"}, []string{""}, []string{"5"})
	ref := &fakeRef{err: errs.New("connection refused")}

	got := RunChecks(context.Background(), ds, db, ref, DefaultPolicy())
	require.Len(t, got, 1, "the failing domain check must not suppress the nullability check")
	assert.Equal(t, model.CheckNullability, got[0].Check)

	// no reader at all behaves the same way
	got = RunChecks(context.Background(), ds, db, nil, DefaultPolicy())
	require.Len(t, got, 1)
}

func TestRunChecksMaxLength(t *testing.T) {
	limit := int64(3)
	db := &model.TableSchema{Columns: []model.Column{
		{Name: "code", DeclaredType: model.TypeString, Nullable: true, MaxLength: &limit},
	}}
	ds := dataset(t, []string{"code"}, []string{"abc"}, []string{"abcd"}, []string{"äöü"})

	got := RunChecks(context.Background(), ds, db, nil, DefaultPolicy())
	require.Len(t, got, 1)
	assert.Equal(t, model.CheckMaxLength, got[0].Check)
	assert.Equal(t, 1, got[0].Count)
}

func TestIsolateRecoversPanic(t *testing.T) {
	err := isolate(func() error { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestFractionSeverity(t *testing.T) {
	assert.Equal(t, model.SeverityLow, FractionSeverity(0, 10, 0.5, 0.1))
	assert.Equal(t, model.SeverityLow, FractionSeverity(1, 0, 0.5, 0.1))
	assert.Equal(t, model.SeverityMedium, FractionSeverity(1, 10, 0.5, 0.1))
	assert.Equal(t, model.SeverityHigh, FractionSeverity(5, 10, 0.5, 0.1))
}
