package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDefaultPoolConfig(t *testing.T) {
	pc := DefaultPoolConfig()

	if pc.MaxOpenConns != 10 {
		t.Errorf("MaxOpenConns = %d, want 10", pc.MaxOpenConns)
	}
	if pc.MaxIdleConns != 2 {
		t.Errorf("MaxIdleConns = %d, want 2", pc.MaxIdleConns)
	}
	if pc.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("ConnMaxLifetime = %v, want %v", pc.ConnMaxLifetime, 5*time.Minute)
	}
}

func TestAdminPasswordHashNotInJSON(t *testing.T) {
	admin := Admin{
		ID:           1,
		Email:        "admin@example.com",
		PasswordHash: "sha256hashvalue",
		Name:         "Admin User",
		IsActive:     true,
	}

	b, err := json.Marshal(admin)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if _, ok := m["password_hash"]; ok {
		t.Error("password_hash should NOT appear in JSON output")
	}
	if _, ok := m["email"]; !ok {
		t.Error("email should be present in JSON output")
	}
}

func TestAPIKeyKeyHashNotInJSON(t *testing.T) {
	apiKey := APIKey{
		ID:        1,
		KeyHash:   "sha256hashvalue",
		KeyPrefix: "sg_a1b2c",
		Label:     "ingest",
		IsActive:  true,
	}

	b, err := json.Marshal(apiKey)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if strings.Contains(string(b), "sha256hashvalue") {
		t.Errorf("key hash leaked into JSON: %s", b)
	}
}

func TestParseTypeTag(t *testing.T) {
	tests := map[string]TypeTag{
		"integer":   TypeInteger,
		" FLOAT ":   TypeFloat,
		"boolean":   TypeBoolean,
		"datetime":  TypeDatetime,
		"string":    TypeString,
		"varchar":   TypeUnknown,
		"":          TypeUnknown,
	}
	for in, want := range tests {
		if got := ParseTypeTag(in); got != want {
			t.Errorf("ParseTypeTag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		a, b, want TypeTag
	}{
		{TypeInteger, TypeInteger, TypeInteger},
		{TypeUnknown, TypeBoolean, TypeBoolean},
		{TypeDatetime, TypeUnknown, TypeDatetime},
		{TypeInteger, TypeFloat, TypeFloat},
		{TypeFloat, TypeInteger, TypeFloat},
		{TypeInteger, TypeBoolean, TypeString},
		{TypeDatetime, TypeFloat, TypeString},
		{TypeString, TypeInteger, TypeString},
	}
	for _, tt := range tests {
		if got := Join(tt.a, tt.b); got != tt.want {
			t.Errorf("Join(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestConstraints(t *testing.T) {
	maxLen := int64(64)
	table := TableSchema{
		Name: "orders",
		Columns: []Column{
			{Name: "id", DeclaredType: TypeInteger, Nullable: false, IsPrimaryKey: true},
			{Name: "status", DeclaredType: TypeString, Nullable: true, EnumValues: []string{"open", "closed"}},
			{Name: "customer_id", DeclaredType: TypeInteger, Nullable: true},
			{Name: "email", DeclaredType: TypeString, Nullable: true, IsUnique: true, MaxLength: &maxLen},
		},
		ForeignKeys: []ForeignKey{{ColumnName: "customer_id", ReferencedTable: "customers", ReferencedColumn: "id"}},
	}

	want := map[string][]ConstraintTag{
		"id":          {ConstraintNotNull, ConstraintPrimaryKey},
		"status":      {ConstraintEnum},
		"customer_id": {ConstraintForeignKey},
		"email":       {ConstraintUnique, ConstraintMaxLength},
	}
	for i := range table.Columns {
		c := &table.Columns[i]
		got := table.Constraints(c)
		if len(got) != len(want[c.Name]) {
			t.Fatalf("Constraints(%s) = %v, want %v", c.Name, got, want[c.Name])
		}
		for j := range got {
			if got[j] != want[c.Name][j] {
				t.Errorf("Constraints(%s)[%d] = %s, want %s", c.Name, j, got[j], want[c.Name][j])
			}
		}
	}

	if !table.HasConstraint(&table.Columns[0], ConstraintNotNull) {
		t.Error("id should be NOT NULL")
	}
}

func TestComparisonResultJSON(t *testing.T) {
	b, err := json.Marshal(ComparisonResult{})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"columns_missing_from_file":[],"columns_extra_in_file":[],"naming_mismatches":{},"analysis":{"context":"","recommendation":[]}}`
	if string(b) != want {
		t.Errorf("got %s\nwant %s", b, want)
	}

	var back ComparisonResult
	in := ComparisonResult{MissingFromFile: []string{"id"}, ExtraInFile: []string{"ID"}, ContextNote: "case"}
	b, _ = json.Marshal(in)
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if back.MissingFromFile[0] != "id" || back.ExtraInFile[0] != "ID" || back.ContextNote != "case" {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestFailedSheetReportAlwaysHasStatus(t *testing.T) {
	r := SheetReport{
		FileName:    "orders.xlsx",
		SheetName:   "Q1",
		Stage:       StageFailed,
		Status:      "",
		ValidatedAt: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		Err:         "table \"orders\" does not exist",
		ErrKind:     "NotFound",
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if m["status"] != StatusError {
		t.Errorf("status = %v, want %q", m["status"], StatusError)
	}
	if _, ok := m["data_type_mismatch"]; ok {
		t.Error("failed report must not carry later-stage fields")
	}
	summary := m["validation_summary"].(map[string]interface{})
	if summary["status"] != StatusError {
		t.Errorf("validation_summary.status = %v, want Error", summary["status"])
	}
	if m["validated_at"] != "2025-03-01T09:30:00Z" {
		t.Errorf("validated_at = %v", m["validated_at"])
	}
}

func TestCompleteSheetReportKeyOrder(t *testing.T) {
	r := SheetReport{
		FileName:   "orders.csv",
		Stage:      StageComplete,
		Status:     StatusPassed,
		Enrichment: UnavailableEnrichment(StatusUnknown, "enrichment disabled", 0, 0, 0),
	}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	s := string(b)
	order := []string{
		`"file_name"`, `"sheet_name"`, `"status"`, `"schema_mismatch"`, `"total_rows_checked"`,
		`"validated_at"`, `"data_type_mismatch":[]`, `"data_quality_issues":[]`,
		`"dynamic_validation_rules":[]`, `"validation_summary"`, `"data_quality_score":{}`,
		`"triage_plan":[]`, `"append_upsert_suggestion"`, `"schema_drift":{"differences":[]`,
		`"root_cause_analysis":""`, `"overall_analysis":""`,
	}
	last := -1
	for _, key := range order {
		idx := strings.Index(s, key)
		if idx < 0 {
			t.Fatalf("missing %s in %s", key, s)
		}
		if idx < last {
			t.Errorf("%s out of order in %s", key, s)
		}
		last = idx
	}
}

func TestFileReportSheetedPreservesOrder(t *testing.T) {
	f := FileReport{
		SourceFileName:      "book.xlsx",
		ProcessedAt:         time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		InferredTargetTable: "orders",
		Sheeted:             true,
		Sheets: []SheetReport{
			{SheetName: "Zeta", Stage: StageComplete, Status: StatusPassed},
			{SheetName: "Alpha", Stage: StageFailed, Err: "empty sheet"},
		},
	}

	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	s := string(b)
	if strings.Index(s, `"Zeta"`) > strings.Index(s, `"Alpha"`) {
		t.Errorf("sheet order not preserved: %s", s)
	}
	if !strings.Contains(s, `"user_provided_target_table":null`) {
		t.Errorf("expected null user table: %s", s)
	}
	if !strings.Contains(s, `"inferred_target_table":"orders"`) {
		t.Errorf("expected inferred table: %s", s)
	}
}

func TestFileReportFlatPromotesSchemaMismatch(t *testing.T) {
	f := FileReport{
		SourceFileName:          "orders.csv",
		UserProvidedTargetTable: "orders",
		Sheets: []SheetReport{{
			FileName:   "orders.csv",
			Stage:      StageComplete,
			Status:     StatusWarning,
			Comparison: ComparisonResult{MissingFromFile: []string{"email"}},
		}},
	}

	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	s := string(b)
	if strings.Count(s, `"schema_mismatch"`) != 1 {
		t.Errorf("schema_mismatch should appear exactly once: %s", s)
	}
	if strings.Contains(s, "sheet_validation_results") {
		t.Errorf("flat report should not nest sheets: %s", s)
	}
	if strings.Index(s, `"schema_mismatch"`) > strings.Index(s, `"file_name"`) {
		t.Errorf("schema_mismatch should sit with the envelope fields: %s", s)
	}
}

func TestSeverityCounts(t *testing.T) {
	r := SheetReport{
		TypeViolations:    []TypeViolation{{Severity: SeverityHigh}, {Severity: SeverityMedium}},
		QualityViolations: []QualityViolation{{Severity: SeverityHigh}, {Severity: SeverityLow}},
	}
	high, medium, low := r.SeverityCounts()
	if high != 2 || medium != 1 || low != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", high, medium, low)
	}
}

func TestSnapshotKeys(t *testing.T) {
	at := time.Date(2025, 6, 30, 23, 59, 58, 123456000, time.UTC)

	key := SnapshotKey("sales.orders-2025", at)
	want := "sales_orders_2025_schema_20250630T235958.123456Z"
	if key != want {
		t.Fatalf("SnapshotKey = %q, want %q", key, want)
	}
	if got := SnapshotTableKey("Ünïcode tbl"); got != "_n_code_tbl" {
		t.Errorf("SnapshotTableKey = %q", got)
	}

	tableKey, takenAt, ok := ParseSnapshotKey(key)
	if !ok {
		t.Fatal("ParseSnapshotKey failed")
	}
	if tableKey != "sales_orders_2025" || !takenAt.Equal(at) {
		t.Errorf("ParseSnapshotKey = %q, %v", tableKey, takenAt)
	}

	if _, _, ok := ParseSnapshotKey("orders_schema_notatime"); ok {
		t.Error("expected malformed key to fail")
	}

	later := SnapshotKey("sales.orders-2025", at.Add(time.Microsecond))
	if later <= key {
		t.Errorf("keys must sort chronologically: %s <= %s", later, key)
	}
}
