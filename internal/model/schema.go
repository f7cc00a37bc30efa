package model

// Schema is the introspection result for one reference database.
type Schema struct {
	Tables []TableSchema `json:"tables"`
	Views  []TableSchema `json:"views"`
}

// TableSchema is the declared (reference) schema of one table. It is owned by
// the schema repository and read-only to every other component.
type TableSchema struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"` // "table" or "view"
	Columns     []Column     `json:"columns"`
	PrimaryKey  []string     `json:"primary_key"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
	Indexes     []Index      `json:"indexes"`
	RowCount    *int64       `json:"row_count,omitempty"`
}

// Column returns the column with the given exact name.
func (t *TableSchema) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// ColumnNames returns the column names in declaration order.
func (t *TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ForeignKeyFor returns the foreign key whose source column is name.
func (t *TableSchema) ForeignKeyFor(name string) (*ForeignKey, bool) {
	for i := range t.ForeignKeys {
		if t.ForeignKeys[i].ColumnName == name {
			return &t.ForeignKeys[i], true
		}
	}
	return nil, false
}

// Column describes a single declared column. Type holds the engine's native
// type name; DeclaredType is its canonical tag.
type Column struct {
	Name            string   `json:"name"`
	Position        int      `json:"position"`
	Type            string   `json:"db_type"`
	DeclaredType    TypeTag  `json:"declared_type"`
	Nullable        bool     `json:"nullable"`
	Default         *string  `json:"default,omitempty"`
	MaxLength       *int64   `json:"max_length,omitempty"`
	IsPrimaryKey    bool     `json:"is_primary_key"`
	IsAutoIncrement bool     `json:"is_auto_increment"`
	IsUnique        bool     `json:"is_unique"`
	EnumValues      []string `json:"enum_values,omitempty"`
	Comment         string   `json:"comment,omitempty"`
}

// ConstraintTag names a declared constraint that drives a quality check.
type ConstraintTag string

const (
	ConstraintNotNull    ConstraintTag = "not_null"
	ConstraintUnique     ConstraintTag = "unique"
	ConstraintPrimaryKey ConstraintTag = "primary_key"
	ConstraintEnum       ConstraintTag = "enum"
	ConstraintForeignKey ConstraintTag = "foreign_key"
	ConstraintMaxLength  ConstraintTag = "max_length"
)

// Constraints derives the constraint set of column c within table t, in a
// fixed order.
func (t *TableSchema) Constraints(c *Column) []ConstraintTag {
	var tags []ConstraintTag
	if !c.Nullable {
		tags = append(tags, ConstraintNotNull)
	}
	if c.IsPrimaryKey {
		tags = append(tags, ConstraintPrimaryKey)
	}
	if c.IsUnique {
		tags = append(tags, ConstraintUnique)
	}
	if len(c.EnumValues) > 0 {
		tags = append(tags, ConstraintEnum)
	}
	if _, ok := t.ForeignKeyFor(c.Name); ok {
		tags = append(tags, ConstraintForeignKey)
	}
	if c.MaxLength != nil && *c.MaxLength > 0 && c.DeclaredType == TypeString {
		tags = append(tags, ConstraintMaxLength)
	}
	return tags
}

// HasConstraint reports whether column c within t carries tag.
func (t *TableSchema) HasConstraint(c *Column, tag ConstraintTag) bool {
	for _, ct := range t.Constraints(c) {
		if ct == tag {
			return true
		}
	}
	return false
}

// ForeignKey describes a foreign key constraint between two tables.
type ForeignKey struct {
	Name             string `json:"name"`
	ColumnName       string `json:"column_name"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
	OnDelete         string `json:"on_delete"`
	OnUpdate         string `json:"on_update"`
}

// Index describes a database index on one or more columns.
type Index struct {
	Name     string   `json:"name"`
	Columns  []string `json:"columns"`
	IsUnique bool     `json:"is_unique"`
}
