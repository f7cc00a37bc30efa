package drift

import (
	"time"

	"github.com/faucetdb/schemaguard/internal/model"
)

// ChangeType classifies the severity of a schema change between snapshots.
type ChangeType string

const (
	// ChangeAdditive means a new column appeared. Existing loaders keep working.
	ChangeAdditive ChangeType = "additive"
	// ChangeBreaking means a column disappeared or changed type.
	ChangeBreaking ChangeType = "breaking"
)

// Item describes a single difference between two snapshots.
type Item struct {
	Type        ChangeType    `json:"type"`
	Category    string        `json:"category"` // "column_added", "column_removed", "type_changed"
	ColumnName  string        `json:"column_name"`
	OldValue    model.TypeTag `json:"old_value,omitempty"`
	NewValue    model.TypeTag `json:"new_value,omitempty"`
	Description string        `json:"description"`
}

// SnapshotDiff summarizes all differences between two snapshots of a table.
type SnapshotDiff struct {
	TableID       string    `json:"table_id"`
	FromKey       string    `json:"from_key"`
	ToKey         string    `json:"to_key"`
	HasDrift      bool      `json:"has_drift"`
	HasBreaking   bool      `json:"has_breaking"`
	AdditiveCount int       `json:"additive_count"`
	BreakingCount int       `json:"breaking_count"`
	Items         []Item    `json:"items"`
	FromTakenAt   time.Time `json:"from_taken_at"`
	ToTakenAt     time.Time `json:"to_taken_at"`
}

// BreakingOnly returns a copy of d whose Items hold only breaking changes.
// The counts still describe the full diff.
func (d SnapshotDiff) BreakingOnly() SnapshotDiff {
	items := make([]Item, 0, d.BreakingCount)
	for _, it := range d.Items {
		if it.Type == ChangeBreaking {
			items = append(items, it)
		}
	}
	d.Items = items
	return d
}
