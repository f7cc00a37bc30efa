// Package drift tracks how the observed schema of a table changes across
// validation runs.
package drift

import (
	"fmt"
	"sort"

	"github.com/faucetdb/schemaguard/internal/model"
)

// DetectDrift compares the observed type of every current column with the
// type recorded in the most recent snapshot (history[0]). Only type changes
// are reported; added and removed columns are the comparator's concern.
// A column that was all null on either side carries no type evidence and is
// not compared. An empty history yields an empty report.
func DetectDrift(current *model.FileSchema, history []model.SchemaSnapshot) model.DriftReport {
	report := model.DriftReport{Differences: []model.DriftDifference{}}
	if len(history) == 0 || current == nil {
		report.AnalysisNote = "no schema history for this table"
		return report
	}

	latest := history[0]
	unobserved := 0
	for _, col := range current.Columns {
		prev, ok := latest.Columns[col.Name]
		if !ok || prev == col.ObservedType {
			continue
		}
		if !bothObserved(prev, col.ObservedType) {
			unobserved++
			continue
		}
		report.Differences = append(report.Differences, model.DriftDifference{
			Column:       col.Name,
			ExpectedType: prev,
			CurrentType:  col.ObservedType,
		})
	}

	if len(report.Differences) == 0 {
		report.AnalysisNote = fmt.Sprintf("no type changes since snapshot %s", latest.Key)
	} else {
		report.AnalysisNote = fmt.Sprintf("%d column type change(s) since snapshot %s", len(report.Differences), latest.Key)
	}
	if unobserved > 0 {
		report.AnalysisNote += fmt.Sprintf("; %d all-null column(s) not compared", unobserved)
	}
	return report
}

// DiffSnapshots compares two snapshots of the same table and classifies each
// difference as additive or breaking. Items are ordered by column name
// within each category.
func DiffSnapshots(from, to model.SchemaSnapshot) SnapshotDiff {
	diff := SnapshotDiff{
		TableID:     to.TableID,
		FromKey:     from.Key,
		ToKey:       to.Key,
		FromTakenAt: from.TakenAt,
		ToTakenAt:   to.TakenAt,
		Items:       []Item{},
	}

	// Check for removed or retyped columns (breaking).
	for _, name := range sortedColumns(from.Columns) {
		oldType := from.Columns[name]
		newType, exists := to.Columns[name]
		if !exists {
			diff.Items = append(diff.Items, Item{
				Type:        ChangeBreaking,
				Category:    "column_removed",
				ColumnName:  name,
				OldValue:    oldType,
				Description: fmt.Sprintf("Column %q is no longer present", name),
			})
			continue
		}
		if oldType != newType && bothObserved(oldType, newType) {
			diff.Items = append(diff.Items, Item{
				Type:        ChangeBreaking,
				Category:    "type_changed",
				ColumnName:  name,
				OldValue:    oldType,
				NewValue:    newType,
				Description: fmt.Sprintf("Column %q type changed from %q to %q", name, oldType, newType),
			})
		}
	}

	// Check for added columns (additive).
	for _, name := range sortedColumns(to.Columns) {
		if _, exists := from.Columns[name]; !exists {
			diff.Items = append(diff.Items, Item{
				Type:        ChangeAdditive,
				Category:    "column_added",
				ColumnName:  name,
				NewValue:    to.Columns[name],
				Description: fmt.Sprintf("Column %q was added", name),
			})
		}
	}

	// Summarize.
	for _, item := range diff.Items {
		switch item.Type {
		case ChangeAdditive:
			diff.AdditiveCount++
		case ChangeBreaking:
			diff.BreakingCount++
		}
	}
	diff.HasDrift = len(diff.Items) > 0
	diff.HasBreaking = diff.BreakingCount > 0

	return diff
}

// bothObserved reports whether both types were actually observed.
func bothObserved(a, b model.TypeTag) bool {
	return a != model.TypeUnknown && b != model.TypeUnknown
}

func sortedColumns(cols map[string]model.TypeTag) []string {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
