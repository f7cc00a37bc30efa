// Package compare computes the structural diff between an observed file
// schema and a declared table schema.
package compare

import (
	"fmt"
	"strings"

	"github.com/faucetdb/schemaguard/internal/model"
)

// Compare returns the case-sensitive exact-name set difference between fs
// and db. A name present on both sides is never reported, whatever its
// types. Missing columns follow db order and extra columns follow fs order.
func Compare(fs *model.FileSchema, db *model.TableSchema) model.ComparisonResult {
	inFile := make(map[string]bool, len(fs.Columns))
	for _, c := range fs.Columns {
		inFile[c.Name] = true
	}
	inDB := make(map[string]bool, len(db.Columns))
	for _, c := range db.Columns {
		inDB[c.Name] = true
	}

	result := model.ComparisonResult{
		MissingFromFile:  []string{},
		ExtraInFile:      []string{},
		NamingMismatches: map[string]string{},
	}
	for _, c := range db.Columns {
		if !inFile[c.Name] {
			result.MissingFromFile = append(result.MissingFromFile, c.Name)
		}
	}
	for _, c := range fs.Columns {
		if !inDB[c.Name] {
			result.ExtraInFile = append(result.ExtraInFile, c.Name)
		}
	}
	result.ContextNote = contextNote(result)
	return result
}

// Reconcile applies a naming map proposed by the enrichment service to a raw
// comparison. A pair is accepted only when its file column is in ExtraInFile
// and its table column is in MissingFromFile, and each side is used at most
// once. Accepted pairs are removed from both lists. raw is not modified.
func Reconcile(raw model.ComparisonResult, mapping map[string]string, recommendations []string) model.ComparisonResult {
	extra := make(map[string]bool, len(raw.ExtraInFile))
	for _, c := range raw.ExtraInFile {
		extra[c] = true
	}
	missing := make(map[string]bool, len(raw.MissingFromFile))
	for _, c := range raw.MissingFromFile {
		missing[c] = true
	}

	accepted := map[string]string{}
	claimed := map[string]bool{}
	// Walk file columns in order so conflicting proposals resolve
	// deterministically.
	for _, fileCol := range raw.ExtraInFile {
		dbCol, ok := mapping[fileCol]
		if !ok || !missing[dbCol] || claimed[dbCol] {
			continue
		}
		accepted[fileCol] = dbCol
		claimed[dbCol] = true
	}

	out := model.ComparisonResult{
		MissingFromFile:  []string{},
		ExtraInFile:      []string{},
		NamingMismatches: accepted,
		Recommendations:  append([]string(nil), recommendations...),
	}
	for _, c := range raw.MissingFromFile {
		if !claimed[c] {
			out.MissingFromFile = append(out.MissingFromFile, c)
		}
	}
	for _, c := range raw.ExtraInFile {
		if _, ok := accepted[c]; !ok {
			out.ExtraInFile = append(out.ExtraInFile, c)
		}
	}
	out.ContextNote = contextNote(out)
	return out
}

// Degrade marks raw as the fallback result used when naming reconciliation
// was unavailable.
func Degrade(raw model.ComparisonResult, reason string) model.ComparisonResult {
	raw.Degraded = true
	raw.NamingMismatches = map[string]string{}
	note := "naming reconciliation unavailable; exact-match comparison only"
	if reason != "" {
		note += " (" + reason + ")"
	}
	raw.ContextNote = note + ". " + raw.ContextNote
	return raw
}

func contextNote(r model.ComparisonResult) string {
	var parts []string
	if n := len(r.NamingMismatches); n > 0 {
		parts = append(parts, fmt.Sprintf("%d column(s) matched by name reconciliation", n))
	}
	if n := len(r.MissingFromFile); n > 0 {
		parts = append(parts, fmt.Sprintf("%d table column(s) missing from file", n))
	}
	if n := len(r.ExtraInFile); n > 0 {
		parts = append(parts, fmt.Sprintf("%d file column(s) not in table", n))
	}
	if len(parts) == 0 {
		return "file columns match the table exactly"
	}
	return strings.Join(parts, "; ")
}
