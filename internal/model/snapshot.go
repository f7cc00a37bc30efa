package model

import "time"

// SchemaSnapshot is an immutable record of the column set observed for a
// table at one point in time. Only column types are persisted.
type SchemaSnapshot struct {
	Key        string             `json:"key"`
	TableID    string             `json:"table_id"`
	Columns    map[string]TypeTag `json:"columns"`
	TakenAt    time.Time          `json:"taken_at"`
	SourceFile string             `json:"source_file,omitempty"`
}

// DriftReport lists the columns whose observed type changed since the most
// recent snapshot.
type DriftReport struct {
	Differences  []DriftDifference `json:"differences"`
	AnalysisNote string            `json:"analysis"`
}

// Empty reports whether no differences were found.
func (d DriftReport) Empty() bool {
	return len(d.Differences) == 0
}

// DriftDifference is one column type change. ExpectedType comes from the most
// recent snapshot.
type DriftDifference struct {
	Column       string  `json:"column"`
	ExpectedType TypeTag `json:"expected_type"`
	CurrentType  TypeTag `json:"current_type"`
}

// snapshotTimeLayout has a fixed width so keys of one table sort
// chronologically.
const snapshotTimeLayout = "20060102T150405.000000Z"

const snapshotKeyInfix = "_schema_"

// SnapshotTableKey sanitizes a table identifier for use in snapshot keys:
// every rune that is not an ASCII letter or digit becomes an underscore.
func SnapshotTableKey(tableID string) string {
	out := make([]byte, 0, len(tableID))
	for _, r := range tableID {
		if r < 128 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			out = append(out, byte(r))
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

// SnapshotKey derives the archive key of a snapshot of tableID taken at t.
func SnapshotKey(tableID string, t time.Time) string {
	return SnapshotTableKey(tableID) + snapshotKeyInfix + t.UTC().Format(snapshotTimeLayout)
}

// SnapshotKeyPrefix is the prefix shared by every snapshot key of tableID.
func SnapshotKeyPrefix(tableID string) string {
	return SnapshotTableKey(tableID) + snapshotKeyInfix
}

// ParseSnapshotKey splits a key into its sanitized table key and timestamp.
func ParseSnapshotKey(key string) (tableKey string, takenAt time.Time, ok bool) {
	if len(key) <= len(snapshotTimeLayout)+len(snapshotKeyInfix) {
		return "", time.Time{}, false
	}
	split := len(key) - len(snapshotTimeLayout)
	if key[split-len(snapshotKeyInfix):split] != snapshotKeyInfix {
		return "", time.Time{}, false
	}
	t, err := time.Parse(snapshotTimeLayout, key[split:])
	if err != nil {
		return "", time.Time{}, false
	}
	return key[:split-len(snapshotKeyInfix)], t, true
}

// SnapshotRecord is the persisted body of a snapshot.
type SnapshotRecord struct {
	Columns map[string]TypeTag `json:"columns"`
}
