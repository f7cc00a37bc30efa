package pipeline

import (
	"fmt"
	"strings"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/schemarepo"
)

// SheetCandidates lists the tables a sheet could be validated against.
type SheetCandidates struct {
	Sheet      string                      `json:"sheet"`
	Candidates []schemarepo.Recommendation `json:"candidates"`
}

// AmbiguousTableSelection is returned when no target table was given and
// none scored high enough to be chosen automatically. Callers resume by
// running again with Request.SheetTables filled in for the listed sheets.
type AmbiguousTableSelection struct {
	File   string            `json:"file"`
	Sheets []SheetCandidates `json:"sheets"`
}

func (e *AmbiguousTableSelection) Error() string {
	names := make([]string, len(e.Sheets))
	for i, s := range e.Sheets {
		names[i] = s.Sheet
	}
	return fmt.Sprintf("%s: choose a target table for %s", e.File, strings.Join(names, ", "))
}

// Is makes errs.Is(err, errs.ErrAmbiguousTable) hold.
func (e *AmbiguousTableSelection) Is(target error) bool {
	return target == errs.ErrAmbiguousTable
}

// AsAmbiguous extracts an AmbiguousTableSelection from err.
func AsAmbiguous(err error) (*AmbiguousTableSelection, bool) {
	var amb *AmbiguousTableSelection
	if errs.As(err, &amb) {
		return amb, true
	}
	return nil, false
}
