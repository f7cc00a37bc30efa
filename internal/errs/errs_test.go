package errs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", Wrapf(ErrNotFound, "table %q", "orders"), "NotFound"},
		{"extraction", Wrap(ErrExtraction, "no columns"), "ExtractionError"},
		{"enrichment", Wrap(Wrap(ErrEnrichmentUnavailable, "status 500"), "analyze"), "EnrichmentUnavailable"},
		{"plain", New("boom"), "Internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(NewNotFoundError("file %s", "a.csv")))
	assert.True(t, IsFatal(Wrap(ErrUnsupportedFormat, ".pdf")))
	assert.True(t, IsFatal(Wrap(ErrExtraction, "empty")))
	assert.False(t, IsFatal(Wrap(ErrPersistence, "disk full")))
	assert.False(t, IsFatal(Wrap(ErrEnrichmentUnavailable, "timeout")))
}
