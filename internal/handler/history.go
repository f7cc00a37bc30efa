package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/schemaguard/internal/drift"
	"github.com/faucetdb/schemaguard/internal/model"
	"github.com/faucetdb/schemaguard/internal/pipeline"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// HistoryHandler serves the snapshot archive.
type HistoryHandler struct {
	deps pipeline.Deps
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(deps pipeline.Deps) *HistoryHandler {
	return &HistoryHandler{deps: deps}
}

// ListSnapshots returns the most recent snapshots of a table, newest first.
// GET /api/v1/history/{tableID}?limit=N
func (h *HistoryHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")
	limit := clampInt(queryInt(r, "limit", defaultHistoryLimit), 1, maxHistoryLimit)

	repo, err := pipeline.OpenHistory(h.deps)
	if err != nil {
		writeErr(w, err, "Snapshot archive unavailable")
		return
	}

	snaps, err := repo.LoadRecentSnapshots(r.Context(), tableID, limit)
	if err != nil {
		writeErr(w, err, "Failed to load snapshots")
		return
	}
	if snaps == nil {
		snaps = []model.SchemaSnapshot{}
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: snaps,
		Meta:     &model.ResponseMeta{Count: len(snaps)},
	})
}

// Drift diffs two snapshots of a table. Without from/to keys it compares
// the two most recent snapshots. breaking_only=true drops additive items.
// GET /api/v1/history/{tableID}/drift?from=KEY&to=KEY&breaking_only=true
func (h *HistoryHandler) Drift(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")

	repo, err := pipeline.OpenHistory(h.deps)
	if err != nil {
		writeErr(w, err, "Snapshot archive unavailable")
		return
	}

	from, to, err := repo.SnapshotPair(r.Context(), tableID, queryString(r, "from"), queryString(r, "to"))
	if err != nil {
		writeErr(w, err, "Failed to load snapshots")
		return
	}
	if from == nil {
		writeError(w, http.StatusNotFound, "At least two snapshots are needed to compute drift",
			map[string]interface{}{"table": tableID})
		return
	}

	diff := drift.DiffSnapshots(*from, *to)
	if queryBool(r, "breaking_only") {
		diff = diff.BreakingOnly()
	}
	writeJSON(w, http.StatusOK, diff)
}
