package schemarepo

import (
	"context"
	"sort"
	"strings"

	"github.com/faucetdb/schemaguard/internal/model"
)

// Recommendation is a candidate target table for a file schema.
type Recommendation struct {
	TableID string  `json:"table_id"`
	Score   float64 `json:"score"`
}

// Recommend ranks reference tables by the overlap of their column names with
// fs (Jaccard index over case-folded names). Tables with no overlap are left
// out. Ties are broken by table name. max <= 0 returns every candidate.
func (r *Repository) Recommend(ctx context.Context, fs *model.FileSchema, max int) ([]Recommendation, error) {
	schemas, err := r.ListAllSchemas(ctx)
	if err != nil {
		return nil, err
	}
	return Rank(fs, schemas, max), nil
}

// Rank scores schemas against fs. See Recommend.
func Rank(fs *model.FileSchema, schemas map[string]*model.TableSchema, max int) []Recommendation {
	fileCols := foldSet(fs.ColumnNames())

	recs := make([]Recommendation, 0)
	for name, ts := range schemas {
		score := jaccard(fileCols, foldSet(ts.ColumnNames()))
		if score > 0 {
			recs = append(recs, Recommendation{TableID: name, Score: score})
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].TableID < recs[j].TableID
	})

	if max > 0 && len(recs) > max {
		recs = recs[:max]
	}
	return recs
}

func foldSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
