package matcher

import (
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Neighbor is one reference descriptor found near a query descriptor.
type Neighbor struct {
	AnnotUUID    string  `json:"annot_uuid"`
	FeatureIndex int32   `json:"feature_index"`
	Distance     float32 `json:"distance"`
}

// Result holds the neighbors for every descriptor of one query, in query
// descriptor order. Partial is set when the index holds fewer descriptors
// than were requested per query descriptor; short neighbor lists are
// returned as-is, never padded.
type Result struct {
	Neighbors [][]Neighbor `json:"neighbors"`
	Partial   bool         `json:"partial"`
}

// Query finds the k+kNorm nearest reference descriptors for each query
// descriptor. The first k are match candidates, the trailing kNorm feed
// score normalization. checks bounds the leaf visits per descriptor; larger
// is slower and more accurate, and <=0 picks a default. Neighbors are in
// ascending distance order; ties fall back to aggregation order, which is
// stable for a given reference set but not otherwise meaningful.
func (idx *Index) Query(queryDescs [][]float32, k, kNorm, checks int) (Result, error) {
	if k <= 0 || kNorm < 0 {
		return Result{}, ErrInvalidK
	}
	for _, vec := range queryDescs {
		if len(vec) != idx.dim {
			return Result{}, DimensionMismatchError{Expected: idx.dim, Actual: len(vec)}
		}
	}

	want := k + kNorm
	if checks <= 0 {
		checks = len(idx.trees) * want
	}

	result := Result{
		Neighbors: make([][]Neighbor, len(queryDescs)),
		Partial:   idx.Count() < want,
	}

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for qi := range queryDescs {
		qi := qi
		g.Go(func() error {
			result.Neighbors[qi] = idx.nearest(queryDescs[qi], want, checks)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (idx *Index) nearest(query []float32, want, checks int) []Neighbor {
	candidates := collectCandidates(idx.trees, query, checks)
	if len(candidates) < want {
		// The forest came up short; fall back to scanning everything.
		candidates = make([]int32, len(idx.vectors))
		for i := range candidates {
			candidates[i] = int32(i)
		}
	}

	type scored struct {
		pos  int32
		dist float32
	}
	ranked := make([]scored, len(candidates))
	for i, pos := range candidates {
		ranked[i] = scored{pos: pos, dist: squaredDistance(query, idx.vectors[pos])}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].dist == ranked[j].dist {
			return ranked[i].pos < ranked[j].pos
		}
		return ranked[i].dist < ranked[j].dist
	})

	if want > len(ranked) {
		want = len(ranked)
	}
	neighbors := make([]Neighbor, want)
	for i := 0; i < want; i++ {
		pos := ranked[i].pos
		neighbors[i] = Neighbor{
			AnnotUUID:    idx.owners[pos],
			FeatureIndex: idx.featIdxs[pos],
			Distance:     float32(math.Sqrt(float64(ranked[i].dist))),
		}
	}
	return neighbors
}
