package identity

import (
	"sort"

	"github.com/coder/hnsw"
)

// HNSW parameters for the small per-installation graphs built by Audit.
const (
	auditMaxNeighbors = 16
	auditEfSearch     = 64
)

// Conflict is a pair of samples of different people that are closer than the
// match threshold. Either one could be returned for a face of the other.
type Conflict struct {
	A        KnownEmbedding
	B        KnownEmbedding
	Distance float64
}

// Audit searches the k nearest neighbours of every sample and reports
// cross-label pairs within threshold, closest first. progress, if not nil, is
// called once per searched sample.
func Audit(s *Store, threshold float64, k int, progress func()) []Conflict {
	embeddings := s.Embeddings()
	if len(embeddings) < 2 {
		return nil
	}
	if k <= 0 {
		k = 5
	}

	g := hnsw.NewGraph[int]()
	g.M = auditMaxNeighbors
	g.Ml = 1.0 / float64(auditMaxNeighbors)
	g.EfSearch = auditEfSearch
	g.Distance = hnsw.EuclideanDistance

	vectors := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		vectors[i] = toFloat32(e.Embedding)
		g.Add(hnsw.MakeNode(i, vectors[i]))
	}

	type pair struct{ a, b int }
	seen := make(map[pair]bool)
	var conflicts []Conflict

	for i := range embeddings {
		// +1 because the sample itself is its own nearest neighbour.
		for _, n := range g.Search(vectors[i], k+1) {
			j := n.Key
			if j == i || embeddings[i].Label == embeddings[j].Label {
				continue
			}
			p := pair{min(i, j), max(i, j)}
			if seen[p] {
				continue
			}
			seen[p] = true

			d := float64(hnsw.EuclideanDistance(vectors[i], vectors[j]))
			if d <= threshold {
				conflicts = append(conflicts, Conflict{A: embeddings[p.a], B: embeddings[p.b], Distance: d})
			}
		}
		if progress != nil {
			progress()
		}
	}

	sort.SliceStable(conflicts, func(a, b int) bool {
		return conflicts[a].Distance < conflicts[b].Distance
	})
	return conflicts
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
