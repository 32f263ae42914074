// Package search implements candidate generation, Reciprocal Rank Fusion,
// and result assembly for the three search modes.
package search

import "sort"

// DefaultRRFConstant is the fusion smoothing constant k.
const DefaultRRFConstant = 60

// FusedRank is one chunk's fused ranking after combining a lexical and a
// semantic ranked list.
type FusedRank struct {
	ChunkID      string
	Score        float64
	LexicalRank  *int // 1-indexed, nil if absent from the lexical list
	SemanticRank *int // 1-indexed, nil if absent from the semantic list
}

// Fuser combines two ranked chunk_id lists with Reciprocal Rank Fusion.
type Fuser struct {
	K int
}

// NewFuser returns a Fuser using the default k=60.
func NewFuser() *Fuser {
	return &Fuser{K: DefaultRRFConstant}
}

// Fuse combines lexical and semantic ranked chunk_id lists (rank 1 = best)
// into a single list ordered descending by fused score:
// score(d) = Σ 1/(k+rank_i) over the lists d appears in; a chunk absent
// from a list contributes 0 for it. Ties break by the chunk_id that first
// appeared in lexical, then in semantic, then lexicographically.
func (f *Fuser) Fuse(lexical, semantic []string) []FusedRank {
	k := f.K
	if k <= 0 {
		k = DefaultRRFConstant
	}

	byID := make(map[string]*FusedRank)

	for i, id := range lexical {
		rank := i + 1
		r := getOrCreate(byID, id)
		r.Score += 1.0 / float64(k+rank)
		r.LexicalRank = intPtr(rank)
	}
	for i, id := range semantic {
		rank := i + 1
		r := getOrCreate(byID, id)
		r.Score += 1.0 / float64(k+rank)
		r.SemanticRank = intPtr(rank)
	}

	results := make([]FusedRank, 0, len(byID))
	for _, r := range byID {
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		al, bl := rankOrInf(a.LexicalRank), rankOrInf(b.LexicalRank)
		if al != bl {
			return al < bl
		}
		as, bs := rankOrInf(a.SemanticRank), rankOrInf(b.SemanticRank)
		if as != bs {
			return as < bs
		}
		return a.ChunkID < b.ChunkID
	})

	return results
}

func getOrCreate(m map[string]*FusedRank, id string) *FusedRank {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedRank{ChunkID: id}
	m[id] = r
	return r
}

func intPtr(v int) *int { return &v }

func rankOrInf(r *int) int {
	if r == nil {
		return int(^uint(0) >> 1) // max int
	}
	return *r
}
