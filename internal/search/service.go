package search

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rifflux/rifflux/internal/embed"
	"github.com/rifflux/rifflux/internal/errs"
	"github.com/rifflux/rifflux/internal/store"
)

// Mode selects which modality (or modalities) a search runs.
type Mode string

const (
	ModeLexical  Mode = "lexical"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

const (
	DefaultTopK = 10
	MinTopK     = 1
	MaxTopK     = 100

	// oversampleFactor is how far beyond top_k each modality fetches
	// candidates, so fusion has enough material to re-rank.
	oversampleFactor = 2
)

// ScoreBreakdown carries the mode-specific score fields for one result.
// Only the fields relevant to the search's mode are populated; lexical
// mode serializes as {bm25}, semantic as {cosine}, and hybrid as
// {rrf, lexical_rank, semantic_rank}, with either rank
// present only when that modality actually surfaced the hit.
type ScoreBreakdown struct {
	BM25         *float64 `json:"bm25,omitempty"`
	Cosine       *float64 `json:"cosine,omitempty"`
	RRF          *float64 `json:"rrf,omitempty"`
	LexicalRank  *int     `json:"lexical_rank,omitempty"`
	SemanticRank *int     `json:"semantic_rank,omitempty"`
}

// Result is one assembled search hit.
type Result struct {
	ChunkID        string
	Path           string
	HeadingPath    string
	ChunkIndex     int
	Content        string
	ScoreBreakdown ScoreBreakdown
}

// Options configures a Search call.
type Options struct {
	TopK int
	Mode Mode
}

// withDefaults fills in an unset TopK (zero) and an unset Mode. It does
// not validate an explicitly given out-of-range TopK; Search rejects
// that itself so a bad top_k is a reported error, not a silent clamp.
func (o Options) withDefaults() Options {
	if o.TopK == 0 {
		o.TopK = DefaultTopK
	}
	if o.Mode == "" {
		o.Mode = ModeHybrid
	}
	return o
}

// Service dispatches search across lexical and semantic candidate
// generation and assembles mode-appropriate results.
type Service struct {
	Store    *store.Store
	Embedder embed.Embedder
	Fuser    *Fuser
}

// New constructs a Service over s, optionally backed by an embedder for
// semantic/hybrid modes.
func New(s *store.Store, e embed.Embedder) *Service {
	return &Service{Store: s, Embedder: e, Fuser: NewFuser()}
}

// Search runs opts.Mode against query and returns at most opts.TopK
// results. It never raises on an empty corpus, empty query, unavailable
// embedder, or modality-specific emptiness; those degrade to an empty
// result list.
func (s *Service) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if opts.TopK != 0 && (opts.TopK < MinTopK || opts.TopK > MaxTopK) {
		return nil, errs.New(errs.InvalidInput, "top_k out of range: must be between 1 and 100")
	}
	opts = opts.withDefaults()
	if opts.Mode != ModeLexical && opts.Mode != ModeSemantic && opts.Mode != ModeHybrid {
		return nil, errs.New(errs.InvalidInput, "unknown search mode: "+string(opts.Mode))
	}

	fetchLimit := opts.TopK * oversampleFactor

	switch opts.Mode {
	case ModeLexical:
		hits, err := s.Store.SearchLexical(ctx, query, fetchLimit)
		if err != nil {
			return nil, err
		}
		return truncate(assembleLexical(hits), opts.TopK), nil

	case ModeSemantic:
		hits, err := s.semanticSearch(ctx, query, fetchLimit)
		if err != nil {
			return nil, err
		}
		return truncate(assembleSemantic(hits), opts.TopK), nil

	default: // ModeHybrid
		return s.hybridSearch(ctx, query, opts.TopK, fetchLimit)
	}
}

// hybridSearch runs both modalities concurrently and fuses them with RRF.
func (s *Service) hybridSearch(ctx context.Context, query string, topK, fetchLimit int) ([]Result, error) {
	var lexHits []store.LexicalHit
	var semHits []semanticHit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.Store.SearchLexical(gctx, query, fetchLimit)
		if err != nil {
			return err
		}
		lexHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := s.semanticSearch(gctx, query, fetchLimit)
		if err != nil {
			return err
		}
		semHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lexIDs := make([]string, len(lexHits))
	rowsByID := map[string]store.Chunk{}
	for i, h := range lexHits {
		lexIDs[i] = h.Chunk.ChunkID
		rowsByID[h.Chunk.ChunkID] = h.Chunk
	}
	semIDs := make([]string, len(semHits))
	for i, h := range semHits {
		semIDs[i] = h.chunk.ChunkID
		if _, ok := rowsByID[h.chunk.ChunkID]; !ok {
			rowsByID[h.chunk.ChunkID] = h.chunk
		}
	}

	fused := s.Fuser.Fuse(lexIDs, semIDs)

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		row, ok := rowsByID[f.ChunkID]
		if !ok {
			continue
		}
		score := f.Score
		results = append(results, Result{
			ChunkID:     row.ChunkID,
			Path:        row.Path,
			HeadingPath: row.HeadingPath,
			ChunkIndex:  row.ChunkIndex,
			Content:     row.Content,
			ScoreBreakdown: ScoreBreakdown{
				RRF:          &score,
				LexicalRank:  f.LexicalRank,
				SemanticRank: f.SemanticRank,
			},
		})
	}
	return truncate(results, topK), nil
}

// semanticHit pairs a stored chunk with its cosine similarity to the query.
type semanticHit struct {
	chunk store.Chunk
	score float64
}

// semanticSearch embeds query and scans every stored embedding for an
// exact cosine similarity. If the embedder is nil or unavailable, or
// embedding the query fails, it returns an empty result rather than an
// error.
func (s *Service) semanticSearch(ctx context.Context, query string, limit int) ([]semanticHit, error) {
	if s.Embedder == nil || !s.Embedder.Available(ctx) {
		return nil, nil
	}

	queryVec, err := s.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, nil // no query embedding: the semantic branch is empty
	}

	all, err := s.Store.AllEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	scored := make([]semanticHit, 0, len(all))
	for _, e := range all {
		chunk, err := s.Store.GetChunk(ctx, e.ChunkID)
		if err != nil {
			continue // orphaned embedding row; skip rather than fail the search
		}
		sim := embed.CosineSimilarity(queryVec, e.Vector)
		scored = append(scored, semanticHit{chunk: *chunk, score: sim})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].chunk.ChunkID < scored[j].chunk.ChunkID
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func assembleLexical(hits []store.LexicalHit) []Result {
	results := make([]Result, len(hits))
	for i, h := range hits {
		score := h.Score
		results[i] = Result{
			ChunkID:        h.Chunk.ChunkID,
			Path:           h.Chunk.Path,
			HeadingPath:    h.Chunk.HeadingPath,
			ChunkIndex:     h.Chunk.ChunkIndex,
			Content:        h.Chunk.Content,
			ScoreBreakdown: ScoreBreakdown{BM25: &score},
		}
	}
	return results
}

func assembleSemantic(hits []semanticHit) []Result {
	results := make([]Result, len(hits))
	for i, h := range hits {
		score := h.score
		results[i] = Result{
			ChunkID:        h.chunk.ChunkID,
			Path:           h.chunk.Path,
			HeadingPath:    h.chunk.HeadingPath,
			ChunkIndex:     h.chunk.ChunkIndex,
			Content:        h.chunk.Content,
			ScoreBreakdown: ScoreBreakdown{Cosine: &score},
		}
	}
	return results
}

func truncate(results []Result, limit int) []Result {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}
