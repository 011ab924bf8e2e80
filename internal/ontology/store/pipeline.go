package store

import (
	"context"
	"fmt"
	"time"

	"github.com/wardenai/warden/internal/memory/coretrieval"
	"github.com/wardenai/warden/internal/ontology/model"
	"github.com/wardenai/warden/internal/ontology/resolver"
)

// ResolutionResult summarizes one end-to-end Entity Resolver + Ontology
// Store cycle (spec.md §2's "E, N execute per-turn... as pre- and
// post-turn hooks": this is the post-turn hook a caller runs after a
// batch of CandidateEntities has accumulated in the ingestion queue).
type ResolutionResult struct {
	resolver.Result
	Stored        []StoredEntity
	Relationships []*model.Relationship
}

// RunResolution resolves cands (spec.md §4.10), persists every resulting
// entity (spec.md §4.11's entity storage), runs the co-occurrence,
// property-shared, temporal-proximity, and memory-link extraction methods
// over the freshly stored batch and — if colog is non-nil — the fifth,
// co-retrieval cluster-promotion, persists the resulting relationships,
// and, again only with a non-nil colog, runs the confidence-update pass. Per-candidate and per-entity errors are
// non-fatal: the batch continues and errors accumulate on the result,
// matching spec.md §7's degrade-gracefully error model.
//
// If an ingestion queue is wired (SetIngestionQueue), cands are first
// enqueued there and the batch actually resolved is every candidate the
// queue still has unresolved — not just the ones passed in this call —
// so a cycle also drains anything a previous, interrupted cycle never
// got to. Step 6 of spec.md §4.10 is then carried out against whichever
// logs are wired: audit entries to the resolution audit log, flagged
// pairs to the review queue, and the resolved batch marked processed in
// the ingestion queue.
func (s *Store) RunResolution(ctx context.Context, cands []*model.CandidateEntity, colog coretrieval.Log, now func() time.Time) (ResolutionResult, error) {
	if s.ingestion != nil {
		for _, c := range cands {
			if err := s.ingestion.Enqueue(c); err != nil {
				s.log.Warn(ctx, "enqueueing candidate entity", "error", err)
			}
		}
		cands = s.ingestion.Unresolved()
	}

	res := resolver.Resolve(cands, s.cfg, now)
	out := ResolutionResult{Result: res}

	stored := make([]StoredEntity, 0, len(res.Resolved))
	for _, entity := range res.Resolved {
		se, err := s.StoreEntity(ctx, entity)
		if err != nil {
			out.Errors++
			out.ErrorDetails = append(out.ErrorDetails, fmt.Errorf("storing resolved entity: %w", err))
			continue
		}
		stored = append(stored, se)
	}
	out.Stored = stored

	var rels []*model.Relationship
	rels = append(rels, s.ExtractCoOccurrence(stored)...)
	rels = append(rels, s.ExtractPropertyShared(stored)...)
	rels = append(rels, s.ExtractTemporalProximity(stored)...)
	if promoted, err := s.PromoteMemoryLinks(ctx); err == nil {
		rels = append(rels, promoted...)
	} else {
		out.Errors++
		out.ErrorDetails = append(out.ErrorDetails, fmt.Errorf("promoting memory links: %w", err))
	}
	if colog != nil {
		if promoted, err := s.ExtractCoRetrievalClusters(ctx, colog); err == nil {
			rels = append(rels, promoted...)
		} else {
			out.Errors++
			out.ErrorDetails = append(out.ErrorDetails, fmt.Errorf("promoting co-retrieval clusters: %w", err))
		}
	}

	if err := s.PersistAll(rels); err != nil {
		out.Errors++
		out.ErrorDetails = append(out.ErrorDetails, fmt.Errorf("persisting relationships: %w", err))
	}
	out.Relationships = rels

	if colog != nil {
		if _, err := s.UpdateConfidences(ctx, colog); err != nil {
			out.Errors++
			out.ErrorDetails = append(out.ErrorDetails, fmt.Errorf("updating relationship confidences: %w", err))
		}
	}

	if s.cfg.Maintenance.RebuildMergedSummaries {
		for _, se := range stored {
			if len(se.Resolved.MergeHistory) == 0 {
				continue
			}
			if err := s.RebuildSummary(ctx, se.ID); err != nil {
				s.log.Warn(ctx, "rebuilding ontology summary", "entity_id", se.ID, "error", err)
			}
		}
	}

	if err := s.audit.Append(res.Audit); err != nil {
		out.Errors++
		out.ErrorDetails = append(out.ErrorDetails, fmt.Errorf("appending resolution audit: %w", err))
	}
	if err := s.review.Append(res.Flagged); err != nil {
		out.Errors++
		out.ErrorDetails = append(out.ErrorDetails, fmt.Errorf("appending review queue: %w", err))
	}
	if s.ingestion != nil {
		if err := s.ingestion.MarkResolved(cands); err != nil {
			out.Errors++
			out.ErrorDetails = append(out.ErrorDetails, fmt.Errorf("marking ingestion queue resolved: %w", err))
		}
	}

	return out, nil
}
