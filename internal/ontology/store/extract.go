package store

import (
	"context"
	"math"
	"strings"
	"time"

	memmodel "github.com/wardenai/warden/internal/memory/model"
	"github.com/wardenai/warden/internal/memory/coretrieval"
	"github.com/wardenai/warden/internal/ontology/model"
)

// buildRelationship constructs an undeprecated relationship record
// between two stored entities with the given type and confidence.
func (s *Store) buildRelationship(a, b StoredEntity, relType string, confidence float64) *model.Relationship {
	now := s.now()
	return &model.Relationship{
		RelID:          RelationshipID(a.ID, relType, b.ID),
		Type:           relType,
		FromEntity:     a.ID,
		ToEntity:       b.ID,
		FromEntityName: a.Resolved.Properties["name"],
		ToEntityName:   b.Resolved.Properties["name"],
		Confidence:     confidence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ExtractCoOccurrence implements spec.md §4.11's co-occurrence method:
// entities whose provenance shares one or more source records produce
// co_mentioned edges, confidence 0.8 at co_occurrence_min_sources or
// more shared records, else 0.5.
func (s *Store) ExtractCoOccurrence(entities []StoredEntity) []*model.Relationship {
	minSources := s.cfg.RelationshipExtraction.CoOccurrenceMinSources
	if minSources <= 0 {
		minSources = 3
	}
	keys := make([]map[string]bool, len(entities))
	for i, e := range entities {
		keys[i] = recordKeys(e.Resolved.ProvenanceChain)
	}

	var rels []*model.Relationship
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			shared := 0
			for k := range keys[i] {
				if keys[j][k] {
					shared++
				}
			}
			if shared == 0 {
				continue
			}
			confidence := 0.5
			if shared >= minSources {
				confidence = 0.8
			}
			rels = append(rels, s.buildRelationship(entities[i], entities[j], "co_mentioned", confidence))
		}
	}
	return rels
}

// ExtractPropertyShared implements spec.md §4.11's property-shared
// method: same canonical address produces a co_located edge (0.6); same
// organization string produces an affiliated edge (0.6).
func (s *Store) ExtractPropertyShared(entities []StoredEntity) []*model.Relationship {
	var rels []*model.Relationship
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			a, b := entities[i], entities[j]
			if addrA := a.Resolved.Properties["address"]; addrA != "" {
				if addrB := b.Resolved.Properties["address"]; addrB != "" {
					if normAddr(addrA) == normAddr(addrB) {
						rels = append(rels, s.buildRelationship(a, b, "co_located", 0.6))
					}
				}
			}
			if orgA := a.Resolved.Properties["organization"]; orgA != "" {
				if orgB := b.Resolved.Properties["organization"]; orgB != "" {
					if strings.EqualFold(strings.TrimSpace(orgA), strings.TrimSpace(orgB)) {
						rels = append(rels, s.buildRelationship(a, b, "affiliated", 0.6))
					}
				}
			}
		}
	}
	return rels
}

// ExtractTemporalProximity implements spec.md §4.11's temporal-proximity
// method over each entity's earliest ingestion time (the only temporal
// signal that survives resolution onto ResolvedEntity.ProvenanceChain):
// entities ingested within temporal_window_days of each other produce a
// temporally_linked edge with confidence max(0.3, 0.4*(1-delta/window)).
func (s *Store) ExtractTemporalProximity(entities []StoredEntity) []*model.Relationship {
	window := s.cfg.RelationshipExtraction.TemporalWindowDays
	if window <= 0 {
		window = 30
	}
	var rels []*model.Relationship
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			a, b := entities[i], entities[j]
			ta, ok1 := earliestIngested(a.Resolved.ProvenanceChain)
			tb, ok2 := earliestIngested(b.Resolved.ProvenanceChain)
			if !ok1 || !ok2 {
				continue
			}
			delta := math.Abs(ta.Sub(tb).Hours() / 24)
			if delta > float64(window) {
				continue
			}
			confidence := 0.4 * (1 - delta/float64(window))
			if confidence < 0.3 {
				confidence = 0.3
			}
			rels = append(rels, s.buildRelationship(a, b, "temporally_linked", confidence))
		}
	}
	return rels
}

func earliestIngested(chain []model.Provenance) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, p := range chain {
		if p.IngestedAt.IsZero() {
			continue
		}
		if !found || p.IngestedAt.Before(earliest) {
			earliest = p.IngestedAt
			found = true
		}
	}
	return earliest, found
}

func normAddr(a string) string {
	return strings.Join(strings.Fields(strings.ToLower(a)), " ")
}

// PromoteMemoryLinks implements spec.md §4.11's memory-link-promotion
// method: Layer-D related_memory_ids between ontology-area documents
// become related_to edges at confidence 0.5.
func (s *Store) PromoteMemoryLinks(ctx context.Context) ([]*model.Relationship, error) {
	docs, err := s.docs.All(ctx, memmodel.AreaOntology)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*memmodel.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	var rels []*model.Relationship
	for _, d := range docs {
		if d.Ontology == nil {
			continue
		}
		for _, relatedID := range d.Lineage.RelatedMemoryIDs {
			other, ok := byID[relatedID]
			if !ok || other.Ontology == nil || other.ID == d.ID {
				continue
			}
			now := s.now()
			rels = append(rels, &model.Relationship{
				RelID:          RelationshipID(d.ID, "related_to", other.ID),
				Type:           "related_to",
				FromEntity:     d.ID,
				ToEntity:       other.ID,
				FromEntityName: d.Ontology.Properties["name"],
				ToEntityName:   other.Ontology.Properties["name"],
				Confidence:     0.5,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		}
	}
	return rels, nil
}

// ExtractCoRetrievalClusters implements spec.md §4.11's co-retrieval
// cluster-promotion method: cluster candidates from the co-retrieval log
// (spec.md §4.8) become co_retrieved edges at confidence
// min(0.8, 0.3 + count*0.05).
func (s *Store) ExtractCoRetrievalClusters(ctx context.Context, colog coretrieval.Log) ([]*model.Relationship, error) {
	if colog == nil {
		return nil, nil
	}
	pairs, err := colog.ClusterCandidates(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := colog.PairCounts(ctx)
	if err != nil {
		return nil, err
	}

	var rels []*model.Relationship
	for _, pair := range pairs {
		count := counts[pair]
		confidence := 0.3 + float64(count)*0.05
		if confidence > 0.8 {
			confidence = 0.8
		}
		now := s.now()
		rels = append(rels, &model.Relationship{
			RelID:      RelationshipID(pair[0], "co_retrieved", pair[1]),
			Type:       "co_retrieved",
			FromEntity: pair[0],
			ToEntity:   pair[1],
			Confidence: confidence,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return rels, nil
}

// PersistAll upserts rels into the store's relationship log, skipping
// the call entirely if no log is configured.
func (s *Store) PersistAll(rels []*model.Relationship) error {
	if s.rels == nil {
		return nil
	}
	for _, rel := range rels {
		if err := s.rels.Upsert(rel); err != nil {
			return err
		}
	}
	return nil
}

// UpdateConfidences implements spec.md §4.11's confidence-update pass:
// for each existing, non-deprecated edge whose endpoints co-occur c
// times in the co-retrieval log, new_conf = min(0.95, old + 0.02*c).
func (s *Store) UpdateConfidences(ctx context.Context, colog coretrieval.Log) (int, error) {
	if s.rels == nil || colog == nil {
		return 0, nil
	}
	counts, err := colog.PairCounts(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, rel := range s.rels.All() {
		if rel.Deprecated {
			continue
		}
		c, ok := lookupCount(counts, rel.FromEntity, rel.ToEntity)
		if !ok || c == 0 {
			continue
		}
		newConf := rel.Confidence + 0.02*float64(c)
		if newConf > 0.95 {
			newConf = 0.95
		}
		if newConf == rel.Confidence {
			continue
		}
		rel.Confidence = newConf
		rel.UpdatedAt = s.now()
		if err := s.rels.Upsert(rel); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func lookupCount(counts map[[2]string]int, a, b string) (int, bool) {
	if a > b {
		a, b = b, a
	}
	c, ok := counts[[2]string{a, b}]
	return c, ok
}
