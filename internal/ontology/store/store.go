// Package store implements the Ontology Store & Relationship Extractor
// (N, spec.md §4.11): entity persistence as classified memory documents,
// an append-only relationships log, the five confidence-scored
// extraction methods, a confidence-update pass, and the entity-aware
// query that injects a `# Ontology Context` block for a turn. Original
// code built directly from spec.md's pipeline description (no pack repo
// implements an ontology store); persistence follows the same
// Store-over-vectorindex idiom as internal/memory/model.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	memmodel "github.com/wardenai/warden/internal/memory/model"
	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/ontology/model"
	"github.com/wardenai/warden/internal/ontology/resolver"
	"github.com/wardenai/warden/internal/telemetry"
)

// Store persists resolved entities as classified memory documents and
// owns the relationships log the extraction methods append to.
type Store struct {
	cfg  config.OntologyConfig
	docs *memmodel.Store
	rels *RelationshipLog
	log  telemetry.Logger
	now  func() time.Time

	ingestion *IngestionQueue
	audit     *ResolutionAuditLog
	review    *ReviewQueue
}

// New constructs a Store. rels may be nil if relationship persistence
// isn't needed (e.g. entity-storage-only tests). The ingestion queue,
// resolution audit log, and review queue are wired in separately via
// SetIngestionQueue/SetAuditLog/SetReviewQueue, matching the
// registry.Registry.SetStore pattern used for the Task Registry's own
// optional durable mirror: a Store built with none of the three behaves
// exactly as before, resolving only the candidates RunResolution is
// called with directly.
func New(cfg config.OntologyConfig, docs *memmodel.Store, rels *RelationshipLog, log telemetry.Logger) *Store {
	if log == nil {
		log = telemetry.NoopLogger{}
	}
	return &Store{cfg: cfg, docs: docs, rels: rels, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// SetIngestionQueue wires the durable ingestion_queue.jsonl queue
// RunResolution drains each cycle.
func (s *Store) SetIngestionQueue(q *IngestionQueue) { s.ingestion = q }

// SetAuditLog wires the resolution_audit.jsonl log RunResolution appends
// every scored pair to.
func (s *Store) SetAuditLog(l *ResolutionAuditLog) { s.audit = l }

// SetReviewQueue wires the review_queue.jsonl log RunResolution appends
// flagged pairs to.
func (s *Store) SetReviewQueue(q *ReviewQueue) { s.review = q }

// EntityID computes spec.md §4.11's stable entity ID:
// ent_<sha256(entity_type:normalized_name:source_id:record_id)[:12]>.
func EntityID(entityType, normalizedName, sourceID, recordID string) string {
	sum := sha256.Sum256([]byte(entityType + ":" + normalizedName + ":" + sourceID + ":" + recordID))
	return "ent_" + hex.EncodeToString(sum[:])[:12]
}

// StoredEntity pairs a persisted document's stable ID with the resolved
// entity it was built from, for extraction methods that need both the
// ID used in edges and the underlying property/provenance data.
type StoredEntity struct {
	ID       string
	Resolved *model.ResolvedEntity
}

// StoreEntity persists resolved as a classified memory document with
// area=="ontology". Calling it again for the same (entity_type,
// normalized_name, source_id, record_id) yields one memory document,
// not two: Document IDs are stable, and model.Store.Put deletes-by-ID
// before reinserting (spec.md's "update = delete-by-filter + insert").
func (s *Store) StoreEntity(ctx context.Context, resolved *model.ResolvedEntity) (StoredEntity, error) {
	if len(resolved.ProvenanceChain) == 0 {
		return StoredEntity{}, fmt.Errorf("resolved entity %q has no provenance", resolved.Properties["name"])
	}
	defining := resolved.ProvenanceChain[0]
	normalizedName := resolver.NormalizeName(resolved.Properties["name"])
	entityID := EntityID(resolved.EntityType, normalizedName, defining.SourceID, defining.RecordID)

	summary := buildSummary(entityID, resolved, nil)

	provenanceIDs := make([]string, 0, len(resolved.ProvenanceChain))
	for _, p := range resolved.ProvenanceChain {
		provenanceIDs = append(provenanceIDs, p.RecordID)
	}
	mergeEvents := make([]memmodel.MergeEvent, 0, len(resolved.MergeHistory))
	for _, m := range resolved.MergeHistory {
		mergeEvents = append(mergeEvents, memmodel.MergeEvent{
			MergedAt: m.MergedAt,
			Score:    m.Score,
			Summary:  summary,
		})
	}

	doc := &memmodel.Document{
		ID:        entityID,
		Text:      summary,
		Area:      memmodel.AreaOntology,
		Timestamp: s.now(),
		Classification: memmodel.Classification{
			Validity:  memmodel.ValidityConfirmed,
			Relevance: memmodel.RelevanceActive,
			Utility:   memmodel.UtilityTactical,
			Source:    memmodel.SourceAgentInferred,
		},
		Lineage: memmodel.Lineage{CreatedAt: s.now()},
		Ontology: &memmodel.OntologyLink{
			EntityID:        entityID,
			EntityType:      resolved.EntityType,
			Properties:      resolved.Properties,
			Aliases:         resolved.Aliases,
			ProvenanceChain: provenanceIDs,
			MergeHistory:    mergeEvents,
		},
	}
	if _, err := s.docs.Put(ctx, doc); err != nil {
		return StoredEntity{}, fmt.Errorf("storing entity %q: %w", entityID, err)
	}
	return StoredEntity{ID: entityID, Resolved: resolved}, nil
}

// UpdateEntity re-persists resolved under its existing entity ID. It is
// the same operation as StoreEntity (Put always deletes-by-ID before
// reinserting); the separate name documents spec.md's update path.
func (s *Store) UpdateEntity(ctx context.Context, resolved *model.ResolvedEntity) (StoredEntity, error) {
	return s.StoreEntity(ctx, resolved)
}

// RebuildSummary regenerates an already-stored entity's summary text
// (e.g. after new relationships have been extracted and its top-k
// connections have changed) and re-persists it under the same ID.
func (s *Store) RebuildSummary(ctx context.Context, entityID string) error {
	doc, err := s.docs.Get(ctx, entityID)
	if err != nil {
		return err
	}
	if doc == nil || doc.Ontology == nil {
		return fmt.Errorf("no ontology document for entity %q", entityID)
	}
	connections := s.topConnections(entityID, 3)
	doc.Text = buildSummary(entityID, &model.ResolvedEntity{
		EntityType: doc.Ontology.EntityType,
		Properties: doc.Ontology.Properties,
		Aliases:    doc.Ontology.Aliases,
	}, connections)
	_, err = s.docs.Put(ctx, doc)
	return err
}

// topConnections returns up to k neighbor display names for entityID,
// drawn from the relationships log, highest confidence first.
func (s *Store) topConnections(entityID string, k int) []string {
	if s.rels == nil {
		return nil
	}
	type edge struct {
		name string
		conf float64
	}
	var edges []edge
	for _, r := range s.rels.All() {
		if r.Deprecated {
			continue
		}
		switch entityID {
		case r.FromEntity:
			edges = append(edges, edge{name: r.ToEntityName, conf: r.Confidence})
		case r.ToEntity:
			edges = append(edges, edge{name: r.FromEntityName, conf: r.Confidence})
		}
	}
	for i := 0; i < len(edges); i++ {
		for j := i + 1; j < len(edges); j++ {
			if edges[j].conf > edges[i].conf {
				edges[i], edges[j] = edges[j], edges[i]
			}
		}
	}
	out := make([]string, 0, k)
	for _, e := range edges {
		if e.name == "" {
			continue
		}
		if len(out) >= k {
			break
		}
		out = append(out, e.name)
	}
	return out
}

const summaryMaxLen = 500

// buildSummary renders spec.md §4.11's page-content template: "name
// (type) — key props — aliases — sources — top-k connections",
// truncated to summaryMaxLen.
func buildSummary(entityID string, resolved *model.ResolvedEntity, connections []string) string {
	name := resolved.Properties["name"]
	if name == "" {
		name = entityID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", name, resolved.EntityType)

	var props []string
	for k, v := range resolved.Properties {
		if k == "name" || v == "" {
			continue
		}
		props = append(props, k+"="+v)
	}
	if len(props) > 0 {
		b.WriteString(" — ")
		b.WriteString(strings.Join(props, ", "))
	}
	if len(resolved.Aliases) > 0 {
		b.WriteString(" — aka ")
		b.WriteString(strings.Join(resolved.Aliases, ", "))
	}
	var sources []string
	for _, p := range resolved.ProvenanceChain {
		if p.SourceID != "" {
			sources = append(sources, p.SourceID)
		}
	}
	if len(sources) > 0 {
		b.WriteString(" — sources: ")
		b.WriteString(strings.Join(sources, ", "))
	}
	if len(connections) > 0 {
		b.WriteString(" — connected to ")
		b.WriteString(strings.Join(connections, ", "))
	}
	return truncate(b.String(), summaryMaxLen)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// recordKeys returns the set of distinct (source_id:record_id) pairs a
// resolved entity's provenance chain touches.
func recordKeys(chain []model.Provenance) map[string]bool {
	out := map[string]bool{}
	for _, p := range chain {
		if p.RecordID == "" {
			continue
		}
		out[p.SourceID+":"+p.RecordID] = true
	}
	return out
}
