// Package model defines the Memory Document (spec.md §3): the four-axis
// classification, lineage record, and optional ontology link that the
// Classifier (M), Maintenance (D), Recall Filter (F), Entity Resolver (E),
// and Ontology Store (N) all operate on.
package model

import "time"

// Area is the storage partition a memory belongs to.
type Area string

const (
	AreaMain       Area = "main"
	AreaFragments  Area = "fragments"
	AreaSolutions  Area = "solutions"
	AreaOntology   Area = "ontology"
)

// Validity is the first classification axis. Deprecated is terminal.
type Validity string

const (
	ValidityConfirmed  Validity = "confirmed"
	ValidityInferred   Validity = "inferred"
	ValidityDeprecated Validity = "deprecated"
)

// Relevance is the second classification axis.
type Relevance string

const (
	RelevanceActive  Relevance = "active"
	RelevanceDormant Relevance = "dormant"
)

// Utility is the third classification axis.
type Utility string

const (
	UtilityLoadBearing Utility = "load_bearing"
	UtilityTactical    Utility = "tactical"
	UtilityArchived    Utility = "archived"
)

// Rank orders utility for the recall filter's sort and the conflict
// resolver's tie-breaking, higher first.
func (u Utility) Rank() int {
	switch u {
	case UtilityLoadBearing:
		return 2
	case UtilityTactical:
		return 1
	default:
		return 0
	}
}

// Source is the fourth classification axis.
type Source string

const (
	SourceUserAsserted     Source = "user_asserted"
	SourceAgentInferred    Source = "agent_inferred"
	SourceExternalRetrieved Source = "external_retrieved"
	SourceBookshelfDocument Source = "bookshelf_document"
)

// Rank orders source precedence for conflict resolution (§4.7 resolution
// step 1), higher wins.
func (s Source) Rank() int {
	switch s {
	case SourceUserAsserted:
		return 3
	case SourceExternalRetrieved:
		return 2
	case SourceAgentInferred:
		return 1
	default: // bookshelf_document
		return 0
	}
}

// Rank orders validity precedence for conflict resolution step 2.
func (v Validity) Rank() int {
	switch v {
	case ValidityConfirmed:
		return 2
	case ValidityInferred:
		return 1
	default:
		return 0
	}
}

// Classification is the four-axis label attached to every memory.
type Classification struct {
	Validity  Validity
	Relevance Relevance
	Utility   Utility
	Source    Source
}

// Classified reports whether this document has been through the
// Classifier at least once.
func (c Classification) Classified() bool {
	return c.Validity != "" && c.Source != ""
}

// Lineage is a memory's provenance and access history. Relations are
// stored by ID only (spec.md §9: "a memory never holds a direct handle to
// another") to avoid cyclic references between supersedes/superseded_by
// and related_memory_ids.
type Lineage struct {
	CreatedAt         time.Time
	CreatedByRole     string
	BSTDomain         string
	ClassifiedAtCycle int
	Supersedes        []string
	SupersededBy      []string
	AccessCount       int
	LastAccessed      time.Time
	RelatedMemoryIDs  []string
	DormancyCandidate bool
	DeprecatedAt      *time.Time
	DeprecatedReason  string
}

// OntologyLink attaches entity identity to a memory whose Area is
// AreaOntology.
type OntologyLink struct {
	EntityID        string
	EntityType      string
	Properties      map[string]string
	Aliases         []string
	ProvenanceChain []string
	MergeHistory    []MergeEvent
}

// MergeEvent records one union-find merge step applied to an entity.
// Summary carries the regenerated entity summary at the time of the
// merge, so the event is self-describing even once a superseded side's
// own memory document has been deleted (spec.md's original regenerates
// the summary for both sides of a merge, not just the surviving one).
type MergeEvent struct {
	LoserEntityID string
	MergedAt      time.Time
	Score         float64
	Summary       string
}

// Document is the full in-memory representation of a Memory Document.
type Document struct {
	ID             string
	Text           string
	Area           Area
	Timestamp      time.Time
	Classification Classification
	Lineage        Lineage
	Ontology       *OntologyLink
}

// AddSupersedes records that d now supersedes loserID, promoting the
// field to a list on repeat per spec.md §4.7.
func (d *Document) AddSupersedes(loserID string) {
	d.Lineage.Supersedes = appendUnique(d.Lineage.Supersedes, loserID)
}

// Deprecate marks d as superseded by winnerID. validity=deprecated is
// terminal (spec.md §3 invariant).
func (d *Document) Deprecate(winnerID, reason string, at time.Time) {
	d.Classification.Validity = ValidityDeprecated
	d.Lineage.SupersededBy = appendUnique(d.Lineage.SupersededBy, winnerID)
	d.Lineage.DeprecatedReason = reason
	t := at
	d.Lineage.DeprecatedAt = &t
}

// Touch increments access_count and bumps last_accessed; access_count is
// monotonic non-decreasing per spec.md §8.
func (d *Document) Touch(at time.Time) {
	d.Lineage.AccessCount++
	d.Lineage.LastAccessed = at
}

// LinkRelated adds otherID to related_memory_ids, capped at max, with no
// duplicates.
func (d *Document) LinkRelated(otherID string, max int) {
	if containsString(d.Lineage.RelatedMemoryIDs, otherID) {
		return
	}
	if max > 0 && len(d.Lineage.RelatedMemoryIDs) >= max {
		return
	}
	d.Lineage.RelatedMemoryIDs = append(d.Lineage.RelatedMemoryIDs, otherID)
}

func appendUnique(list []string, v string) []string {
	if containsString(list, v) {
		return list
	}
	return append(list, v)
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
