// Package model defines the Candidate Entity and Relationship types the
// Entity Resolver (E) and Ontology Store (N) operate on, per spec.md §3.
package model

import "time"

// Provenance records where a candidate or relationship came from.
type Provenance struct {
	SourceID   string
	SourceType string
	RecordID   string
	IngestedAt time.Time
	Confidence float64
}

// RelationshipHint is a relationship a connector observed but could not
// yet resolve to a concrete target entity.
type RelationshipHint struct {
	Type       string
	TargetHint string
}

// Properties is the raw, connector-supplied property bag for a candidate.
type Properties struct {
	Name        string
	Aliases     []string
	Identifiers map[string]string // ein, duns, ticker, ssn, cik, ...
	Address     string
	Dates       []string
}

// Normalized holds the preprocessed form of a candidate's properties,
// attached by the resolver's preprocess stage.
type Normalized struct {
	Name        string
	Aliases     []string
	Address     string
	Dates       []string // ISO YYYY-MM-DD
	Identifiers map[string]string
}

// CandidateEntity is a pre-resolution record produced by a connector.
type CandidateEntity struct {
	EntityType    string
	Properties    Properties
	Relationships []RelationshipHint
	Provenance    Provenance
	Normalized    *Normalized
}

// MergeStep records one union-find merge applied while resolving a group
// of candidates into a single entity.
type MergeStep struct {
	WinnerConfidence float64
	LoserConfidence  float64
	Score            float64
	MergedAt         time.Time
}

// ResolvedEntity is the output of merging one union-find group (size 1
// groups pass through unchanged).
type ResolvedEntity struct {
	EntityType      string
	Properties      map[string]string
	Aliases         []string
	Relationships   []RelationshipHint
	ProvenanceChain []Provenance
	MergeHistory    []MergeStep
}

// Relationship is a typed, confidence-scored, deprecatable edge, stored
// append-only in a JSONL log (spec.md §3, §4.11).
type Relationship struct {
	RelID          string            `json:"rel_id"`
	Type           string            `json:"type"`
	FromEntity     string            `json:"from_entity"`
	ToEntity       string            `json:"to_entity"`
	FromEntityName string            `json:"from_entity_name"`
	ToEntityName   string            `json:"to_entity_name"`
	Properties     map[string]string `json:"properties,omitempty"`
	Confidence     float64           `json:"confidence"`
	Provenance     Provenance        `json:"provenance"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Deprecated     bool              `json:"deprecated"`
}
