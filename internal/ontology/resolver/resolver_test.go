package resolver_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/ontology/model"
	"github.com/wardenai/warden/internal/ontology/resolver"
)

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

// TestResolve_MergesOnSharedIdentifier implements spec.md §8 scenario 5.
func TestResolve_MergesOnSharedIdentifier(t *testing.T) {
	cands := []*model.CandidateEntity{
		{
			EntityType: "person",
			Properties: model.Properties{
				Name:        "John A. Smith",
				Identifiers: map[string]string{"ein": "12-3456789"},
				Dates:       []string{"1970-03-02"},
			},
			Provenance: model.Provenance{RecordID: "r1", Confidence: 0.9},
		},
		{
			EntityType: "person",
			Properties: model.Properties{
				Name:        "JOHN SMITH",
				Identifiers: map[string]string{"ein": "12-3456789"},
				Dates:       []string{"03/02/1970"},
			},
			Provenance: model.Provenance{RecordID: "r2", Confidence: 0.8},
		},
	}

	cfg := config.Default().Ontology
	res := resolver.Resolve(cands, cfg, fixedNow)

	require.Len(t, res.Resolved, 1)
	entity := res.Resolved[0]
	assert.Contains(t, entity.Aliases, "John A. Smith")
	assert.Contains(t, entity.Aliases, "JOHN SMITH")
	assert.Len(t, entity.ProvenanceChain, 2)
	assert.Empty(t, res.Flagged)
}

func TestResolve_DistinctBelowReviewThreshold(t *testing.T) {
	cands := []*model.CandidateEntity{
		{EntityType: "org", Properties: model.Properties{Name: "Acme Corp"}, Provenance: model.Provenance{RecordID: "a"}},
		{EntityType: "org", Properties: model.Properties{Name: "Zephyr Holdings"}, Provenance: model.Provenance{RecordID: "b"}},
	}
	cfg := config.Default().Ontology
	res := resolver.Resolve(cands, cfg, fixedNow)
	// Names share no blocking key (different prefix, different phonetic),
	// so they are never even scored against each other.
	assert.Len(t, res.Resolved, 2)
	assert.Empty(t, res.Audit)
}

// TestPreprocess_Idempotent exercises spec.md §8's idempotence property:
// re-preprocessing an already-normalized candidate is a no-op.
func TestPreprocess_Idempotent(t *testing.T) {
	c := &model.CandidateEntity{
		EntityType: "org",
		Properties: model.Properties{Name: "Acme Corp", Address: "100 Main St", Dates: []string{"2020-01-01"}},
	}
	resolver.Preprocess(c)
	first := *c.Normalized
	resolver.Preprocess(c)
	second := *c.Normalized
	assert.Equal(t, first, second)
}

func TestUnionFind_GroupConsistency(t *testing.T) {
	cands := []*model.CandidateEntity{
		{EntityType: "org", Properties: model.Properties{Name: "Acme Corp", Identifiers: map[string]string{"ein": "1"}}, Provenance: model.Provenance{RecordID: "a", Confidence: 0.5}},
		{EntityType: "org", Properties: model.Properties{Name: "ACME CORP", Identifiers: map[string]string{"ein": "1"}}, Provenance: model.Provenance{RecordID: "b", Confidence: 0.6}},
		{EntityType: "org", Properties: model.Properties{Name: "Acme Corp.", Identifiers: map[string]string{"ein": "1"}}, Provenance: model.Provenance{RecordID: "c", Confidence: 0.9}},
	}
	cfg := config.Default().Ontology
	res := resolver.Resolve(cands, cfg, fixedNow)
	require.Len(t, res.Resolved, 1)
	assert.Len(t, res.Resolved[0].ProvenanceChain, 3)
}
