package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenai/warden/internal/config"
	memmodel "github.com/wardenai/warden/internal/memory/model"
	"github.com/wardenai/warden/internal/memory/vectorindex"
	"github.com/wardenai/warden/internal/ontology/model"
	"github.com/wardenai/warden/internal/ontology/store"
)

func mergingCandidates() []*model.CandidateEntity {
	return []*model.CandidateEntity{
		{
			EntityType: "person",
			Properties: model.Properties{
				Name:        "John A. Smith",
				Identifiers: map[string]string{"ein": "12-3456789"},
				Dates:       []string{"1970-03-02"},
			},
			Provenance: model.Provenance{SourceID: "crm", RecordID: "r1", Confidence: 0.9, IngestedAt: fixedNow()},
		},
		{
			EntityType: "person",
			Properties: model.Properties{
				Name:        "JOHN SMITH",
				Identifiers: map[string]string{"ein": "12-3456789"},
				Dates:       []string{"03/02/1970"},
			},
			Provenance: model.Provenance{SourceID: "crm", RecordID: "r2", Confidence: 0.8, IngestedAt: fixedNow()},
		},
	}
}

// TestRunResolution_PersistsIngestionAuditAndReviewLogs wires all three
// JSONL logs spec.md §4.10 step 6 and §6 name and checks RunResolution
// drains the queue, resolves the merging pair, and marks it processed.
func TestRunResolution_PersistsIngestionAuditAndReviewLogs(t *testing.T) {
	dir := t.TempDir()
	ingestion, err := store.OpenIngestionQueue(filepath.Join(dir, "ingestion_queue.jsonl"))
	require.NoError(t, err)
	audit := store.OpenResolutionAuditLog(filepath.Join(dir, "resolution_audit.jsonl"))
	review := store.OpenReviewQueue(filepath.Join(dir, "review_queue.jsonl"))

	docs := memmodel.NewStore(vectorindex.NewInMemory())
	s := store.New(config.Default().Ontology, docs, store.NewInMemoryRelationshipLog(), nil)
	s.SetIngestionQueue(ingestion)
	s.SetAuditLog(audit)
	s.SetReviewQueue(review)

	res, err := s.RunResolution(context.Background(), mergingCandidates(), nil, fixedNow)
	require.NoError(t, err)
	require.Len(t, res.Resolved, 1)
	require.Len(t, res.Stored, 1)
	assert.NotEmpty(t, res.Audit)

	assert.Equal(t, 2, countLines(t, filepath.Join(dir, "ingestion_queue.jsonl")))
	assert.Equal(t, len(res.Audit), countLines(t, filepath.Join(dir, "resolution_audit.jsonl")))

	reopened, err := store.OpenIngestionQueue(filepath.Join(dir, "ingestion_queue.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, reopened.Unresolved(), "both candidates should be marked resolved after the cycle")
}

// TestRunResolution_DrainsPreviouslyQueuedCandidates verifies a second
// cycle that enqueues nothing new still resolves candidates a prior
// cycle left unresolved in the ingestion queue.
func TestRunResolution_DrainsPreviouslyQueuedCandidates(t *testing.T) {
	ingestion := store.NewInMemoryIngestionQueue()
	cands := mergingCandidates()
	for _, c := range cands {
		require.NoError(t, ingestion.Enqueue(c))
	}

	docs := memmodel.NewStore(vectorindex.NewInMemory())
	s := store.New(config.Default().Ontology, docs, store.NewInMemoryRelationshipLog(), nil)
	s.SetIngestionQueue(ingestion)

	res, err := s.RunResolution(context.Background(), nil, nil, fixedNow)
	require.NoError(t, err)
	assert.Len(t, res.Resolved, 1)
	assert.Empty(t, ingestion.Unresolved())
}
