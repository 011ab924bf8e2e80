package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenai/warden/internal/ontology/model"
	"github.com/wardenai/warden/internal/ontology/store"
)

func candidate(sourceID, recordID, name string) *model.CandidateEntity {
	return &model.CandidateEntity{
		EntityType: "org",
		Properties: model.Properties{Name: name},
		Provenance: model.Provenance{SourceID: sourceID, RecordID: recordID},
	}
}

func TestIngestionQueue_EnqueueThenUnresolved(t *testing.T) {
	q := store.NewInMemoryIngestionQueue()

	require.NoError(t, q.Enqueue(candidate("crm", "r1", "Acme Corp")))
	require.NoError(t, q.Enqueue(candidate("crm", "r2", "Globex")))

	unresolved := q.Unresolved()
	require.Len(t, unresolved, 2)
	assert.Equal(t, "Acme Corp", unresolved[0].Properties.Name)
	assert.Equal(t, "Globex", unresolved[1].Properties.Name)
}

func TestIngestionQueue_MarkResolvedRemovesFromUnresolved(t *testing.T) {
	q := store.NewInMemoryIngestionQueue()
	c1 := candidate("crm", "r1", "Acme Corp")
	c2 := candidate("crm", "r2", "Globex")
	require.NoError(t, q.Enqueue(c1))
	require.NoError(t, q.Enqueue(c2))

	require.NoError(t, q.MarkResolved([]*model.CandidateEntity{c1}))

	unresolved := q.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, "Globex", unresolved[0].Properties.Name)
}

func TestIngestionQueue_PersistsAndReplaysFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingestion_queue.jsonl")

	q, err := store.OpenIngestionQueue(path)
	require.NoError(t, err)
	c1 := candidate("crm", "r1", "Acme Corp")
	c2 := candidate("crm", "r2", "Globex")
	require.NoError(t, q.Enqueue(c1))
	require.NoError(t, q.Enqueue(c2))
	require.NoError(t, q.MarkResolved([]*model.CandidateEntity{c1}))

	reopened, err := store.OpenIngestionQueue(path)
	require.NoError(t, err)
	unresolved := reopened.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, "Globex", unresolved[0].Properties.Name)
}
