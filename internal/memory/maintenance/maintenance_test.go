package maintenance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/memory/coretrieval"
	"github.com/wardenai/warden/internal/memory/maintenance"
	"github.com/wardenai/warden/internal/memory/model"
	"github.com/wardenai/warden/internal/memory/vectorindex"
)

func newStore() *model.Store {
	return model.NewStore(vectorindex.NewInMemory())
}

func TestRun_DedupOneUserAssertedWins(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cfg := config.Default().Memory

	older := &model.Document{
		Text:           "The deployment runs on the staging cluster every night",
		Area:           model.AreaMain,
		Timestamp:      time.Now().Add(-time.Hour),
		Classification: model.Classification{Validity: model.ValidityInferred, Relevance: model.RelevanceActive, Utility: model.UtilityTactical, Source: model.SourceAgentInferred},
	}
	newer := &model.Document{
		Text:           "The deployment runs on the staging cluster every night",
		Area:           model.AreaMain,
		Timestamp:      time.Now(),
		Classification: model.Classification{Validity: model.ValidityConfirmed, Relevance: model.RelevanceActive, Utility: model.UtilityTactical, Source: model.SourceUserAsserted},
	}
	_, err := store.Put(ctx, older)
	require.NoError(t, err)
	_, err = store.Put(ctx, newer)
	require.NoError(t, err)

	m := maintenance.New(cfg, store, nil)
	res, err := m.Run(ctx, coretrieval.NewMemory(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deduplicated)

	got, err := store.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ValidityDeprecated, got.Classification.Validity)
	assert.Equal(t, "deduplication", got.Lineage.DeprecatedReason)
}

func TestRun_DedupLoadBearingFlagOnly(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cfg := config.Default().Memory

	a := &model.Document{
		Text:           "The build pipeline always runs lint before tests",
		Area:           model.AreaMain,
		Timestamp:      time.Now().Add(-time.Hour),
		Classification: model.Classification{Validity: model.ValidityInferred, Relevance: model.RelevanceActive, Utility: model.UtilityLoadBearing, Source: model.SourceAgentInferred},
	}
	b := &model.Document{
		Text:           "The build pipeline always runs lint before tests",
		Area:           model.AreaMain,
		Timestamp:      time.Now(),
		Classification: model.Classification{Validity: model.ValidityInferred, Relevance: model.RelevanceActive, Utility: model.UtilityTactical, Source: model.SourceAgentInferred},
	}
	_, err := store.Put(ctx, a)
	require.NoError(t, err)
	_, err = store.Put(ctx, b)
	require.NoError(t, err)

	m := maintenance.New(cfg, store, nil)
	res, err := m.Run(ctx, coretrieval.NewMemory(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Deduplicated)

	gotA, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ValidityInferred, gotA.Classification.Validity)
}

func TestRun_DormancyFlagging(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cfg := config.Default().Memory
	cfg.ArchivalThresholdCycles = 5

	d := &model.Document{
		Text:           "A tactical note nobody has revisited",
		Area:           model.AreaMain,
		Timestamp:      time.Now(),
		Classification: model.Classification{Validity: model.ValidityInferred, Relevance: model.RelevanceActive, Utility: model.UtilityTactical, Source: model.SourceAgentInferred},
		Lineage:        model.Lineage{ClassifiedAtCycle: 1, AccessCount: 0},
	}
	_, err := store.Put(ctx, d)
	require.NoError(t, err)

	m := maintenance.New(cfg, store, nil)
	res, err := m.Run(ctx, coretrieval.NewMemory(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DormancyFlagged)

	got, err := store.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.Lineage.DormancyCandidate)
}

func TestRun_ClusterCandidates(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cfg := config.Default().Memory
	colog := coretrieval.NewMemory()

	for i := 0; i < 5; i++ {
		require.NoError(t, colog.Record(ctx, coretrieval.Entry{MemoryIDs: []string{"m1", "m2"}, Timestamp: time.Now()}))
	}
	require.NoError(t, colog.Record(ctx, coretrieval.Entry{MemoryIDs: []string{"m3", "m4"}, Timestamp: time.Now()}))

	m := maintenance.New(cfg, store, nil)
	res, err := m.Run(ctx, colog, 1)
	require.NoError(t, err)
	require.Len(t, res.ClusterCandidates, 1)
	assert.Equal(t, [2]string{"m1", "m2"}, res.ClusterCandidates[0])

	stored, err := colog.ClusterCandidates(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
