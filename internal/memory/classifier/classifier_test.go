package classifier_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/memory/classifier"
	"github.com/wardenai/warden/internal/memory/model"
	"github.com/wardenai/warden/internal/memory/vectorindex"
)

func newStore() *model.Store {
	return model.NewStore(vectorindex.NewInMemory())
}

// TestClassifyPending_SourceAxes exercises §4.7's source classification:
// URL+date -> external_retrieved, overlap with last user message ->
// user_asserted, else agent_inferred.
func TestClassifyPending_SourceAxes(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cfg := config.Default().Memory

	external := &model.Document{Text: "Per https://example.com/docs retrieved on 2024-01-05, the API requires a token.", Area: model.AreaMain, Timestamp: time.Now()}
	userAsserted := &model.Document{Text: "The project must always use Python 3.11 for builds", Area: model.AreaMain, Timestamp: time.Now()}
	inferred := &model.Document{Text: "Tried refactoring the handler into smaller functions", Area: model.AreaSolutions, Timestamp: time.Now()}

	for _, d := range []*model.Document{external, userAsserted, inferred} {
		_, err := store.Put(ctx, d)
		require.NoError(t, err)
	}

	c := classifier.New(cfg, store, nil)
	classified, err := c.ClassifyPending(ctx, classifier.Turn{
		LastUserMessage: "The project must always use Python 3.11 for builds",
		ActiveRoleID:    "role-1",
		BSTDomain:       "build",
		Cycle:           1,
	})
	require.NoError(t, err)
	require.Len(t, classified, 3)

	byID := map[string]*model.Document{}
	for _, d := range classified {
		byID[d.ID] = d
	}
	assert.Equal(t, model.SourceExternalRetrieved, byID[external.ID].Classification.Source)
	assert.Equal(t, model.SourceUserAsserted, byID[userAsserted.ID].Classification.Source)
	assert.Equal(t, model.ValidityConfirmed, byID[userAsserted.ID].Classification.Validity)
	assert.Equal(t, model.UtilityLoadBearing, byID[userAsserted.ID].Classification.Utility)
	assert.Equal(t, model.SourceAgentInferred, byID[inferred.ID].Classification.Source)
	assert.Equal(t, model.ValidityInferred, byID[inferred.ID].Classification.Validity)
}

// TestResolveConflicts_SourceWins implements spec.md §8 scenario 6: a
// user_asserted memory beats a later agent_inferred contradiction.
func TestResolveConflicts_SourceWins(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cfg := config.Default().Memory

	a := &model.Document{Text: "The project uses Python version 3.11", Area: model.AreaMain, Timestamp: time.Now().Add(-time.Hour)}
	_, err := store.Put(ctx, a)
	require.NoError(t, err)

	c := classifier.New(cfg, store, nil)
	_, err = c.ClassifyPending(ctx, classifier.Turn{LastUserMessage: "The project uses Python version 3.11", Cycle: 1})
	require.NoError(t, err)

	b := &model.Document{Text: "The project uses Python version 3.9", Area: model.AreaSolutions, Timestamp: time.Now()}
	_, err = store.Put(ctx, b)
	require.NoError(t, err)
	_, err = c.ClassifyPending(ctx, classifier.Turn{LastUserMessage: "investigating build failures", Cycle: 2})
	require.NoError(t, err)

	got, err := store.Get(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ValidityDeprecated, got.Classification.Validity)
	require.Contains(t, got.Lineage.SupersededBy, a.ID)

	winner, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Contains(t, winner.Lineage.Supersedes, b.ID)
}

// TestClassifyPending_Idempotent: classifying an already-classified
// memory is a no-op (spec.md §8 round-trip property).
func TestClassifyPending_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	cfg := config.Default().Memory
	d := &model.Document{Text: "Some note about the deployment pipeline", Area: model.AreaMain, Timestamp: time.Now()}
	_, err := store.Put(ctx, d)
	require.NoError(t, err)

	c := classifier.New(cfg, store, nil)
	first, err := c.ClassifyPending(ctx, classifier.Turn{LastUserMessage: "unrelated", Cycle: 1})
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := c.ClassifyPending(ctx, classifier.Turn{LastUserMessage: "unrelated", Cycle: 2})
	require.NoError(t, err)
	assert.Empty(t, second)
}
