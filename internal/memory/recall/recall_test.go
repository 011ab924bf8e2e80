package recall_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/memory/model"
	"github.com/wardenai/warden/internal/memory/recall"
	"github.com/wardenai/warden/internal/memory/vectorindex"
)

func TestRecall_ExcludesDeprecatedAndTracksAccess(t *testing.T) {
	ctx := context.Background()
	store := model.NewStore(vectorindex.NewInMemory())
	cfg := config.Default().Memory

	live := &model.Document{
		Text:           "The staging cluster runs nightly deploys",
		Area:           model.AreaMain,
		Timestamp:      time.Now(),
		Classification: model.Classification{Validity: model.ValidityConfirmed, Relevance: model.RelevanceActive, Utility: model.UtilityTactical, Source: model.SourceUserAsserted},
	}
	dead := &model.Document{
		Text:           "The staging cluster runs nightly deploys",
		Area:           model.AreaMain,
		Timestamp:      time.Now(),
		Classification: model.Classification{Validity: model.ValidityDeprecated, Relevance: model.RelevanceActive, Utility: model.UtilityTactical, Source: model.SourceUserAsserted},
	}
	_, err := store.Put(ctx, live)
	require.NoError(t, err)
	_, err = store.Put(ctx, dead)
	require.NoError(t, err)

	f := recall.New(cfg, store)
	got, err := f.Recall(ctx, "staging cluster nightly deploys", model.AreaMain, 0.1, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, live.ID, got[0].ID)
	assert.Equal(t, 1, got[0].Lineage.AccessCount)

	reloaded, err := store.Get(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Lineage.AccessCount)
}

func TestRecall_DomainScoping(t *testing.T) {
	ctx := context.Background()
	store := model.NewStore(vectorindex.NewInMemory())
	cfg := config.Default().Memory

	inDomain := &model.Document{
		Text:           "The billing service retries failed webhooks",
		Area:           model.AreaMain,
		Timestamp:      time.Now(),
		Classification: model.Classification{Validity: model.ValidityConfirmed, Relevance: model.RelevanceActive, Utility: model.UtilityTactical, Source: model.SourceUserAsserted},
		Lineage:        model.Lineage{BSTDomain: "billing"},
	}
	outOfDomain := &model.Document{
		Text:           "The billing service retries failed webhooks",
		Area:           model.AreaMain,
		Timestamp:      time.Now(),
		Classification: model.Classification{Validity: model.ValidityConfirmed, Relevance: model.RelevanceActive, Utility: model.UtilityTactical, Source: model.SourceUserAsserted},
		Lineage:        model.Lineage{BSTDomain: "shipping"},
	}
	_, err := store.Put(ctx, inDomain)
	require.NoError(t, err)
	_, err = store.Put(ctx, outOfDomain)
	require.NoError(t, err)

	f := recall.New(cfg, store)
	role := &recall.Role{ID: "role-billing", Domains: []string{"billing"}}
	got, err := f.Recall(ctx, "billing service retries webhooks", model.AreaMain, 0.1, role, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inDomain.ID, got[0].ID)
}
