package bst_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenai/warden/internal/bst"
	"github.com/wardenai/warden/pkg/conversation"
)

func TestClassifyAndEnrichWhenConfident(t *testing.T) {
	eng := bst.NewEngine(bst.DefaultTaxonomy())
	state := conversation.New("ctx-1")
	state.TurnCount = 1

	result, belief := eng.Process(state, "it throws an error when I open main.go", nil)

	assert.Equal(t, bst.ActionEnrich, result.Action)
	assert.Equal(t, "debugging", result.Domain)
	assert.Equal(t, "go", result.Slots["language"])
	assert.Equal(t, "main.go", result.Slots["file"])
	assert.Contains(t, result.EnrichedMessage, "[TASK CONTEXT]")
	assert.Contains(t, result.EnrichedMessage, "[USER MESSAGE]")
	assert.Equal(t, "debugging", belief.Domain)
}

func TestClarifyWhenRequiredSlotMissing(t *testing.T) {
	eng := bst.NewEngine(bst.DefaultTaxonomy())
	state := conversation.New("ctx-2")
	state.TurnCount = 1

	result, belief := eng.Process(state, "fix the bug", nil)

	assert.Equal(t, bst.ActionClarify, result.Action)
	assert.NotEmpty(t, result.ClarifyQuestion)
	assert.Equal(t, 1, belief.ClarificationsAsked)
}

func TestPassthroughWhenNoDomainMatches(t *testing.T) {
	eng := bst.NewEngine(bst.DefaultTaxonomy())
	state := conversation.New("ctx-3")

	result, _ := eng.Process(state, "good morning", nil)

	assert.Equal(t, bst.ActionPassthrough, result.Action)
	assert.Equal(t, "conversational", result.Domain)
}

func TestClarificationCapFallsThroughToPassthrough(t *testing.T) {
	eng := bst.NewEngine(bst.DefaultTaxonomy())
	state := conversation.New("ctx-4")
	state.TurnCount = 1
	state.Belief.ClarificationsAsked = 2 // at cap already

	result, _ := eng.Process(state, "fix the bug", nil)

	assert.Equal(t, bst.ActionPassthrough, result.Action)
}

func TestUnderspecifiedMessageReusesBelief(t *testing.T) {
	eng := bst.NewEngine(bst.DefaultTaxonomy())
	state := conversation.New("ctx-5")
	state.TurnCount = 3
	state.Belief = conversation.BeliefState{
		Domain: "debugging",
		Turn:   2,
		Slots:  map[string]string{"language": "go", "file": "main.go"},
	}

	result, belief := eng.Process(state, "keep going on it", nil)

	assert.Equal(t, bst.ActionEnrich, result.Action)
	assert.True(t, result.ReusedBelief)
	assert.Equal(t, "debugging", result.Domain)
	assert.True(t, strings.Contains(result.EnrichedMessage, "Continuing task"))
	assert.Equal(t, 3, belief.Turn)
}

func TestExpiredBeliefIsNotReused(t *testing.T) {
	eng := bst.NewEngine(bst.DefaultTaxonomy())
	state := conversation.New("ctx-6")
	state.TurnCount = 20
	state.Belief = conversation.BeliefState{Domain: "debugging", Turn: 1}

	result, _ := eng.Process(state, "keep going on it", nil)

	assert.NotEqual(t, "debugging", result.Domain)
}

func TestHistoryScanResolvesNamedSlot(t *testing.T) {
	eng := bst.NewEngine(bst.Taxonomy{
		MinTriggerWordLength: 1,
		ClarificationCap:     2,
		Domains: []bst.DomainSpec{
			{
				Name:           "deploy",
				TriggerPhrases: []string{"deploy"},
				Threshold:      0.3,
				Slots: []bst.SlotSpec{
					{Name: "environment", Required: true, ClarifyQuestion: "Which environment?"},
				},
			},
		},
	})
	state := conversation.New("ctx-7")
	state.TurnCount = 1

	result, _ := eng.Process(state, "deploy it now", []string{"environment: staging"})

	require.Equal(t, "staging", result.Slots["environment"])
}
