// Package bst implements the Intent/Slot Engine (I): domain classification
// against a trigger-phrase taxonomy, ordered slot-resolver chains, belief
// persistence, and the enrich/clarify/passthrough decision, per spec.md
// §4.6. It is new code — no teacher or pack repo implements an intent
// classifier of this shape — built in the repo's prevailing style (typed
// config loaded from JSON, small pure functions, explicit state threaded by
// the caller rather than held in package globals).
package bst

import (
	"encoding/json"
	"os"
	"strings"
)

type (
	// SlotSpec describes one slot a domain requires or optionally accepts.
	SlotSpec struct {
		Name            string            `json:"name"`
		Required        bool              `json:"required"`
		RequiredWhen    string            `json:"required_when,omitempty"` // another slot name that must be filled first
		KeywordMap      map[string]string `json:"keyword_map,omitempty"`
		ClarifyQuestion string            `json:"clarify_question"`
		Default         string            `json:"default,omitempty"`
	}

	// DomainSpec is one entry of the intent taxonomy.
	DomainSpec struct {
		Name           string   `json:"name"`
		TriggerPhrases []string `json:"trigger_phrases"`
		Slots          []SlotSpec `json:"slots"`
		Threshold      float64  `json:"threshold"`
		Preamble       string   `json:"preamble"`
	}

	// Taxonomy is the full domain taxonomy loaded from disk.
	Taxonomy struct {
		Domains               []DomainSpec `json:"domains"`
		MinTriggerWordLength  int          `json:"min_trigger_word_length"`
		BeliefStateTTLTurns   int          `json:"belief_state_ttl_turns"`
		ClarificationCap      int          `json:"clarification_cap"`
		UnderspecPhrases      []string     `json:"underspec_phrases"`
		UnderspecPronouns     []string     `json:"underspec_pronouns"`
		FileExtensionLanguage map[string]string `json:"file_extension_language"`
	}
)

// DefaultTaxonomy is a small built-in taxonomy used when no taxonomy file is
// configured, so the engine is usable out of the box.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		MinTriggerWordLength: 2,
		BeliefStateTTLTurns:  5,
		ClarificationCap:     2,
		UnderspecPronouns:    []string{"it", "that", "this", "them"},
		UnderspecPhrases:     []string{"keep going", "continue", "do it", "same thing", "again"},
		FileExtensionLanguage: map[string]string{
			".go": "go", ".py": "python", ".js": "javascript", ".ts": "typescript",
			".rs": "rust", ".java": "java", ".rb": "ruby", ".c": "c", ".cpp": "c++",
		},
		Domains: []DomainSpec{
			{
				Name:           "debugging",
				TriggerPhrases: []string{"fix the bug", "not working", "throws an error", "crashes", "debug"},
				Threshold:      0.5,
				Preamble:       "The user needs help diagnosing and fixing a defect.",
				Slots: []SlotSpec{
					{Name: "language", Required: true, ClarifyQuestion: "Which programming language is this in?"},
					{Name: "file", Required: false, ClarifyQuestion: "Which file should I look at?"},
				},
			},
			{
				Name:           "refactoring",
				TriggerPhrases: []string{"refactor", "clean up", "simplify", "rename"},
				Threshold:      0.5,
				Preamble:       "The user wants existing code restructured without changing behavior.",
				Slots: []SlotSpec{
					{Name: "file", Required: true, ClarifyQuestion: "Which file or module should I refactor?"},
				},
			},
		},
	}
}

// LoadTaxonomy reads a taxonomy JSON file from path.
func LoadTaxonomy(path string) (Taxonomy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Taxonomy{}, err
	}
	var t Taxonomy
	if err := json.Unmarshal(raw, &t); err != nil {
		return Taxonomy{}, err
	}
	if t.MinTriggerWordLength == 0 {
		t.MinTriggerWordLength = 2
	}
	if t.ClarificationCap == 0 {
		t.ClarificationCap = 2
	}
	return t, nil
}

func wordCount(phrase string) int {
	return len(strings.Fields(phrase))
}

// containsPhrase reports whether haystack contains phrase as a
// case-insensitive substring match of whole words.
func containsPhrase(haystack, phrase string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(phrase))
}
