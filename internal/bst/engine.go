package bst

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/wardenai/warden/pkg/conversation"
)

// Action is the Intent/Slot Engine's decision for a turn.
type Action string

const (
	ActionEnrich      Action = "enrich"
	ActionClarify     Action = "clarify"
	ActionPassthrough Action = "passthrough"
)

// Result is everything the dispatcher needs to act on the engine's
// decision for one turn.
type Result struct {
	Action Action

	Domain     string
	Slots      map[string]string
	Confidence float64

	// EnrichedMessage replaces the last user message when Action ==
	// ActionEnrich.
	EnrichedMessage string

	// ClarifyQuestion is the agent message to append when Action ==
	// ActionClarify.
	ClarifyQuestion string

	ReusedBelief bool
}

// Engine runs the five-step pipeline of spec.md §4.6 against a taxonomy.
type Engine struct {
	tax Taxonomy

	lastMentionedFileRe *regexp.Regexp
	lastMentionedPathRe *regexp.Regexp
	quotedTokenRe       *regexp.Regexp
}

// NewEngine builds an Engine over the given taxonomy.
func NewEngine(tax Taxonomy) *Engine {
	return &Engine{
		tax:                 tax,
		lastMentionedFileRe: regexp.MustCompile(`\b[\w./-]+\.[A-Za-z0-9]{1,8}\b`),
		lastMentionedPathRe: regexp.MustCompile(`(?:/[\w.-]+)+/?`),
		quotedTokenRe:       regexp.MustCompile(`"([^"]+)"|'([^']+)'`),
	}
}

// Process runs the pipeline for the latest user message, given recent
// history (oldest first) and the conversation's persisted belief state.
// It returns the decision and the belief state to persist back onto
// state.Belief (the caller is expected to do so; Process does not mutate
// state itself, keeping it a pure function of its inputs).
func (e *Engine) Process(state *conversation.State, message string, history []string) (Result, conversation.BeliefState) {
	turn := state.TurnCount

	if reused, ok := e.tryReuseBelief(state.Belief, turn, message); ok {
		return reused, bumpBelief(state.Belief, turn)
	}

	domain, classifierConfidence := e.classifyDomain(message)
	if domain == "" {
		return Result{Action: ActionPassthrough, Domain: "conversational"}, conversation.BeliefState{}
	}

	spec := e.domainSpec(domain)
	slots, missing := e.fillSlots(spec, message, history)

	filledRequiredRatio := requiredRatio(spec, slots)
	confidence := 0.4*classifierConfidence + 0.6*filledRequiredRatio

	belief := conversation.BeliefState{
		Domain:          domain,
		Turn:            turn,
		Slots:           slots,
		MissingRequired: missing,
		Confidence:      confidence,
		UpdatedAt:       now(),
	}

	if confidence >= spec.Threshold || len(missing) == 0 {
		return Result{
			Action:          ActionEnrich,
			Domain:          domain,
			Slots:           slots,
			Confidence:      confidence,
			EnrichedMessage: enrich(spec, slots, message),
		}, belief
	}

	if state.Belief.ClarificationsAsked < e.tax.ClarificationCap {
		belief.ClarificationsAsked = state.Belief.ClarificationsAsked + 1
		question := clarifyQuestion(spec, missing[0])
		return Result{
			Action:          ActionClarify,
			Domain:          domain,
			Slots:           slots,
			Confidence:      confidence,
			ClarifyQuestion: question,
		}, belief
	}

	return Result{Action: ActionPassthrough, Domain: domain, Slots: slots, Confidence: confidence}, belief
}

// now is isolated so tests can observe it deterministically is unnecessary
// here; kept as a thin wrapper for a single call site.
func now() time.Time { return time.Now() }

func bumpBelief(b conversation.BeliefState, turn int) conversation.BeliefState {
	b.Turn = turn
	b.UpdatedAt = now()
	return b
}

// tryReuseBelief implements step 1: underspecification check.
func (e *Engine) tryReuseBelief(belief conversation.BeliefState, turn int, message string) (Result, bool) {
	if belief.Expired(turn, e.tax.BeliefStateTTLTurns) {
		return Result{}, false
	}
	if !e.isUnderspecified(message) {
		return Result{}, false
	}

	spec := e.domainSpec(belief.Domain)
	preamble := "Continuing task: " + spec.Preamble
	return Result{
		Action:          ActionEnrich,
		Domain:          belief.Domain,
		Slots:           belief.Slots,
		Confidence:      belief.Confidence,
		EnrichedMessage: enrichWithPreamble(preamble, belief.Slots, message),
		ReusedBelief:    true,
	}, true
}

func (e *Engine) isUnderspecified(message string) bool {
	words := strings.Fields(message)
	if len(words) <= 5 {
		for _, w := range words {
			w = strings.ToLower(strings.Trim(w, ".,!?"))
			for _, p := range e.tax.UnderspecPronouns {
				if w == p {
					return true
				}
			}
		}
	}
	for _, phrase := range e.tax.UnderspecPhrases {
		if containsPhrase(message, phrase) {
			return true
		}
	}
	return false
}

// classifyDomain implements step 2: weighted trigger-phrase scoring.
func (e *Engine) classifyDomain(message string) (string, float64) {
	var bestDomain string
	var maxScore float64

	for _, d := range e.tax.Domains {
		var score float64
		for _, phrase := range d.TriggerPhrases {
			if wordCount(phrase) < e.tax.MinTriggerWordLength {
				continue
			}
			if containsPhrase(message, phrase) {
				score += float64(wordCount(phrase))
			}
		}
		if score > maxScore {
			maxScore = score
			bestDomain = d.Name
		}
	}

	if maxScore == 0 {
		return "", 0
	}

	confidence := maxScore / (maxScore + 1)
	if normalized := maxScore / 3; normalized < confidence {
		confidence = normalized
	}
	if confidence > 1 {
		confidence = 1
	}
	return bestDomain, confidence
}

func (e *Engine) domainSpec(name string) DomainSpec {
	for _, d := range e.tax.Domains {
		if d.Name == name {
			return d
		}
	}
	return DomainSpec{}
}

// fillSlots implements step 3: the ordered resolver chain per slot.
func (e *Engine) fillSlots(spec DomainSpec, message string, history []string) (map[string]string, []string) {
	slots := make(map[string]string, len(spec.Slots))
	var missing []string

	for _, slot := range spec.Slots {
		if slot.RequiredWhen != "" {
			if _, ok := slots[slot.RequiredWhen]; !ok {
				continue
			}
		}

		value := e.resolveSlot(slot, message, history)
		if value == "" {
			value = slot.Default
		}
		if value != "" {
			slots[slot.Name] = value
			continue
		}
		if slot.Required {
			missing = append(missing, slot.Name)
		}
	}
	return slots, missing
}

// resolveSlot runs the ordered resolver chain: keyword_map,
// file_extension_inference, last_mentioned_file, last_mentioned_path,
// last_mentioned_entity, history_scan, context_inference. First non-null
// result wins.
func (e *Engine) resolveSlot(slot SlotSpec, message string, history []string) string {
	if v := resolveKeywordMap(slot, message); v != "" {
		return v
	}
	if v := e.resolveFileExtension(message); v != "" && slot.Name == "language" {
		return v
	}
	if v := e.resolveLastMentionedFile(message, history); v != "" && slot.Name == "file" {
		return v
	}
	if v := e.resolveLastMentionedPath(message, history); v != "" && slot.Name == "path" {
		return v
	}
	if v := e.resolveLastMentionedEntity(message); v != "" && isEntitySlot(slot.Name) {
		return v
	}
	if v := e.resolveHistoryScan(slot.Name, history); v != "" {
		return v
	}
	if v := e.resolveContextInference(slot.Name, message); v != "" {
		return v
	}
	return ""
}

func resolveKeywordMap(slot SlotSpec, message string) string {
	lower := strings.ToLower(message)
	for keyword, value := range slot.KeywordMap {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return value
		}
	}
	return ""
}

func (e *Engine) resolveFileExtension(message string) string {
	m := e.lastMentionedFileRe.FindString(message)
	if m == "" {
		return ""
	}
	idx := strings.LastIndex(m, ".")
	if idx < 0 {
		return ""
	}
	ext := strings.ToLower(m[idx:])
	return e.tax.FileExtensionLanguage[ext]
}

func (e *Engine) resolveLastMentionedFile(message string, history []string) string {
	if m := e.lastMentionedFileRe.FindString(message); m != "" {
		return m
	}
	for i := len(history) - 1; i >= 0; i-- {
		if m := e.lastMentionedFileRe.FindString(history[i]); m != "" {
			return m
		}
	}
	return ""
}

func (e *Engine) resolveLastMentionedPath(message string, history []string) string {
	if m := e.lastMentionedPathRe.FindString(message); m != "" {
		return m
	}
	for i := len(history) - 1; i >= 0; i-- {
		if m := e.lastMentionedPathRe.FindString(history[i]); m != "" {
			return m
		}
	}
	return ""
}

func (e *Engine) resolveLastMentionedEntity(message string) string {
	matches := e.quotedTokenRe.FindStringSubmatch(message)
	if matches == nil {
		return ""
	}
	if matches[1] != "" {
		return matches[1]
	}
	return matches[2]
}

func isEntitySlot(name string) bool {
	return name == "entity" || name == "name" || name == "target"
}

// resolveHistoryScan does a slot-name-aware fuzzy scan: it looks for
// "<slot name>: value" or "<slot name> is value" patterns anywhere in
// recent history.
func (e *Engine) resolveHistoryScan(slotName string, history []string) string {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(slotName) + `\s*(?:is|:|=)\s*([^\s,.;]+)`)
	for i := len(history) - 1; i >= 0; i-- {
		if m := re.FindStringSubmatch(history[i]); m != nil {
			return m[1]
		}
	}
	return ""
}

// resolveContextInference picks up inline enum/bool/language hints the
// other resolvers don't specifically target.
func (e *Engine) resolveContextInference(slotName, message string) string {
	lower := strings.ToLower(message)
	switch slotName {
	case "language":
		for ext, lang := range e.tax.FileExtensionLanguage {
			if strings.Contains(lower, strings.TrimPrefix(ext, ".")) {
				return lang
			}
		}
	case "confirm", "enabled":
		if strings.Contains(lower, "yes") || strings.Contains(lower, "true") {
			return "true"
		}
		if strings.Contains(lower, "no") || strings.Contains(lower, "false") {
			return "false"
		}
	}
	return ""
}

func requiredRatio(spec DomainSpec, slots map[string]string) float64 {
	var required, filled int
	for _, s := range spec.Slots {
		if !s.Required {
			continue
		}
		required++
		if _, ok := slots[s.Name]; ok {
			filled++
		}
	}
	if required == 0 {
		return 1
	}
	return float64(filled) / float64(required)
}

func clarifyQuestion(spec DomainSpec, slotName string) string {
	for _, s := range spec.Slots {
		if s.Name == slotName {
			return s.ClarifyQuestion
		}
	}
	return fmt.Sprintf("Could you clarify %q?", slotName)
}

func enrich(spec DomainSpec, slots map[string]string, message string) string {
	return enrichWithPreamble(spec.Preamble, slots, message)
}

func enrichWithPreamble(preamble string, slots map[string]string, message string) string {
	var b strings.Builder
	b.WriteString("[TASK CONTEXT]\n")
	if len(slots) > 0 {
		keys := make([]string, 0, len(slots))
		for k := range slots {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, slots[k])
		}
	}
	b.WriteString("[INSTRUCTION]\n")
	b.WriteString(preamble)
	b.WriteString("\n[USER MESSAGE]\n")
	b.WriteString(message)
	return b.String()
}
