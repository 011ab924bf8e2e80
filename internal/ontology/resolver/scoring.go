package resolver

import (
	"math"
	"strings"
	"time"

	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/ontology/model"
)

// Score is the five-axis breakdown plus the weighted composite, per
// spec.md §4.10 step 3.
type Score struct {
	Name       float64
	Identifier float64
	Address    float64
	Date       float64
	Context    float64
	Composite  float64
}

// ScorePair computes the five-axis score for two preprocessed candidates
// using the configured weights. Axes with nothing to compare on either
// side (no address, no dates, no relationship context) are excluded from
// the composite rather than scored 0, and the remaining weights are
// renormalized — an axis neither candidate supplies is not evidence of a
// mismatch. The name axis is always applicable; the identifier axis
// requires identifiers on both sides.
func ScorePair(a, b *model.CandidateEntity, weights config.ScoringWeights) Score {
	s := Score{
		Name:       nameScore(a, b),
		Identifier: identifierScore(a, b),
		Address:    addressScore(a, b),
		Date:       dateScore(a, b),
		Context:    contextScore(a, b),
	}

	type axis struct {
		weight     float64
		value      float64
		applicable bool
	}
	axes := []axis{
		{weights.Name, s.Name, true},
		{weights.Identifier, s.Identifier, len(a.Normalized.Identifiers) > 0 && len(b.Normalized.Identifiers) > 0},
		{weights.Address, s.Address, a.Normalized.Address != "" && b.Normalized.Address != ""},
		{weights.Date, s.Date, len(a.Normalized.Dates) > 0 && len(b.Normalized.Dates) > 0},
		{weights.Context, s.Context, len(hintTokens(a)) > 0 && len(hintTokens(b)) > 0},
	}

	var weighted, totalWeight float64
	for _, ax := range axes {
		if !ax.applicable {
			continue
		}
		weighted += ax.weight * ax.value
		totalWeight += ax.weight
	}
	if totalWeight > 0 {
		s.Composite = weighted / totalWeight
	}
	return s
}

// nameScore is the best sequence-match ratio across names ∪ aliases.
func nameScore(a, b *model.CandidateEntity) float64 {
	namesA := append([]string{a.Normalized.Name}, a.Normalized.Aliases...)
	namesB := append([]string{b.Normalized.Name}, b.Normalized.Aliases...)
	best := 0.0
	for _, na := range namesA {
		for _, nb := range namesB {
			if r := sequenceRatio(na, nb); r > best {
				best = r
			}
		}
	}
	return best
}

// sequenceRatio is a difflib-style SequenceMatcher.ratio() approximation:
// 2*matches/(len(a)+len(b)) where matches is the longest common
// subsequence length.
func sequenceRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	m := lcsLength(a, b)
	return 2 * float64(m) / float64(len(a)+len(b))
}

func lcsLength(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// identifierScore is 1.0 if any identifier key matches exactly, else 0.
func identifierScore(a, b *model.CandidateEntity) float64 {
	for k, v := range a.Normalized.Identifiers {
		if v == "" {
			continue
		}
		if ov, ok := b.Normalized.Identifiers[k]; ok && ov == v {
			return 1.0
		}
	}
	return 0
}

// addressScore is the Jaccard similarity of tokenized canonical addresses.
func addressScore(a, b *model.CandidateEntity) float64 {
	return jaccard(strings.Fields(a.Normalized.Address), strings.Fields(b.Normalized.Address))
}

// dateScore is the max over date-pair days-apart of 1 - min(delta,365)/365.
func dateScore(a, b *model.CandidateEntity) float64 {
	best := 0.0
	for _, da := range a.Normalized.Dates {
		ta, err := time.Parse("2006-01-02", da)
		if err != nil {
			continue
		}
		for _, db := range b.Normalized.Dates {
			tb, err := time.Parse("2006-01-02", db)
			if err != nil {
				continue
			}
			delta := math.Abs(ta.Sub(tb).Hours() / 24)
			if delta > 365 {
				delta = 365
			}
			score := 1 - delta/365
			if score > best {
				best = score
			}
		}
	}
	return best
}

// contextScore is the Jaccard similarity of relationship target-hint
// tokens (the context the spec's "target_hint + description tokens"
// describes; candidates carry no separate description field).
func contextScore(a, b *model.CandidateEntity) float64 {
	return jaccard(hintTokens(a), hintTokens(b))
}

func hintTokens(c *model.CandidateEntity) []string {
	var toks []string
	for _, rel := range c.Relationships {
		toks = append(toks, strings.Fields(strings.ToLower(rel.TargetHint))...)
	}
	return toks
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := toSet(a)
	setB := toSet(b)
	inter := 0
	for x := range setA {
		if setB[x] {
			inter++
		}
	}
	union := len(setA)
	for x := range setB {
		if !setA[x] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, x := range items {
		out[x] = true
	}
	return out
}
