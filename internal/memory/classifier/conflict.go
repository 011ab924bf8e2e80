package classifier

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/wardenai/warden/internal/memory/model"
)

// resolveConflicts implements spec.md §4.7's conflict detection +
// resolution: a top-k similarity search against d, three contradiction
// detectors, then the four-step resolution order.
func (c *Classifier) resolveConflicts(ctx context.Context, d *model.Document) error {
	topK := c.cfg.ConflictTopK
	if topK <= 0 {
		topK = 5
	}
	candidates, err := c.store.Search(ctx, d.Text, nil, topK+1, 0.5)
	if err != nil {
		return err
	}
	for _, cand := range candidates {
		if cand.Doc.ID == d.ID {
			continue
		}
		if cand.Doc.Classification.Validity == model.ValidityDeprecated {
			continue
		}
		if !contradicts(d.Text, cand.Doc.Text) {
			continue
		}
		winner, loser := pickWinner(d, cand.Doc, c.now())
		if loser.Classification.Validity == model.ValidityDeprecated {
			continue
		}
		loser.Deprecate(winner.ID, "conflict", c.now())
		winner.AddSupersedes(loser.ID)
		if _, err := c.store.Put(ctx, loser); err != nil {
			return err
		}
		if _, err := c.store.Put(ctx, winner); err != nil {
			return err
		}
	}
	return nil
}

// contradicts runs the three detectors of spec.md §4.7 against a text
// pair, in either direction.
func contradicts(a, b string) bool {
	return explicitCorrection(a, b) || explicitCorrection(b, a) ||
		entityValueDivergence(a, b) || negationVsAffirmation(a, b) || negationVsAffirmation(b, a)
}

var correctionRE = regexp.MustCompile(`(?i)\b(actually|no,? correct|i meant|correction:|to clarify)\b`)

// explicitCorrection reports whether side a reads as an explicit
// correction of b: a contains a correction phrase AND shares >=3 words
// with b.
func explicitCorrection(a, b string) bool {
	if !correctionRE.MatchString(a) {
		return false
	}
	return sharedWordCount(a, b) >= 3
}

func sharedWordCount(a, b string) int {
	wa, wb := wordSet(strings.ToLower(a)), wordSet(strings.ToLower(b))
	n := 0
	for w := range wa {
		if wb[w] {
			n++
		}
	}
	return n
}

var entityValueREs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\buses?\s+([a-zA-Z0-9_.+-]+)\s+version\s+([a-zA-Z0-9_.-]+)`),
	regexp.MustCompile(`(?i)\b([a-zA-Z0-9_.+-]+)\s+version\s+([a-zA-Z0-9_.-]+)`),
	regexp.MustCompile(`(?i)\bthe\s+([a-zA-Z0-9_.+-]+)\s+is\s+([a-zA-Z0-9_.-]+)`),
}

// entityValueDivergence extracts (entity, value) pairs from both texts
// using a shared regex table; if both sides name the same entity with a
// different value, it's a contradiction.
func entityValueDivergence(a, b string) bool {
	for entity, value := range extractEntityValues(a) {
		if other, ok := extractEntityValues(b)[entity]; ok && !strings.EqualFold(other, value) {
			return true
		}
	}
	return false
}

func extractEntityValues(text string) map[string]string {
	out := map[string]string{}
	for _, re := range entityValueREs {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) == 3 {
				out[strings.ToLower(m[1])] = m[2]
			}
		}
	}
	return out
}

type negationPair struct {
	negative *regexp.Regexp
	positive *regexp.Regexp
}

// negationAffirmationPairs is a small set of negation/affirmation regex
// pairs (spec.md §4.7 example: "does not use X" vs "uses X").
var negationAffirmationPairs = []negationPair{
	{
		negative: regexp.MustCompile(`(?i)\bdoes\s+not\s+use\s+([a-zA-Z0-9_.+-]+)`),
		positive: regexp.MustCompile(`(?i)\buses?\s+([a-zA-Z0-9_.+-]+)`),
	},
	{
		negative: regexp.MustCompile(`(?i)\bis\s+not\s+([a-zA-Z0-9_.+-]+)`),
		positive: regexp.MustCompile(`(?i)\bis\s+([a-zA-Z0-9_.+-]+)`),
	},
	{
		negative: regexp.MustCompile(`(?i)\bdoes\s+not\s+support\s+([a-zA-Z0-9_.+-]+)`),
		positive: regexp.MustCompile(`(?i)\bsupports?\s+([a-zA-Z0-9_.+-]+)`),
	},
}

// negationVsAffirmation checks both directions: a negates a term that b
// affirms.
func negationVsAffirmation(a, b string) bool {
	for _, p := range negationAffirmationPairs {
		negMatches := p.negative.FindAllStringSubmatch(a, -1)
		if len(negMatches) == 0 {
			continue
		}
		for _, nm := range negMatches {
			term := strings.ToLower(nm[1])
			for _, pm := range p.positive.FindAllStringSubmatch(b, -1) {
				if strings.ToLower(pm[1]) == term {
					return true
				}
			}
		}
	}
	return false
}

// pickWinner implements spec.md §4.7's four-step resolution order:
// source rank, then validity rank, then utility rank, then recency with
// loser=A on ties.
func pickWinner(a, b *model.Document, now time.Time) (winner, loser *model.Document) {
	if a.Classification.Source.Rank() != b.Classification.Source.Rank() {
		if a.Classification.Source.Rank() > b.Classification.Source.Rank() {
			return a, b
		}
		return b, a
	}
	if a.Classification.Validity.Rank() != b.Classification.Validity.Rank() {
		if a.Classification.Validity.Rank() > b.Classification.Validity.Rank() {
			return a, b
		}
		return b, a
	}
	if a.Classification.Utility.Rank() != b.Classification.Utility.Rank() {
		if a.Classification.Utility.Rank() > b.Classification.Utility.Rank() {
			return a, b
		}
		return b, a
	}
	if a.Timestamp.After(b.Timestamp) {
		return a, b
	}
	if b.Timestamp.After(a.Timestamp) {
		return b, a
	}
	// Tie: loser = A, per spec.md §4.7.
	return b, a
}
