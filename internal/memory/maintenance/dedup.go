package maintenance

import (
	"context"

	"github.com/wardenai/warden/internal/memory/model"
)

// dedup implements spec.md §4.8's dedup phase. It returns the number of
// documents actually deprecated (flag-only decisions are not counted).
func (m *Maintenance) dedup(ctx context.Context, active []*model.Document) (int, error) {
	if !m.cfg.Deduplication.Enabled {
		return 0, nil
	}
	threshold := m.cfg.Deduplication.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.90
	}
	maxPairs := m.cfg.Deduplication.MaxPairsPerCycle
	seen := map[[2]string]bool{}
	processed := 0
	deprecated := 0

	for _, d := range active {
		if len(d.Text) < 10 {
			continue
		}
		hits, err := m.store.Search(ctx, d.Text, nil, 6, threshold)
		if err != nil {
			return deprecated, err
		}
		for _, hit := range hits {
			if hit.Doc.ID == d.ID || hit.Doc.Classification.Validity == model.ValidityDeprecated {
				continue
			}
			pair := pairKey(d.ID, hit.Doc.ID)
			if seen[pair] {
				continue
			}
			seen[pair] = true
			if maxPairs > 0 && processed >= maxPairs {
				return deprecated, nil
			}
			processed++

			loser, flagOnly := decideDedupLoser(d, hit.Doc)
			if flagOnly || loser == nil {
				continue
			}
			winner := d
			if loser == d {
				winner = hit.Doc
			}
			loser.Deprecate(winner.ID, "deduplication", m.now())
			winner.AddSupersedes(loser.ID)
			if _, err := m.store.Put(ctx, loser); err != nil {
				return deprecated, err
			}
			if _, err := m.store.Put(ctx, winner); err != nil {
				return deprecated, err
			}
			deprecated++
		}
	}
	return deprecated, nil
}

func pairKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// decideDedupLoser implements spec.md §4.8's decision ladder. Returns the
// losing document, or (nil, true) when the pair is only flagged.
func decideDedupLoser(a, b *model.Document) (loser *model.Document, flagOnly bool) {
	if a.Classification.Utility == model.UtilityLoadBearing || b.Classification.Utility == model.UtilityLoadBearing {
		return nil, true
	}
	aUser := a.Classification.Source == model.SourceUserAsserted
	bUser := b.Classification.Source == model.SourceUserAsserted
	if aUser && bUser {
		return nil, true
	}
	if aUser != bUser {
		if aUser {
			return b, false
		}
		return a, false
	}
	aConfirmed := a.Classification.Validity == model.ValidityConfirmed
	bConfirmed := b.Classification.Validity == model.ValidityConfirmed
	if aConfirmed != bConfirmed {
		if aConfirmed {
			return b, false
		}
		return a, false
	}
	aInferred := a.Classification.Source == model.SourceAgentInferred
	bInferred := b.Classification.Source == model.SourceAgentInferred
	if aInferred && bInferred {
		if a.Timestamp.Before(b.Timestamp) {
			return a, false
		}
		return b, false
	}
	// Fallback for combinations spec.md doesn't name explicitly: the
	// older document loses.
	if a.Timestamp.Before(b.Timestamp) {
		return a, false
	}
	return b, false
}
