package maintenance

import (
	"context"

	"github.com/wardenai/warden/internal/memory/model"
)

// flagDormancy implements spec.md §4.8's dormancy phase: active,
// non-load-bearing memories with no accesses that have aged past the
// archival threshold get dormancy_candidate=true. It never
// reclassifies automatically.
func (m *Maintenance) flagDormancy(ctx context.Context, active []*model.Document, currentCycle int) (int, error) {
	threshold := m.cfg.ArchivalThresholdCycles
	flagged := 0
	for _, d := range active {
		if d.Lineage.DormancyCandidate {
			continue
		}
		if d.Classification.Relevance != model.RelevanceActive {
			continue
		}
		if d.Classification.Utility == model.UtilityLoadBearing {
			continue
		}
		if d.Lineage.AccessCount != 0 {
			continue
		}
		if currentCycle-d.Lineage.ClassifiedAtCycle < threshold {
			continue
		}
		d.Lineage.DormancyCandidate = true
		if _, err := m.store.Put(ctx, d); err != nil {
			return flagged, err
		}
		flagged++
	}
	return flagged, nil
}
