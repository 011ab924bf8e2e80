package classifier

import (
	"context"

	"github.com/wardenai/warden/internal/memory/model"
)

// UtilityMaintenance runs spec.md §4.7's periodic utility sweep, distinct
// from Memory Maintenance (D)'s dormancy flagging: tactical memories with
// no accesses that have aged past the archival threshold become archived;
// archived memories that pick back up (access_count>=3) become tactical
// again and their classification cycle resets. currentCycle is the
// classifier's own loop counter.
func (c *Classifier) UtilityMaintenance(ctx context.Context, currentCycle int) error {
	all, err := c.store.All(ctx, "")
	if err != nil {
		return err
	}
	threshold := c.cfg.ArchivalThresholdCycles
	for _, d := range all {
		changed := false
		age := currentCycle - d.Lineage.ClassifiedAtCycle
		switch d.Classification.Utility {
		case model.UtilityTactical:
			if d.Lineage.AccessCount == 0 && age >= threshold {
				d.Classification.Utility = model.UtilityArchived
				changed = true
			}
		case model.UtilityArchived:
			if d.Lineage.AccessCount >= 3 {
				d.Classification.Utility = model.UtilityTactical
				d.Lineage.ClassifiedAtCycle = currentCycle
				changed = true
			}
		}
		if changed {
			if _, err := c.store.Put(ctx, d); err != nil {
				c.log.Warn(ctx, "memory classify: utility maintenance store failed", "id", d.ID, "error", err)
			}
		}
	}
	return nil
}
