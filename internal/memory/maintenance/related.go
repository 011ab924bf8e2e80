package maintenance

import (
	"context"

	"github.com/wardenai/warden/internal/memory/model"
)

// tagSet implements spec.md §4.8's related-linking tag set:
// {validity, relevance, utility, source, bst_domain, area}.
func tagSet(d *model.Document) map[string]bool {
	return map[string]bool{
		"validity:" + string(d.Classification.Validity):  true,
		"relevance:" + string(d.Classification.Relevance): true,
		"utility:" + string(d.Classification.Utility):    true,
		"source:" + string(d.Classification.Source):      true,
		"bst_domain:" + d.Lineage.BSTDomain:               true,
		"area:" + string(d.Area):                          true,
	}
}

func overlapCount(a, b map[string]bool) int {
	n := 0
	for k := range a {
		if b[k] {
			n++
		}
	}
	return n
}

// linkRelated implements spec.md §4.8's related-memory linking phase,
// returning the number of new link entries added (counted once per side).
func (m *Maintenance) linkRelated(ctx context.Context, active []*model.Document) (int, error) {
	threshold := m.cfg.RelatedMemories.TagOverlapThreshold
	if threshold <= 0 {
		threshold = 3
	}
	maxRelated := m.cfg.RelatedMemories.MaxRelatedPerMemory
	if maxRelated <= 0 {
		maxRelated = 10
	}

	tags := make(map[string]map[string]bool, len(active))
	for _, d := range active {
		tags[d.ID] = tagSet(d)
	}

	added := 0
	dirty := map[string]*model.Document{}
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			a, b := active[i], active[j]
			if overlapCount(tags[a.ID], tags[b.ID]) < threshold {
				continue
			}
			before := len(a.Lineage.RelatedMemoryIDs)
			a.LinkRelated(b.ID, maxRelated)
			if len(a.Lineage.RelatedMemoryIDs) != before {
				added++
				dirty[a.ID] = a
			}
			before = len(b.Lineage.RelatedMemoryIDs)
			b.LinkRelated(a.ID, maxRelated)
			if len(b.Lineage.RelatedMemoryIDs) != before {
				added++
				dirty[b.ID] = b
			}
		}
	}
	for _, d := range dirty {
		if _, err := m.store.Put(ctx, d); err != nil {
			return added, err
		}
	}
	return added, nil
}
