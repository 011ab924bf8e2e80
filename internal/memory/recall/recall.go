// Package recall implements the Recall Filter (F, spec.md §4.9): it
// re-ranks and trims the base similarity-search result for a turn,
// excludes deprecated and role-inappropriate memories, and tracks
// access_count/last_accessed on survivors.
package recall

import (
	"context"
	"sort"
	"time"

	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/memory/model"
)

// Role is the minimal role-shape the filter needs: its ID and the BST
// domains it's scoped to, matching kernel/roles.Profile.Capabilities.
type Role struct {
	ID      string
	Domains []string
}

// Filter runs the recall re-ranking pass.
type Filter struct {
	cfg   config.MemoryConfig
	store *model.Store
	now   func() time.Time
}

// New constructs a Filter.
func New(cfg config.MemoryConfig, store *model.Store) *Filter {
	return &Filter{cfg: cfg, store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Recall runs the base similarity search for query, then applies
// spec.md §4.9's exclusion/ranking/truncation/access-tracking pipeline.
// role may be nil (no active role: no domain filtering beyond
// deprecated-exclusion).
func (f *Filter) Recall(ctx context.Context, query string, area model.Area, threshold float64, role *Role, roleDomainsByCreator map[string][]string) ([]*model.Document, error) {
	filter := map[string]string{}
	if area != "" {
		filter["area"] = string(area)
	}
	hits, err := f.store.Search(ctx, query, filter, 0, threshold)
	if err != nil {
		return nil, err
	}

	survivors := make([]*model.Document, 0, len(hits))
	for _, h := range hits {
		d := h.Doc
		if d.Classification.Validity == model.ValidityDeprecated {
			continue
		}
		if role != nil && d.Classification.Utility != model.UtilityLoadBearing {
			if !roleMayRecall(d, role, roleDomainsByCreator) {
				continue
			}
		}
		survivors = append(survivors, d)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.Classification.Utility.Rank() != b.Classification.Utility.Rank() {
			return a.Classification.Utility.Rank() > b.Classification.Utility.Rank()
		}
		if a.Lineage.AccessCount != b.Lineage.AccessCount {
			return a.Lineage.AccessCount > b.Lineage.AccessCount
		}
		return false // similarity order already holds from Search
	})

	limit := f.cfg.MaxInjectedMemories
	if limit <= 0 {
		limit = 8
	}
	if area == model.AreaSolutions {
		limit = limit / 2
	}
	if limit > 0 && len(survivors) > limit {
		survivors = survivors[:limit]
	}

	now := f.now()
	for _, d := range survivors {
		d.Touch(now)
		if _, err := f.store.Put(ctx, d); err != nil {
			return survivors, err
		}
	}
	return survivors, nil
}

// roleMayRecall implements spec.md §4.9's domain-scoping rule for
// non-load-bearing memories: exclude if the memory's own bst_domain is
// set and not among the role's domains; if unset, exclude if the
// creating role's domains don't overlap the current role's domains.
func roleMayRecall(d *model.Document, role *Role, roleDomainsByCreator map[string][]string) bool {
	if d.Lineage.BSTDomain != "" {
		return containsAny(role.Domains, []string{d.Lineage.BSTDomain})
	}
	creatorDomains := roleDomainsByCreator[d.Lineage.CreatedByRole]
	if creatorDomains == nil {
		return true
	}
	return containsAny(role.Domains, creatorDomains)
}

func containsAny(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	for _, x := range b {
		if set[x] {
			return true
		}
	}
	return false
}
