// Package maintenance implements Memory Maintenance (D, spec.md §4.8):
// dedup, related-memory linking, cluster-candidate detection, and
// dormancy flagging, run on the classifier's maintenance cadence. The
// four phases read an immutable snapshot of active memories and are
// independent of each other, so they fan out with golang.org/x/sync/errgroup
// the way the teacher pack's registry/federation code fans out independent
// I/O, matching Part C's dependency wiring.
package maintenance

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/memory/coretrieval"
	"github.com/wardenai/warden/internal/memory/model"
	"github.com/wardenai/warden/internal/telemetry"
)

// Maintenance runs the four periodic phases of §4.8.
type Maintenance struct {
	cfg   config.MemoryConfig
	store *model.Store
	log   telemetry.Logger
	now   func() time.Time
}

// New constructs a Maintenance runner.
func New(cfg config.MemoryConfig, store *model.Store, log telemetry.Logger) *Maintenance {
	if log == nil {
		log = telemetry.NoopLogger{}
	}
	return &Maintenance{cfg: cfg, store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Result summarizes one maintenance cycle for logging/metrics.
type Result struct {
	Deduplicated      int
	RelatedLinksAdded int
	ClusterCandidates [][2]string
	DormancyFlagged   int
}

// Run executes dedup, related-linking, dormancy, and cluster detection
// against colog concurrently in one errgroup: the first three each work
// on their own clone of the snapshot, and cluster detection is independent
// of document state. Phase errors are logged, not returned. currentCycle is the
// maintenance loop counter used for dormancy age comparisons.
func (m *Maintenance) Run(ctx context.Context, colog coretrieval.Log, currentCycle int) (Result, error) {
	active, err := m.activeSnapshot(ctx)
	if err != nil {
		return Result{}, err
	}

	// Each phase gets its own deep-cloned view of the snapshot: the
	// phases are independent per spec.md §4.8 but mutate document state,
	// so sharing pointers across the fan-out would race. Results are
	// persisted back to the Store phase by phase instead.
	var res Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := m.dedup(gctx, cloneDocs(active))
		res.Deduplicated = n
		return err
	})
	g.Go(func() error {
		n, err := m.linkRelated(gctx, cloneDocs(active))
		res.RelatedLinksAdded = n
		return err
	})
	g.Go(func() error {
		n, err := m.flagDormancy(gctx, cloneDocs(active), currentCycle)
		res.DormancyFlagged = n
		return err
	})
	g.Go(func() error {
		pairs, err := m.detectClusters(gctx, colog)
		res.ClusterCandidates = pairs
		return err
	})
	if err := g.Wait(); err != nil {
		m.log.Warn(ctx, "memory maintenance cycle error", "error", err)
	}
	return res, nil
}

// cloneDocs deep-copies a document slice so independent maintenance
// phases can mutate their own view without racing each other.
func cloneDocs(docs []*model.Document) []*model.Document {
	out := make([]*model.Document, len(docs))
	for i, d := range docs {
		cp := *d
		cp.Lineage.Supersedes = append([]string(nil), d.Lineage.Supersedes...)
		cp.Lineage.SupersededBy = append([]string(nil), d.Lineage.SupersededBy...)
		cp.Lineage.RelatedMemoryIDs = append([]string(nil), d.Lineage.RelatedMemoryIDs...)
		out[i] = &cp
	}
	return out
}

func (m *Maintenance) activeSnapshot(ctx context.Context) ([]*model.Document, error) {
	all, err := m.store.All(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]*model.Document, 0, len(all))
	for _, d := range all {
		if d.Classification.Validity == model.ValidityDeprecated {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
