// Package memory composes the Memory Classifier (M), Memory Maintenance
// (D), and Recall Filter (F) into the pre- and post-turn hooks spec.md §2
// describes: "M, D, F, E, N execute per-turn inside the inner agent's
// loop, as pre- and post-turn hooks." Engine is the library a
// hypothetical inner-agent harness embeds, the same role
// internal/kernel.Kernel plays for the Org Kernel.
package memory

import (
	"context"
	"time"

	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/memory/classifier"
	"github.com/wardenai/warden/internal/memory/coretrieval"
	"github.com/wardenai/warden/internal/memory/maintenance"
	"github.com/wardenai/warden/internal/memory/model"
	"github.com/wardenai/warden/internal/memory/recall"
	"github.com/wardenai/warden/internal/telemetry"
)

// Engine wires the Store all three memory components share, plus the
// co-retrieval log maintenance's cluster-detection phase reads from.
type Engine struct {
	Store       *model.Store
	Classifier  *classifier.Classifier
	Maintenance *maintenance.Maintenance
	Recall      *recall.Filter

	colog       coretrieval.Log
	loopCounter int
}

// New builds an Engine over store, using cfg for all three components'
// thresholds and colog (may be nil) as the co-retrieval backing log.
func New(cfg config.MemoryConfig, store *model.Store, colog coretrieval.Log, log telemetry.Logger) *Engine {
	return &Engine{
		Store:       store,
		Classifier:  classifier.New(cfg, store, log),
		Maintenance: maintenance.New(cfg, store, log),
		Recall:      recall.New(cfg, store),
		colog:       colog,
	}
}

// PreTurn is the pre-turn hook: it runs the Recall Filter for the turn's
// query/area and, if it returned any survivors, records them as one
// co-retrieval entry (spec.md §4.8's input to cluster-candidate
// detection) before returning the documents to inject into the prompt.
func (e *Engine) PreTurn(ctx context.Context, query string, area model.Area, threshold float64, role *recall.Role, roleDomainsByCreator map[string][]string) ([]*model.Document, error) {
	docs, err := e.Recall.Recall(ctx, query, area, threshold, role, roleDomainsByCreator)
	if err != nil {
		return nil, err
	}
	if e.colog != nil && len(docs) > 1 {
		ids := make([]string, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}
		_ = e.colog.Record(ctx, coretrieval.Entry{MemoryIDs: ids, Timestamp: time.Now().UTC()})
	}
	return docs, nil
}

// PostTurn is the post-turn hook: it classifies any newly written
// memories for the turn (attaching lineage and resolving conflicts), and
// every maintenanceIntervalLoops calls also runs a Memory Maintenance
// cycle (spec.md §4.8's cadence).
func (e *Engine) PostTurn(ctx context.Context, turn classifier.Turn, maintenanceIntervalLoops int) ([]*model.Document, *maintenance.Result, error) {
	classified, err := e.Classifier.ClassifyPending(ctx, turn)
	if err != nil {
		return nil, nil, err
	}

	e.loopCounter++
	if maintenanceIntervalLoops <= 0 {
		maintenanceIntervalLoops = 10
	}
	if e.loopCounter%maintenanceIntervalLoops != 0 {
		return classified, nil, nil
	}
	res, err := e.Maintenance.Run(ctx, e.colog, e.loopCounter)
	if err != nil {
		return classified, nil, err
	}
	return classified, &res, nil
}
