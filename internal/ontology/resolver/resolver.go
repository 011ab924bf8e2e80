package resolver

import (
	"sort"
	"time"

	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/errors"
	"github.com/wardenai/warden/internal/ontology/model"
)

// Decision is the outcome of scoring a candidate pair.
type Decision string

const (
	DecisionMerge    Decision = "merge"
	DecisionFlag     Decision = "flag"
	DecisionDistinct Decision = "distinct"
)

// Decide applies spec.md §4.10 step 4's thresholds to a composite score.
func Decide(composite float64, cfg config.EntityResolutionConfig) Decision {
	switch {
	case composite >= cfg.MergeThreshold:
		return DecisionMerge
	case composite >= cfg.ReviewThreshold:
		return DecisionFlag
	default:
		return DecisionDistinct
	}
}

// ScoredPair is one evaluated candidate pair, indices into the input
// batch.
type ScoredPair struct {
	A, B     int
	Score    Score
	Decision Decision
}

// AuditEntry records one resolution decision for the audit log
// (spec.md §4.10 step 6).
type AuditEntry struct {
	A, B      int
	Score     float64
	Decision  Decision
	Timestamp time.Time
}

// Result is the output of a resolution batch.
type Result struct {
	Resolved     []*model.ResolvedEntity
	Flagged      []ScoredPair
	Audit        []AuditEntry
	Errors       int
	ErrorDetails []error
}

// Resolve runs the full pipeline of spec.md §4.10 over a batch of
// candidates: preprocess, block, score, decide, union-find, merge.
// Resolution errors are per-record: they increment Errors and the batch
// continues (spec.md §7).
func Resolve(cands []*model.CandidateEntity, cfg config.OntologyConfig, now func() time.Time) Result {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	var res Result

	for i, c := range cands {
		func() {
			defer func() {
				if r := recover(); r != nil {
					res.Errors++
					res.ErrorDetails = append(res.ErrorDetails, &errors.ResolutionError{RecordID: recordID(c, i), Cause: errPanic(r)})
				}
			}()
			Preprocess(c)
		}()
	}

	keyed := make([]candidateKeys, len(cands))
	for i, c := range cands {
		if c.Normalized == nil {
			continue
		}
		keyed[i] = candidateKeys{keys: blockKeys(c.Normalized.Name, c.EntityType, c.Normalized.Aliases, c.Normalized.Identifiers, cfg.EntityResolution.BlockingStrategies)}
	}
	pairs := blockPairs(keyed)

	uf := newUnionFind(len(cands))
	for _, p := range pairs {
		a, b := cands[p.a], cands[p.b]
		if a.Normalized == nil || b.Normalized == nil || a.EntityType != b.EntityType {
			continue
		}
		score := ScorePair(a, b, cfg.EntityResolution.ScoringWeights)
		decision := Decide(score.Composite, cfg.EntityResolution)
		res.Audit = append(res.Audit, AuditEntry{A: p.a, B: p.b, Score: score.Composite, Decision: decision, Timestamp: now()})
		switch decision {
		case DecisionMerge:
			uf.union(p.a, p.b)
		case DecisionFlag:
			res.Flagged = append(res.Flagged, ScoredPair{A: p.a, B: p.b, Score: score, Decision: decision})
		}
	}

	groups := uf.groups()
	roots := make([]int, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Ints(roots)
	for _, root := range roots {
		members := groups[root]
		sort.Ints(members)
		entity, err := mergeGroup(cands, members, now)
		if err != nil {
			res.Errors++
			res.ErrorDetails = append(res.ErrorDetails, err)
			continue
		}
		res.Resolved = append(res.Resolved, entity)
	}
	return res
}

func recordID(c *model.CandidateEntity, idx int) string {
	if c != nil {
		return c.Provenance.RecordID
	}
	return ""
}

type panicErr struct{ v any }

func (p panicErr) Error() string { return "panic during preprocessing" }
func errPanic(v any) error       { return panicErr{v: v} }
