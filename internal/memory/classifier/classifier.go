// Package classifier implements the Memory Classifier (M, spec.md §4.7):
// four-axis classification of newly written memories, lineage attachment,
// conflict detection against similar existing memories, and the
// tactical/archived utility maintenance sweep. Grounded on the teacher
// pack's session/memory store abstractions for the storage shape, with the
// classification rules themselves built directly from spec.md's pipeline
// description (no pack repo implements this domain logic).
package classifier

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/wardenai/warden/internal/config"
	"github.com/wardenai/warden/internal/errors"
	"github.com/wardenai/warden/internal/memory/model"
	"github.com/wardenai/warden/internal/telemetry"
)

// Classifier runs the per-turn classification and conflict-resolution
// passes over a Store.
type Classifier struct {
	cfg   config.MemoryConfig
	store *model.Store
	log   telemetry.Logger
	now   func() time.Time
}

// New constructs a Classifier.
func New(cfg config.MemoryConfig, store *model.Store, log telemetry.Logger) *Classifier {
	if log == nil {
		log = telemetry.NoopLogger{}
	}
	return &Classifier{cfg: cfg, store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Turn is the per-turn context the classifier needs: the latest user
// message (for source/user-assertion matching), the active role
// (lineage.created_by_role), the current BST domain, and the classifier
// cycle counter.
type Turn struct {
	LastUserMessage string
	ActiveRoleID    string
	BSTDomain       string
	Cycle           int
}

var urlRE = regexp.MustCompile(`https?://\S+`)
var dateRE = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})\b`)

// ClassifyPending classifies every document whose Classification is still
// zero-valued (spec.md §4.7: "for each unclassified document"), attaches
// lineage, and runs conflict detection/resolution against the rest of the
// store. It never returns an error that should abort the turn — failures
// are wrapped as *errors.ClassificationError and logged, per §7's "never
// break the agent over storage failure" motto; the returned slice is
// whatever succeeded.
func (c *Classifier) ClassifyPending(ctx context.Context, turn Turn) ([]*model.Document, error) {
	all, err := c.store.All(ctx, "")
	if err != nil {
		c.log.Warn(ctx, "memory classify: listing documents failed", "error", err)
		return nil, &errors.ClassificationError{Stage: "list", Cause: err}
	}

	var classified []*model.Document
	for _, d := range all {
		if d.Classification.Classified() {
			continue
		}
		c.classifyAxes(d, turn)
		c.attachLineage(d, turn)
		if _, err := c.store.Put(ctx, d); err != nil {
			c.log.Warn(ctx, "memory classify: storing document failed", "id", d.ID, "error", err)
			continue
		}
		classified = append(classified, d)
	}

	for _, d := range classified {
		if err := c.resolveConflicts(ctx, d); err != nil {
			c.log.Warn(ctx, "memory classify: conflict resolution failed", "id", d.ID, "error", err)
		}
	}
	return classified, nil
}

// classifyAxes is idempotent: calling it again on an already-classified
// document is a no-op (spec.md §8 round-trip property), because
// ClassifyPending only ever calls it on unclassified documents.
func (c *Classifier) classifyAxes(d *model.Document, turn Turn) {
	d.Classification.Source = classifySource(d, turn.LastUserMessage)
	if d.Classification.Source == model.SourceUserAsserted {
		d.Classification.Validity = model.ValidityConfirmed
	} else {
		d.Classification.Validity = model.ValidityInferred
	}
	if containsAnyKeyword(d.Text, c.cfg.LoadBearingKeywords) {
		d.Classification.Utility = model.UtilityLoadBearing
	} else {
		d.Classification.Utility = model.UtilityTactical
	}
	d.Classification.Relevance = model.RelevanceActive
}

func classifySource(d *model.Document, lastUserMessage string) model.Source {
	if urlRE.MatchString(d.Text) && dateRE.MatchString(d.Text) {
		return model.SourceExternalRetrieved
	}
	if textOverlaps(d.Text, lastUserMessage) {
		return model.SourceUserAsserted
	}
	if d.Area == model.AreaSolutions {
		return model.SourceAgentInferred
	}
	return model.SourceAgentInferred
}

// textOverlaps implements spec.md §4.7's source=user_asserted test:
// substring match of >=10 chars, OR word-set overlap ratio >= 0.6 against
// the smaller side.
func textOverlaps(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if len(b) >= 10 && strings.Contains(a, b) {
		return true
	}
	if len(a) >= 10 && strings.Contains(b, a) {
		return true
	}
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return false
	}
	shared := 0
	smaller := len(wa)
	if len(wb) < smaller {
		smaller = len(wb)
	}
	for w := range wa {
		if wb[w] {
			shared++
		}
	}
	return float64(shared)/float64(smaller) >= 0.6
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(s) {
		out[w] = true
	}
	return out
}

func containsAnyKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (c *Classifier) attachLineage(d *model.Document, turn Turn) {
	now := c.now()
	d.Lineage.CreatedAt = now
	d.Lineage.CreatedByRole = turn.ActiveRoleID
	d.Lineage.BSTDomain = turn.BSTDomain
	d.Lineage.ClassifiedAtCycle = turn.Cycle
}
